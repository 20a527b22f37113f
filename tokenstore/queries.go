package tokenstore

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// dbQuery holds one statement per dialect. Postgres falls back to Query
// when it needs no placeholder rewrite.
type dbQuery struct {
	ID            string
	Query         string
	PostgresQuery string
}

func (q dbQuery) get(dialect string) string {
	if dialect == DialectPostgres && q.PostgresQuery != "" {
		return q.PostgresQuery
	}
	return q.Query
}

var (
	queryCreateTable = dbQuery{
		ID: "TS-01",
		Query: `CREATE TABLE IF NOT EXISTS gobox_tokens (
	token_key  VARCHAR(255) PRIMARY KEY,
	token      TEXT NOT NULL,
	updated_at BIGINT NOT NULL
)`,
	}
	queryUpsertToken = dbQuery{
		ID: "TS-02",
		Query: "INSERT INTO gobox_tokens (token_key, token, updated_at) VALUES (?, ?, ?) " +
			"ON CONFLICT (token_key) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at",
		PostgresQuery: "INSERT INTO gobox_tokens (token_key, token, updated_at) VALUES ($1, $2, $3) " +
			"ON CONFLICT (token_key) DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at",
	}
	querySelectToken = dbQuery{
		ID:            "TS-03",
		Query:         "SELECT token FROM gobox_tokens WHERE token_key = ?",
		PostgresQuery: "SELECT token FROM gobox_tokens WHERE token_key = $1",
	}
	queryDeleteToken = dbQuery{
		ID:            "TS-04",
		Query:         "DELETE FROM gobox_tokens WHERE token_key = ?",
		PostgresQuery: "DELETE FROM gobox_tokens WHERE token_key = $1",
	}
)
