package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/joy-dx/gobox/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SQLTokenStorageTestSuite struct {
	suite.Suite
	mockDB  *sql.DB
	mock    sqlmock.Sqlmock
	storage *SQLTokenStorage
}

func TestSQLTokenStorageSuite(t *testing.T) {
	suite.Run(t, new(SQLTokenStorageTestSuite))
}

func (suite *SQLTokenStorageTestSuite) SetupTest() {
	var err error
	suite.mockDB, suite.mock, err = sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		suite.T().Fatalf("Failed to create mock database: %v", err)
	}
	suite.storage, err = New(suite.mockDB, DialectPostgres, "app-1")
	suite.Require().NoError(err)
}

func (suite *SQLTokenStorageTestSuite) TearDownTest() {
	if err := suite.mock.ExpectationsWereMet(); err != nil {
		suite.T().Fatalf("There were unfulfilled expectations: %v", err)
	}
}

func (suite *SQLTokenStorageTestSuite) TestMigrate() {
	suite.mock.ExpectExec(queryCreateTable.Query).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(suite.T(), suite.storage.Migrate(context.Background()))
}

func (suite *SQLTokenStorageTestSuite) TestStoreUpserts() {
	tok := &dto.AccessToken{AccessToken: "abc", TokenType: "bearer"}
	suite.mock.ExpectExec(queryUpsertToken.PostgresQuery).
		WithArgs("app-1", `{"access_token":"abc","token_type":"bearer","expires_at":"0001-01-01T00:00:00Z"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(suite.T(), suite.storage.Store(context.Background(), tok))
}

func (suite *SQLTokenStorageTestSuite) TestStoreNilClears() {
	suite.mock.ExpectExec(queryDeleteToken.PostgresQuery).
		WithArgs("app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(suite.T(), suite.storage.Store(context.Background(), nil))
}

func (suite *SQLTokenStorageTestSuite) TestGetFound() {
	rows := sqlmock.NewRows([]string{"token"}).AddRow(`{"access_token":"abc","refresh_token":"r"}`)
	suite.mock.ExpectQuery(querySelectToken.PostgresQuery).WithArgs("app-1").WillReturnRows(rows)

	tok, err := suite.storage.Get(context.Background())
	suite.Require().NoError(err)
	assert.Equal(suite.T(), "abc", tok.AccessToken)
	assert.Equal(suite.T(), "r", tok.RefreshToken)
}

func (suite *SQLTokenStorageTestSuite) TestGetMissing() {
	suite.mock.ExpectQuery(querySelectToken.PostgresQuery).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"token"}))

	tok, err := suite.storage.Get(context.Background())
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), tok)
}

func (suite *SQLTokenStorageTestSuite) TestGetDatabaseError() {
	expectedErr := errors.New("connection reset")
	suite.mock.ExpectQuery(querySelectToken.PostgresQuery).WithArgs("app-1").WillReturnError(expectedErr)

	_, err := suite.storage.Get(context.Background())
	assert.ErrorIs(suite.T(), err, expectedErr)
}

func (suite *SQLTokenStorageTestSuite) TestGetCorruptRow() {
	rows := sqlmock.NewRows([]string{"token"}).AddRow(`{broken`)
	suite.mock.ExpectQuery(querySelectToken.PostgresQuery).WithArgs("app-1").WillReturnRows(rows)

	_, err := suite.storage.Get(context.Background())
	assert.Error(suite.T(), err)
}

func (suite *SQLTokenStorageTestSuite) TestClearError() {
	expectedErr := errors.New("read only")
	suite.mock.ExpectExec(queryDeleteToken.PostgresQuery).WithArgs("app-1").WillReturnError(expectedErr)

	assert.ErrorIs(suite.T(), suite.storage.Clear(context.Background()), expectedErr)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(nil, "mysql", "")
	require.Error(t, err)

	s, err := New(nil, DialectSQLite, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, s.key)
}

func TestSQLite_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "tokens.db")

	s, err := Open(ctx, DialectSQLite, dsn, "svc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.Store(ctx, &dto.AccessToken{AccessToken: "one", Expiry: exp}))
	require.NoError(t, s.Store(ctx, &dto.AccessToken{AccessToken: "two", Expiry: exp}))

	got, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", got.AccessToken)
	assert.True(t, got.Expiry.Equal(exp))

	// Other keys are independent rows
	other, err := New(s.db, DialectSQLite, "other")
	require.NoError(t, err)
	got, err = other.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Clear(ctx))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
