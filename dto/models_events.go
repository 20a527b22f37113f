package dto

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type StreamType string

const (
	StreamTypeAll                StreamType = "all"
	StreamTypeChanges            StreamType = "changes"
	StreamTypeSync               StreamType = "sync"
	StreamTypeAdminLogs          StreamType = "admin_logs"
	StreamTypeAdminLogsStreaming StreamType = "admin_logs_streaming"
)

const StreamPositionNow = "now"

const (
	RealtimeNewChange = "new_change"
	RealtimeReconnect = "reconnect"
)

// FlexString accepts both JSON strings and numbers. The events API returns
// stream positions and retry hints in either form depending on stream type.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Int returns the numeric value or def when empty or not numeric.
func (f FlexString) Int(def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(string(f)))
	if err != nil {
		return def
	}
	return v
}

type Event struct {
	Type              string          `json:"type,omitempty"`
	EventID           string          `json:"event_id,omitempty"`
	EventType         string          `json:"event_type,omitempty"`
	SessionID         string          `json:"session_id,omitempty"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
	RecordedAt        *time.Time      `json:"recorded_at,omitempty"`
	CreatedBy         json.RawMessage `json:"created_by,omitempty"`
	Source            json.RawMessage `json:"source,omitempty"`
	AdditionalDetails json.RawMessage `json:"additional_details,omitempty"`
}

type Events struct {
	ChunkSize          int        `json:"chunk_size,omitempty"`
	NextStreamPosition FlexString `json:"next_stream_position,omitempty"`
	Entries            []Event    `json:"entries,omitempty"`
}

type RealtimeServer struct {
	Type         string     `json:"type,omitempty"`
	URL          string     `json:"url,omitempty"`
	TTL          FlexString `json:"ttl,omitempty"`
	MaxRetries   FlexString `json:"max_retries,omitempty"`
	RetryTimeout FlexString `json:"retry_timeout,omitempty"`
}

type RealtimeServers struct {
	ChunkSize int              `json:"chunk_size,omitempty"`
	Entries   []RealtimeServer `json:"entries,omitempty"`
}

// RealtimeMessage is the body of a long-poll reply.
type RealtimeMessage struct {
	Message string `json:"message"`
}

// GetEventsParams query parameters of GET /2.0/events.
type GetEventsParams struct {
	StreamType     StreamType
	StreamPosition string
	Limit          int
	EventTypes     []string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
}

func (p GetEventsParams) Query() map[string]string {
	q := map[string]string{}
	if p.StreamType != "" {
		q["stream_type"] = string(p.StreamType)
	}
	if p.StreamPosition != "" {
		q["stream_position"] = p.StreamPosition
	}
	if p.Limit > 0 {
		q["limit"] = strconv.Itoa(p.Limit)
	}
	if len(p.EventTypes) > 0 {
		q["event_type"] = strings.Join(p.EventTypes, ",")
	}
	if p.CreatedAfter != nil {
		q["created_after"] = p.CreatedAfter.Format(time.RFC3339)
	}
	if p.CreatedBefore != nil {
		q["created_before"] = p.CreatedBefore.Format(time.RFC3339)
	}
	return q
}
