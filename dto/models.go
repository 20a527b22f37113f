package dto

import (
	"io"
	"net/http"
	"time"
)

type NetClientType string

const NET_DEFAULT_CLIENT_REF = "default"

// NetClient describes a registered network client.
type NetClient struct {
	Name        string        `json:"name" yaml:"name"`
	Ref         string        `json:"ref" yaml:"ref"`
	ClientType  NetClientType `json:"client_type" yaml:"client_type"`
	Description string        `json:"description" yaml:"description"`
}

type TransferStatus string

const (
	IN_PROGRESS TransferStatus = "in_progress"
	COMPLETE    TransferStatus = "complete"
	ERROR       TransferStatus = "error"
	STOPPED     TransferStatus = "stopped"
)

type TransferNotification struct {
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
	// Status MetaType of message
	Status TransferStatus `json:"status" yaml:"status"`
	// Percentage completion status as a percentage
	Percentage float64 `json:"percentage" yaml:"percentage"`
	// TotalSize length content in bytes. The value -1 indicates that the length is unknown
	TotalSize int64 `json:"total_size,omitempty" yaml:"total_size,omitempty"`
	// Downloaded downloaded body length in bytes
	Downloaded int64 `json:"downloaded,omitempty" yaml:"downloaded,omitempty"`
}

// DownloadFileConfig describes a file content download.
type DownloadFileConfig struct {
	// FileID Box file to download. Ignored when URL is set.
	FileID string
	// URL Absolute download URL, e.g. a shared or pre-signed link
	URL      string
	Version  string
	Checksum string
	// DestinationFolder Used if path not set appending
	DestinationFolder string
	OutputFileName    string
	ExtraHeaders      map[string]string
	// CallbackInterval between progress notifications, 2s when zero
	CallbackInterval time.Duration
}

// Response is the raw result of a single exchange. Body is owned by the
// caller and must be closed.
type Response struct {
	StatusCode int
	Headers    http.Header
	URL        string
	Body       io.ReadCloser
}
