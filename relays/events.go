// Package relays holds the structured log events emitted by gobox and a zap
// backed relay to render them.
package relays

import (
	"log/slog"
	"time"

	relayDTO "github.com/joy-dx/relay/dto"
)

const (
	ChannelNet    relayDTO.EventChannel = "gobox.net"
	ChannelAuth   relayDTO.EventChannel = "gobox.auth"
	ChannelEvents relayDTO.EventChannel = "gobox.events"
)

const (
	RefNetLog      relayDTO.EventRef = "net.log"
	RefNetRequest  relayDTO.EventRef = "net.request"
	RefNetResponse relayDTO.EventRef = "net.response"
	RefNetRetry    relayDTO.EventRef = "net.retry"
	RefNetDownload relayDTO.EventRef = "net.download"
	RefAuth        relayDTO.EventRef = "auth"
	RefEventStream relayDTO.EventRef = "events.stream"
)

type RlyNetLog struct {
	Msg string
}

func (e RlyNetLog) RelayChannel() relayDTO.EventChannel { return ChannelNet }
func (e RlyNetLog) RelayType() relayDTO.EventRef        { return RefNetLog }
func (e RlyNetLog) Message() string                     { return e.Msg }
func (e RlyNetLog) ToSlog() []slog.Attr                 { return nil }

// RlyNetRequest is emitted before each attempt. Headers must already be
// sanitized.
type RlyNetRequest struct {
	Method  string
	URL     string
	Attempt int
	Headers map[string]string
}

func (e RlyNetRequest) RelayChannel() relayDTO.EventChannel { return ChannelNet }
func (e RlyNetRequest) RelayType() relayDTO.EventRef        { return RefNetRequest }
func (e RlyNetRequest) Message() string                     { return "request " + e.Method + " " + e.URL }
func (e RlyNetRequest) ToSlog() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", e.Method),
		slog.String("url", e.URL),
		slog.Int("attempt", e.Attempt),
	}
	if len(e.Headers) > 0 {
		attrs = append(attrs, slog.Any("headers", e.Headers))
	}
	return attrs
}

type RlyNetResponse struct {
	Method    string
	URL       string
	Status    int
	Attempt   int
	Duration  time.Duration
	RequestID string
}

func (e RlyNetResponse) RelayChannel() relayDTO.EventChannel { return ChannelNet }
func (e RlyNetResponse) RelayType() relayDTO.EventRef        { return RefNetResponse }
func (e RlyNetResponse) Message() string                     { return "response " + e.Method + " " + e.URL }
func (e RlyNetResponse) ToSlog() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", e.Method),
		slog.String("url", e.URL),
		slog.Int("status", e.Status),
		slog.Int("attempt", e.Attempt),
		slog.Duration("duration", e.Duration),
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}
	return attrs
}

type RlyNetRetry struct {
	Method  string
	URL     string
	Attempt int
	Status  int
	Delay   time.Duration
	Reason  string
	Err     string
}

func (e RlyNetRetry) RelayChannel() relayDTO.EventChannel { return ChannelNet }
func (e RlyNetRetry) RelayType() relayDTO.EventRef        { return RefNetRetry }
func (e RlyNetRetry) Message() string                     { return "retrying " + e.Method + " " + e.URL }
func (e RlyNetRetry) ToSlog() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", e.Method),
		slog.String("url", e.URL),
		slog.Int("attempt", e.Attempt),
		slog.Int("status", e.Status),
		slog.Duration("delay", e.Delay),
		slog.String("reason", e.Reason),
	}
	if e.Err != "" {
		attrs = append(attrs, slog.String("error", e.Err))
	}
	return attrs
}

type RlyNetDownload struct {
	Source      string
	Destination string
	Msg         string
	Percentage  float64
	Downloaded  int64
	TotalSize   int64
}

func (e RlyNetDownload) RelayChannel() relayDTO.EventChannel { return ChannelNet }
func (e RlyNetDownload) RelayType() relayDTO.EventRef        { return RefNetDownload }
func (e RlyNetDownload) Message() string                     { return e.Msg }
func (e RlyNetDownload) ToSlog() []slog.Attr {
	return []slog.Attr{
		slog.String("source", e.Source),
		slog.String("destination", e.Destination),
		slog.Float64("percentage", e.Percentage),
		slog.Int64("downloaded", e.Downloaded),
		slog.Int64("total_size", e.TotalSize),
	}
}

type RlyAuth struct {
	Kind string
	Msg  string
	Err  string
}

func (e RlyAuth) RelayChannel() relayDTO.EventChannel { return ChannelAuth }
func (e RlyAuth) RelayType() relayDTO.EventRef        { return RefAuth }
func (e RlyAuth) Message() string                     { return e.Msg }
func (e RlyAuth) ToSlog() []slog.Attr {
	attrs := []slog.Attr{slog.String("kind", e.Kind)}
	if e.Err != "" {
		attrs = append(attrs, slog.String("error", e.Err))
	}
	return attrs
}

type RlyEventStream struct {
	Msg            string
	StreamPosition string
	ServerURL      string
	Events         int
}

func (e RlyEventStream) RelayChannel() relayDTO.EventChannel { return ChannelEvents }
func (e RlyEventStream) RelayType() relayDTO.EventRef        { return RefEventStream }
func (e RlyEventStream) Message() string                     { return e.Msg }
func (e RlyEventStream) ToSlog() []slog.Attr {
	attrs := []slog.Attr{slog.String("stream_position", e.StreamPosition)}
	if e.ServerURL != "" {
		attrs = append(attrs, slog.String("server_url", e.ServerURL))
	}
	if e.Events > 0 {
		attrs = append(attrs, slog.Int("events", e.Events))
	}
	return attrs
}
