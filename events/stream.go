package events

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"github.com/joy-dx/gobox/relays"
)

var ErrStreamStopped = errors.New("event stream stopped")

const (
	defaultMaxRetries   = 10
	defaultRetryTimeout = 610 * time.Second
	defaultPollSlack    = 30 * time.Second
)

type StreamOption func(*EventStream)

// WithDeduplication drops events whose id was seen among the last size
// events. Off by default; admin_logs_streaming may legitimately repeat
// events.
func WithDeduplication(size int) StreamOption {
	return func(s *EventStream) {
		if size > 0 {
			s.dedup = newDedupSet(size)
		}
	}
}

// WithPollSlack extends every long poll beyond the server's retry_timeout
// before it is treated as timed out.
func WithPollSlack(d time.Duration) StreamOption {
	return func(s *EventStream) {
		if d >= 0 {
			s.pollSlack = d
		}
	}
}

// EventStream pulls event batches using the realtime long-poll protocol.
// Next is safe to call from one goroutine at a time; Stop may be called
// from any goroutine.
type EventStream struct {
	manager   *EventsManager
	params    dto.GetEventsParams
	headers   map[string]string
	pollSlack time.Duration
	dedup     *dedupSet

	mu       sync.Mutex
	position string
	server   *dto.RealtimeServer
	polls    int
	started  bool
	err      error

	stopMu   sync.Mutex
	stopped  bool
	inflight context.CancelFunc
}

func newEventStream(m *EventsManager, params dto.GetEventsParams, headers map[string]string, opts ...StreamOption) *EventStream {
	s := &EventStream{
		manager:   m,
		params:    params,
		headers:   headers,
		pollSlack: defaultPollSlack,
		position:  params.StreamPosition,
	}
	if s.position == "" {
		s.position = dto.StreamPositionNow
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StreamPosition is the position the next events request will use.
func (s *EventStream) StreamPosition() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Stop ends the stream. Any request in flight is abandoned and later calls
// to Next return ErrStreamStopped.
func (s *EventStream) Stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	s.stopped = true
	if s.inflight != nil {
		s.inflight()
	}
}

func (s *EventStream) isStopped() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	return s.stopped
}

// begin derives a context that Stop can cancel.
func (s *EventStream) begin(ctx context.Context) (context.Context, func(), error) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopped {
		return nil, nil, ErrStreamStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	s.inflight = cancel
	return ctx, func() {
		s.stopMu.Lock()
		s.inflight = nil
		s.stopMu.Unlock()
		cancel()
	}, nil
}

// Next blocks until a non-empty batch is available. Terminal errors are
// sticky.
func (s *EventStream) Next(ctx context.Context) (*dto.Events, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	batch, err := s.next(ctx)
	if err != nil {
		if s.isStopped() {
			return nil, ErrStreamStopped
		}
		if ctx.Err() == nil || !isContextErr(err) {
			// Caller cancellation is not terminal, anything else is
			s.err = err
		}
		return nil, err
	}
	return batch, nil
}

func (s *EventStream) next(ctx context.Context) (*dto.Events, error) {
	relay := s.manager.session.Relay()

	if !s.started {
		s.started = true
		batch, err := s.fetchEvents(ctx)
		if err != nil {
			return nil, err
		}
		if batch != nil {
			return batch, nil
		}
	}

	for {
		if s.isStopped() {
			return nil, ErrStreamStopped
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.server == nil || s.polls > s.server.MaxRetries.Int(defaultMaxRetries) {
			if err := s.refreshServer(ctx); err != nil {
				return nil, err
			}
		}

		s.polls++
		msg, err := s.poll(ctx)
		switch {
		case err == nil:
		case ctx.Err() == nil && isContextErr(err):
			relay.Debug(relays.RlyEventStream{Msg: "long poll timed out", StreamPosition: s.position, ServerURL: s.server.URL})
			s.server = nil
			continue
		default:
			return nil, err
		}

		switch msg {
		case dto.RealtimeNewChange:
			batch, err := s.fetchEvents(ctx)
			if err != nil {
				return nil, err
			}
			if batch != nil {
				return batch, nil
			}
		case dto.RealtimeReconnect:
			relay.Debug(relays.RlyEventStream{Msg: "realtime server asked to reconnect", StreamPosition: s.position})
			s.server = nil
		}
	}
}

func (s *EventStream) refreshServer(ctx context.Context) error {
	servers, err := s.manager.GetEventsWithLongPolling(ctx, s.headers)
	if err != nil {
		return err
	}
	for _, e := range servers.Entries {
		if e.Type == "realtime_server" && e.URL != "" {
			srv := e
			s.server = &srv
			s.polls = 0
			s.manager.session.Relay().Debug(relays.RlyEventStream{Msg: "using realtime server", StreamPosition: s.position, ServerURL: srv.URL})
			return nil
		}
	}
	return dto.NewSDKError("no realtime server found in the response", nil)
}

func (s *EventStream) poll(ctx context.Context) (string, error) {
	sep := "?"
	if strings.Contains(s.server.URL, "?") {
		sep = "&"
	}
	timeout := defaultRetryTimeout
	if secs := s.server.RetryTimeout.Int(0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	resp, err := network.Fetch(ctx, network.NewFetchOptions(s.server.URL+sep+"stream_position="+s.position, http.MethodGet).
		WithAuth(s.manager.auth).
		WithSession(s.manager.session).
		WithTimeout(timeout+s.pollSlack))
	if err != nil {
		return "", err
	}
	var msg dto.RealtimeMessage
	if len(resp.Data) == 0 {
		return "", nil
	}
	if err := resp.Decode(&msg); err != nil {
		return "", err
	}
	return msg.Message, nil
}

// fetchEvents advances the position and returns nil when the batch is
// empty after deduplication.
func (s *EventStream) fetchEvents(ctx context.Context) (*dto.Events, error) {
	params := s.params
	params.StreamPosition = s.position
	batch, err := s.manager.GetEvents(ctx, params, s.headers)
	if err != nil {
		return nil, err
	}
	if next := batch.NextStreamPosition.String(); next != "" {
		s.position = next
	} else {
		s.position = dto.StreamPositionNow
	}
	if s.dedup != nil {
		batch.Entries = s.dedup.filter(batch.Entries)
	}
	s.manager.session.Relay().Debug(relays.RlyEventStream{Msg: "fetched events", StreamPosition: s.position, Events: len(batch.Entries)})
	if len(batch.Entries) == 0 {
		return nil, nil
	}
	return batch, nil
}

// All yields batches until the stream stops or fails. A stop is not
// reported as an error.
func (s *EventStream) All(ctx context.Context) iter.Seq2[*dto.Events, error] {
	return func(yield func(*dto.Events, error) bool) {
		for {
			batch, err := s.Next(ctx)
			if errors.Is(err, ErrStreamStopped) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

// Entries flattens All into single events.
func (s *EventStream) Entries(ctx context.Context) iter.Seq2[dto.Event, error] {
	return func(yield func(dto.Event, error) bool) {
		for batch, err := range s.All(ctx) {
			if err != nil {
				yield(dto.Event{}, err)
				return
			}
			for _, e := range batch.Entries {
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

type dedupSet struct {
	size  int
	seen  map[string]struct{}
	order []string
}

func newDedupSet(size int) *dedupSet {
	return &dedupSet{size: size, seen: make(map[string]struct{}, size)}
}

func (d *dedupSet) filter(in []dto.Event) []dto.Event {
	out := in[:0:0]
	for _, e := range in {
		if e.EventID == "" {
			out = append(out, e)
			continue
		}
		if _, ok := d.seen[e.EventID]; ok {
			continue
		}
		d.seen[e.EventID] = struct{}{}
		d.order = append(d.order, e.EventID)
		if len(d.order) > d.size {
			delete(d.seen, d.order[0])
			d.order = d.order[1:]
		}
		out = append(out, e)
	}
	return out
}

func (s *EventStream) String() string {
	return fmt.Sprintf("EventStream(position=%s)", s.StreamPosition())
}
