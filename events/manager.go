package events

import (
	"context"
	"net/http"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
)

// EventsManager wraps the two /2.0/events endpoints the stream needs.
type EventsManager struct {
	auth    network.Authentication
	session *network.NetworkSession
}

func NewEventsManager(auth network.Authentication, session *network.NetworkSession) *EventsManager {
	if session == nil {
		session = network.NewNetworkSession()
	}
	return &EventsManager{auth: auth, session: session}
}

func (m *EventsManager) Session() *network.NetworkSession { return m.session }
func (m *EventsManager) Auth() network.Authentication     { return m.auth }

func (m *EventsManager) eventsURL() string {
	return m.session.BaseURLs().BaseURL + "/2.0/events"
}

// GetEventsWithLongPolling lists the realtime servers available for long
// polling.
func (m *EventsManager) GetEventsWithLongPolling(ctx context.Context, extraHeaders map[string]string) (*dto.RealtimeServers, error) {
	resp, err := network.Fetch(ctx, network.NewFetchOptions(m.eventsURL(), http.MethodOptions).
		WithHeaders(extraHeaders).
		WithAuth(m.auth).
		WithSession(m.session))
	if err != nil {
		return nil, err
	}
	var out dto.RealtimeServers
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEvents returns up to Limit events after params.StreamPosition.
func (m *EventsManager) GetEvents(ctx context.Context, params dto.GetEventsParams, extraHeaders map[string]string) (*dto.Events, error) {
	resp, err := network.Fetch(ctx, network.NewFetchOptions(m.eventsURL(), http.MethodGet).
		WithParams(params.Query()).
		WithHeaders(extraHeaders).
		WithAuth(m.auth).
		WithSession(m.session))
	if err != nil {
		return nil, err
	}
	var out dto.Events
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEventStream returns a lazy stream starting at params.StreamPosition,
// "now" when empty.
func (m *EventsManager) GetEventStream(params dto.GetEventsParams, extraHeaders map[string]string, opts ...StreamOption) *EventStream {
	return newEventStream(m, params, extraHeaders, opts...)
}
