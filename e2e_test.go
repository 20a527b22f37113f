package gobox

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joy-dx/gobox/config"
	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/internal/mockbox"
	"github.com/joy-dx/gobox/network"
)

func mockBoxClient(t *testing.T, srv *mockbox.Server) *Client {
	t.Helper()
	cfg := config.DefaultClientConfig()
	cfg.BaseURLs = network.BaseURLs{BaseURL: srv.URL, UploadURL: srv.URL, OAuth2URL: srv.URL}
	cfg.Auth = config.AuthConfig{Type: config.AuthCCG, ClientID: "cid", ClientSecret: "secret", EnterpriseID: "100"}
	cfg.Retry.BaseInterval = time.Millisecond

	c, closer, err := NewClientFromConfig(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig: %v", err)
	}
	t.Cleanup(func() { _ = closer.Close() })
	return c
}

func TestEndToEnd_DownloadWithCCG(t *testing.T) {
	t.Parallel()
	srv := mockbox.New("cid", "secret")
	t.Cleanup(srv.Close)
	srv.AddFile("55", "notes.txt", []byte("meeting notes"))

	c := mockBoxClient(t, srv)
	path, err := c.DownloadFile(context.Background(), &dto.DownloadFileConfig{FileID: "55", DestinationFolder: t.TempDir()})
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "meeting notes" {
		t.Fatalf("content=%q", got)
	}
	if n := srv.Requests(http.MethodPost + " /oauth2/token"); n != 1 {
		t.Fatalf("token requests=%d want 1", n)
	}

	// Second call reuses the cached token
	if _, err := c.DownloadFile(context.Background(), &dto.DownloadFileConfig{FileID: "55", DestinationFolder: t.TempDir()}); err != nil {
		t.Fatalf("second DownloadFile: %v", err)
	}
	if n := srv.Requests(http.MethodPost + " /oauth2/token"); n != 1 {
		t.Fatalf("token requests=%d want 1", n)
	}

	if err := c.Auth().RevokeToken(context.Background(), c.Session()); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if len(srv.Revoked()) != 1 {
		t.Fatalf("revoked=%v", srv.Revoked())
	}
	if _, err := c.DownloadFile(context.Background(), &dto.DownloadFileConfig{FileID: "55", DestinationFolder: t.TempDir()}); err != nil {
		t.Fatalf("download after revoke: %v", err)
	}
	if n := srv.Requests(http.MethodPost + " /oauth2/token"); n != 2 {
		t.Fatalf("token requests=%d want 2", n)
	}
}

func TestEndToEnd_EventStream(t *testing.T) {
	t.Parallel()
	srv := mockbox.New("cid", "secret", mockbox.WithLongPollWait(200*time.Millisecond))
	t.Cleanup(srv.Close)

	c := mockBoxClient(t, srv)
	stream := c.GetEventStream(dto.GetEventsParams{StreamPosition: dto.StreamPositionNow})
	t.Cleanup(stream.Stop)

	go func() {
		time.Sleep(500 * time.Millisecond)
		srv.AddEvent(dto.Event{EventType: "ITEM_UPLOAD"}, dto.Event{EventType: "ITEM_RENAME"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	batch, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch.Entries) != 2 || batch.Entries[0].EventType != "ITEM_UPLOAD" {
		t.Fatalf("entries=%+v", batch.Entries)
	}
	if stream.StreamPosition() != "2" {
		t.Fatalf("position=%q want 2", stream.StreamPosition())
	}
	// At least one long-poll timed out with reconnect before the events arrived
	if n := srv.Requests(http.MethodOptions + " /2.0/events"); n < 2 {
		t.Fatalf("realtime server lookups=%d want >= 2", n)
	}
}

func TestEndToEnd_BadCredentials(t *testing.T) {
	t.Parallel()
	srv := mockbox.New("cid", "other-secret")
	t.Cleanup(srv.Close)

	c := mockBoxClient(t, srv)
	_, err := c.DownloadFile(context.Background(), &dto.DownloadFileConfig{FileID: "55", DestinationFolder: t.TempDir()})
	if err == nil {
		t.Fatalf("expected auth error")
	}
}
