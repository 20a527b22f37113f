package gobox

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/relays"
	"github.com/joy-dx/lockablemap"
	relayDTO "github.com/joy-dx/relay/dto"
)

// transferHub tracks download state and fans notifications out to
// listeners. Derived clients share the hub of their parent.
type transferHub struct {
	state          *lockablemap.LockableMap[string, dto.TransferNotification]
	muListeners    sync.Mutex
	listenersByKey map[string][]chan dto.TransferNotification
}

func newTransferHub() *transferHub {
	return &transferHub{
		state:          lockablemap.NewLockableMap[string, dto.TransferNotification](),
		listenersByKey: make(map[string][]chan dto.TransferNotification),
	}
}

// TransferListener returns a channel of updates for a file id or download
// URL, and a func to unsubscribe.
func (c *Client) TransferListener(source string) (<-chan dto.TransferNotification, func()) {
	h := c.transfers
	h.muListeners.Lock()
	defer h.muListeners.Unlock()

	ch := make(chan dto.TransferNotification, 10)
	h.listenersByKey[source] = append(h.listenersByKey[source], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.muListeners.Lock()
			defer h.muListeners.Unlock()

			chans := h.listenersByKey[source]
			out := chans[:0]
			found := false
			for _, c := range chans {
				if c != ch {
					out = append(out, c)
				} else {
					found = true
				}
			}
			if len(out) == 0 {
				delete(h.listenersByKey, source)
			} else {
				h.listenersByKey[source] = out
			}
			if found {
				close(ch)
			}
		})
	}

	return ch, unsub
}

// TransferListenerClose closes all channels for a source manually
func (c *Client) TransferListenerClose(source string) {
	h := c.transfers
	h.muListeners.Lock()
	defer h.muListeners.Unlock()
	if chans, ok := h.listenersByKey[source]; ok {
		for _, ch := range chans {
			close(ch)
		}
		delete(h.listenersByKey, source)
	}
}

// Transfers returns the last notification of every download, keyed by
// destination path.
func (c *Client) Transfers() map[string]dto.TransferNotification {
	return c.transfers.state.GetAll()
}

func (h *transferHub) publish(relay relayDTO.RelayInterface, state dto.TransferNotification) {
	h.state.Set(state.Destination, state)

	isTerminal := state.Status == dto.COMPLETE ||
		state.Status == dto.ERROR ||
		state.Status == dto.STOPPED

	// Sends happen under the lock so unsubscribe cannot close a channel
	// mid-send; every send is non-blocking.
	h.muListeners.Lock()
	for _, ch := range h.listenersByKey[state.Source] {
		select {
		case ch <- state:
		default:
			if isTerminal {
				// Make room for the terminal update by dropping the oldest
				// progress one.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- state:
				default:
				}
			}
		}
	}
	h.muListeners.Unlock()

	if relay == nil {
		return
	}
	ev := relays.RlyNetDownload{
		Source:      state.Source,
		Destination: state.Destination,
		Percentage:  state.Percentage,
		Downloaded:  state.Downloaded,
		TotalSize:   state.TotalSize,
		Msg:         state.Message,
	}
	if ev.Msg == "" {
		ev.Msg = "download " + string(state.Status)
	}
	switch state.Status {
	case dto.ERROR:
		relay.Warn(ev)
	case dto.IN_PROGRESS:
		relay.Debug(ev)
	default:
		relay.Info(ev)
	}
}

type progressReader struct {
	ctx        context.Context
	reader     io.Reader
	total      int64
	readSoFar  int64
	lastReport time.Time
	lastBytes  int64
	interval   time.Duration
	startTime  time.Time
	onProgress func(downloaded, total int64, percent float64, speed float64, eta time.Duration)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	select {
	case <-pr.ctx.Done():
		return 0, pr.ctx.Err()
	default:
	}

	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.readSoFar += int64(n)
		now := time.Now()
		if now.Sub(pr.lastReport) >= pr.interval {
			deltaBytes := pr.readSoFar - pr.lastBytes
			deltaTime := now.Sub(pr.lastReport).Seconds()
			speed := float64(deltaBytes) / deltaTime // bytes/sec

			var pct float64
			if pr.total > 0 {
				pct = float64(pr.readSoFar) / float64(pr.total) * 100
				if pct > 100 {
					pct = 100
				}
			}

			var eta time.Duration
			if pr.total > 0 && speed > 0 {
				remaining := float64(pr.total - pr.readSoFar)
				eta = time.Duration(remaining/speed) * time.Second
			}

			pr.onProgress(pr.readSoFar, pr.total, pct, speed, eta)
			pr.lastReport = now
			pr.lastBytes = pr.readSoFar
		}
	}

	return n, err
}
