package network

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/joy-dx/gobox/dto"
)

type FetchResponse struct {
	Status  int
	Headers http.Header
	URL     string
	// Data is set for the json response format.
	Data json.RawMessage
	// Content is set for the binary response format and must be closed.
	Content io.ReadCloser
}

// Decode unmarshals Data into v.
func (r *FetchResponse) Decode(v any) error {
	if len(r.Data) == 0 {
		return dto.NewSerializationError("empty response body", nil, nil)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return dto.NewSerializationError("decode response", r.Data, err)
	}
	return nil
}

// cancelOnClose ties the per-call deadline to the lifetime of a streamed
// body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.cancel)
	return err
}
