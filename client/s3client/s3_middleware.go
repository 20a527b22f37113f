package s3client

import (
	"context"
	"fmt"
	"strings"

	"github.com/joy-dx/gobox/relays"
	relayDTO "github.com/joy-dx/relay/dto"
)

// StaticS3MetaMiddleware adds default metadata to each put. Values already
// on the request win.
func StaticS3MetaMiddleware(meta map[string]string) Middleware {
	return func(ctx context.Context, r *S3Request) error {
		if r.Operation != OpPut {
			return nil
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			if _, ok := r.Metadata[k]; !ok {
				r.Metadata[k] = v
			}
		}
		return nil
	}
}

func LoggingMiddleware(relay relayDTO.RelayInterface) Middleware {
	return func(ctx context.Context, r *S3Request) error {
		relay.Debug(relays.RlyNetLog{Msg: fmt.Sprintf(
			"[S3] %s s3://%s/%s",
			strings.ToUpper(r.Operation),
			r.Bucket,
			r.Key,
		)})
		return nil
	}
}
