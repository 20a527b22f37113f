package gobox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joy-dx/gobox/client/s3client"
	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"github.com/joy-dx/gobox/relays"
	"github.com/joy-dx/gobox/utils"
)

// DefaultDownloadCallbackInterval is how often progress is published.
const DefaultDownloadCallbackInterval = 2 * time.Second

func (c *Client) downloadURL(cfg *dto.DownloadFileConfig) (string, string, error) {
	if cfg.URL != "" {
		return cfg.URL, cfg.URL, nil
	}
	if cfg.FileID == "" {
		return "", "", errors.New("download needs a file id or a URL")
	}
	return c.session.BaseURLs().BaseURL + "/2.0/files/" + url.PathEscape(cfg.FileID) + "/content", cfg.FileID, nil
}

// DownloadFile streams file content to DestinationFolder and returns the
// written path. Notifications are published under the file id, or the URL
// when no id is given.
func (c *Client) DownloadFile(ctx context.Context, cfg *dto.DownloadFileConfig) (string, error) {
	if cfg == nil {
		return "", dto.NewSDKError("download config is required", nil)
	}
	target, source, err := c.downloadURL(cfg)
	if err != nil {
		return "", dto.NewSDKError("invalid download config", err)
	}
	relay := c.session.Relay()
	fail := func(destination string, status dto.TransferStatus, err error) error {
		c.transfers.publish(relay, dto.TransferNotification{
			Source:      source,
			Destination: destination,
			Status:      status,
			Message:     err.Error(),
		})
		return err
	}

	opts := network.NewFetchOptions(target, http.MethodGet).
		WithHeaders(cfg.ExtraHeaders).
		WithResponseFormat(network.ResponseFormatBinary)
	if cfg.Version != "" {
		opts.WithParams(map[string]string{"version": cfg.Version})
	}
	resp, err := c.MakeRequest(ctx, opts)
	if err != nil {
		// If ctx was canceled, prefer STOPPED so listeners close consistently
		if ctx.Err() != nil {
			return "", fail("", dto.STOPPED, err)
		}
		return "", fail("", dto.ERROR, err)
	}
	defer resp.Content.Close()

	name := cfg.OutputFileName
	if name == "" {
		name = utils.FilenameFromContentDisposition(resp.Headers.Get("Content-Disposition"))
	}
	if name == "" {
		if name, err = utils.FilenameFromUrl(resp.URL); err != nil || name == "" || name == "." || name == "/" {
			name = cfg.FileID
		}
	}
	if name == "" {
		return "", fail("", dto.ERROR, errors.New("could not determine output file name"))
	}
	destination := filepath.Join(cfg.DestinationFolder, name)

	relay.Info(relays.RlyNetDownload{
		Source:      source,
		Destination: destination,
		Msg:         fmt.Sprintf("starting download: %s", source),
	})

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", fail(destination, dto.ERROR, fmt.Errorf("could not create destination folder %q: %w", destination, err))
	}

	out, err := os.Create(destination)
	if err != nil {
		return "", fail(destination, dto.ERROR, fmt.Errorf("could not create output file %q: %w", destination, err))
	}
	defer out.Close()

	total := int64(-1)
	if v := resp.Headers.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			total = n
		}
	}
	if total <= 0 {
		relay.Warn(relays.RlyNetDownload{Source: source, Destination: destination, Msg: "unknown file size"})
	}

	interval := cfg.CallbackInterval
	if interval <= 0 {
		interval = DefaultDownloadCallbackInterval
	}

	pr := &progressReader{
		ctx:        ctx,
		reader:     resp.Content,
		total:      total,
		interval:   interval,
		lastReport: time.Now(),
		startTime:  time.Now(),
		onProgress: func(downloaded, total int64, percent float64, speed float64, eta time.Duration) {
			c.transfers.publish(relay, dto.TransferNotification{
				Source:      source,
				Destination: destination,
				Status:      dto.IN_PROGRESS,
				Downloaded:  downloaded,
				TotalSize:   total,
				Percentage:  percent,
			})
		},
	}

	buf := make([]byte, 64*1024)
	written, err := io.CopyBuffer(out, pr, buf)
	if err != nil {
		if ctx.Err() != nil {
			return "", fail(destination, dto.STOPPED, ctx.Err())
		}
		return "", fail(destination, dto.ERROR, fmt.Errorf("file transfer failed for %s: %w", source, err))
	}
	if err := out.Close(); err != nil {
		return "", fail(destination, dto.ERROR, fmt.Errorf("close %q: %w", destination, err))
	}

	if cfg.Checksum != "" {
		if err := utils.ChecksumVerify(destination, cfg.Checksum); err != nil {
			c.transfers.publish(relay, dto.TransferNotification{
				Source:      source,
				Destination: destination,
				Status:      dto.ERROR,
				Percentage:  100,
				Message:     "failed to verify checksum",
			})
			return "", fmt.Errorf("checksum verification failed: %w", err)
		}
	}

	c.transfers.publish(relay, dto.TransferNotification{
		Source:      source,
		Destination: destination,
		Status:      dto.COMPLETE,
		Downloaded:  written,
		TotalSize:   written,
		Percentage:  100,
		Message:     "download complete",
	})
	return destination, nil
}

// MirrorToS3 downloads a file into a temporary folder and uploads it to
// mirror under key. Box file id and name travel as object metadata.
func (c *Client) MirrorToS3(ctx context.Context, cfg *dto.DownloadFileConfig, mirror *s3client.S3Client, key string) (s3client.S3Result, error) {
	if cfg == nil || mirror == nil {
		return s3client.S3Result{}, dto.NewSDKError("download config and mirror are required", nil)
	}
	tmp, err := os.MkdirTemp("", "gobox-mirror-*")
	if err != nil {
		return s3client.S3Result{}, fmt.Errorf("create temp folder: %w", err)
	}
	defer os.RemoveAll(tmp)

	local := *cfg
	local.DestinationFolder = tmp
	path, err := c.DownloadFile(ctx, &local)
	if err != nil {
		return s3client.S3Result{}, err
	}
	if key == "" {
		key = filepath.Base(path)
	}
	meta := map[string]string{"box-file-name": filepath.Base(path)}
	if cfg.FileID != "" {
		meta["box-file-id"] = cfg.FileID
	}
	res, err := mirror.PutFile(ctx, key, path, "", meta)
	if err != nil {
		return s3client.S3Result{}, err
	}
	c.session.Relay().Info(relays.RlyNetLog{Msg: fmt.Sprintf("mirrored %s to s3://%s/%s", filepath.Base(path), mirror.Config().Bucket, key)})
	return res, nil
}
