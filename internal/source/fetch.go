// Package source downloads the schedule page.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"sgdqbot/pkg/logx"
)

// maxBodyBytes caps a page download. The real page is a few hundred KB.
const maxBodyBytes = 16 << 20

var ErrStatus = errors.New("source: unexpected http status")

// StatusError is returned for any non-200 response.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

type Config struct {
	URL       string
	UserAgent string
	// Timeout bounds one request. Zero means no client-side limit.
	Timeout time.Duration
}

// Fetcher performs one GET per call. It does not retry.
type Fetcher struct {
	client *http.Client
	log    logx.Logger

	mu  sync.RWMutex
	cfg Config
}

// New builds a Fetcher. A nil client uses a fresh http.Client.
func New(cfg Config, client *http.Client, log logx.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{cfg: cfg, client: client, log: log.With(logx.String("comp", "source"))}
}

// Apply swaps URL, user agent and timeout for later fetches.
func (f *Fetcher) Apply(cfg Config) {
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
}

func (f *Fetcher) config() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// Fetch returns the body of a 200 response. Every other outcome is an error.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	cfg := f.config()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cfg.URL, err)
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{URL: cfg.URL, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", cfg.URL, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("fetch %s: body larger than %s", cfg.URL, humanize.Bytes(maxBodyBytes))
	}

	f.log.Debug("schedule page fetched",
		logx.String("url", cfg.URL),
		logx.String("size", humanize.Bytes(uint64(len(body)))),
		logx.Duration("took", time.Since(start)),
	)
	return body, nil
}
