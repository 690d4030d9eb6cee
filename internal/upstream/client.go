package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultMaxBody        = 8 << 20
	DefaultDirectoryLimit = 50
	DefaultUserAgent      = "schedbot/1.0 (+https://lk.tolgas.ru)"

	drainLimit = 64 << 10
)

type Config struct {
	BaseURL        string
	SearchURL      string
	UserAgent      string
	Timeout        time.Duration
	MaxBody        int64
	DirectoryLimit int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBody <= 0 {
		c.MaxBody = DefaultMaxBody
	}
	if c.DirectoryLimit <= 0 {
		c.DirectoryLimit = DefaultDirectoryLimit
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Client talks to the university's public schedule site. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, hc *http.Client, log logx.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if _, err := url.Parse(cfg.BaseURL); err != nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("upstream: invalid base url %q", cfg.BaseURL)
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, log: log.With(logx.String("comp", "upstream"))}, nil
}

// Fetch downloads the raw schedule page for group over [from, to].
// There is no retry here; callers decide.
func (c *Client) Fetch(ctx context.Context, group string, from, to schedule.Date) ([]byte, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, &schedule.TransportError{Op: "fetch", URL: c.cfg.BaseURL, Err: err}
	}
	q := u.Query()
	q.Set("id", group)
	q.Set("dateFrom", from.String())
	q.Set("dateTo", to.String())
	u.RawQuery = q.Encode()

	start := time.Now()
	body, err := c.get(ctx, "fetch", u.String())
	if err != nil {
		return nil, err
	}
	c.log.Debug("schedule fetched",
		logx.String("group", group),
		logx.String("from", from.String()),
		logx.String("to", to.String()),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)
	return body, nil
}

func (c *Client) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &schedule.TransportError{Op: op, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &schedule.TransportError{Op: op, URL: rawURL, Err: err}
	}
	defer func() {
		_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &schedule.TransportError{
			Op:     op,
			URL:    rawURL,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("http %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBody+1))
	if err != nil {
		return nil, &schedule.TransportError{Op: op, URL: rawURL, Err: err}
	}
	if int64(len(body)) > c.cfg.MaxBody {
		return nil, &schedule.TransportError{Op: op, URL: rawURL, Err: errBodyTooLarge}
	}
	return body, nil
}

var (
	errBodyTooLarge = errors.New("response body exceeds limit")
	errNoSearchURL  = errors.New("search url not configured")
)
