package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/runger/fleetdash/internal/selection"
)

const (
	// defaultHTTPTimeout bounds one attempt, connection included.
	defaultHTTPTimeout = 5 * time.Second

	defaultMaxTries = 3
)

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("directory api: status %d", e.Code)
	}
	return fmt.Sprintf("directory api: status %d: %s", e.Code, e.Body)
}

// HTTPSource fetches pages of one kind from the directory API.
type HTTPSource struct {
	baseURL  string
	kind     Kind
	perPage  int
	client   *http.Client
	maxTries uint
	initial  time.Duration
	logger   *slog.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithPerPage sets the page size sent to the API.
func WithPerPage(n int) HTTPOption {
	return func(s *HTTPSource) { s.perPage = n }
}

// WithRetry sets how often a transient failure is attempted and the first
// backoff interval. maxTries 1 disables retries.
func WithRetry(maxTries uint, initial time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.maxTries = max(maxTries, 1)
		s.initial = initial
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(s *HTTPSource) { s.logger = l }
}

// NewHTTPSource returns a source for kind served under baseURL.
func NewHTTPSource(baseURL string, kind Kind, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		kind:     kind,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		maxTries: defaultMaxTries,
		initial:  200 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch implements selection.FetchFunc. Connection failures, 5xx and 429
// responses are retried with exponential backoff; anything else fails
// immediately. Cancelling ctx aborts both the request and the backoff.
func (s *HTTPSource) Fetch(ctx context.Context, q selection.Query, page int) (selection.Page[Record], error) {
	u := s.listURL(q, page)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initial
	b.MaxInterval = 2 * time.Second

	env, err := backoff.Retry(ctx, func() (Envelope, error) {
		return s.get(ctx, u)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.Debug("directory fetch retry", "url", u, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return selection.Page[Record]{}, ctx.Err()
		}
		return selection.Page[Record]{}, fmt.Errorf("directory: fetch %s page %d: %w", s.kind, page, err)
	}
	return env.Page(), nil
}

// Get returns a single record, for resolving a fallback option.
func (s *HTTPSource) Get(ctx context.Context, id string) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/"+string(s.kind)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return Record{}, fmt.Errorf("directory: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("directory: get %s/%s: %w", s.kind, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, s.kind, id)
	}
	if resp.StatusCode != http.StatusOK {
		return Record{}, statusError(resp)
	}

	var body struct {
		Data Record `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Record{}, fmt.Errorf("directory: decode record: %w", err)
	}
	return body.Data, nil
}

func (s *HTTPSource) listURL(q selection.Query, page int) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	if q.Text != "" {
		v.Set("search", q.Text)
	}
	if s.perPage > 0 {
		v.Set("per_page", strconv.Itoa(s.perPage))
	}
	for k, val := range q.Extra {
		if val != "" {
			v.Set(k, val)
		}
	}
	return s.baseURL + "/api/v1/" + string(s.kind) + "?" + v.Encode()
}

func (s *HTTPSource) get(ctx context.Context, u string) (Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Envelope{}, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Envelope{}, backoff.Permanent(ctx.Err())
		}
		return Envelope{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return Envelope{}, backoff.RetryAfter(secs)
		}
		return Envelope{}, statusError(resp)
	case resp.StatusCode >= 500:
		return Envelope{}, statusError(resp)
	case resp.StatusCode != http.StatusOK:
		return Envelope{}, backoff.Permanent(statusError(resp))
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Envelope{}, backoff.Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	return env, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
