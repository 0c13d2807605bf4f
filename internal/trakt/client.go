// Package trakt is the client for the canonical metadata provider.
package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/reelscout/reelscout/internal/config"
	"github.com/reelscout/reelscout/internal/indexer/ratelimit"
	"github.com/reelscout/reelscout/internal/retry"
)

const (
	tokenPath         = "/oauth/token"
	tokenRefreshAhead = time.Hour
	recoveredTTL      = 10 * time.Minute
	redirectURI       = "urn:ietf:wg:oauth:2.0:oob"
)

// Observer receives one call per upstream HTTP exchange.
type Observer interface {
	ObserveUpstream(method string, status int, elapsed time.Duration)
}

// Response is a completed upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into out.
func (r *Response) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type recoveredEntry struct {
	resp *Response
	at   time.Time
}

// Client talks to the upstream metadata API. It is safe for concurrent use
// and holds the process-wide rate-limit buckets.
type Client struct {
	cfg        config.TraktConfig
	httpClient *http.Client
	tokens     TokenStore
	observer   Observer
	logger     zerolog.Logger
	backoff    retry.Config
	now        func() time.Time

	getBucket  *ratelimit.Window
	postBucket *rate.Limiter

	refreshGroup singleflight.Group
	tokenMu      sync.RWMutex
	token        *Token
	tokenLoaded  bool

	recoveredMu sync.Mutex
	recovered   map[string]recoveredEntry
	hooks       []func(method, path string)

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithTokenStore sets where OAuth tokens are loaded from and saved to.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.tokens = s }
}

// WithObserver reports every upstream exchange to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a new upstream client.
func NewClient(cfg config.TraktConfig, logger zerolog.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.GetLimit <= 0 {
		cfg.GetLimit = 1000
	}
	if cfg.GetWindow <= 0 {
		cfg.GetWindow = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	backoff := retry.DefaultConfig()
	if cfg.RetryDelay > 0 {
		backoff.InitialDelay = cfg.RetryDelay
	}
	backoff.MaxAttempts = cfg.MaxRetries + 1

	bgCtx, bgCancel := context.WithCancel(context.Background())
	log := logger.With().Str("component", "trakt").Logger()

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
		backoff:    backoff,
		now:        time.Now,
		getBucket:  ratelimit.NewWindow("trakt-get", cfg.GetLimit, cfg.GetWindow, log),
		postBucket: rate.NewLimiter(rate.Every(time.Second), 1),
		recovered:  make(map[string]recoveredEntry),
		bgCtx:      bgCtx,
		bgCancel:   bgCancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured returns true if the client id is set.
func (c *Client) IsConfigured() bool {
	return c.cfg.ClientID != ""
}

// OnRecovered registers fn to run when a background retry succeeds. The
// recovered response is served to the next Request for the same method and path.
func (c *Client) OnRecovered(fn func(method, path string)) {
	c.recoveredMu.Lock()
	defer c.recoveredMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Close cancels background retries and waits for them to stop.
func (c *Client) Close() {
	c.bgCancel()
	c.bgWG.Wait()
}

// WaitBackground blocks until in-flight background retries finish.
func (c *Client) WaitBackground() {
	c.bgWG.Wait()
}

// Request performs method on path (relative to the base URL, query included).
// A 500 starts a detached retry and returns ErrDeferred; 404 returns
// ErrNotFound without retry; 429/502/503/504 and network errors are retried
// inline with backoff.
func (c *Client) Request(ctx context.Context, method, path string, headers http.Header) (*Response, int, error) {
	if !c.IsConfigured() {
		return nil, 0, ErrNoCredentials
	}

	key := method + " " + path
	if resp := c.takeRecovered(key); resp != nil {
		c.logger.Debug().Str("path", path).Msg("Serving response recovered in background")
		return resp, resp.Status, nil
	}

	refreshed := false
	for attempt := 1; ; attempt++ {
		resp, err := c.send(ctx, method, path, headers, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			if !retry.IsNetworkError(err) || attempt >= c.backoff.MaxAttempts {
				return nil, 0, err
			}
			c.logger.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("Network error, backing off")
			if err := retry.Sleep(ctx, retry.Jittered(retry.Backoff(c.backoff, attempt), c.backoff.Jitter)); err != nil {
				return nil, 0, err
			}
			continue
		}

		switch status := resp.Status; {
		case status >= 200 && status < 300:
			return resp, status, nil

		case status == http.StatusUnauthorized:
			if !refreshed && c.canRefresh() {
				refreshed = true
				if err := c.refreshToken(ctx, true); err == nil {
					continue
				}
			}
			return nil, status, ErrUnauthorized

		case status == http.StatusNotFound:
			return nil, status, ErrNotFound

		case status == http.StatusInternalServerError:
			c.logger.Error().Str("method", method).Str("path", path).
				Msg("Upstream returned 500, retrying in background")
			c.retryInBackground(method, path, headers)
			return nil, status, &DeferredError{Method: method, Path: path}

		case status == http.StatusTooManyRequests || status == http.StatusBadGateway ||
			status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
			if attempt >= c.backoff.MaxAttempts {
				return nil, status, &StatusError{Code: status, Method: method, Path: path}
			}
			delay := retry.Jittered(retry.Backoff(c.backoff, attempt), c.backoff.Jitter)
			if after := retryAfter(resp.Header); after > delay {
				delay = after
			}
			c.logger.Warn().Int("status", status).Str("path", path).Dur("delay", delay).Msg("Transient upstream error, backing off")
			if err := retry.Sleep(ctx, delay); err != nil {
				return nil, 0, err
			}

		default:
			return nil, status, &StatusError{Code: status, Method: method, Path: path}
		}
	}
}

// send performs one exchange through the rate-limit buckets.
func (c *Client) send(ctx context.Context, method, path string, headers http.Header, body []byte) (*Response, error) {
	if path != tokenPath {
		if err := c.ensureToken(ctx); err != nil {
			return nil, err
		}
	}

	if method == http.MethodGet {
		if err := c.getBucket.Wait(ctx); err != nil {
			return nil, err
		}
	} else if err := c.postBucket.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("trakt-api-version", c.cfg.APIVersion)
	req.Header.Set("trakt-api-key", c.cfg.ClientID)
	if tok := c.currentToken(); tok != nil && tok.AccessToken != "" && path != tokenPath {
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, 0, start)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.observe(method, resp.StatusCode, start)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) observe(method string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(method, status, c.now().Sub(start))
	}
}

// retryInBackground re-issues a request that failed with 500 on a detached
// context, sharing the rate-limit buckets with foreground calls.
func (c *Client) retryInBackground(method, path string, headers http.Header) {
	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()

		for attempt := 1; attempt <= c.backoff.MaxAttempts; attempt++ {
			delay := retry.Jittered(retry.Backoff(c.backoff, attempt), c.backoff.Jitter)
			if err := retry.Sleep(c.bgCtx, delay); err != nil {
				return
			}

			resp, err := c.send(c.bgCtx, method, path, headers, nil)
			if err != nil {
				if c.bgCtx.Err() != nil {
					return
				}
				continue
			}
			switch {
			case resp.Status >= 200 && resp.Status < 300:
				c.storeRecovered(method+" "+path, resp)
				c.logger.Info().Str("path", path).Int("attempt", attempt).Msg("Background retry succeeded")
				c.notifyRecovered(method, path)
				return
			case resp.Status == http.StatusNotFound || resp.Status == http.StatusUnauthorized:
				c.logger.Warn().Str("path", path).Int("status", resp.Status).Msg("Background retry abandoned")
				return
			}
		}
		c.logger.Warn().Str("path", path).Int("attempts", c.backoff.MaxAttempts).Msg("Background retry exhausted")
	}()
}

func (c *Client) storeRecovered(key string, resp *Response) {
	c.recoveredMu.Lock()
	defer c.recoveredMu.Unlock()
	c.recovered[key] = recoveredEntry{resp: resp, at: c.now()}
}

func (c *Client) takeRecovered(key string) *Response {
	c.recoveredMu.Lock()
	defer c.recoveredMu.Unlock()
	entry, ok := c.recovered[key]
	if !ok {
		return nil
	}
	delete(c.recovered, key)
	if c.now().Sub(entry.at) > recoveredTTL {
		return nil
	}
	return entry.resp
}

func (c *Client) notifyRecovered(method, path string) {
	c.recoveredMu.Lock()
	hooks := append([]func(string, string){}, c.hooks...)
	c.recoveredMu.Unlock()
	for _, fn := range hooks {
		fn(method, path)
	}
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// currentToken returns the in-memory token, loading it from the store once.
func (c *Client) currentToken() *Token {
	c.tokenMu.RLock()
	if c.tokenLoaded {
		tok := c.token
		c.tokenMu.RUnlock()
		return tok
	}
	c.tokenMu.RUnlock()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if !c.tokenLoaded {
		c.tokenLoaded = true
		if c.tokens != nil {
			tok, err := c.tokens.Load()
			if err != nil {
				c.logger.Warn().Err(err).Msg("Failed to load stored token")
			}
			c.token = tok
		}
	}
	return c.token
}

func (c *Client) canRefresh() bool {
	tok := c.currentToken()
	return tok != nil && tok.RefreshToken != "" && c.cfg.ClientSecret != ""
}

// ensureToken refreshes a token that is missing or expiring within an hour.
// Without any stored token requests go out with the api key only.
func (c *Client) ensureToken(ctx context.Context) error {
	tok := c.currentToken()
	if tok == nil || !tok.ExpiresWithin(c.now(), tokenRefreshAhead) {
		return nil
	}
	if !c.canRefresh() {
		if tok.ExpiresWithin(c.now(), 0) {
			return ErrUnauthorized
		}
		return nil
	}

	if err := c.refreshToken(ctx, false); err != nil {
		if !tok.ExpiresWithin(c.now(), 0) {
			c.logger.Warn().Err(err).Msg("Token refresh failed, using current token until expiry")
			return nil
		}
		return err
	}
	return nil
}

// refreshToken exchanges the refresh token. Concurrent callers share one
// exchange that outlives any single caller's context; each caller can still
// give up on its own. Unless force is set, a token refreshed by another
// caller is kept.
func (c *Client) refreshToken(ctx context.Context, force bool) error {
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		tok := c.currentToken()
		if tok == nil || tok.RefreshToken == "" {
			return nil, ErrUnauthorized
		}
		if !force && !tok.ExpiresWithin(c.now(), tokenRefreshAhead) {
			return nil, nil
		}

		body, err := json.Marshal(map[string]string{
			"refresh_token": tok.RefreshToken,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"redirect_uri":  redirectURI,
			"grant_type":    "refresh_token",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal token request: %w", err)
		}

		resp, err := c.send(ctx, http.MethodPost, tokenPath, nil, body)
		if err != nil {
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}
		if resp.Status != http.StatusOK {
			c.logger.Error().Int("status", resp.Status).Msg("Token refresh rejected")
			return nil, ErrUnauthorized
		}

		var tr tokenResponse
		if err := resp.Decode(&tr); err != nil {
			return nil, err
		}
		next := tr.token(c.now())

		c.tokenMu.Lock()
		c.token = next
		c.tokenMu.Unlock()

		if c.tokens != nil {
			if err := c.tokens.Save(next); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to persist refreshed token")
			}
		}
		c.logger.Info().Time("expiresAt", next.ExpiresAt).Msg("Token refreshed")
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}
