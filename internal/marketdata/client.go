// Package marketdata is a client for the Polygon REST API.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/resilience"
	"pattern-scanner/internal/security"
)

// DefaultBaseURL is the public Polygon endpoint.
const DefaultBaseURL = "https://api.polygon.io"

// maxAggregateRows is the largest page the aggregates endpoint serves.
const maxAggregateRows = 50000

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int // 0 = unpaced
	PageLimit         int
	BreakerThreshold  int
	BreakerCooldown   time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the market data API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	pageLimit  int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
	logger     zerolog.Logger
}

// NewClient creates a market data client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 1000
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		pageLimit:  opts.PageLimit,
		httpClient: httpClient,
		limiter:    limiter,
		breaker: resilience.NewBreaker("polygon", resilience.BreakerConfig{
			FailureThreshold: opts.BreakerThreshold,
			Cooldown:         opts.BreakerCooldown,
			Counts:           countsAsOutage,
		}),
		logger: logging.WithOperation(logger, "marketdata"),
	}
}

// countsAsOutage reports whether err says something about upstream health.
// Quota hits and missing data are normal answers.
func countsAsOutage(err error) bool {
	return !errors.Is(err, apperrors.ErrRateLimited) &&
		!errors.Is(err, apperrors.ErrDataNotFound) &&
		!errors.Is(err, context.Canceled)
}

// Breaker exposes the upstream circuit breaker.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// endpoint builds an absolute URL for path with the given query.
func (c *Client) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	return c.baseURL + path + "?" + query.Encode()
}

// withKey adds the API key to an absolute URL, e.g. a next_url from a previous page.
func (c *Client) withKey(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// getJSON issues a GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	target, err := c.withKey(rawURL)
	if err != nil {
		return err
	}
	masked := security.RedactURL(target)

	_, err = resilience.Do(c.breaker, func() (struct{}, error) {
		start := time.Now()
		err := c.do(ctx, target, masked, out)
		logging.LogAPICall(c.logger, http.MethodGet, masked, time.Since(start), err)
		return struct{}{}, err
	})
	return err
}

func (c *Client) do(ctx context.Context, target, masked string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperrors.NewUpstreamError(0, masked, security.MaskSecrets(err.Error()), nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewUpstreamError(resp.StatusCode, masked, "reading body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewUpstreamError(resp.StatusCode, masked, "per-minute quota reached", apperrors.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewUpstreamError(resp.StatusCode, masked, "not found", apperrors.ErrDataNotFound)
	case resp.StatusCode >= 400:
		return apperrors.NewUpstreamError(resp.StatusCode, masked, errorMessage(body), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewUpstreamError(resp.StatusCode, masked, "decoding response", err)
	}
	return nil
}

// errorMessage extracts the API's error text, falling back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func boolParam(b bool) string {
	return strconv.FormatBool(b)
}
