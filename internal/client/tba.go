package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"frc_cassandra/ingestion/internal/metrics"
	"frc_cassandra/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// ErrProviderUnavailable wraps every network or provider failure
var ErrProviderUnavailable = errors.New("provider unavailable")

// maxConcurrentRequests bounds in-flight requests against TBA
const maxConcurrentRequests = 20

// MatchesResult is the outcome of a conditional match fetch
type MatchesResult struct {
	Matches      []models.Match
	LastModified string
	// NotModified is set when the provider reported no change since the token
	NotModified bool
}

// Client is The Blue Alliance API v3 client
type Client struct {
	baseURL     string
	authKey     string
	httpClient  *http.Client
	rateLimiter chan struct{} // Rate limiting semaphore
	maxRetries  int
	retryDelay  time.Duration
}

// response is a successful or not-modified reply from TBA
type response struct {
	body         []byte
	lastModified string
	notModified  bool
}

// NewClient creates a new TBA API client
func NewClient(baseURL, authKey string, timeout time.Duration) *Client {
	rateLimiter := make(chan struct{}, maxConcurrentRequests)
	for i := 0; i < maxConcurrentRequests; i++ {
		rateLimiter <- struct{}{}
	}

	return &Client{
		baseURL:     baseURL,
		authKey:     authKey,
		rateLimiter: rateLimiter,
		maxRetries:  3,
		retryDelay:  1 * time.Second,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetRetryPolicy overrides the retry count and the base backoff delay
func (c *Client) SetRetryPolicy(maxRetries int, delay time.Duration) {
	c.maxRetries = maxRetries
	c.retryDelay = delay
}

// get performs a GET request with retry logic and rate limiting.
// A non-empty lastModified is sent as If-Modified-Since.
func (c *Client) get(ctx context.Context, endpoint, path, lastModified string) (*response, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, path)
	start := time.Now()

	// Rate limiting: acquire semaphore
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.rateLimiter:
	}
	defer func() { c.rateLimiter <- struct{}{} }()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s plus up to 250ms jitter
			backoff := c.retryDelay*time.Duration(1<<uint(attempt-1)) +
				time.Duration(rand.Intn(250))*time.Millisecond
			log.Info().
				Str("url", url).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying API request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, retry, err := c.do(ctx, url, lastModified)
		if err == nil {
			status := "ok"
			if resp.notModified {
				status = "not_modified"
			}
			metrics.RecordAPICall(endpoint, status, time.Since(start).Seconds())
			return resp, nil
		}

		lastErr = err
		if !retry {
			break
		}
	}

	metrics.RecordAPICall(endpoint, "error", time.Since(start).Seconds())
	return nil, lastErr
}

// do issues one request. The bool reports whether the failure is retryable.
func (c *Client) do(ctx context.Context, url, lastModified string) (*response, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-TBA-Auth-Key", c.authKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "frc-cassandra/1.0")
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	log.Debug().
		Str("url", url).
		Str("if_modified_since", lastModified).
		Msg("Making API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%w: request failed: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: failed to read response body: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		log.Debug().
			Str("url", url).
			Int("size", len(body)).
			Msg("API request successful")
		return &response{body: body, lastModified: resp.Header.Get("Last-Modified")}, false, nil

	case resp.StatusCode == http.StatusNotModified:
		return &response{lastModified: lastModified, notModified: true}, false, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				log.Warn().Str("url", url).Int("retry_after", secs).Msg("Provider asked to slow down")
			}
		}
		log.Warn().
			Str("url", url).
			Int("status", resp.StatusCode).
			Msg("Received retryable error, will retry")
		return nil, true, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("%w: authentication failed (status %d)", ErrProviderUnavailable, resp.StatusCode)

	default:
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}
}

// FetchEvents fetches the simple event list for a season
func (c *Client) FetchEvents(ctx context.Context, year int) ([]models.Event, error) {
	resp, err := c.get(ctx, "events", fmt.Sprintf("events/%d/simple", year), "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events for %d: %w", year, err)
	}

	var inputs []models.EventInput
	if err := json.Unmarshal(resp.body, &inputs); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal events: %v", ErrProviderUnavailable, err)
	}

	events := make([]models.Event, 0, len(inputs))
	for _, input := range inputs {
		event, err := input.ToEvent()
		if err != nil {
			log.Warn().Err(err).Int("year", year).Msg("Skipping event with invalid dates")
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// FetchEventMatches fetches an event's matches unless they have not changed
// since lastModified. The returned token is the new freshness marker.
func (c *Client) FetchEventMatches(ctx context.Context, eventKey, lastModified string) (MatchesResult, error) {
	resp, err := c.get(ctx, "event_matches", fmt.Sprintf("event/%s/matches", eventKey), lastModified)
	if err != nil {
		return MatchesResult{}, fmt.Errorf("failed to fetch matches for %s: %w", eventKey, err)
	}

	if resp.notModified {
		return MatchesResult{LastModified: resp.lastModified, NotModified: true}, nil
	}

	var inputs []models.MatchInput
	if err := json.Unmarshal(resp.body, &inputs); err != nil {
		return MatchesResult{}, fmt.Errorf("%w: failed to unmarshal matches: %v", ErrProviderUnavailable, err)
	}

	matches := make([]models.Match, len(inputs))
	for i := range inputs {
		matches[i] = inputs[i].ToMatch()
	}

	return MatchesResult{Matches: matches, LastModified: resp.lastModified}, nil
}
