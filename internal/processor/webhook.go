package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrMissingURL indicates that the client was configured without a webhook endpoint.
var ErrMissingURL = errors.New("processor: webhook url is required")

// TriggerRequest is the payload the external processor expects.
type TriggerRequest struct {
	VideoID          string `json:"video_id"`
	OriginalURL      string `json:"original_url"`
	TargetLanguage   string `json:"target_language"`
	UserID           string `json:"user_id"`
	OriginalFilename string `json:"original_filename"`
}

// StatusError reports a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("processor: webhook returned %d", e.StatusCode)
	}
	return fmt.Sprintf("processor: webhook returned %d: %s", e.StatusCode, e.Body)
}

// Options configures the webhook client.
type Options struct {
	URL        string
	Token      string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client fires the one-shot processing trigger. Calls go through a circuit
// breaker so a dead processor fails fast instead of holding uploads open.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(opts Options) (*Client, error) {
	webhookURL := strings.TrimSpace(opts.URL)
	if webhookURL == "" {
		return nil, ErrMissingURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	c := &Client{
		url:        webhookURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		logger:     opts.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "processor-webhook",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("processor: breaker state changed")
		},
	})
	return c, nil
}

// Trigger posts req to the webhook. Any 2xx status is success; the body is ignored.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("processor: encode payload: %w", err)
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("processor: webhook unavailable: %w", err)
		}
		return err
	}
	c.logger.Info().Str("job_id", req.VideoID).Msg("processor: webhook triggered")
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("processor: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("processor: post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}
