package endpoint

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/varsilias/askdesk/pkg/types"
)

// Config describes one inference deployment.
type Config struct {
	URL    string
	APIKey string
	// QuestionField and AnswerField differ between deployments.
	QuestionField string
	AnswerField   string
	// InsecureTLS accepts self-signed endpoint certificates.
	InsecureTLS bool
	Retry       RetryPolicy
}

// Client posts questions to the endpoint. It holds only configuration and is
// safe for concurrent use.
type Client struct {
	cfg     Config
	log     *slog.Logger
	client  *http.Client
	sleeper Sleeper
}

type Option func(*Client)

// WithHTTPClient replaces the transport used for attempts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleeper = s }
}

func NewClient(cfg Config, log *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("endpoint url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("endpoint api key is required")
	}
	if cfg.QuestionField == "" {
		cfg.QuestionField = "question"
	}
	if cfg.AnswerField == "" {
		cfg.AnswerField = "answer"
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed deployments
	}

	c := &Client{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{Transport: transport}, // per-attempt deadline comes from the context
		sleeper: TimerSleeper{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Query sends question and history and returns a normalized Response. It never
// returns a Go error; failures are Responses of KindError.
func (c *Client) Query(ctx context.Context, question string, history []types.Turn) Response {
	if history == nil {
		history = []types.Turn{}
	}
	body, err := json.Marshal(map[string]any{
		c.cfg.QuestionField: question,
		"chat_history":      history,
	})
	if err != nil {
		return ErrorResponse(ReasonMalformed, fmt.Sprintf("encode request: %v", err))
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.canceled(attempt, err)
		}

		res, err := c.attempt(ctx, body)
		if err == nil {
			res.Attempts = attempt + 1
			if res.Kind == KindError {
				c.log.Error("endpoint terminal error", "reason", res.Reason.String(), "err", res.Err, "attempt", attempt)
			}
			return res
		}
		if ctx.Err() != nil {
			return c.canceled(attempt+1, ctx.Err())
		}
		lastErr = err

		if attempt == c.cfg.Retry.MaxAttempts-1 {
			break
		}
		delay := c.cfg.Retry.Delay(attempt)
		c.log.Warn("endpoint attempt failed, retrying", "attempt", attempt, "delay", delay.String(), "err", err.Error())
		if err := c.sleeper.Sleep(ctx, delay); err != nil {
			return c.canceled(attempt+1, err)
		}
	}

	c.log.Error("endpoint unavailable", "attempts", c.cfg.Retry.MaxAttempts, "err", errString(lastErr))
	r := ErrorResponse(ReasonUnavailable, MsgUnavailable)
	r.Attempts = c.cfg.Retry.MaxAttempts
	return r
}

func (c *Client) canceled(attempts int, err error) Response {
	c.log.Info("endpoint query abandoned", "attempts", attempts, "err", err.Error())
	r := ErrorResponse(ReasonCanceled, "request canceled")
	r.Attempts = attempts
	return r
}

// attempt performs one bounded HTTP round trip. A non-nil error is transient
// and worth retrying; otherwise the Response is final, successful or not.
func (c *Client) attempt(ctx context.Context, body []byte) (Response, error) {
	if c.cfg.Retry.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Retry.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return ErrorResponse(ReasonMalformed, fmt.Sprintf("build request: %v", err)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	c.log.Debug("endpoint response", "status", res.StatusCode, "bytes", len(data), "duration_ms", time.Since(start).Milliseconds())

	if retryableStatus(res.StatusCode) {
		return Response{}, fmt.Errorf("endpoint status %d: %s", res.StatusCode, clip(data, 200))
	}

	out := Normalize(data, c.cfg.AnswerField)
	if res.StatusCode >= 400 && out.Reason != ReasonApplication {
		out = ErrorResponse(ReasonApplication, fmt.Sprintf("HTTP Error: %d - %s", res.StatusCode, clip(data, 200)))
	}
	if out.Reason == ReasonMalformed {
		c.log.Error("malformed endpoint response", "status", res.StatusCode, "body", clip(data, 500))
	}
	return out, nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func clip(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
