package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/marcus/fieldops/internal/fielderr"
)

// DefaultTimeout is the per-call request timeout.
const DefaultTimeout = 15 * time.Second

// Recorder receives one entry per completed call. Implementations must not
// block and must be safe for concurrent use.
type Recorder interface {
	RecordCall(op string, statusCode int, callErr error, elapsed time.Duration)
}

// Client is a typed HTTP façade over the ERP visit, attendance and report endpoints.
type Client struct {
	BaseURL   string
	Token     string
	DeviceID  string
	UserAgent string
	Timeout   time.Duration
	HTTP      *http.Client
	Recorder  Recorder

	validate *validator.Validate
}

// New creates a new client.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		Timeout:  DefaultTimeout,
		HTTP:     &http.Client{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// --- HTTP helpers ---

// apiError covers both error body shapes the backend emits.
type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

func (e *apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Detail) == 0 {
		return e.Code
	}
	var s string
	if json.Unmarshal(e.Detail, &s) == nil {
		return s
	}
	// Validation errors arrive as a list of objects; keep them raw.
	return string(e.Detail)
}

// check validates a request body before it goes on the wire.
func (c *Client) check(body any) error {
	if c.validate == nil {
		c.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if err := c.validate.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", fielderr.ErrInvalidInput, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", fielderr.ErrInvalidInput, err)
	}
	return nil
}

// do executes a JSON request.
func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	contentType := ""
	if body != nil {
		contentType = "application/json"
	}
	return c.send(ctx, op, method, path, contentType, bodyReader, result)
}

func (c *Client) send(ctx context.Context, op, method, path, contentType string, body io.Reader, result any) (err error) {
	start := time.Now()
	statusCode := 0
	defer func() {
		if c.Recorder != nil {
			c.Recorder.RecordCall(op, statusCode, err, time.Since(start))
		}
	}()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s %s after %s", fielderr.ErrNetworkTimeout, method, path, timeout)
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: reading %s %s", fielderr.ErrNetworkTimeout, method, path)
		}
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil {
			if t := apiErr.text(); t != "" {
				msg = t
			}
		}
		return fielderr.Rejected(resp.StatusCode, msg)
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// parseTime accepts the timestamp layouts the backend emits. Naive
// timestamps are UTC.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339, Value: s}
}

// flexTime decodes any layout parseTime accepts.
type flexTime struct{ time.Time }

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := parseTime(s)
	if err != nil {
		return err
	}
	f.Time = t
	return nil
}

func (f *flexTime) ptr() *time.Time {
	if f == nil || f.IsZero() {
		return nil
	}
	t := f.Time
	return &t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
