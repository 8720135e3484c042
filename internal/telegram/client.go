package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quailyquaily/jab/internal/outputfmt"
)

const (
	DefaultBaseURL        = "https://api.telegram.org"
	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 8 << 20
)

// Client talks to the Telegram Bot API.
type Client struct {
	http           *http.Client
	baseURL        string
	token          string
	requestTimeout time.Duration
}

// NewClient builds a client. Per-call deadlines come from requestTimeout, so
// httpClient should not set its own Timeout (long polls outlive it).
func NewClient(httpClient *http.Client, baseURL, token string, requestTimeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Client{
		http:           httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          strings.TrimSpace(token),
		requestTimeout: requestTimeout,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// NetworkError is a failed round trip. Its text never contains the token;
// Unwrap skips the *url.Error so callers cannot print the raw URL by accident.
type NetworkError struct {
	Method string
	msg    string
	err    error
}

func (e *NetworkError) Error() string { return "telegram " + e.Method + ": " + e.msg }

func (e *NetworkError) Unwrap() error { return e.err }

// Timeout reports whether the round trip ran out of time.
func (e *NetworkError) Timeout() bool {
	var netErr net.Error
	return errors.Is(e.err, context.DeadlineExceeded) || (errors.As(e.err, &netErr) && netErr.Timeout())
}

func (c *Client) networkError(method string, err error) error {
	inner := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		inner = urlErr.Err
	}
	msg := outputfmt.RedactSecret(outputfmt.SanitizeErrorText(err.Error()), c.token)
	return &NetworkError{Method: method, msg: msg, err: inner}
}

// RequestError is returned for non-2xx responses and ok=false payloads.
type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	prefix := "telegram"
	if e.Method != "" {
		prefix = "telegram " + e.Method
	}
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = strings.TrimSpace(e.Body)
	}
	switch {
	case e.StatusCode > 0 && desc != "":
		return fmt.Sprintf("%s: http %d: %s", prefix, e.StatusCode, desc)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: http %d", prefix, e.StatusCode)
	case desc != "":
		return prefix + ": " + desc
	default:
		return prefix + ": ok=false"
	}
}

// IsPermanent reports whether err is a Bot API rejection that retrying will not fix
// (bad request, bad token, forbidden, unknown method).
func IsPermanent(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	code := reqErr.ErrorCode
	if code == 0 {
		code = reqErr.StatusCode
	}
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// IsPollTimeoutError reports whether err is a client-side timeout of a long poll.
func IsPollTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call POSTs payload as JSON and decodes the result into out (if non-nil).
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	return c.callWithTimeout(ctx, c.requestTimeout, method, payload, out)
}

func (c *Client) callWithTimeout(ctx context.Context, timeout time.Duration, method string, payload any, out any) error {
	if c.token == "" {
		return fmt.Errorf("telegram %s: missing bot token", method)
	}
	var body io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("telegram %s: encode request: %w", method, err)
		}
		body = bytes.NewReader(raw)
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

// callMultipart uploads filePath as fileField alongside plain form fields.
func (c *Client) callMultipart(ctx context.Context, method string, fields map[string]string, fileField, filePath string, out any) error {
	if c.token == "" {
		return fmt.Errorf("telegram %s: missing bot token", method)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("telegram %s: open %s: %w", method, filePath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(fileField, filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.methodURL(method), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return c.networkError(method, err)
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()

	var env apiResponse
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decodeErr != nil || !env.OK {
		reqErr := &RequestError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		if decodeErr == nil {
			reqErr.ErrorCode = env.ErrorCode
			reqErr.Description = env.Description
		}
		return reqErr
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out User
	if err := c.call(ctx, "getMe", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
