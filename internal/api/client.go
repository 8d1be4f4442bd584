package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// maxResponseSize bounds how much of a JSON response is read.
	maxResponseSize = 32 << 20
	// maxErrorExcerpt bounds the body text quoted in a StatusError.
	maxErrorExcerpt = 512

	defaultTimeout = 60 * time.Second
)

// HTTPClient talks to the sticker REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	maxBody int64
	log     logrus.FieldLogger
}

// NewHTTPClient creates a client for the API rooted at baseURL (for example
// http://localhost:8000/api). A nil httpClient gets a default with a 60s timeout.
func NewHTTPClient(baseURL string, httpClient *http.Client, logger logrus.FieldLogger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		maxBody: maxResponseSize,
		log:     logger.WithField("component", "api_client"),
	}
}

// request holds what is needed to issue one API call.
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
}

func jsonRequest(method, path string, payload any) (*request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return &request{
		method:      method,
		path:        path,
		body:        bytes.NewReader(data),
		contentType: "application/json",
	}, nil
}

// do executes r and decodes the JSON answer into out (which may be nil).
func (c *HTTPClient) do(ctx context.Context, r *request, out any) error {
	reqID := uuid.NewString()
	log := c.log.WithFields(logrus.Fields{
		"method":     r.method,
		"path":       r.path,
		"request_id": reqID,
	})

	body := r.body
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("Request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		log.WithError(err).Warn("Failed to read response body")
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := newStatusError(resp.StatusCode, raw)
		log.WithField("status", resp.StatusCode).Warn(statusErr.Message)
		return statusErr
	}
	if int64(len(raw)) > c.maxBody {
		log.WithField("limit", c.maxBody).Warn("Response body too large")
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBody)
	}

	if err := checkEnvelope(raw); err != nil {
		log.WithError(err).Warn("Backend reported an error")
		return err
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.WithError(err).Error("Failed to decode response")
		return fmt.Errorf("failed to decode response: %w", err)
	}
	log.Debug("Request completed")
	return nil
}

type envelope struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
}

// checkEnvelope rejects object bodies that carry a non-200 "code".
func checkEnvelope(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil
	}
	if env.Code != nil && *env.Code != 0 && *env.Code != http.StatusOK {
		msg := env.Message
		if msg == "" {
			msg = "Error"
		}
		return &APIError{Code: *env.Code, Message: msg}
	}
	return nil
}

// newStatusError prefers the backend's "message" (or FastAPI-style "detail")
// over a raw body excerpt.
func newStatusError(status int, raw []byte) *StatusError {
	var body struct {
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Message != "":
			msg = body.Message
		case body.Detail != nil:
			msg = fmt.Sprint(body.Detail)
		}
	}
	if msg == "" {
		excerpt := strings.TrimSpace(string(raw))
		if len(excerpt) > maxErrorExcerpt {
			excerpt = excerpt[:maxErrorExcerpt] + "... (truncated)"
		}
		msg = excerpt
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &StatusError{StatusCode: status, Message: msg}
}
