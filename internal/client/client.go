// Package client talks to a running loan approval server.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"loan-approval/internal/loan"
	"loan-approval/internal/ml"
	"loan-approval/internal/server"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

type Client struct {
	base string
	rest *resty.Client
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	Details    []string
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("server: %d %s: %s", e.StatusCode, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("server: %d %s", e.StatusCode, e.Message)
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Predict scores one applicant remotely.
func (c *Client) Predict(ctx context.Context, a loan.Applicant) (ml.Result, error) {
	var ok, failed server.Envelope
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(a).
		SetResult(&ok).
		SetError(&failed).
		Post(c.base + "/predict")
	if err != nil {
		return ml.Result{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return ml.Result{}, envelopeError(resp, failed)
	}
	if !ok.Success || ok.Result == nil {
		return ml.Result{}, fmt.Errorf("server: unexpected response: %s", resp.String())
	}
	return *ok.Result, nil
}

// Health fetches the liveness report.
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var health server.HealthResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&health).
		Get(c.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	return &health, nil
}

// ModelInfo fetches metadata of the served pipeline.
func (c *Client) ModelInfo(ctx context.Context) (*server.ModelInfo, error) {
	var info server.ModelInfo
	var failed server.Envelope
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&info).
		SetError(&failed).
		Get(c.base + "/model/info")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, envelopeError(resp, failed)
	}
	return &info, nil
}

// Reload asks the server to re-read its artifact.
func (c *Client) Reload(ctx context.Context) (*server.ReloadResponse, error) {
	var reloaded server.ReloadResponse
	var failed server.Envelope
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&reloaded).
		SetError(&failed).
		Post(c.base + "/model/reload")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, envelopeError(resp, failed)
	}
	return &reloaded, nil
}

// PredictStream scores applicants over one websocket connection. Envelopes
// come back in input order, failed ones included.
func (c *Client) PredictStream(ctx context.Context, applicants []loan.Applicant) ([]server.Envelope, error) {
	url := "ws" + strings.TrimPrefix(c.base, "http") + "/ws/predict"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	out := make([]server.Envelope, 0, len(applicants))
	for i, a := range applicants {
		if err := conn.WriteJSON(a); err != nil {
			return out, fmt.Errorf("send applicant %d: %w", i, err)
		}
		var env server.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return out, fmt.Errorf("read result %d: %w", i, err)
		}
		out = append(out, env)
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return out, nil
}

func envelopeError(resp *resty.Response, env server.Envelope) error {
	msg := env.Error
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg, Details: env.Details}
}
