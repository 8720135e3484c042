package telegram

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type GetUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long-polls for updates. The HTTP deadline is the server-side
// timeout plus the client's request timeout.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	wait := time.Duration(req.Timeout)*time.Second + c.requestTimeout
	var out []Update
	if err := c.callWithTimeout(ctx, wait, "getUpdates", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type DeleteWebhookRequest struct {
	DropPendingUpdates bool `json:"drop_pending_updates,omitempty"`
}

func (c *Client) DeleteWebhook(ctx context.Context, req DeleteWebhookRequest) error {
	var ok bool
	return c.call(ctx, "deleteWebhook", req, &ok)
}

type SetWebhookRequest struct {
	URL                string   `json:"url"`
	IPAddress          string   `json:"ip_address,omitempty"`
	MaxConnections     int      `json:"max_connections,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
	SecretToken        string   `json:"secret_token,omitempty"`
	// CertificatePath, when set, uploads the public key certificate so that
	// Telegram accepts a self-signed listener.
	CertificatePath string `json:"-"`
}

// SetWebhook registers the webhook and reports whether Telegram accepted it.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) (bool, error) {
	var ok bool
	if strings.TrimSpace(req.CertificatePath) == "" {
		if err := c.call(ctx, "setWebhook", req, &ok); err != nil {
			return false, err
		}
		return ok, nil
	}

	fields := map[string]string{"url": req.URL}
	if req.IPAddress != "" {
		fields["ip_address"] = req.IPAddress
	}
	if req.MaxConnections > 0 {
		fields["max_connections"] = strconv.Itoa(req.MaxConnections)
	}
	if len(req.AllowedUpdates) > 0 {
		raw, err := json.Marshal(req.AllowedUpdates)
		if err != nil {
			return false, err
		}
		fields["allowed_updates"] = string(raw)
	}
	if req.DropPendingUpdates {
		fields["drop_pending_updates"] = "true"
	}
	if req.SecretToken != "" {
		fields["secret_token"] = req.SecretToken
	}
	if err := c.callMultipart(ctx, "setWebhook", fields, "certificate", req.CertificatePath, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var out WebhookInfo
	if err := c.call(ctx, "getWebhookInfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
