package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Config struct {
	BaseURL            string
	SenderEmail        string
	SenderName         string
	AuthorizationToken string
	RequestTimeout     time.Duration
}

// Client delivers one email per Send call through the provider's mail-send
// endpoint. It makes exactly one network call per invocation and takes no
// retry decisions; the caller owns retry policy.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	Content          []content         `json:"content"`
	From             address           `json:"from"`
	ReplyTo          address           `json:"reply_to"`
}

type personalization struct {
	To      []address `json:"to"`
	Subject string    `json:"subject"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send posts a single message with both renditions to one recipient. A
// transport error, a timeout, or a non-2xx response all surface as an
// error.
func (c *Client) Send(ctx context.Context, recipientEmail, recipientName, subject, htmlBody, textBody string) error {
	sender := address{Email: c.cfg.SenderEmail, Name: c.cfg.SenderName}
	payload := mailSendRequest{
		Personalizations: []personalization{
			{
				To:      []address{{Email: recipientEmail, Name: recipientName}},
				Subject: subject,
			},
		},
		Content: []content{
			{Type: "text/plain", Value: textBody},
			{Type: "text/html", Value: htmlBody},
		},
		From:    sender,
		ReplyTo: sender,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mail-send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mail-send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthorizationToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute mail-send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail-send rejected (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}
