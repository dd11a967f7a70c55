package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/studiobell/dispatch/internal/model"
)

// WebhookClient delivers messages by POSTing to the channel provider's
// webhook. Responses classify retries: 4xx means the channel rejected the
// message outright (permanent), everything else that goes wrong is
// transient and left to the queue's retry policy.
type WebhookClient struct {
	url    string
	client *http.Client
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func (c *WebhookClient) Send(ctx context.Context, recipient, text string) error {
	reqBody, err := json.Marshal(sendRequest{
		Recipient: recipient,
		Message:   text,
	})
	if err != nil {
		return &model.DeliveryError{Permanent: true, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return &model.DeliveryError{Permanent: true, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport errors and timeouts are retriable.
		return &model.DeliveryError{Permanent: false, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &model.DeliveryError{
			Permanent: true,
			Err:       fmt.Errorf("channel rejected message: status=%d body=%q", resp.StatusCode, string(body)),
		}
	default:
		return &model.DeliveryError{
			Permanent: false,
			Err:       fmt.Errorf("channel unavailable: status=%d body=%q", resp.StatusCode, string(body)),
		}
	}
}
