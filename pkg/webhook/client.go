// Package webhook provides a simple client for delivering messages to a
// configured HTTP endpoint.
//
// Designed to be used as the single outbound delivery channel of the
// anniversary-notifier system.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client represents a webhook client used to deliver messages.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a new webhook Client for the given URL. The timeout
// bounds the whole delivery call.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Payload is the JSON body posted to the webhook endpoint.
type Payload struct {
	Message     string `json:"message"`
	EmployeeID  string `json:"employeeId"`
	MessageType string `json:"messageType"`
	Timestamp   string `json:"timestamp"`
}

// Send posts the message to the webhook endpoint.
//
// Any 2xx response counts as delivered; transport errors, timeouts and
// non-2xx statuses are returned as errors so the caller's retry policy
// applies.
func (c *Client) Send(ctx context.Context, message, employeeID, messageType string) error {
	payload := Payload{
		Message:     message,
		EmployeeID:  employeeID,
		MessageType: messageType,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook delivery failed: %s", resp.Status)
	}

	return nil
}
