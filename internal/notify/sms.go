package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"openclaw/internal/config"
)

// ErrSMSDisabled is returned when the SMS gateway is not configured.
var ErrSMSDisabled = errors.New("sms delivery is not configured")

// SMSClient talks to the FlexPBX SMS gateway over its JSON HTTP API.
type SMSClient struct {
	apiURL string
	token  string
	from   string
	client *http.Client
}

// NewSMSClient returns an SMSClient, or nil when the flexpbx section is
// disabled.
func NewSMSClient(cfg config.FlexPBXConfig) *SMSClient {
	if !cfg.Enabled {
		return nil
	}
	return &SMSClient{
		apiURL: cfg.APIURL,
		token:  cfg.APIToken,
		from:   cfg.FromNum,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

type smsResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Send submits one SMS through the gateway.
func (c *SMSClient) Send(to, text string) error {
	body, err := json.Marshal(smsRequest{To: to, From: c.from, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway: unexpected status %d", resp.StatusCode)
	}

	var out smsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		// Some gateway versions reply with an empty body on success.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("sms gateway: decode response: %w", err)
	}
	if !out.OK && out.Error != "" {
		return fmt.Errorf("sms gateway: %s", out.Error)
	}
	return nil
}
