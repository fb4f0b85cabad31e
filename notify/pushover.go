package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const pushoverURL = "https://api.pushover.net/1/messages.json"

// PushoverSender delivers notifications through the Pushover messages API.
type PushoverSender struct {
	token    string
	user     string
	endpoint string
	priority int
	client   *http.Client
}

func NewPushoverSender(token, user string) *PushoverSender {
	return &PushoverSender{
		token:    token,
		user:     user,
		endpoint: pushoverURL,
		priority: 1,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PushoverSender) Send(ctx context.Context, title, message string) error {
	form := url.Values{
		"token":    {p.token},
		"user":     {p.user},
		"title":    {title},
		"message":  {message},
		"priority": {strconv.Itoa(p.priority)},
		"sound":    {"cosmic"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pushover: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (p *PushoverSender) Name() string { return "pushover" }
