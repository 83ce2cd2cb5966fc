package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one rendered notification for one chat.
type Message struct {
	ChatID   int64  `json:"telegram_id"`
	Event    string `json:"event"`
	OrderRef string `json:"order_id_short"`
	Text     string `json:"text"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// HTTPSender posts messages to the chat bot's notify endpoint.
type HTTPSender struct {
	URL    string
	Client *http.Client
}

func NewHTTPSender(url string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post notify: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notify endpoint returned %s", resp.Status)
	}
	return nil
}
