package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Message struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type HTTPSender struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPSender(url, token string, logger *zap.Logger) *HTTPSender {
	return &HTTPSender{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode sms: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call sms api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("sms api returned %d: %s", resp.StatusCode, raw)
	}
	s.logger.Info("SMS sent", zap.String("to", msg.To))
	return nil
}

// LogSender only logs. It is used when no SMS API is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("SMS (not sent, no provider configured)", zap.String("to", msg.To), zap.String("text", msg.Text))
	return nil
}
