// Package mobilemoney talks to the mobile-money payment proxy.
package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/metrics"
)

type initiateResponse struct {
	OrderID string `json:"order_id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// upstreamError is a 5xx reply from the proxy. It counts against the circuit breaker.
type upstreamError struct {
	status int
	body   string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("payment proxy returned %d: %s", e.status, e.body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *CircuitBreaker
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, breaker *CircuitBreaker, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// Initiate asks the proxy to start a payment and returns the order id it assigned.
// Every failure is returned as *domain.GatewayRejection.
func (c *Client) Initiate(ctx context.Context, req domain.PaymentRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", &domain.GatewayRejection{Message: "could not encode payment request", Err: err}
	}

	var (
		orderID   string
		rejection *domain.GatewayRejection
	)
	start := time.Now()
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode >= 500:
			return &upstreamError{status: resp.StatusCode, body: string(raw)}
		case resp.StatusCode >= 300:
			rejection = &domain.GatewayRejection{Message: rejectionMessage(raw, resp.StatusCode)}
			return nil
		}

		var out initiateResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			rejection = &domain.GatewayRejection{Message: "payment service returned an unreadable response", Err: err}
			return nil
		}
		if out.OrderID == "" {
			rejection = &domain.GatewayRejection{Message: "payment service did not return an order reference"}
			return nil
		}
		orderID = out.OrderID
		return nil
	})

	switch {
	case errors.Is(err, ErrCircuitOpen):
		metrics.ObserveGatewayCall("initiate", "circuit_open", time.Since(start))
		return "", &domain.GatewayRejection{Message: "Mobile money is temporarily unavailable. Please try again shortly.", Err: err}
	case err != nil:
		metrics.ObserveGatewayCall("initiate", "error", time.Since(start))
		c.logger.Warn("Payment initiation failed", zap.String("buyer_id", req.BuyerID), zap.Error(err))
		return "", &domain.GatewayRejection{Message: "We could not reach mobile money. Please try again.", Err: err}
	case rejection != nil:
		metrics.ObserveGatewayCall("initiate", "rejected", time.Since(start))
		c.logger.Info("Payment initiation rejected", zap.String("buyer_id", req.BuyerID), zap.String("reason", rejection.Message))
		return "", rejection
	}

	metrics.ObserveGatewayCall("initiate", "accepted", time.Since(start))
	c.logger.Info("Payment initiated", zap.String("order_id", orderID), zap.String("buyer_id", req.BuyerID), zap.Int64("amount", int64(req.Amount)))
	return orderID, nil
}

// Status returns the payment status for orderID.
func (c *Client) Status(ctx context.Context, orderID string) (domain.PaymentStatus, error) {
	var status domain.PaymentStatus
	start := time.Now()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+url.PathEscape(orderID)+"/status", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode >= 500:
			return &upstreamError{status: resp.StatusCode, body: string(raw)}
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("payment proxy returned %d for order status: %s", resp.StatusCode, rejectionMessage(raw, resp.StatusCode))
		}
		var out statusResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("failed to decode payment status: %w", err)
		}
		parsed, err := parseStatus(out.Status)
		if err != nil {
			return err
		}
		status = parsed
		return nil
	})
	if err != nil {
		metrics.ObserveGatewayCall("status", "error", time.Since(start))
		return "", fmt.Errorf("failed to get payment status for order %s: %w", orderID, err)
	}
	metrics.ObserveGatewayCall("status", string(status), time.Since(start))
	return status, nil
}

func parseStatus(s string) (domain.PaymentStatus, error) {
	switch domain.PaymentStatus(strings.ToLower(s)) {
	case domain.PaymentStatusPending:
		return domain.PaymentStatusPending, nil
	case domain.PaymentStatusSuccessful:
		return domain.PaymentStatusSuccessful, nil
	case domain.PaymentStatusFailed:
		return domain.PaymentStatusFailed, nil
	case domain.PaymentStatusCancelled:
		return domain.PaymentStatusCancelled, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

func rejectionMessage(raw []byte, status int) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return fmt.Sprintf("payment request was refused (%d)", status)
}
