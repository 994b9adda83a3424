package checkout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/metrics"
)

// ResolvePending asks the gateway about orders still pending after their session stopped polling
// and settles the ones that reached a terminal status. It returns how many were settled.
func (s *Service) ResolvePending(ctx context.Context) (int, error) {
	before := s.now().Add(-s.opts.PendingResolveAfter)
	orders, err := s.orderRepo.ListStalePending(ctx, s.db, before, s.opts.PendingBatchSize)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if s.settle(ctx, order) {
			settled++
		}
	}
	if settled > 0 {
		s.logger.Info("Settled pending orders", zap.Int("count", settled), zap.Int("checked", len(orders)))
	}
	return settled, nil
}

func (s *Service) settle(ctx context.Context, order *domain.Order) bool {
	logger := s.logger.With(zap.String("order_id", order.ID), zap.String("buyer_id", order.BuyerID))

	status, err := s.gateway.Status(ctx, order.ID)
	if err != nil {
		logger.Warn("Pending order status check failed", zap.Error(err))
		metrics.RecordPendingSettlement("error")
		return false
	}

	switch status {
	case domain.PaymentStatusSuccessful:
		reconcileCtx, cancel := context.WithTimeout(ctx, s.opts.ReconcileTimeout)
		_, err := s.reconciler.Reconcile(reconcileCtx, order.ID, order.CartLines)
		cancel()
		if err != nil {
			logger.Error("Late payment could not be reconciled", zap.Error(err))
			metrics.RecordPendingSettlement("reconciliation_failed")
			return true
		}
		logger.Info("Late payment confirmed")
		metrics.RecordPendingSettlement("confirmed")
		s.sendConfirmation(domain.PaymentRequest{
			Phone:     order.PaymentPhone,
			Amount:    order.TotalAmount,
			Network:   order.PaymentMethod,
			BuyerID:   order.BuyerID,
			CartLines: order.CartLines,
		}, order.ID)
		return true
	case domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
		to := domain.OrderStatusFailed
		if status == domain.PaymentStatusCancelled {
			to = domain.OrderStatusCancelled
		}
		if err := s.orderRepo.UpdateStatusTx(ctx, s.db, order.ID, domain.OrderStatusPending, to); err != nil {
			logger.Error("Failed to record late payment outcome", zap.String("status", string(to)), zap.Error(err))
			return false
		}
		logger.Info("Late payment ended without success", zap.String("status", string(status)))
		metrics.RecordPendingSettlement(string(to))
		return true
	}
	return false
}

// RunResolver calls ResolvePending every interval until ctx is done.
func (s *Service) RunResolver(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ResolvePending(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Failed to settle pending orders", zap.Error(err))
			}
		}
	}
}
