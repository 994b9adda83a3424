package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"checkout/internal/app/reconcile"
	"checkout/internal/domain"
	"checkout/internal/metrics"
	"checkout/internal/notify"
	"checkout/internal/phone"
	"checkout/internal/repository/listing_repo"
	"checkout/internal/repository/order_repo"
)

// PaymentGateway is the mobile-money collaborator.
type PaymentGateway interface {
	Initiate(ctx context.Context, req domain.PaymentRequest) (string, error)
	Status(ctx context.Context, orderID string) (domain.PaymentStatus, error)
}

type BuyerDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
}

type Options struct {
	PollInterval        time.Duration
	MaxPollAttempts     int
	ReconcileTimeout    time.Duration
	NotificationTimeout time.Duration
	SessionIdleTTL      time.Duration
	// Pending orders older than PendingResolveAfter are settled by ResolvePending.
	PendingResolveAfter time.Duration
	PendingBatchSize    int
}

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.PaymentSession
	cancel  context.CancelFunc
}

// Service holds the in-memory checkout sessions and drives payments for them.
type Service struct {
	db         domain.Querier
	orderRepo  order_repo.OrderRepository
	listings   listing_repo.ListingReader
	buyers     BuyerDirectory
	gateway    PaymentGateway
	reconciler reconcile.Reconciler
	dispatcher notify.Dispatcher
	opts       Options
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func NewService(
	db domain.Querier,
	orderRepo order_repo.OrderRepository,
	listings listing_repo.ListingReader,
	buyers BuyerDirectory,
	gateway PaymentGateway,
	reconciler reconcile.Reconciler,
	dispatcher notify.Dispatcher,
	opts Options,
	logger *zap.Logger,
) *Service {
	baseCtx, stop := context.WithCancel(context.Background())
	return &Service{
		db:         db,
		orderRepo:  orderRepo,
		listings:   listings,
		buyers:     buyers,
		gateway:    gateway,
		reconciler: reconciler,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*sessionEntry),
		baseCtx:    baseCtx,
		stop:       stop,
	}
}

func (s *Service) CreateSession(ctx context.Context, buyerID string) (*SessionView, error) {
	if buyerID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	session := domain.NewPaymentSession(uuid.NewString(), buyerID)

	s.mu.Lock()
	s.sessions[session.ID] = &sessionEntry{session: session}
	s.mu.Unlock()

	s.logger.Info("Checkout session created", zap.String("session_id", session.ID), zap.String("buyer_id", buyerID))
	return mapSessionToView(session), nil
}

func (s *Service) lookup(buyerID, sessionID string) (*sessionEntry, error) {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Sessions of other buyers are reported as missing.
	if entry.session.BuyerID != buyerID {
		return nil, domain.ErrSessionNotFound
	}
	return entry, nil
}

// withSession runs fn under the session lock and returns the resulting view.
func (s *Service) withSession(buyerID, sessionID string, fn func(*domain.PaymentSession) error) (*SessionView, error) {
	entry, err := s.lookup(buyerID, sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if fn != nil {
		if err := fn(entry.session); err != nil {
			return mapSessionToView(entry.session), err
		}
	}
	return mapSessionToView(entry.session), nil
}

func (s *Service) GetSession(ctx context.Context, buyerID, sessionID string) (*SessionView, error) {
	return s.withSession(buyerID, sessionID, nil)
}

// AddItem puts quantity units of a purchasable listing into the cart.
func (s *Service) AddItem(ctx context.Context, buyerID, sessionID, itemID string, quantity int) (*SessionView, error) {
	if quantity < 1 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "Quantity must be at least 1."}
	}
	if _, err := s.lookup(buyerID, sessionID); err != nil {
		return nil, err
	}

	listing, err := s.listings.GetWithVendor(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := listing.Purchasable(s.now()); err != nil {
		s.logger.Info("Listing cannot be added to cart",
			zap.String("session_id", sessionID),
			zap.String("item_id", itemID),
			zap.Error(err))
		return nil, err
	}

	return s.withSession(buyerID, sessionID, func(session *domain.PaymentSession) error {
		if session.Step != domain.StepCart {
			return domain.ErrCartLocked
		}
		inCart := 0
		for _, l := range session.Cart.Lines() {
			if l.ItemID == itemID {
				inCart = l.Quantity
			}
		}
		if inCart+quantity > listing.QuantityAvailable {
			return domain.ErrInsufficientStock
		}
		for i := 0; i < quantity; i++ {
			session.Cart.Add(listing.ID, listing.VendorID, listing.Price)
		}
		session.UpdatedAt = s.now()
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, buyerID, sessionID, itemID string) (*SessionView, error) {
	return s.withSession(buyerID, sessionID, func(session *domain.PaymentSession) error {
		if session.Step != domain.StepCart {
			return domain.ErrCartLocked
		}
		if !session.Cart.Remove(itemID) {
			return domain.ErrItemNotInCart
		}
		session.UpdatedAt = s.now()
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context, buyerID, sessionID string) (*SessionView, error) {
	return s.withSession(buyerID, sessionID, func(session *domain.PaymentSession) error {
		if session.Step != domain.StepCart {
			return domain.ErrCartLocked
		}
		session.Cart.Clear()
		session.UpdatedAt = s.now()
		return nil
	})
}

func (s *Service) BeginCheckout(ctx context.Context, buyerID, sessionID string) (*SessionView, error) {
	return s.withSession(buyerID, sessionID, func(session *domain.PaymentSession) error {
		return session.BeginCheckout()
	})
}

// SubmitPhone validates the mobile money number. A rejected number keeps the session in
// phone_entry with the reason recorded, and the *domain.ValidationError is returned as well.
func (s *Service) SubmitPhone(ctx context.Context, buyerID, sessionID, raw, network string) (*SessionView, error) {
	return s.withSession(buyerID, sessionID, func(session *domain.PaymentSession) error {
		if session.Step != domain.StepPhoneEntry {
			return fmt.Errorf("%w: phone can only be entered in %s", domain.ErrInvalidTransition, domain.StepPhoneEntry)
		}

		normalized, err := phone.Normalize(raw)
		if err != nil {
			_ = session.RejectPhone(raw, err)
			return err
		}

		var selected domain.Network
		if network != "" {
			n, ok := domain.ParseNetwork(network)
			if !ok {
				verr := &domain.ValidationError{Field: "network", Reason: "Choose MTN MoMo or Airtel Money."}
				_ = session.RejectPhone(raw, verr)
				return verr
			}
			selected = n
		} else {
			n, ok := phone.DetectNetwork(normalized)
			if !ok {
				verr := &domain.ValidationError{Field: "network", Reason: "Choose MTN MoMo or Airtel Money."}
				_ = session.RejectPhone(raw, verr)
				return verr
			}
			selected = n
		}
		return session.AcceptPhone(raw, normalized, selected)
	})
}

// Confirm moves the session to processing and starts the payment in the background.
func (s *Service) Confirm(ctx context.Context, buyerID, sessionID string) (*SessionView, error) {
	entry, err := s.lookup(buyerID, sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	session := entry.session
	gen, err := session.Confirm()
	if err != nil {
		return mapSessionToView(session), err
	}

	req := domain.PaymentRequest{
		Phone:     session.NormalizedPhone,
		Amount:    session.Cart.Total(),
		Network:   session.Network,
		BuyerID:   session.BuyerID,
		CartLines: session.Cart.Snapshot(),
	}

	pollCtx, cancel := context.WithCancel(s.baseCtx)
	if entry.cancel != nil {
		entry.cancel()
	}
	entry.cancel = cancel

	s.wg.Add(1)
	go s.runPayment(pollCtx, entry, gen, req)

	s.logger.Info("Payment confirmed by buyer",
		zap.String("session_id", session.ID),
		zap.String("buyer_id", session.BuyerID),
		zap.Int64("amount", int64(req.Amount)),
		zap.String("network", string(req.Network)))
	return mapSessionToView(session), nil
}

func (s *Service) Retry(ctx context.Context, buyerID, sessionID string) (*SessionView, error) {
	entry, err := s.lookup(buyerID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.transition(entry, func(session *domain.PaymentSession) error {
		return session.Retry()
	})
}

func (s *Service) Reset(ctx context.Context, buyerID, sessionID string) (*SessionView, error) {
	entry, err := s.lookup(buyerID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.transition(entry, func(session *domain.PaymentSession) error {
		return session.Reset()
	})
}

// transition applies a buyer-driven step change and stops any payment work the session owns.
func (s *Service) transition(entry *sessionEntry, fn func(*domain.PaymentSession) error) (*SessionView, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := fn(entry.session); err != nil {
		return mapSessionToView(entry.session), err
	}
	if entry.cancel != nil {
		entry.cancel()
		entry.cancel = nil
	}
	return mapSessionToView(entry.session), nil
}

// EndSession forgets the session. Polling it owns stops and late results are dropped.
func (s *Service) EndSession(ctx context.Context, buyerID, sessionID string) error {
	entry, err := s.lookup(buyerID, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.abandon(entry)
	s.logger.Info("Checkout session ended", zap.String("session_id", sessionID), zap.String("buyer_id", buyerID))
	return nil
}

func (s *Service) abandon(entry *sessionEntry) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.session.Abandon()
	if entry.cancel != nil {
		entry.cancel()
		entry.cancel = nil
	}
}

// GetOrder returns an order with its lines if it belongs to buyerID.
func (s *Service) GetOrder(ctx context.Context, buyerID, orderID string) (*OrderView, error) {
	order, err := s.orderRepo.GetByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, domain.ErrOrderNotFound
	}
	lines, err := s.orderRepo.GetLines(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: order, Lines: lines}, nil
}

func (s *Service) ListOrders(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	if buyerID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	return s.orderRepo.ListByBuyer(ctx, s.db, buyerID)
}

// PruneIdle drops sessions untouched for longer than the idle TTL and returns how many were removed.
func (s *Service) PruneIdle(now time.Time) int {
	cutoff := now.Add(-s.opts.SessionIdleTTL)

	s.mu.Lock()
	var stale []*sessionEntry
	for id, entry := range s.sessions {
		entry.mu.Lock()
		idle := entry.session.UpdatedAt.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			stale = append(stale, entry)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, entry := range stale {
		s.abandon(entry)
	}
	if len(stale) > 0 {
		s.logger.Info("Pruned idle checkout sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// RunJanitor prunes idle sessions until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PruneIdle(s.now())
		}
	}
}

// Close cancels all payment work and waits for it to finish.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}

// apply runs fn only if the session is still in processing at generation gen.
func (s *Service) apply(entry *sessionEntry, gen uint64, fn func(*domain.PaymentSession) error) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.session.Current(gen) {
		s.logger.Info("Discarding stale payment result",
			zap.String("session_id", entry.session.ID),
			zap.String("step", string(entry.session.Step)))
		return false
	}
	if err := fn(entry.session); err != nil {
		s.logger.Error("Failed to apply payment result", zap.String("session_id", entry.session.ID), zap.Error(err))
		return false
	}
	return true
}

func (s *Service) isCurrent(entry *sessionEntry, gen uint64) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.Current(gen)
}

func (s *Service) fail(entry *sessionEntry, gen uint64, outcome string, err error) {
	if s.apply(entry, gen, func(session *domain.PaymentSession) error { return session.Fail(err) }) {
		metrics.RecordCheckoutOutcome(outcome)
	}
}

func (s *Service) runPayment(ctx context.Context, entry *sessionEntry, gen uint64, req domain.PaymentRequest) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("session_id", entry.session.ID), zap.String("buyer_id", req.BuyerID))

	orderID, err := s.gateway.Initiate(ctx, req)
	if err != nil {
		var rejection *domain.GatewayRejection
		if !errors.As(err, &rejection) {
			rejection = &domain.GatewayRejection{Err: err}
		}
		logger.Warn("Payment initiation rejected", zap.Error(err))
		s.fail(entry, gen, "gateway_rejected", rejection)
		return
	}
	logger = logger.With(zap.String("order_id", orderID))

	durable := context.WithoutCancel(ctx)
	order, err := domain.NewPendingOrder(orderID, req.BuyerID, req.Amount, req.Network, req.Phone)
	if err == nil {
		order.CartLines = req.CartLines
		err = s.orderRepo.CreateTx(durable, s.db, order)
	}
	if err != nil {
		logger.Error("Failed to record pending order", zap.Error(err))
	}

	if !s.apply(entry, gen, func(session *domain.PaymentSession) error { return session.Accept(orderID) }) {
		return
	}

	status, attempts := s.pollStatus(ctx, entry, gen, orderID, logger)
	switch status {
	case "":
		return
	case domain.PaymentStatusSuccessful:
		s.completePayment(ctx, entry, gen, req, orderID, logger)
	case domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
		to := domain.OrderStatusFailed
		if status == domain.PaymentStatusCancelled {
			to = domain.OrderStatusCancelled
		}
		if err := s.orderRepo.UpdateStatusTx(durable, s.db, orderID, domain.OrderStatusPending, to); err != nil {
			logger.Error("Failed to record payment outcome on order", zap.String("status", string(to)), zap.Error(err))
		}
		logger.Info("Payment ended without success", zap.String("status", string(status)))
		s.fail(entry, gen, "payment_failed", &domain.PaymentFailed{OrderID: orderID, Status: status})
	default:
		logger.Error("Payment still pending after maximum status checks, order left for settlement", zap.Int("attempts", attempts))
		s.fail(entry, gen, "poll_timeout", &domain.PollTimeout{OrderID: orderID, Attempts: attempts})
	}
}

// pollStatus checks the payment status every poll interval until a terminal status, the attempt
// limit, or cancellation. An empty status means the caller must stop without touching the session.
func (s *Service) pollStatus(ctx context.Context, entry *sessionEntry, gen uint64, orderID string, logger *zap.Logger) (domain.PaymentStatus, int) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.opts.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			logger.Info("Payment polling cancelled")
			return "", attempt - 1
		case <-ticker.C:
		}
		if !s.isCurrent(entry, gen) {
			return "", attempt - 1
		}

		status, err := s.gateway.Status(ctx, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return "", attempt
			}
			metrics.RecordPaymentPoll("error")
			logger.Warn("Payment status check failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		metrics.RecordPaymentPoll(string(status))
		logger.Debug("Payment status checked", zap.Int("attempt", attempt), zap.String("status", string(status)))

		if status.IsTerminal() {
			if !s.isCurrent(entry, gen) {
				logger.Info("Dropping payment status for a session that moved on", zap.String("status", string(status)))
				return "", attempt
			}
			return status, attempt
		}
	}
	return domain.PaymentStatusPending, s.opts.MaxPollAttempts
}

func (s *Service) completePayment(ctx context.Context, entry *sessionEntry, gen uint64, req domain.PaymentRequest, orderID string, logger *zap.Logger) {
	reconcileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ReconcileTimeout)
	_, err := s.reconciler.Reconcile(reconcileCtx, orderID, req.CartLines)
	cancel()
	if err != nil {
		var recErr *domain.ReconciliationError
		if !errors.As(err, &recErr) {
			recErr = &domain.ReconciliationError{OrderID: orderID, Err: err}
		}
		logger.Error("Payment succeeded but order could not be reconciled", zap.Error(recErr))
		s.fail(entry, gen, "reconciliation_failed", recErr)
		return
	}

	succeeded := s.apply(entry, gen, func(session *domain.PaymentSession) error {
		if err := session.Succeed(); err != nil {
			return err
		}
		session.Cart.Clear()
		return nil
	})
	if succeeded {
		metrics.RecordCheckoutOutcome("success")
	}
	logger.Info("Checkout completed", zap.Bool("session_updated", succeeded))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendConfirmation(req, orderID)
	}()
}

func (s *Service) sendConfirmation(req domain.PaymentRequest, orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotificationTimeout)
	defer cancel()

	n := domain.Notification{Phone: req.Phone, OrderID: orderID, Amount: req.Amount}
	if profile, err := s.buyers.GetByID(ctx, req.BuyerID); err == nil {
		n.BuyerName = profile.FullName
	} else {
		s.logger.Warn("Buyer profile unavailable for notification", zap.String("buyer_id", req.BuyerID), zap.Error(err))
	}

	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		var notifyErr *domain.NotificationError
		if !errors.As(err, &notifyErr) {
			notifyErr = &domain.NotificationError{OrderID: orderID, Err: err}
		}
		s.logger.Warn("Buyer notification failed", zap.String("order_id", orderID), zap.Error(notifyErr))
	}
}
