package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/fulfillment"
	"github.com/cardmart/cardmart/engine/listing"
	"github.com/cardmart/cardmart/engine/order"
	"github.com/cardmart/cardmart/engine/payment"
	"github.com/cardmart/cardmart/engine/wallet"
	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/sethvargo/go-retry"
)

const (
	finalizeRetryAttempts = 3
	finalizeRetryBase     = 100 * time.Millisecond
)

// Service drives the checkout -> payment -> confirmation lifecycle. All
// coordination state lives in the backing store; the service holds no
// mutable state of its own and is safe for concurrent use.
type Service struct {
	sessions   Repository
	listings   listing.Repository
	wallets    wallet.Repository
	orders     order.Repository
	processor  payment.Processor
	dispatcher *fulfillment.Dispatcher
	ttl        time.Duration
}

func NewService(
	sessions Repository,
	listings listing.Repository,
	wallets wallet.Repository,
	orders order.Repository,
	processor payment.Processor,
	dispatcher *fulfillment.Dispatcher,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		sessions:   sessions,
		listings:   listings,
		wallets:    wallets,
		orders:     orders,
		processor:  processor,
		dispatcher: dispatcher,
		ttl:        ttl,
	}
}

// CreateInput describes a checkout request for a single listing.
type CreateInput struct {
	ListingID       core.ID
	Method          payment.Method
	ShippingAddress string
}

// Create opens a session reserving a purchase intent. The listing is not
// held: it stays visible and purchasable by other principals until a
// session completes and writes sold.
func (s *Service) Create(ctx context.Context, key *apikey.APIKey, input *CreateInput) (*Session, error) {
	log := logger.FromContext(ctx)
	if !input.Method.IsValid() {
		return nil, core.NewError(nil, core.CodeValidation, fmt.Sprintf("unknown payment method: %s", input.Method))
	}
	if input.ShippingAddress == "" {
		return nil, core.NewError(nil, core.CodeValidation, "shipping address is required")
	}
	snap, err := s.fetchPurchasable(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}
	if snap.SellerID == key.UserID {
		return nil, core.NewError(nil, core.CodeSelfPurchase, "cannot purchase your own listing")
	}
	total := snap.Total()
	// A wallet-only purchase that cannot possibly settle is rejected up
	// front; split and processor methods defer the funds decision to Pay.
	if input.Method == payment.MethodWallet {
		balance, err := s.wallets.GetBalance(ctx, key.UserID)
		if err != nil {
			return nil, core.Internal(fmt.Errorf("reading wallet balance: %w", err))
		}
		if balance < total {
			return nil, core.NewError(nil, core.CodeInsufficientFunds, "wallet balance is below the listing total")
		}
	}
	sess, err := New(key.ID, key.UserID, snap.ID, total, input.ShippingAddress, input.Method, s.ttl)
	if err != nil {
		return nil, core.Internal(err)
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, core.Internal(fmt.Errorf("persisting session: %w", err))
	}
	log.Info("checkout session created",
		"session_id", sess.ID, "listing_id", snap.ID, "total", total, "method", input.Method)
	return sess, nil
}

// Get returns the caller's session. Reads apply lazy expiry too, so an
// overdue session is observed as expired rather than active.
func (s *Service) Get(ctx context.Context, key *apikey.APIKey, sessionID core.ID) (*Session, error) {
	sess, err := s.fetchOwned(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusActive && sess.IsExpired() {
		if err := s.sessions.Transition(ctx, sess.ID, StatusActive, StatusExpired); err != nil && !errors.Is(err, ErrStaleTransition) {
			return nil, core.Internal(fmt.Errorf("expiring session: %w", err))
		}
		sess.Status = StatusExpired
	}
	return sess, nil
}

// Pay settles the session total across the wallet and the external
// processor. The split is recomputed from the buyer's current balance, not
// the balance at creation. A declined charge leaves the session active and
// retryable until expiry.
func (s *Service) Pay(ctx context.Context, key *apikey.APIKey, sessionID core.ID) (*Session, error) {
	log := logger.FromContext(ctx)
	sess, err := s.fetchOwned(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.expireLazily(ctx, sess); err != nil {
		return nil, err
	}
	if sess.Status != StatusActive {
		return nil, core.NewError(nil, core.CodeInvalidState,
			fmt.Sprintf("session is %s, payment requires an active session", sess.Status))
	}
	var balance core.Money
	if sess.Method.UsesWallet() {
		balance, err = s.wallets.GetBalance(ctx, key.UserID)
		if err != nil {
			return nil, core.Internal(fmt.Errorf("reading wallet balance: %w", err))
		}
	}
	plan, err := payment.ComputePlan(sess.Total, sess.Method, balance)
	if err != nil {
		if errors.Is(err, payment.ErrInsufficientFunds) {
			return nil, core.NewError(err, core.CodeInsufficientFunds, "wallet balance is below the session total")
		}
		return nil, core.Internal(err)
	}
	var processorRef *string
	if plan.RequiresProcessor() {
		result, chargeErr := s.processor.Charge(ctx, &payment.ChargeRequest{
			Amount:    plan.ProcessorCharge,
			Currency:  "GBP",
			Reference: sess.ID.String(),
		})
		if chargeErr != nil {
			// Terminal for this attempt only: the session stays active.
			log.Warn("external charge failed", "session_id", sess.ID, "error", chargeErr)
			return nil, core.NewError(chargeErr, core.CodePaymentDeclined, "external payment was declined")
		}
		processorRef = &result.ProviderRef
	}
	if err := s.sessions.RecordPayment(ctx, sess.ID, processorRef, plan.WalletDebit); err != nil {
		if errors.Is(err, ErrStaleTransition) {
			return nil, core.NewError(err, core.CodeInvalidState, "session is no longer active")
		}
		return nil, core.Internal(fmt.Errorf("recording payment: %w", err))
	}
	// The debit is recorded only after the session reached
	// payment_completed for this increment.
	if plan.WalletDebit.IsPositive() {
		if err := s.wallets.Debit(ctx, key.UserID, plan.WalletDebit, sess.ID.String()); err != nil {
			s.markFailed(ctx, sess.ID, StatusPaymentCompleted)
			if errors.Is(err, wallet.ErrInsufficientFunds) {
				return nil, core.NewError(err, core.CodeInsufficientFunds, "wallet balance changed before settlement")
			}
			return nil, core.Internal(fmt.Errorf("debiting wallet: %w", err))
		}
	}
	sess.Status = StatusPaymentCompleted
	sess.ProcessorRef = processorRef
	sess.WalletDebit = plan.WalletDebit
	log.Info("session payment completed",
		"session_id", sess.ID, "wallet_debit", plan.WalletDebit, "processor_charge", plan.ProcessorCharge)
	return sess, nil
}

// Confirm finalizes a paid session: the order insert and the sold-status
// write happen in one transactional unit, then compensating side effects
// fire without affecting the outcome.
func (s *Service) Confirm(ctx context.Context, key *apikey.APIKey, sessionID core.ID) (*order.Order, error) {
	log := logger.FromContext(ctx)
	sess, err := s.fetchOwned(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.expireLazily(ctx, sess); err != nil {
		return nil, err
	}
	if sess.Status != StatusPaymentCompleted {
		return nil, core.NewError(nil, core.CodeInvalidState,
			fmt.Sprintf("session is %s, confirmation requires payment_completed", sess.Status))
	}
	if sess.IsExpired() {
		return nil, core.NewError(nil, core.CodeExpired, "session has expired")
	}
	// The listing may have been sold through another channel since the
	// session was created.
	snap, err := s.fetchPurchasable(ctx, sess.ListingID)
	if err != nil {
		// A transient store failure leaves the session retryable; a listing
		// that is genuinely gone makes the session unrecoverable.
		if core.AsError(err).Code != core.CodeInternal {
			s.markFailed(ctx, sess.ID, StatusPaymentCompleted)
		}
		return nil, err
	}
	// Conditional admission: exactly one confirm call wins this CAS, so a
	// second confirm fails with a state error and creates no second order.
	if err := s.sessions.Transition(ctx, sess.ID, StatusPaymentCompleted, StatusCompleted); err != nil {
		if errors.Is(err, ErrStaleTransition) {
			return nil, core.NewError(err, core.CodeInvalidState, "session has already been confirmed or failed")
		}
		return nil, core.Internal(fmt.Errorf("completing session: %w", err))
	}
	ord, err := order.New(
		sess.BuyerID, snap.SellerID, sess.ID, snap.ID,
		snap.Price, sess.Total, sess.ShippingAddress, string(sess.Method),
	)
	if err != nil {
		s.markFailed(ctx, sess.ID, StatusCompleted)
		return nil, core.Internal(err)
	}
	if err := s.finalize(ctx, ord, snap.ID); err != nil {
		s.markFailed(ctx, sess.ID, StatusCompleted)
		if errors.Is(err, listing.ErrNotActive) {
			return nil, core.NewError(err, core.CodeInvalidState, "listing was sold before confirmation")
		}
		return nil, core.Internal(err)
	}
	log.Info("order confirmed", "order_id", ord.ID, "session_id", sess.ID, "listing_id", snap.ID)
	if s.dispatcher != nil {
		s.dispatcher.AfterOrderConfirmed(ctx, ord)
	}
	return ord, nil
}

// finalize writes the order and the sold flag as one unit of durability,
// retrying transient store failures. The conditional sold-write failing is
// a state conflict and is never retried.
func (s *Service) finalize(ctx context.Context, ord *order.Order, listingID core.ID) error {
	backoff := retry.WithMaxRetries(finalizeRetryAttempts, retry.NewExponential(finalizeRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.orders.CreateWithListingSale(ctx, ord, listingID)
		if err == nil || errors.Is(err, listing.ErrNotActive) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// fetchPurchasable loads a listing snapshot and enforces the agent
// visibility boundary and active status.
func (s *Service) fetchPurchasable(ctx context.Context, id core.ID) (*listing.Snapshot, error) {
	snap, err := s.listings.GetSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return nil, core.NewError(err, core.CodeNotFound, "listing not found")
		}
		return nil, core.Internal(fmt.Errorf("reading listing: %w", err))
	}
	if !snap.AgentEnabled {
		return nil, core.NewError(nil, core.CodeAgentAccessDisabled, "listing is not available to agents")
	}
	if snap.Status != listing.StatusActive {
		return nil, core.NewError(nil, core.CodeInvalidState, "listing is not active")
	}
	return snap, nil
}

func (s *Service) fetchOwned(ctx context.Context, key *apikey.APIKey, sessionID core.ID) (*Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, core.NewError(err, core.CodeNotFound, "session not found")
		}
		return nil, core.Internal(fmt.Errorf("reading session: %w", err))
	}
	if sess.BuyerID != key.UserID {
		return nil, core.NewError(nil, core.CodeForbidden, "session belongs to another principal")
	}
	return sess, nil
}

// expireLazily transitions an overdue active session to expired before any
// further processing and reports the expiry to the caller.
func (s *Service) expireLazily(ctx context.Context, sess *Session) error {
	if sess.Status != StatusActive || !sess.IsExpired() {
		return nil
	}
	if err := s.sessions.Transition(ctx, sess.ID, StatusActive, StatusExpired); err != nil && !errors.Is(err, ErrStaleTransition) {
		return core.Internal(fmt.Errorf("expiring session: %w", err))
	}
	sess.Status = StatusExpired
	return core.NewError(nil, core.CodeExpired, "session has expired")
}

// markFailed moves a session to failed after an unrecoverable error. The
// write is best-effort: the caller's error is already decided.
func (s *Service) markFailed(ctx context.Context, id core.ID, from Status) {
	if err := s.sessions.Transition(ctx, id, from, StatusFailed); err != nil {
		logger.FromContext(ctx).Error("failed to mark session failed", "session_id", id, "error", err)
	}
}
