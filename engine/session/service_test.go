package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/listing"
	"github.com/cardmart/cardmart/engine/order"
	"github.com/cardmart/cardmart/engine/payment"
	"github.com/cardmart/cardmart/engine/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory fakes with the same conditional-write semantics as the
// --- postgres repositories

type fakeSessions struct {
	mu       sync.Mutex
	byID     map[core.ID]*Session
	statuses map[core.ID][]Status
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[core.ID]*Session{}, statuses: map[core.ID][]Status{}}
}

func (f *fakeSessions) Create(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.byID[s.ID] = &cp
	f.statuses[s.ID] = append(f.statuses[s.ID], s.Status)
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id core.ID) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Transition(_ context.Context, id core.ID, from, to Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != from {
		return ErrStaleTransition
	}
	s.Status = to
	f.statuses[id] = append(f.statuses[id], to)
	return nil
}

func (f *fakeSessions) RecordPayment(_ context.Context, id core.ID, ref *string, debit core.Money) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != StatusActive {
		return ErrStaleTransition
	}
	s.Status = StatusPaymentCompleted
	s.ProcessorRef = ref
	s.WalletDebit = debit
	f.statuses[id] = append(f.statuses[id], StatusPaymentCompleted)
	return nil
}

// observedStatuses returns the status history for the monotonicity checks.
func (f *fakeSessions) observedStatuses(id core.ID) []Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Status(nil), f.statuses[id]...)
}

type fakeListings struct {
	mu   sync.Mutex
	byID map[core.ID]*listing.Snapshot
}

func (f *fakeListings) GetSnapshot(_ context.Context, id core.ID) (*listing.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.byID[id]
	if !ok {
		return nil, listing.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (f *fakeListings) Search(_ context.Context, _ *listing.SearchQuery) ([]*listing.Snapshot, error) {
	return nil, nil
}

func (f *fakeListings) MarkSold(_ context.Context, id core.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.byID[id]
	if !ok {
		return listing.ErrNotFound
	}
	if snap.Status != listing.StatusActive {
		return listing.ErrNotActive
	}
	snap.Status = listing.StatusSold
	return nil
}

type fakeWallets struct {
	mu       sync.Mutex
	balances map[core.ID]core.Money
	debits   []core.Money
}

func (f *fakeWallets) GetBalance(_ context.Context, userID core.ID) (core.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func (f *fakeWallets) Debit(_ context.Context, userID core.ID, amount core.Money, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[userID] < amount {
		return wallet.ErrInsufficientFunds
	}
	f.balances[userID] -= amount
	f.debits = append(f.debits, amount)
	return nil
}

func (f *fakeWallets) Credit(_ context.Context, userID core.ID, amount core.Money, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] += amount
	return nil
}

type fakeOrders struct {
	mu       sync.Mutex
	listings listing.Repository
	orders   []*order.Order
}

func (f *fakeOrders) CreateWithListingSale(ctx context.Context, ord *order.Order, listingID core.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listings.MarkSold(ctx, listingID); err != nil {
		return err
	}
	f.orders = append(f.orders, ord)
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, _ core.ID) (*order.Order, error)        { return nil, nil }
func (f *fakeOrders) GetBySessionID(_ context.Context, _ core.ID) (*order.Order, error) { return nil, nil }
func (f *fakeOrders) SetTracking(_ context.Context, _ core.ID, _ string) error          { return nil }

type fakeProcessor struct {
	mu      sync.Mutex
	charges []core.Money
	decline bool
}

func (f *fakeProcessor) Charge(_ context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decline {
		return nil, payment.ErrChargeDeclined
	}
	f.charges = append(f.charges, req.Amount)
	return &payment.ChargeResult{ProviderRef: "ch_test", Status: "succeeded"}, nil
}

// --- harness

type harness struct {
	svc       *Service
	sessions  *fakeSessions
	listings  *fakeListings
	wallets   *fakeWallets
	orders    *fakeOrders
	processor *fakeProcessor
	buyer     *apikey.APIKey
	sellerID  core.ID
	listingID core.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sellerID := core.MustNewID()
	buyer, err := apikey.New(core.MustNewID(), "buyer bot", []apikey.Scope{apikey.ScopeRead, apikey.ScopePurchase}, 1000, 10000)
	require.NoError(t, err)
	listingID := core.MustNewID()
	listings := &fakeListings{byID: map[core.ID]*listing.Snapshot{
		listingID: {
			ID:           listingID,
			SellerID:     sellerID,
			Title:        "1999 Base Set Charizard",
			Price:        2500,
			Status:       listing.StatusActive,
			AgentEnabled: true,
		},
	}}
	sessions := newFakeSessions()
	wallets := &fakeWallets{balances: map[core.ID]core.Money{}}
	orders := &fakeOrders{listings: listings}
	processor := &fakeProcessor{}
	svc := NewService(sessions, listings, wallets, orders, processor, nil, 15*time.Minute)
	return &harness{
		svc:       svc,
		sessions:  sessions,
		listings:  listings,
		wallets:   wallets,
		orders:    orders,
		processor: processor,
		buyer:     buyer,
		sellerID:  sellerID,
		listingID: listingID,
	}
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	t.Run("Should open an active session with price plus shipping", func(t *testing.T) {
		h := newHarness(t)
		h.listings.byID[h.listingID].ShippingPrice = 350
		sess, err := h.svc.Create(ctx, h.buyer, &CreateInput{
			ListingID: h.listingID, Method: payment.MethodProcessor, ShippingAddress: "1 Card Lane",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusActive, sess.Status)
		assert.Equal(t, core.Money(2850), sess.Total)
	})
	t.Run("Should enforce the agent-visibility flag even for the seller", func(t *testing.T) {
		h := newHarness(t)
		h.listings.byID[h.listingID].AgentEnabled = false
		sellerKey, err := apikey.New(h.sellerID, "seller bot", []apikey.Scope{apikey.ScopePurchase}, 1000, 10000)
		require.NoError(t, err)
		for _, key := range []*apikey.APIKey{h.buyer, sellerKey} {
			_, err := h.svc.Create(ctx, key, &CreateInput{
				ListingID: h.listingID, Method: payment.MethodProcessor, ShippingAddress: "1 Card Lane",
			})
			require.Error(t, err)
			assert.Equal(t, core.CodeAgentAccessDisabled, core.AsError(err).Code)
		}
	})
	t.Run("Should reject purchasing your own listing", func(t *testing.T) {
		h := newHarness(t)
		sellerKey, err := apikey.New(h.sellerID, "seller bot", []apikey.Scope{apikey.ScopePurchase}, 1000, 10000)
		require.NoError(t, err)
		_, err = h.svc.Create(ctx, sellerKey, &CreateInput{
			ListingID: h.listingID, Method: payment.MethodProcessor, ShippingAddress: "1 Card Lane",
		})
		require.Error(t, err)
		assert.Equal(t, core.CodeSelfPurchase, core.AsError(err).Code)
	})
	t.Run("Should reject an inactive listing", func(t *testing.T) {
		h := newHarness(t)
		h.listings.byID[h.listingID].Status = listing.StatusSold
		_, err := h.svc.Create(ctx, h.buyer, &CreateInput{
			ListingID: h.listingID, Method: payment.MethodProcessor, ShippingAddress: "1 Card Lane",
		})
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidState, core.AsError(err).Code)
	})
	t.Run("Should reject wallet-only checkout when the balance is short", func(t *testing.T) {
		h := newHarness(t)
		h.wallets.balances[h.buyer.UserID] = 2499
		_, err := h.svc.Create(ctx, h.buyer, &CreateInput{
			ListingID: h.listingID, Method: payment.MethodWallet, ShippingAddress: "1 Card Lane",
		})
		require.Error(t, err)
		assert.Equal(t, core.CodeInsufficientFunds, core.AsError(err).Code)
	})
	t.Run("Should not require funds up front for split checkout", func(t *testing.T) {
		h := newHarness(t)
		h.wallets.balances[h.buyer.UserID] = 0
		_, err := h.svc.Create(ctx, h.buyer, &CreateInput{
			ListingID: h.listingID, Method: payment.MethodSplit, ShippingAddress: "1 Card Lane",
		})
		assert.NoError(t, err)
	})
	t.Run("Should reject an unknown payment method", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Create(ctx, h.buyer, &CreateInput{
			ListingID: h.listingID, Method: "iou", ShippingAddress: "1 Card Lane",
		})
		require.Error(t, err)
		assert.Equal(t, core.CodeValidation, core.AsError(err).Code)
	})
}

func TestServicePay(t *testing.T) {
	ctx := context.Background()
	create := func(t *testing.T, h *harness, method payment.Method) *Session {
		t.Helper()
		sess, err := h.svc.Create(ctx, h.buyer, &CreateInput{
			ListingID: h.listingID, Method: method, ShippingAddress: "1 Card Lane",
		})
		require.NoError(t, err)
		return sess
	}
	t.Run("Should split a 25.00 total across a 10.00 wallet and the processor", func(t *testing.T) {
		h := newHarness(t)
		h.wallets.balances[h.buyer.UserID] = 1000
		sess := create(t, h, payment.MethodSplit)
		paid, err := h.svc.Pay(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPaymentCompleted, paid.Status)
		assert.Equal(t, core.Money(1000), paid.WalletDebit)
		require.Len(t, h.processor.charges, 1)
		assert.Equal(t, core.Money(1500), h.processor.charges[0])
		assert.Equal(t, core.Money(0), h.wallets.balances[h.buyer.UserID])
	})
	t.Run("Should skip the processor when the wallet covers a split total", func(t *testing.T) {
		h := newHarness(t)
		h.wallets.balances[h.buyer.UserID] = 5000
		sess := create(t, h, payment.MethodSplit)
		paid, err := h.svc.Pay(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, h.processor.charges)
		assert.Equal(t, core.Money(2500), paid.WalletDebit)
	})
	t.Run("Should recompute the split from the current balance, not the creation-time one", func(t *testing.T) {
		h := newHarness(t)
		h.wallets.balances[h.buyer.UserID] = 2500
		sess := create(t, h, payment.MethodSplit)
		// Balance drops between checkout and payment.
		h.wallets.balances[h.buyer.UserID] = 400
		_, err := h.svc.Pay(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		require.Len(t, h.processor.charges, 1)
		assert.Equal(t, core.Money(2100), h.processor.charges[0])
	})
	t.Run("Should leave a declined session active and retryable", func(t *testing.T) {
		h := newHarness(t)
		sess := create(t, h, payment.MethodProcessor)
		h.processor.decline = true
		_, err := h.svc.Pay(ctx, h.buyer, sess.ID)
		require.Error(t, err)
		assert.Equal(t, core.CodePaymentDeclined, core.AsError(err).Code)
		stored, err := h.sessions.GetByID(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, stored.Status)
		// Retry succeeds once the processor recovers.
		h.processor.decline = false
		paid, err := h.svc.Pay(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPaymentCompleted, paid.Status)
	})
	t.Run("Should expire an overdue session instead of paying it", func(t *testing.T) {
		h := newHarness(t)
		sess := create(t, h, payment.MethodProcessor)
		h.sessions.byID[sess.ID].ExpiresAt = time.Now().UTC().Add(-time.Minute)
		_, err := h.svc.Pay(ctx, h.buyer, sess.ID)
		require.Error(t, err)
		assert.Equal(t, core.CodeExpired, core.AsError(err).Code)
		stored, err := h.sessions.GetByID(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, stored.Status)
		assert.Empty(t, h.processor.charges)
	})
	t.Run("Should refuse payment on another principal's session", func(t *testing.T) {
		h := newHarness(t)
		sess := create(t, h, payment.MethodProcessor)
		other, err := apikey.New(core.MustNewID(), "other bot", []apikey.Scope{apikey.ScopePurchase}, 1000, 10000)
		require.NoError(t, err)
		_, err = h.svc.Pay(ctx, other, sess.ID)
		require.Error(t, err)
		assert.Equal(t, core.CodeForbidden, core.AsError(err).Code)
	})
	t.Run("Should refuse a second payment on a paid session", func(t *testing.T) {
		h := newHarness(t)
		sess := create(t, h, payment.MethodProcessor)
		_, err := h.svc.Pay(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		_, err = h.svc.Pay(ctx, h.buyer, sess.ID)
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidState, core.AsError(err).Code)
		require.Len(t, h.processor.charges, 1)
	})
}

func TestServiceConfirm(t *testing.T) {
	ctx := context.Background()
	pay := func(t *testing.T, h *harness) *Session {
		t.Helper()
		sess, err := h.svc.Create(ctx, h.buyer, &CreateInput{
			ListingID: h.listingID, Method: payment.MethodSplit, ShippingAddress: "1 Card Lane",
		})
		require.NoError(t, err)
		_, err = h.svc.Pay(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		return sess
	}
	t.Run("Should create the order and mark the listing sold", func(t *testing.T) {
		h := newHarness(t)
		h.wallets.balances[h.buyer.UserID] = 1000
		sess := pay(t, h)
		ord, err := h.svc.Confirm(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, core.Money(2500), ord.Total)
		assert.Equal(t, h.buyer.UserID, ord.BuyerID)
		assert.Equal(t, h.sellerID, ord.SellerID)
		require.Len(t, ord.Lines, 1)
		assert.Equal(t, core.Money(2500), ord.Lines[0].UnitPrice)
		assert.Equal(t, listing.StatusSold, h.listings.byID[h.listingID].Status)
		stored, err := h.sessions.GetByID(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, stored.Status)
	})
	t.Run("Should fail the second of two confirm calls and keep a single order", func(t *testing.T) {
		h := newHarness(t)
		sess := pay(t, h)
		_, err := h.svc.Confirm(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		_, err = h.svc.Confirm(ctx, h.buyer, sess.ID)
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidState, core.AsError(err).Code)
		assert.Len(t, h.orders.orders, 1)
	})
	t.Run("Should refuse confirmation of an unpaid session", func(t *testing.T) {
		h := newHarness(t)
		sess, err := h.svc.Create(ctx, h.buyer, &CreateInput{
			ListingID: h.listingID, Method: payment.MethodProcessor, ShippingAddress: "1 Card Lane",
		})
		require.NoError(t, err)
		_, err = h.svc.Confirm(ctx, h.buyer, sess.ID)
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidState, core.AsError(err).Code)
		assert.Empty(t, h.orders.orders)
	})
	t.Run("Should fail confirmation when the listing sold through another channel", func(t *testing.T) {
		h := newHarness(t)
		sess := pay(t, h)
		h.listings.byID[h.listingID].Status = listing.StatusSold
		_, err := h.svc.Confirm(ctx, h.buyer, sess.ID)
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidState, core.AsError(err).Code)
		assert.Empty(t, h.orders.orders)
		stored, err := h.sessions.GetByID(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, stored.Status)
	})
	t.Run("Should never confirm a session past its expiry", func(t *testing.T) {
		h := newHarness(t)
		sess := pay(t, h)
		h.sessions.byID[sess.ID].ExpiresAt = time.Now().UTC().Add(-time.Minute)
		_, err := h.svc.Confirm(ctx, h.buyer, sess.ID)
		require.Error(t, err)
		assert.Equal(t, core.CodeExpired, core.AsError(err).Code)
		assert.Empty(t, h.orders.orders)
	})
	t.Run("Should only ever observe forward status sequences", func(t *testing.T) {
		h := newHarness(t)
		sess := pay(t, h)
		_, err := h.svc.Confirm(ctx, h.buyer, sess.ID)
		require.NoError(t, err)
		assert.Equal(t,
			[]Status{StatusActive, StatusPaymentCompleted, StatusCompleted},
			h.sessions.observedStatuses(sess.ID))
	})
}
