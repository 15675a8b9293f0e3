// Package memory is an in-process store used by tests and STORE_DRIVER=memory.
// A single mutex serializes every call; WithinTransaction holds it for the
// whole callback and restores a snapshot when the callback fails.
package memory

import (
	"context"
	"sync"

	"contratto/database/repository"
	"contratto/models"
)

type txKey struct{}

type state struct {
	orders        map[string]models.Order
	bookings      map[string]models.Booking
	logs          []models.SagaLog
	messages      []models.Message
	wallets       map[string]models.Wallet
	walletByOwner map[string]string
	txs           []models.Transaction
	payouts       map[string]models.PayoutRequest
	events        map[string]models.WebhookEvent
}

func newState() state {
	return state{
		orders:        map[string]models.Order{},
		bookings:      map[string]models.Booking{},
		wallets:       map[string]models.Wallet{},
		walletByOwner: map[string]string{},
		payouts:       map[string]models.PayoutRequest{},
		events:        map[string]models.WebhookEvent{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.walletByOwner {
		c.walletByOwner[k] = v
	}
	for k, v := range s.payouts {
		c.payouts[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	c.logs = append([]models.SagaLog(nil), s.logs...)
	c.messages = append([]models.Message(nil), s.messages...)
	c.txs = append([]models.Transaction(nil), s.txs...)
	return c
}

type Store struct {
	mu sync.Mutex
	st state
}

// OrderStore, WalletStore and EventStore are views over one Store.
type (
	OrderStore  struct{ *Store }
	WalletStore struct{ *Store }
	EventStore  struct{ *Store }
)

func New() *Store {
	return &Store{st: newState()}
}

// Repositories exposes the store as a repository.Store.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Orders:  OrderStore{s},
		Wallets: WalletStore{s},
		Events:  EventStore{s},
		Tx:      s,
		Ping:    func(context.Context) error { return nil },
	}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// locked runs fn with the store lock held, unless ctx already belongs to a
// transaction of this store that holds it.
func (s *Store) locked(ctx context.Context, fn func() error) error {
	if s.inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}
