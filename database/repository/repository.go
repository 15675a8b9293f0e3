package repository

import (
	"context"

	"contratto/database"
	eventRepo "contratto/database/repository/event"
	orderRepo "contratto/database/repository/order"
	walletRepo "contratto/database/repository/wallet"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
)

// TxRunner runs fn inside one store transaction. Repository calls made with
// the context handed to fn take part in it; nested calls join the outer one.
type TxRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Re-export the repository interfaces.
type OrderRepository = orderRepo.OrderRepository

type WalletRepository = walletRepo.WalletRepository

type EventRepository = eventRepo.EventRepository

// Store bundles one backend's repositories.
type Store struct {
	Orders  OrderRepository
	Wallets WalletRepository
	Events  EventRepository
	Tx      TxRunner
	// Ping checks the backend for the health monitor.
	Ping func(ctx context.Context) error
}

// NewMongoStore wires the MongoDB repositories on db.
func NewMongoStore(db *mongo.Database) *Store {
	return &Store{
		Orders:  orderRepo.NewMongoOrderRepo(db),
		Wallets: walletRepo.NewMongoWalletRepo(db),
		Events:  eventRepo.NewMongoEventRepo(db),
		Tx:      &database.MongoTx{Client: db.Client()},
		Ping:    func(ctx context.Context) error { return db.Client().Ping(ctx, nil) },
	}
}

// NewPostgresStore wires the Postgres repositories on pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Orders:  orderRepo.NewPostgresOrderRepo(pool),
		Wallets: walletRepo.NewPostgresWalletRepo(pool),
		Events:  eventRepo.NewPostgresEventRepo(pool),
		Tx:      &database.PostgresTx{Pool: pool},
		Ping:    pool.Ping,
	}
}
