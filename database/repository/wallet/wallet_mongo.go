package walletRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contratto/database"
	"contratto/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWalletRepo implements WalletRepository using MongoDB. Every money
// movement runs in a session transaction; the wallet document update is
// conditional on the balance it needs, which serializes writers on that wallet.
type MongoWalletRepo struct {
	wallets *mongo.Collection
	txs     *mongo.Collection
	payouts *mongo.Collection
	tx      *database.MongoTx
}

func NewMongoWalletRepo(db *mongo.Database) WalletRepository {
	repo := &MongoWalletRepo{
		wallets: db.Collection("wallets"),
		txs:     db.Collection("transactions"),
		payouts: db.Collection("payout_requests"),
		tx:      &database.MongoTx{Client: db.Client()},
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create wallet indexes: %v\n", err)
	}
	return repo
}

func (r *MongoWalletRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.wallets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return err
	}
	if _, err := r.txs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "wallet_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"type": string(models.TxCreditEscrow)}).
				SetName("escrow_order_unique"),
		},
	}); err != nil {
		return err
	}
	_, err := r.payouts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoWalletRepo) GetOrCreate(ctx context.Context, ownerID, currency string, at time.Time) (*models.Wallet, error) {
	insert := walletDoc{ID: uuid.New().String(), OwnerID: ownerID, Currency: currency, CreatedAt: at, UpdatedAt: at}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc walletDoc
	err := r.wallets.FindOneAndUpdate(ctx, bson.M{"owner_id": ownerID}, bson.M{"$setOnInsert": insert}, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the winner's document is there now
		return r.GetByOwner(ctx, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get or create wallet of %s: %w", ownerID, err)
	}
	return doc.model(), nil
}

func (r *MongoWalletRepo) findWallet(ctx context.Context, filter bson.M, what string) (*models.Wallet, error) {
	var doc walletDoc
	if err := r.wallets.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("wallet %s: %w", what, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch wallet %s: %w", what, err)
	}
	return doc.model(), nil
}

func (r *MongoWalletRepo) GetByID(ctx context.Context, id string) (*models.Wallet, error) {
	return r.findWallet(ctx, bson.M{"id": id}, id)
}

func (r *MongoWalletRepo) GetByOwner(ctx context.Context, ownerID string) (*models.Wallet, error) {
	return r.findWallet(ctx, bson.M{"owner_id": ownerID}, "of "+ownerID)
}

// adjust applies $inc to the wallet; guard, when non-empty, must hold on the
// document for the update to match.
func (r *MongoWalletRepo) adjust(ctx context.Context, walletID string, inc, guard bson.M, at time.Time) (bool, error) {
	filter := bson.M{"id": walletID}
	for k, v := range guard {
		filter[k] = v
	}
	res, err := r.wallets.UpdateOne(ctx, filter, bson.M{"$inc": inc, "$set": bson.M{"updated_at": at}})
	if err != nil {
		return false, fmt.Errorf("failed to update wallet %s: %w", walletID, err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoWalletRepo) insertTx(ctx context.Context, d txDoc) error {
	if _, err := r.txs.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("failed to append %s transaction: %w", d.Type, err)
	}
	return nil
}

func (r *MongoWalletRepo) CreditPending(ctx context.Context, walletID string, amount decimal.Decimal, orderID string, at time.Time) (bool, error) {
	applied := false
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		applied = false
		n, err := r.txs.CountDocuments(ctx, bson.M{"order_id": orderID, "type": string(models.TxCreditEscrow)})
		if err != nil {
			return fmt.Errorf("failed to check escrow credit of order %s: %w", orderID, err)
		}
		if n > 0 {
			return nil
		}
		cents := models.ToCents(amount)
		ok, err := r.adjust(ctx, walletID, bson.M{"pending_cents": cents}, nil, at)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("wallet %s: %w", walletID, models.ErrNotFound)
		}
		if err := r.insertTx(ctx, txDoc{
			ID: uuid.New().String(), WalletID: walletID, AmountCents: cents, Type: string(models.TxCreditEscrow),
			OrderID: orderID, Description: "escrow release for order " + orderID, CreatedAt: at,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *MongoWalletRepo) ReverseCredit(ctx context.Context, orderID string, at time.Time) (bool, error) {
	applied := false
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		applied = false
		var credit txDoc
		err := r.txs.FindOneAndUpdate(ctx,
			bson.M{"order_id": orderID, "type": string(models.TxCreditEscrow), "reversed": false},
			bson.M{"$set": bson.M{"reversed": true}},
		).Decode(&credit)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to reverse escrow credit of order %s: %w", orderID, err)
		}

		inc := bson.M{"pending_cents": -credit.AmountCents}
		var guard bson.M
		if credit.Settled {
			inc = bson.M{"available_cents": -credit.AmountCents}
			guard = bson.M{"available_cents": bson.M{"$gte": credit.AmountCents}}
		}
		ok, err := r.adjust(ctx, credit.WalletID, inc, guard, at)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reverse credit of order %s: %w", orderID, models.ErrInsufficientFunds)
		}
		if err := r.insertTx(ctx, txDoc{
			ID: uuid.New().String(), WalletID: credit.WalletID, AmountCents: -credit.AmountCents,
			Type: string(models.TxReversal), OrderID: orderID, Description: "refund of order " + orderID, CreatedAt: at,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *MongoWalletRepo) findTxs(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Transaction, error) {
	cur, err := r.txs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []txDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	out := make([]models.Transaction, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *MongoWalletRepo) ListSettleable(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findTxs(ctx, bson.M{
		"type":       string(models.TxCreditEscrow),
		"settled":    false,
		"reversed":   false,
		"created_at": bson.M{"$lt": createdBefore},
	}, opts)
}

func (r *MongoWalletRepo) SettleCredit(ctx context.Context, txID string, at time.Time) (bool, error) {
	applied := false
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		applied = false
		var credit txDoc
		err := r.txs.FindOneAndUpdate(ctx,
			bson.M{"id": txID, "type": string(models.TxCreditEscrow), "settled": false, "reversed": false},
			bson.M{"$set": bson.M{"settled": true}},
		).Decode(&credit)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to settle transaction %s: %w", txID, err)
		}
		ok, err := r.adjust(ctx, credit.WalletID, bson.M{"pending_cents": -credit.AmountCents, "available_cents": credit.AmountCents}, nil, at)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("wallet %s: %w", credit.WalletID, models.ErrNotFound)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *MongoWalletRepo) DebitForPayout(ctx context.Context, walletID string, amount decimal.Decimal, at time.Time) (*models.PayoutRequest, error) {
	cents := models.ToCents(amount)
	if cents <= 0 {
		return nil, models.ErrInvalidAmount
	}

	var payout payoutDoc
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := r.adjust(ctx, walletID,
			bson.M{"available_cents": -cents},
			bson.M{"available_cents": bson.M{"$gte": cents}}, at)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := r.GetByID(ctx, walletID); err != nil {
				return err
			}
			return fmt.Errorf("payout of %s from wallet %s: %w", amount, walletID, models.ErrInsufficientFunds)
		}

		payout = payoutDoc{
			ID: uuid.New().String(), WalletID: walletID, AmountCents: cents,
			Status: string(models.PayoutRequested), CreatedAt: at, UpdatedAt: at,
		}
		if _, err := r.payouts.InsertOne(ctx, payout); err != nil {
			return fmt.Errorf("failed to insert payout request: %w", err)
		}
		return r.insertTx(ctx, txDoc{
			ID: uuid.New().String(), WalletID: walletID, AmountCents: -cents, Type: string(models.TxDebitPayout),
			PayoutID: payout.ID, Description: "payout " + payout.ID, CreatedAt: at,
		})
	})
	if err != nil {
		return nil, err
	}
	return payout.model(), nil
}

func (r *MongoWalletRepo) GetPayout(ctx context.Context, id string) (*models.PayoutRequest, error) {
	var doc payoutDoc
	if err := r.payouts.FindOne(ctx, bson.M{"id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("payout %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch payout %s: %w", id, err)
	}
	return doc.model(), nil
}

func (r *MongoWalletRepo) ResolvePayout(ctx context.Context, payoutID string, status models.PayoutStatus, at time.Time) (bool, error) {
	applied := false
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		applied = false
		var doc payoutDoc
		err := r.payouts.FindOneAndUpdate(ctx,
			bson.M{"id": payoutID, "status": string(models.PayoutRequested)},
			bson.M{"$set": bson.M{"status": string(status), "updated_at": at}},
		).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			current, gerr := r.GetPayout(ctx, payoutID)
			if gerr != nil {
				return gerr
			}
			if current.Status == status {
				return nil
			}
			return fmt.Errorf("payout %s is %s: %w", payoutID, current.Status, models.ErrInvalidStateTransition)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve payout %s: %w", payoutID, err)
		}

		if status == models.PayoutFailed {
			if _, err := r.adjust(ctx, doc.WalletID, bson.M{"available_cents": doc.AmountCents}, nil, at); err != nil {
				return err
			}
			if err := r.insertTx(ctx, txDoc{
				ID: uuid.New().String(), WalletID: doc.WalletID, AmountCents: doc.AmountCents,
				Type: string(models.TxReversal), PayoutID: doc.ID, Description: "failed payout " + doc.ID, CreatedAt: at,
			}); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *MongoWalletRepo) ListTransactions(ctx context.Context, walletID string, limit int) ([]models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findTxs(ctx, bson.M{"wallet_id": walletID}, opts)
}

func (r *MongoWalletRepo) SumTransactions(ctx context.Context, walletID string) (decimal.Decimal, error) {
	cur, err := r.txs.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"wallet_id": walletID}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount_cents"}}}},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions of wallet %s: %w", walletID, err)
	}
	defer cur.Close(ctx)

	var res []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &res); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode transaction sum: %w", err)
	}
	if len(res) == 0 {
		return decimal.Zero, nil
	}
	return models.FromCents(res[0].Total), nil
}
