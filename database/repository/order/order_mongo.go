package orderRepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contratto/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// orderDoc is the stored shape of an order. Amounts are kept in cents.
type orderDoc struct {
	ID                string     `bson:"id"`
	BuyerID           string     `bson:"buyer_id"`
	SellerID          string     `bson:"seller_id"`
	ServiceID         string     `bson:"service_id"`
	PackageTier       string     `bson:"package_tier"`
	PriceCents        int64      `bson:"price_cents"`
	PlatformFeeCents  int64      `bson:"platform_fee_cents"`
	ChargeCents       int64      `bson:"charge_cents"`
	Currency          string     `bson:"currency"`
	Status            string     `bson:"status"`
	PaymentStatus     string     `bson:"payment_status"`
	Gateway           string     `bson:"gateway"`
	CheckoutReference string     `bson:"checkout_reference"`
	PaymentReference  string     `bson:"payment_reference"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
	PaidAt            *time.Time `bson:"paid_at,omitempty"`
	CompletedAt       *time.Time `bson:"completed_at,omitempty"`
}

func toOrderDoc(o *models.Order) orderDoc {
	return orderDoc{
		ID:                o.ID,
		BuyerID:           o.BuyerID,
		SellerID:          o.SellerID,
		ServiceID:         o.ServiceID,
		PackageTier:       o.PackageTier,
		PriceCents:        models.ToCents(o.Price),
		PlatformFeeCents:  models.ToCents(o.PlatformFee),
		ChargeCents:       models.ToCents(o.ChargeAmount),
		Currency:          o.Currency,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		Gateway:           o.Gateway,
		CheckoutReference: o.CheckoutReference,
		PaymentReference:  o.PaymentReference,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		PaidAt:            o.PaidAt,
		CompletedAt:       o.CompletedAt,
	}
}

func (d orderDoc) model() *models.Order {
	return &models.Order{
		ID:                d.ID,
		BuyerID:           d.BuyerID,
		SellerID:          d.SellerID,
		ServiceID:         d.ServiceID,
		PackageTier:       d.PackageTier,
		Price:             models.FromCents(d.PriceCents),
		PlatformFee:       models.FromCents(d.PlatformFeeCents),
		ChargeAmount:      models.FromCents(d.ChargeCents),
		Currency:          d.Currency,
		Status:            models.OrderStatus(d.Status),
		PaymentStatus:     models.PaymentStatus(d.PaymentStatus),
		Gateway:           d.Gateway,
		CheckoutReference: d.CheckoutReference,
		PaymentReference:  d.PaymentReference,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		PaidAt:            d.PaidAt,
		CompletedAt:       d.CompletedAt,
	}
}

type sagaLogDoc struct {
	ID          string     `bson:"id"`
	OrderID     string     `bson:"order_id"`
	FromStatus  string     `bson:"from_status"`
	ToStatus    string     `bson:"to_status"`
	Actor       string     `bson:"actor"`
	Data        string     `bson:"data,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	PublishedAt *time.Time `bson:"published_at"`
}

func (d sagaLogDoc) model() models.SagaLog {
	l := models.SagaLog{
		ID:          d.ID,
		OrderID:     d.OrderID,
		FromStatus:  models.OrderStatus(d.FromStatus),
		ToStatus:    models.OrderStatus(d.ToStatus),
		Actor:       d.Actor,
		CreatedAt:   d.CreatedAt,
		PublishedAt: d.PublishedAt,
	}
	if d.Data != "" {
		l.Data = json.RawMessage(d.Data)
	}
	return l
}

// MongoOrderRepo implements OrderRepository using MongoDB.
type MongoOrderRepo struct {
	orders   *mongo.Collection
	bookings *mongo.Collection
	logs     *mongo.Collection
	messages *mongo.Collection
}

// NewMongoOrderRepo creates the repository on db and makes sure its indexes exist.
func NewMongoOrderRepo(db *mongo.Database) OrderRepository {
	repo := &MongoOrderRepo{
		orders:   db.Collection("orders"),
		bookings: db.Collection("bookings"),
		logs:     db.Collection("saga_logs"),
		messages: db.Collection("messages"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create order indexes: %v\n", err)
	}
	return repo
}

func (r *MongoOrderRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := r.bookings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := r.logs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "published_at", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}

func (r *MongoOrderRepo) CreateOrder(ctx context.Context, order *models.Order, booking *models.Booking) error {
	if _, err := r.orders.InsertOne(ctx, toOrderDoc(order)); err != nil {
		return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}
	if booking != nil {
		if _, err := r.bookings.InsertOne(ctx, booking); err != nil {
			return fmt.Errorf("failed to insert booking for order %s: %w", order.ID, err)
		}
	}
	return nil
}

func (r *MongoOrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var doc orderDoc
	if err := r.orders.FindOne(ctx, bson.M{"id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", id, err)
	}
	return doc.model(), nil
}

func (r *MongoOrderRepo) GetBooking(ctx context.Context, orderID string) (*models.Booking, error) {
	var b models.Booking
	if err := r.bookings.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("booking for order %s: %w", orderID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch booking for order %s: %w", orderID, err)
	}
	return &b, nil
}

func patchSet(p models.OrderPatch) bson.M {
	set := bson.M{}
	if p.PaymentStatus != nil {
		set["payment_status"] = string(*p.PaymentStatus)
	}
	if p.Gateway != nil {
		set["gateway"] = *p.Gateway
	}
	if p.CheckoutReference != nil {
		set["checkout_reference"] = *p.CheckoutReference
	}
	if p.PaymentReference != nil {
		set["payment_reference"] = *p.PaymentReference
	}
	if p.PlatformFee != nil {
		set["platform_fee_cents"] = models.ToCents(*p.PlatformFee)
	}
	if p.ChargeAmount != nil {
		set["charge_cents"] = models.ToCents(*p.ChargeAmount)
	}
	if p.PaidAt != nil {
		set["paid_at"] = *p.PaidAt
	}
	if p.CompletedAt != nil {
		set["completed_at"] = *p.CompletedAt
	}
	return set
}

func (r *MongoOrderRepo) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, patch models.OrderPatch, at time.Time) (*models.Order, error) {
	set := patchSet(patch)
	set["status"] = string(to)
	set["updated_at"] = at

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc orderDoc
	err := r.orders.FindOneAndUpdate(ctx, bson.M{"id": id, "status": string(from)}, bson.M{"$set": set}, opts).Decode(&doc)
	if err == nil {
		return doc.model(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to transition order %s: %w", id, err)
	}

	n, cerr := r.orders.CountDocuments(ctx, bson.M{"id": id})
	if cerr != nil {
		return nil, fmt.Errorf("failed to transition order %s: %w", id, cerr)
	}
	if n == 0 {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	return nil, models.ErrStatusMismatch
}

func (r *MongoOrderRepo) UpdateBookingStatus(ctx context.Context, orderID string, status models.BookingStatus, at time.Time) error {
	_, err := r.bookings.UpdateOne(ctx, bson.M{"order_id": orderID}, bson.M{"$set": bson.M{"status": status, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to update booking for order %s: %w", orderID, err)
	}
	return nil
}

func (r *MongoOrderRepo) ListByStatus(ctx context.Context, status models.OrderStatus, updatedBefore time.Time, limit int) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.orders.Find(ctx, bson.M{"status": string(status), "updated_at": bson.M{"$lt": updatedBefore}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s orders: %w", status, err)
	}
	defer cur.Close(ctx)

	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	out := make([]models.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d.model())
	}
	return out, nil
}

func (r *MongoOrderRepo) AppendSagaLog(ctx context.Context, entry *models.SagaLog) error {
	doc := sagaLogDoc{
		ID:          entry.ID,
		OrderID:     entry.OrderID,
		FromStatus:  string(entry.FromStatus),
		ToStatus:    string(entry.ToStatus),
		Actor:       entry.Actor,
		Data:        string(entry.Data),
		CreatedAt:   entry.CreatedAt,
		PublishedAt: entry.PublishedAt,
	}
	if _, err := r.logs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append saga log for order %s: %w", entry.OrderID, err)
	}
	return nil
}

func (r *MongoOrderRepo) findLogs(ctx context.Context, filter bson.M, limit int) ([]models.SagaLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.logs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query saga logs: %w", err)
	}
	defer cur.Close(ctx)

	var docs []sagaLogDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode saga logs: %w", err)
	}
	out := make([]models.SagaLog, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *MongoOrderRepo) ListSagaLogs(ctx context.Context, orderID string) ([]models.SagaLog, error) {
	return r.findLogs(ctx, bson.M{"order_id": orderID}, 0)
}

func (r *MongoOrderRepo) ListUnpublishedLogs(ctx context.Context, limit int) ([]models.SagaLog, error) {
	return r.findLogs(ctx, bson.M{"published_at": nil}, limit)
}

func (r *MongoOrderRepo) MarkLogsPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.logs.UpdateMany(ctx,
		bson.M{"id": bson.M{"$in": ids}, "published_at": nil},
		bson.M{"$set": bson.M{"published_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark saga logs published: %w", err)
	}
	return nil
}

func (r *MongoOrderRepo) AppendMessage(ctx context.Context, msg *models.Message) error {
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message to order %s: %w", msg.OrderID, err)
	}
	return nil
}
