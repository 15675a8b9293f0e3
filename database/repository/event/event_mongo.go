package eventRepo

import (
	"context"
	"fmt"
	"time"

	"contratto/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type eventDoc struct {
	ID              string     `bson:"id"`
	Gateway         string     `bson:"gateway"`
	ProviderEventID string     `bson:"provider_event_id"`
	Type            string     `bson:"event_type"`
	OrderID         string     `bson:"order_id"`
	PayloadHash     string     `bson:"payload_hash"`
	Status          string     `bson:"status"`
	Error           string     `bson:"error"`
	ReceivedAt      time.Time  `bson:"received_at"`
	ProcessedAt     *time.Time `bson:"processed_at,omitempty"`
}

// MongoEventRepo implements EventRepository using MongoDB.
type MongoEventRepo struct {
	coll *mongo.Collection
}

func NewMongoEventRepo(db *mongo.Database) EventRepository {
	repo := &MongoEventRepo{coll: db.Collection("webhook_events")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "gateway", Value: 1}, {Key: "provider_event_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		fmt.Printf("failed to create webhook event indexes: %v\n", err)
	}
	return repo
}

func key(gateway, providerEventID string) bson.M {
	return bson.M{"gateway": gateway, "provider_event_id": providerEventID}
}

func (r *MongoEventRepo) Record(ctx context.Context, ev *models.WebhookEvent) (bool, error) {
	_, err := r.coll.InsertOne(ctx, eventDoc{
		ID:              ev.ID,
		Gateway:         ev.Gateway,
		ProviderEventID: ev.ProviderEventID,
		Type:            string(ev.Type),
		OrderID:         ev.OrderID,
		PayloadHash:     ev.PayloadHash,
		Status:          string(ev.Status),
		ReceivedAt:      ev.ReceivedAt,
	})
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("failed to record webhook event %s: %w", ev.ProviderEventID, err)
	}

	var existing eventDoc
	if err := r.coll.FindOne(ctx, key(ev.Gateway, ev.ProviderEventID)).Decode(&existing); err != nil {
		return false, fmt.Errorf("failed to load webhook event %s: %w", ev.ProviderEventID, err)
	}
	return existing.Status != string(models.WebhookProcessed), nil
}

func (r *MongoEventRepo) MarkProcessed(ctx context.Context, gateway, providerEventID string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, key(gateway, providerEventID), bson.M{"$set": bson.M{
		"status":       string(models.WebhookProcessed),
		"error":        "",
		"processed_at": at,
	}})
	if err != nil {
		return fmt.Errorf("failed to mark webhook event %s processed: %w", providerEventID, err)
	}
	return nil
}

func (r *MongoEventRepo) MarkFailed(ctx context.Context, gateway, providerEventID, reason string) error {
	filter := key(gateway, providerEventID)
	filter["status"] = bson.M{"$ne": string(models.WebhookProcessed)}
	_, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"status": string(models.WebhookFailed),
		"error":  reason,
	}})
	if err != nil {
		return fmt.Errorf("failed to mark webhook event %s failed: %w", providerEventID, err)
	}
	return nil
}
