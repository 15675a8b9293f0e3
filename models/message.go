package models

import "time"

const MessageTypeSystem = "system"

// Message is an entry in the conversation between the parties of an order.
type Message struct {
	ID        string    `bson:"id" json:"id"`
	OrderID   string    `bson:"order_id" json:"orderId"`
	SenderID  string    `bson:"sender_id" json:"senderId"`
	Type      string    `bson:"type" json:"type"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
