package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is the scheduled occurrence owned by an order.
type Booking struct {
	ID              string        `bson:"id" json:"id"`                            // Unique booking identifier (UUID)
	OrderID         string        `bson:"order_id" json:"orderId"`                 // Owning order
	Date            string        `bson:"date" json:"date"`                        // "YYYY-MM-DD"
	Time            string        `bson:"time" json:"time"`                        // "HH:MM"
	DurationMinutes int           `bson:"duration_minutes" json:"durationMinutes"` // Length of the appointment
	Status          BookingStatus `bson:"status" json:"status"`                    // pending, confirmed, cancelled
	CreatedAt       time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updatedAt"`
}

// BookingInput carries the schedule chosen at checkout.
type BookingInput struct {
	Date            string `json:"date" binding:"required"`
	Time            string `json:"time" binding:"required"`
	DurationMinutes int    `json:"durationMinutes"`
}
