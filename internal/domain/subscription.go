package domain

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionOnTrial   SubscriptionStatus = "on_trial"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionUnpaid    SubscriptionStatus = "unpaid"
)

// Subscription is the billing projection written by the webhook processor.
// The auth core only reads it.
type Subscription struct {
	ID        string             `bson:"_id"               json:"id"`
	Email     string             `bson:"email"             json:"email"`
	Status    SubscriptionStatus `bson:"status"            json:"status"`
	EndsAt    *time.Time         `bson:"ends_at,omitempty" json:"ends_at,omitempty"`
	UpdatedAt time.Time          `bson:"updated_at"        json:"updated_at"`
}
