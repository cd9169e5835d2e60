package service

import (
	"context"
	"errors"
	"time"

	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/helper"
)

type Entitlement struct {
	IsPro          bool    `json:"is_pro"`
	SubscriptionID *string `json:"subscription_id"`
}

type Entitlements struct {
	subs SubscriptionReader
	now  func() time.Time
}

func NewEntitlements(subs SubscriptionReader, now func() time.Time) *Entitlements {
	return &Entitlements{subs: subs, now: now}
}

// CheckSubscription derives Pro status for email from its billing record.
func (e *Entitlements) CheckSubscription(ctx context.Context, email string) (Entitlement, error) {
	sub, err := e.subs.FindSubscriptionByEmail(ctx, helper.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return Entitlement{}, nil
	}
	if err != nil {
		return Entitlement{}, domain.Internal("find subscription", err)
	}
	id := sub.ID
	return Entitlement{IsPro: Entitled(sub, e.now()), SubscriptionID: &id}, nil
}

// Entitled is the single entitlement rule: an active subscription, or a
// cancelled one whose paid period has not ended yet. Trialing, past-due and
// paused subscriptions are not entitled.
func Entitled(sub *domain.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	switch sub.Status {
	case domain.SubscriptionActive:
		return true
	case domain.SubscriptionCancelled:
		return sub.EndsAt != nil && sub.EndsAt.After(now)
	}
	return false
}
