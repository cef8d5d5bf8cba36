package service

import (
	"context"

	"github.com/deba607/AbJee-Travel-sub001/internal/model"
)

// Entitlements answers capability questions derived from subscription tier.
// The chat core consults it for private-room access but never computes tiers.
type Entitlements interface {
	CanAccessPrivateRooms(ctx context.Context, user *model.User) (bool, error)
}

// TierEntitlements derives entitlements from the subscription tier already
// present on the user record the billing subsystem maintains.
type TierEntitlements struct{}

func NewTierEntitlements() *TierEntitlements {
	return &TierEntitlements{}
}

func (TierEntitlements) CanAccessPrivateRooms(_ context.Context, user *model.User) (bool, error) {
	switch user.SubscriptionTier {
	case model.TierPremium, model.TierPro:
		return true, nil
	}
	return false, nil
}
