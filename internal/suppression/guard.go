package suppression

import (
	"context"
	"time"
)

// Key namespaces. Kept flat and greppable so operators can inspect or
// clear them directly in redis-cli.
const (
	manualOverridePrefix       = "manual_override:"
	notificationCooldownPrefix = "rule:notification:cooldown:"
)

// Guard answers the engine's two suppression questions: is this device
// under a manual override, and is this rule's notification still
// cooling down.
type Guard struct {
	store           Store
	overrideTTL     time.Duration
	notificationTTL time.Duration
}

// NewGuard creates a Guard over the given store.
func NewGuard(store Store, overrideTTL, notificationTTL time.Duration) *Guard {
	return &Guard{
		store:           store,
		overrideTTL:     overrideTTL,
		notificationTTL: notificationTTL,
	}
}

// IsOverridden reports whether the device is under an active manual
// override.
func (g *Guard) IsOverridden(ctx context.Context, deviceID string) (bool, error) {
	return g.store.Exists(ctx, manualOverridePrefix+deviceID)
}

// SetOverride marks the device as manually overridden for the
// configured TTL. Called when an operator takes direct control.
func (g *Guard) SetOverride(ctx context.Context, deviceID string) error {
	return g.store.SetWithTTL(ctx, manualOverridePrefix+deviceID, g.overrideTTL)
}

// ClearOverride removes an override before its TTL expires.
func (g *Guard) ClearOverride(ctx context.Context, deviceID string) error {
	return g.store.Delete(ctx, manualOverridePrefix+deviceID)
}

// NotificationCoolingDown reports whether the rule sent a notification
// within the cooldown window.
func (g *Guard) NotificationCoolingDown(ctx context.Context, ruleID string) (bool, error) {
	return g.store.Exists(ctx, notificationCooldownPrefix+ruleID)
}

// StartNotificationCooldown starts the cooldown window after a
// notification is sent.
func (g *Guard) StartNotificationCooldown(ctx context.Context, ruleID string) error {
	return g.store.SetWithTTL(ctx, notificationCooldownPrefix+ruleID, g.notificationTTL)
}
