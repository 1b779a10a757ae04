// Package service implements the group ledger: memberships, invitations,
// expenses and balances on top of a transactional storage.Store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/notify"
	"github.com/mmynk/groupledger/internal/storage"
)

// DefaultCurrency is used for groups created without an explicit currency.
const DefaultCurrency = "eur"

// Option configures a service.
type Option func(*deps)

// deps are the collaborators shared by every service.
type deps struct {
	store           storage.Store
	notifier        notify.Sink
	metrics         *metrics.Metrics
	now             func() time.Time
	newID           func() string
	invitationTTL   time.Duration
	defaultCurrency string
}

func newDeps(store storage.Store, opts []Option) deps {
	d := deps{
		store:           store,
		notifier:        notify.Nop,
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
		defaultCurrency: DefaultCurrency,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithNotifier sets the sink that receives invitation events.
func WithNotifier(sink notify.Sink) Option {
	return func(d *deps) {
		if sink != nil {
			d.notifier = sink
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

// WithIDGenerator overrides how entity IDs are minted.
func WithIDGenerator(newID func() string) Option {
	return func(d *deps) { d.newID = newID }
}

// WithInvitationTTL makes new invitations expire after ttl. Zero disables expiry.
func WithInvitationTTL(ttl time.Duration) Option {
	return func(d *deps) { d.invitationTTL = ttl }
}

// WithDefaultCurrency sets the currency for groups created without one.
func WithDefaultCurrency(currency string) Option {
	return func(d *deps) {
		if currency != "" {
			d.defaultCurrency = currency
		}
	}
}

// translate maps storage and context failures onto error kinds.
// Errors that already carry a kind pass through untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.Wrap(apperrors.KindTimeout, err, "operation aborted")
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.Wrap(apperrors.KindNotFound, err, "not found")
	case errors.Is(err, storage.ErrConflict):
		return apperrors.Wrap(apperrors.KindConflict, err, "concurrent modification")
	default:
		return apperrors.Wrap(apperrors.KindInternal, err, "storage failure")
	}
}

// outcome is the metric label for err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.KindOf(err))
}

// emit hands a committed event to the sink. Failures and panics are logged
// and counted, never returned.
func (d deps) emit(ctx context.Context, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Notification sink panicked", "type", event.Type, "invitation_id", event.InvitationID, "panic", fmt.Sprint(r))
			d.metrics.NotifyFailed()
		}
	}()

	// The request may already be finishing; delivery should not depend on it.
	if err := d.notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("Notification failed", "type", event.Type, "invitation_id", event.InvitationID, "error", err)
		d.metrics.NotifyFailed()
	}
}

// requireActiveGroup loads a group that still accepts changes.
func requireActiveGroup(ctx context.Context, tx storage.Tx, groupID string) (*models.Group, error) {
	g, err := tx.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "group %s not found", groupID)
	}
	if err != nil {
		return nil, err
	}
	if !g.Active {
		return nil, apperrors.New(apperrors.KindNotFound, "group %s is no longer active", groupID)
	}
	return g, nil
}

// activeMembership returns the user's membership if it is active, or nil.
func activeMembership(ctx context.Context, tx storage.Tx, groupID, userID string) (*models.Membership, error) {
	m, err := tx.GetMembership(ctx, groupID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, nil
	}
	return m, nil
}
