// Package memory provides an in-process implementation of storage.Store.
//
// Writers are serialized. Each Update works on a private copy of the state
// which replaces the shared state only when fn succeeds, so readers never see
// a partial write and a failed transaction leaves nothing behind.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

var (
	ErrClosed   = errors.New("memory: store closed")
	errReadOnly = errors.New("memory: write in read-only transaction")
)

type memberKey struct {
	groupID string
	userID  string
}

type state struct {
	groups      map[string]models.Group
	memberships map[memberKey]models.Membership
	invitations map[string]models.Invitation
	expenses    map[string]models.Expense
}

func newState() *state {
	return &state{
		groups:      make(map[string]models.Group),
		memberships: make(map[memberKey]models.Membership),
		invitations: make(map[string]models.Invitation),
		expenses:    make(map[string]models.Expense),
	}
}

func (s *state) clone() *state {
	out := &state{
		groups:      make(map[string]models.Group, len(s.groups)),
		memberships: make(map[memberKey]models.Membership, len(s.memberships)),
		invitations: make(map[string]models.Invitation, len(s.invitations)),
		expenses:    make(map[string]models.Expense, len(s.expenses)),
	}
	for k, v := range s.groups {
		out.groups[k] = v
	}
	for k, v := range s.memberships {
		out.memberships[k] = v
	}
	for k, v := range s.invitations {
		out.invitations[k] = v
	}
	for k, v := range s.expenses {
		out.expenses[k] = v.Clone()
	}
	return out
}

// Store keeps the ledger in memory.
type Store struct {
	mu     sync.RWMutex
	cur    *state
	closed bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{cur: newState()}
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := s.cur.clone()
	if err := fn(ctx, &tx{st: next, writable: true}); err != nil {
		return err
	}
	// A caller that gave up must not find its write applied.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// View implements storage.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(ctx, &tx{st: s.cur})
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	st       *state
	writable bool
}

func (t *tx) checkWrite() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

func (t *tx) CreateGroup(_ context.Context, group *models.Group) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	if _, exists := t.st.groups[group.ID]; exists {
		return fmt.Errorf("group %s: %w", group.ID, storage.ErrConflict)
	}
	t.st.groups[group.ID] = *group
	return nil
}

func (t *tx) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	g, ok := t.st.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	return &g, nil
}

func (t *tx) UpdateGroup(_ context.Context, group *models.Group) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	cur, ok := t.st.groups[group.ID]
	if !ok {
		return fmt.Errorf("group %s: %w", group.ID, storage.ErrNotFound)
	}
	cur.Description = group.Description
	cur.Category = group.Category
	cur.Active = group.Active
	t.st.groups[group.ID] = cur
	return nil
}

func (t *tx) GetMembership(_ context.Context, groupID, userID string) (*models.Membership, error) {
	m, ok := t.st.memberships[memberKey{groupID, userID}]
	if !ok {
		return nil, fmt.Errorf("membership %s/%s: %w", groupID, userID, storage.ErrNotFound)
	}
	return &m, nil
}

func (t *tx) InsertMembership(_ context.Context, m *models.Membership) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	key := memberKey{m.GroupID, m.UserID}
	if _, exists := t.st.memberships[key]; exists {
		return fmt.Errorf("membership %s/%s: %w", m.GroupID, m.UserID, storage.ErrConflict)
	}
	t.st.memberships[key] = *m
	return nil
}

func (t *tx) UpdateMembership(_ context.Context, m *models.Membership) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	key := memberKey{m.GroupID, m.UserID}
	if _, exists := t.st.memberships[key]; !exists {
		return fmt.Errorf("membership %s/%s: %w", m.GroupID, m.UserID, storage.ErrNotFound)
	}
	t.st.memberships[key] = *m
	return nil
}

func (t *tx) ListMemberships(_ context.Context, groupID string, activeOnly bool) ([]models.Membership, error) {
	var out []models.Membership
	for key, m := range t.st.memberships {
		if key.groupID != groupID || (activeOnly && !m.Active) {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b models.Membership) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out, nil
}

func (t *tx) ListMembershipsByUser(_ context.Context, userID string) ([]models.Membership, error) {
	var out []models.Membership
	for key, m := range t.st.memberships {
		if key.userID == userID && m.Active {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b models.Membership) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.GroupID, b.GroupID)
	})
	return out, nil
}

func (t *tx) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	if _, exists := t.st.invitations[inv.ID]; exists {
		return fmt.Errorf("invitation %s: %w", inv.ID, storage.ErrConflict)
	}
	if inv.Status == models.StatusPending {
		if _, err := t.FindPendingInvitation(ctx, inv.GroupID, inv.UserID); err == nil {
			return fmt.Errorf("pending invitation %s/%s: %w", inv.GroupID, inv.UserID, storage.ErrConflict)
		}
	}
	t.st.invitations[inv.ID] = *inv
	return nil
}

func (t *tx) GetInvitation(_ context.Context, invitationID string) (*models.Invitation, error) {
	inv, ok := t.st.invitations[invitationID]
	if !ok {
		return nil, fmt.Errorf("invitation %s: %w", invitationID, storage.ErrNotFound)
	}
	return &inv, nil
}

func (t *tx) FindPendingInvitation(_ context.Context, groupID, userID string) (*models.Invitation, error) {
	for _, inv := range t.st.invitations {
		if inv.GroupID == groupID && inv.UserID == userID && inv.Status == models.StatusPending {
			return &inv, nil
		}
	}
	return nil, fmt.Errorf("pending invitation %s/%s: %w", groupID, userID, storage.ErrNotFound)
}

func (t *tx) SwapInvitationStatus(_ context.Context, invitationID string, from, to models.InvitationStatus, active bool, at time.Time) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	inv, ok := t.st.invitations[invitationID]
	if !ok {
		return fmt.Errorf("invitation %s: %w", invitationID, storage.ErrNotFound)
	}
	if inv.Status != from {
		return fmt.Errorf("invitation %s is %s, not %s: %w", invitationID, inv.Status, from, storage.ErrConflict)
	}
	inv.Status = to
	inv.Active = active
	inv.RespondedAt = at
	t.st.invitations[invitationID] = inv
	return nil
}

func (t *tx) ListInvitationsByUser(_ context.Context, userID string, status models.InvitationStatus) ([]models.Invitation, error) {
	var out []models.Invitation
	for _, inv := range t.st.invitations {
		if inv.UserID == userID && inv.Status == status && inv.Active {
			out = append(out, inv)
		}
	}
	slices.SortFunc(out, func(a, b models.Invitation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *tx) CreateExpense(_ context.Context, e *models.Expense) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	if _, exists := t.st.expenses[e.ID]; exists {
		return fmt.Errorf("expense %s: %w", e.ID, storage.ErrConflict)
	}
	t.st.expenses[e.ID] = e.Clone()
	return nil
}

func (t *tx) GetExpense(_ context.Context, expenseID string) (*models.Expense, error) {
	e, ok := t.st.expenses[expenseID]
	if !ok {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	out := e.Clone()
	return &out, nil
}

func (t *tx) ReplaceExpense(_ context.Context, e *models.Expense, expectedVersion int64) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	cur, ok := t.st.expenses[e.ID]
	if !ok {
		return fmt.Errorf("expense %s: %w", e.ID, storage.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("expense %s at version %d, expected %d: %w", e.ID, cur.Version, expectedVersion, storage.ErrConflict)
	}
	t.st.expenses[e.ID] = e.Clone()
	return nil
}

func (t *tx) ListExpenses(_ context.Context, filter storage.ExpenseFilter) ([]models.Expense, error) {
	var out []models.Expense
	for _, e := range t.st.expenses {
		if e.GroupID != filter.GroupID {
			continue
		}
		if e.Deleted && !filter.IncludeDeleted {
			continue
		}
		if !filter.AsOf.IsZero() && e.Date.After(filter.AsOf) {
			continue
		}
		out = append(out, e.Clone())
	}
	slices.SortFunc(out, func(a, b models.Expense) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
