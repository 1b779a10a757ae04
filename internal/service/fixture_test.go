package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
	"github.com/mmynk/groupledger/internal/storage/memory"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Notify(ctx context.Context, event models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store       *memory.Store
	clock       *fakeClock
	sink        *mockSink
	groups      *GroupService
	members     *MembershipService
	invitations *InvitationService
	expenses    *ExpenseService
	balances    *BalanceService
}

func newFixture(t *testing.T, extra ...Option) *fixture {
	t.Helper()

	var seq atomic.Int64
	f := &fixture{
		store: memory.New(),
		clock: &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		sink:  &mockSink{},
	}
	// Events are optional in most tests.
	f.sink.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()

	opts := append([]Option{
		WithClock(f.clock.Now),
		WithNotifier(f.sink),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) }),
	}, extra...)

	f.groups = NewGroupService(f.store, opts...)
	f.members = NewMembershipService(f.store, opts...)
	f.invitations = NewInvitationService(f.store, opts...)
	f.expenses = NewExpenseService(f.store, opts...)
	f.balances = NewBalanceService(f.store, opts...)
	return f
}

// group creates a group administered by admin with the given members.
// Each member joins a minute after the previous one.
func (f *fixture) group(t *testing.T, admin string, members ...string) *models.Group {
	t.Helper()
	ctx := context.Background()

	g, err := f.groups.CreateGroup(ctx, CreateGroupParams{CreatorID: admin, Description: "Flat 3B"})
	require.NoError(t, err)

	for _, m := range members {
		f.clock.Advance(time.Minute)
		_, err := f.members.AddMember(ctx, g.ID, m, models.RoleMember)
		require.NoError(t, err)
	}
	return g
}

func eur(minor int64) money.Money { return money.New(minor, "eur") }
