package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/notify"
	"github.com/mmynk/groupledger/internal/storage"
)

func TestIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	inv, err := f.invitations.Issue(ctx, g.ID, "bob", "carol")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, inv.Status)
	assert.True(t, inv.Active)
	assert.Equal(t, "carol", inv.UserID)
	assert.Equal(t, "bob", inv.InviterID)
	assert.True(t, inv.ExpiresAt.IsZero())

	f.sink.AssertCalled(t, "Notify", mock.Anything, models.Event{
		Type:         models.EventInvitationIssued,
		InvitationID: inv.ID,
		GroupID:      g.ID,
		UserID:       "carol",
		OccurredAt:   f.clock.Now(),
	})
}

func TestIssueRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")
	_, err := f.invitations.Issue(ctx, g.ID, "alice", "carol")
	require.NoError(t, err)

	tests := []struct {
		name    string
		groupID string
		inviter string
		invitee string
		wantErr error
	}{
		{name: "missing group", groupID: "missing", inviter: "alice", invitee: "dave", wantErr: apperrors.ErrNotFound},
		{name: "inviter not a member", groupID: g.ID, inviter: "eve", invitee: "dave", wantErr: apperrors.ErrNotAuthorized},
		{name: "inviter checked before invitee", groupID: g.ID, inviter: "eve", invitee: "bob", wantErr: apperrors.ErrNotAuthorized},
		{name: "invitee already a member", groupID: g.ID, inviter: "alice", invitee: "bob", wantErr: apperrors.ErrAlreadyMember},
		{name: "self invite", groupID: g.ID, inviter: "alice", invitee: "alice", wantErr: apperrors.ErrAlreadyMember},
		{name: "pending invitation exists", groupID: g.ID, inviter: "bob", invitee: "carol", wantErr: apperrors.ErrDuplicatePending},
		{name: "no invitee", groupID: g.ID, inviter: "alice", invitee: "", wantErr: apperrors.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.invitations.Issue(ctx, tt.groupID, tt.inviter, tt.invitee)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.NoError(t, f.groups.DeactivateGroup(ctx, g.ID))
	_, err = f.invitations.Issue(ctx, g.ID, "alice", "dave")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "inactive group")
}

func TestAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice")

	inv, err := f.invitations.Issue(ctx, g.ID, "alice", "bob")
	require.NoError(t, err)

	_, err = f.invitations.Accept(ctx, inv.ID, "mallory")
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	f.clock.Advance(time.Hour)
	m, err := f.invitations.Accept(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, m.Role)
	assert.Equal(t, f.clock.Now(), m.JoinedAt)

	members, err := f.members.ListActiveMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, memberIDs(members))

	_, err = f.invitations.Accept(ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, apperrors.ErrNotPending)
	assert.ErrorIs(t, f.invitations.Reject(ctx, inv.ID, "bob"), apperrors.ErrNotPending)

	_, err = f.invitations.Accept(ctx, "missing", "bob")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	stored := getInvitation(t, f, inv.ID)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	assert.True(t, stored.Active)
	assert.Equal(t, f.clock.Now(), stored.RespondedAt)

	f.sink.AssertCalled(t, "Notify", mock.Anything, models.Event{
		Type:         models.EventInvitationAccepted,
		InvitationID: inv.ID,
		GroupID:      g.ID,
		UserID:       "bob",
		OccurredAt:   f.clock.Now(),
	})
}

func TestAcceptRollsBackWhenMembershipFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice")

	inv, err := f.invitations.Issue(ctx, g.ID, "alice", "bob")
	require.NoError(t, err)

	// bob joins through another path before answering.
	_, err = f.members.AddMember(ctx, g.ID, "bob", models.RoleMember)
	require.NoError(t, err)

	_, err = f.invitations.Accept(ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyMember)

	stored := getInvitation(t, f, inv.ID)
	assert.Equal(t, models.StatusPending, stored.Status, "transition must roll back with the membership insert")
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice")

	inv, err := f.invitations.Issue(ctx, g.ID, "alice", "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, f.invitations.Reject(ctx, inv.ID, "alice"), apperrors.ErrNotAuthorized)
	require.NoError(t, f.invitations.Reject(ctx, inv.ID, "bob"))

	stored := getInvitation(t, f, inv.ID)
	assert.Equal(t, models.StatusRejected, stored.Status)
	assert.False(t, stored.Active)

	_, err = f.invitations.Accept(ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, apperrors.ErrNotPending)

	pending, err := f.invitations.ListPendingForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A rejected invitation does not block a new one.
	_, err = f.invitations.Issue(ctx, g.ID, "alice", "bob")
	require.NoError(t, err)

	f.sink.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventInvitationRejected && e.InvitationID == inv.ID
	}))
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice")

	inv, err := f.invitations.Issue(ctx, g.ID, "alice", "bob")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.invitations.Accept(ctx, inv.ID, "bob")
			} else {
				errs[i] = f.invitations.Reject(ctx, inv.ID, "bob")
			}
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrNotPending)
	}
	assert.Equal(t, 1, wins)
}

func TestInvitationExpiry(t *testing.T) {
	f := newFixture(t, WithInvitationTTL(24*time.Hour))
	ctx := context.Background()
	g := f.group(t, "alice")

	inv, err := f.invitations.Issue(ctx, g.ID, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), inv.ExpiresAt)

	f.clock.Advance(25 * time.Hour)

	_, err = f.invitations.Accept(ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, apperrors.ErrNotPending)

	pending, err := f.invitations.ListPendingForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)

	again, err := f.invitations.Issue(ctx, g.ID, "alice", "bob")
	require.NoError(t, err, "an expired invitation must not block a new one")

	old := getInvitation(t, f, inv.ID)
	assert.Equal(t, models.StatusRejected, old.Status)
	assert.False(t, old.Active)

	_, err = f.invitations.Accept(ctx, again.ID, "bob")
	require.NoError(t, err)
}

func TestListPendingForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g1 := f.group(t, "alice")
	g2 := f.group(t, "carol")

	first, err := f.invitations.Issue(ctx, g1.ID, "alice", "bob")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.invitations.Issue(ctx, g2.ID, "carol", "bob")
	require.NoError(t, err)
	_, err = f.invitations.Issue(ctx, g2.ID, "carol", "dave")
	require.NoError(t, err)

	pending, err := f.invitations.ListPendingForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	tests := []struct {
		name string
		sink notify.Sink
	}{
		{
			name: "error",
			sink: notify.SinkFunc(func(context.Context, models.Event) error { return errors.New("smtp down") }),
		},
		{
			name: "panic",
			sink: notify.SinkFunc(func(context.Context, models.Event) error { panic("boom") }),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithNotifier(tt.sink))
			ctx := context.Background()
			g := f.group(t, "alice")

			inv, err := f.invitations.Issue(ctx, g.ID, "alice", "bob")
			require.NoError(t, err)

			_, err = f.invitations.Accept(ctx, inv.ID, "bob")
			require.NoError(t, err)

			assert.Equal(t, models.StatusAccepted, getInvitation(t, f, inv.ID).Status)
		})
	}
}

func getInvitation(t *testing.T, f *fixture, id string) *models.Invitation {
	t.Helper()
	var inv *models.Invitation
	err := f.store.View(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		inv, err = tx.GetInvitation(ctx, id)
		return err
	})
	require.NoError(t, err)
	return inv
}
