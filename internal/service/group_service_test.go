package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
)

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.groups.CreateGroup(ctx, CreateGroupParams{
		CreatorID:   "alice",
		Description: "  Lisbon trip ",
		Category:    "travel",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "Lisbon trip", g.Description)
	assert.Equal(t, "eur", g.Currency)
	assert.True(t, g.Active)

	members, err := f.members.ListActiveMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)
	assert.Equal(t, models.RoleAdmin, members[0].Role)
}

func TestCreateGroupCurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit currency is normalized", func(t *testing.T) {
		f := newFixture(t)
		g, err := f.groups.CreateGroup(ctx, CreateGroupParams{CreatorID: "alice", Description: "Tokyo", Currency: "JPY"})
		require.NoError(t, err)
		assert.Equal(t, "jpy", g.Currency)
	})

	t.Run("configured default", func(t *testing.T) {
		f := newFixture(t, WithDefaultCurrency("usd"))
		g, err := f.groups.CreateGroup(ctx, CreateGroupParams{CreatorID: "alice", Description: "NYC"})
		require.NoError(t, err)
		assert.Equal(t, "usd", g.Currency)
	})

	t.Run("unknown currency", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.groups.CreateGroup(ctx, CreateGroupParams{CreatorID: "alice", Description: "Mars", Currency: "zzz"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.groups.CreateGroup(ctx, CreateGroupParams{CreatorID: "alice", Description: "   "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = f.groups.CreateGroup(ctx, CreateGroupParams{Description: "Flat"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestUpdateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice")

	desc := "Flat 4C"
	updated, err := f.groups.UpdateGroup(ctx, g.ID, UpdateGroupParams{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Flat 4C", updated.Description)

	got, err := f.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Flat 4C", got.Description)

	empty := ""
	_, err = f.groups.UpdateGroup(ctx, g.ID, UpdateGroupParams{Description: &empty})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = f.groups.UpdateGroup(ctx, "missing", UpdateGroupParams{Description: &desc})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGroupCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.groups.CreateGroup(ctx, CreateGroupParams{CreatorID: "alice", Description: "Flat", Category: " Home "})
	require.NoError(t, err)
	assert.Equal(t, "home", g.Category)

	_, err = f.groups.CreateGroup(ctx, CreateGroupParams{CreatorID: "alice", Description: "Flat", Category: "rent"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	work := "work"
	updated, err := f.groups.UpdateGroup(ctx, g.ID, UpdateGroupParams{Category: &work})
	require.NoError(t, err)
	assert.Equal(t, "work", updated.Category)

	bogus := "gambling"
	_, err = f.groups.UpdateGroup(ctx, g.ID, UpdateGroupParams{Category: &bogus})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	got, err := f.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "work", got.Category, "rejected update leaves the group untouched")

	empty := ""
	updated, err = f.groups.UpdateGroup(ctx, g.ID, UpdateGroupParams{Category: &empty})
	require.NoError(t, err)
	assert.Empty(t, updated.Category)
}

func TestDeactivateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	require.NoError(t, f.groups.DeactivateGroup(ctx, g.ID))

	got, err := f.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, f.groups.DeactivateGroup(ctx, g.ID), apperrors.ErrNotFound)

	_, err = f.members.AddMember(ctx, g.ID, "carol", models.RoleMember)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "inactive groups take no new members")

	groups, err := f.groups.ListGroupsForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestListGroupsForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.group(t, "alice", "bob")
	f.clock.Advance(time.Hour)
	second := f.group(t, "bob")
	f.group(t, "carol")

	groups, err := f.groups.ListGroupsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, first.ID, groups[0].Group.ID)
	assert.Equal(t, models.RoleMember, groups[0].Role)
	assert.Equal(t, second.ID, groups[1].Group.ID)
	assert.Equal(t, models.RoleAdmin, groups[1].Role)
}
