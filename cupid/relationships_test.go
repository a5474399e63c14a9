package cupid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationship_AcceptTwice(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	app := newTestApp(t, client)
	alice := createTestUser(t, app, 100, "Alice")
	bob := createTestUser(t, app, 200, "Bob")

	proposal, err := alice.Propose(ctx, bob.ID(), KindMarriage)
	require.NoError(t, err)
	assert.False(t, proposal.Accepted)
	assert.Nil(t, proposal.AcceptedAt)
	assert.Equal(t, int64(100), proposal.Initiator.ID())
	assert.Equal(t, int64(200), proposal.Other.ID())

	incoming, err := bob.Relationship(ctx, alice.ID())
	require.NoError(t, err)
	assert.True(t, incoming.Incoming())
	opposite, ok := incoming.Opposite()
	require.True(t, ok)
	assert.Equal(t, int64(100), opposite.ID())

	require.NoError(t, incoming.Accept(ctx))
	assert.True(t, incoming.Accepted)
	require.NotNil(t, incoming.AcceptedAt)
	assert.Equal(t, KindMarriage, incoming.Kind)
	assert.False(t, incoming.Incoming())

	err = incoming.Accept(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, incoming.Accepted, "a failed accept leaves the relationship untouched")
}

func TestRelationship_AcceptOwnProposal(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	app := newTestApp(t, client)
	alice := createTestUser(t, app, 100, "Alice")
	createTestUser(t, app, 200, "Bob")

	proposal, err := alice.Propose(ctx, 200, KindAdoption)
	require.NoError(t, err)

	err = proposal.Accept(ctx)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, proposal.Accepted)
}

func TestRelationship_Delete(t *testing.T) {
	tests := []struct {
		name   string
		accept bool
		byWho  string
	}{
		{name: "withdraw proposal", byWho: "initiator"},
		{name: "reject proposal", byWho: "receiver"},
		{name: "leave relationship", accept: true, byWho: "initiator"},
		{name: "dissolve from other side", accept: true, byWho: "receiver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestEnv(t)
			ctx := context.Background()
			app := newTestApp(t, client)
			alice := createTestUser(t, app, 100, "Alice")
			bob := createTestUser(t, app, 200, "Bob")

			proposal, err := alice.Propose(ctx, 200, KindMarriage)
			require.NoError(t, err)
			received, err := bob.Relationship(ctx, 100)
			require.NoError(t, err)
			if tt.accept {
				require.NoError(t, received.Accept(ctx))
			}

			target := proposal
			if tt.byWho == "receiver" {
				target = received
			}
			require.NoError(t, target.Delete(ctx))

			_, err = alice.Relationship(ctx, 200)
			assert.ErrorIs(t, err, ErrNotFound)

			err = received.Accept(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRelationship_DuplicateProposal(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	app := newTestApp(t, client)
	alice := createTestUser(t, app, 100, "Alice")
	bob := createTestUser(t, app, 200, "Bob")

	_, err := alice.Propose(ctx, 200, KindMarriage)
	require.NoError(t, err)

	_, err = bob.Propose(ctx, 100, KindMarriage)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = alice.Propose(ctx, 404, KindMarriage)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelationship_SessionView(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	session := newTestSession(t, client, 1245, "Artemis")
	app := newTestApp(t, client)
	alice := createTestUser(t, app, 100, "Alice")
	createTestUser(t, app, 200, "Bob")

	_, err := alice.Propose(ctx, 1245, KindAdoption)
	require.NoError(t, err)
	_, err = alice.Propose(ctx, 200, KindMarriage)
	require.NoError(t, err)

	me, err := session.GetUser(ctx, 1245)
	require.NoError(t, err)
	require.Len(t, me.Incoming, 1)
	assert.Empty(t, me.Outgoing)
	assert.Empty(t, me.Accepted)

	incoming := me.Incoming[0]
	assert.False(t, incoming.ReadOnly())
	assert.Same(t, session.User(), incoming.Other, "self is resolved to the canonical user")
	require.IsType(t, &ForeignUser{}, incoming.Initiator)

	require.NoError(t, incoming.Accept(ctx))
	assert.True(t, incoming.Accepted)

	// another user's relationships can be read but not changed
	other, err := session.GetUser(ctx, 100)
	require.NoError(t, err)
	require.Len(t, other.Accepted, 1)
	require.Len(t, other.Outgoing, 1)
	for _, r := range append(other.Accepted, other.Outgoing...) {
		assert.True(t, r.ReadOnly())
		_, ok := r.Opposite()
		assert.False(t, ok)
		assert.ErrorIs(t, r.Accept(ctx), ErrReadOnlyRelationship)
		assert.ErrorIs(t, r.Delete(ctx), ErrReadOnlyRelationship)
	}
	assert.Same(t, session.User(), other.Accepted[0].Other)
}

func TestRelationship_AppUserView(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	app := newTestApp(t, client)
	alice := createTestUser(t, app, 100, "Alice")
	createTestUser(t, app, 200, "Bob")

	_, err := alice.Propose(ctx, 200, KindMarriage)
	require.NoError(t, err)

	bob, err := app.GetUser(ctx, 200)
	require.NoError(t, err)
	require.Len(t, bob.Incoming, 1)

	r := bob.Incoming[0]
	assert.False(t, r.ReadOnly())
	require.IsType(t, &AppUser{}, r.Initiator)
	require.NoError(t, r.Accept(ctx))

	alice2, err := app.GetUser(ctx, 100)
	require.NoError(t, err)
	require.Len(t, alice2.Accepted, 1)
	assert.Equal(t, "Alice -> Bob (marriage, accepted)", alice2.Accepted[0].String())
}
