package cupid

import (
	"context"
	"fmt"
	"time"
)

// Relationship is a relationship or proposal between two users, with both
// parties resolved through the owning auth context.
//
// A relationship obtained through an Actor is seen from that user's side:
// Accept and Delete act on the opposite party. Relationships from graphs
// or from other users' profiles are read-only.
type Relationship struct {
	ID         int64
	Initiator  User
	Other      User
	Kind       RelationshipKind
	Accepted   bool
	CreatedAt  time.Time
	AcceptedAt *time.Time

	client  *authClient
	resolve resolveFunc
	ownID   int64
}

func newRelationship(rec RelationshipRecord, resolve resolveFunc, client *authClient, ownID int64) *Relationship {
	r := &Relationship{
		client:  client,
		resolve: resolve,
		ownID:   ownID,
	}
	r.apply(rec)
	return r
}

// apply overwrites every field from rec
func (r *Relationship) apply(rec RelationshipRecord) {
	r.ID = rec.ID
	r.Initiator = r.resolve(rec.Initiator)
	r.Other = r.resolve(rec.Other)
	r.Kind = rec.Kind
	r.Accepted = rec.Accepted
	r.CreatedAt = rec.CreatedAt
	r.AcceptedAt = rec.AcceptedAt
}

// ReadOnly reports whether the relationship can not be accepted or deleted through this value
func (r *Relationship) ReadOnly() bool {
	return r.client == nil
}

// Opposite returns the party that is not the acting user. It returns false
// for read-only relationships, which have no acting user.
func (r *Relationship) Opposite() (User, bool) {
	if r.ReadOnly() {
		return nil, false
	}
	if r.Initiator.ID() == r.ownID {
		return r.Other, true
	}
	return r.Initiator, true
}

// Incoming reports whether the acting user received this proposal
func (r *Relationship) Incoming() bool {
	return !r.ReadOnly() && !r.Accepted && r.Other.ID() == r.ownID
}

// Accept accepts a proposal made to the acting user and updates the
// relationship in place. The API rejects accepting an accepted
// relationship with ErrConflict and accepting one's own proposal with
// ErrForbidden.
func (r *Relationship) Accept(ctx context.Context) error {
	opposite, ok := r.Opposite()
	if !ok {
		return ErrReadOnlyRelationship
	}
	rec, err := r.client.acceptProposal(ctx, opposite.ID())
	if err != nil {
		return fmt.Errorf("failed to accept relationship %d: %w", r.ID, err)
	}
	r.apply(*rec)
	return nil
}

// Delete rejects or withdraws a proposal, or leaves an accepted relationship
func (r *Relationship) Delete(ctx context.Context) error {
	opposite, ok := r.Opposite()
	if !ok {
		return ErrReadOnlyRelationship
	}
	if err := r.client.leaveRelationship(ctx, opposite.ID()); err != nil {
		return fmt.Errorf("failed to delete relationship %d: %w", r.ID, err)
	}
	return nil
}

// String describes the relationship, e.g. "Alice#0001 -> Bob (marriage, proposed)"
func (r *Relationship) String() string {
	state := "proposed"
	if r.Accepted {
		state = "accepted"
	}
	return fmt.Sprintf("%s -> %s (%s, %s)", describeUser(r.Initiator), describeUser(r.Other), r.Kind, state)
}

func describeUser(u User) string {
	if s, ok := u.(fmt.Stringer); ok {
		return s.String()
	}
	return u.Name()
}
