package cupid

import (
	"context"
	"fmt"
)

// User is the data every resolved user exposes, whatever the caller is
// allowed to do with it.
type User interface {
	ID() int64
	Name() string
	// Discriminator returns the four digit discriminator, or false if the user has none
	Discriminator() (string, bool)
	AvatarURL() string
	Gender() Gender
	// Record returns a copy of the underlying data
	Record() UserRecord
}

// Actor is a user the caller may act as: propose, inspect relationships
// and change gender.
type Actor interface {
	User
	Propose(ctx context.Context, otherID int64, kind RelationshipKind) (*Relationship, error)
	Relationship(ctx context.Context, otherID int64) (*Relationship, error)
	SetGender(ctx context.Context, gender Gender) error
}

// Editor is a user whose profile the caller may overwrite. Only apps can.
type Editor interface {
	Actor
	Edit(ctx context.Context, edit UserEdit) error
}

var (
	_ User   = (*ForeignUser)(nil)
	_ Actor  = (*SelfUser)(nil)
	_ Editor = (*AppUser)(nil)
)

// resolveFunc turns a raw user record into the variant the owning auth
// context hands out.
type resolveFunc func(UserRecord) User

// userData implements the read accessors shared by all variants
type userData struct {
	record UserRecord
}

func (u *userData) ID() int64         { return u.record.ID }
func (u *userData) Name() string      { return u.record.Name }
func (u *userData) AvatarURL() string { return u.record.AvatarURL }
func (u *userData) Gender() Gender    { return u.record.Gender }
func (u *userData) Record() UserRecord {
	rec := u.record
	if rec.Discriminator != nil {
		d := *rec.Discriminator
		rec.Discriminator = &d
	}
	return rec
}

func (u *userData) Discriminator() (string, bool) {
	if u.record.Discriminator == nil {
		return "", false
	}
	return *u.record.Discriminator, true
}

// String formats the user as name#discriminator, or just the name
func (u *userData) String() string {
	if d, ok := u.Discriminator(); ok {
		return fmt.Sprintf("%s#%s", u.record.Name, d)
	}
	return u.record.Name
}

// ForeignUser is another user seen from a session. It is read-only.
type ForeignUser struct {
	userData
}

// SelfUser is the user bound to a session. A session owns exactly one
// SelfUser, which is updated in place whenever the API returns fresh data
// for it.
type SelfUser struct {
	userData
	client  *authClient
	resolve resolveFunc
}

// Propose proposes a relationship of the given kind to another user
func (u *SelfUser) Propose(ctx context.Context, otherID int64, kind RelationshipKind) (*Relationship, error) {
	rec, err := u.client.proposeRelationship(ctx, otherID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to propose to user %d: %w", otherID, err)
	}
	return newRelationship(*rec, u.resolve, u.client, u.ID()), nil
}

// Relationship fetches the relationship or proposal between this user and another
func (u *SelfUser) Relationship(ctx context.Context, otherID int64) (*Relationship, error) {
	rec, err := u.client.getRelationship(ctx, otherID)
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship with user %d: %w", otherID, err)
	}
	return newRelationship(*rec, u.resolve, u.client, u.ID()), nil
}

// SetGender changes the user's gender and stores the returned data
func (u *SelfUser) SetGender(ctx context.Context, gender Gender) error {
	rec, err := u.client.updateGender(ctx, gender)
	if err != nil {
		return fmt.Errorf("failed to set gender: %w", err)
	}
	u.record = *rec
	return nil
}

// AppUser is a user acted on by an app. Requests carry the user's ID so
// the app acts on their behalf. Every resolution yields a new AppUser.
type AppUser struct {
	SelfUser
}

// UserEdit holds the changes for AppUser.Edit. Zero fields keep the
// current value.
type UserEdit struct {
	Name      string
	AvatarURL string
	Gender    Gender
	// Discriminator is parsed with ParseDiscriminator, so "0" clears it
	Discriminator *string
}

// Edit overwrites the user's profile and stores the returned data
func (u *AppUser) Edit(ctx context.Context, edit UserEdit) error {
	data := u.record.UserData
	if edit.Name != "" {
		data.Name = edit.Name
	}
	if edit.AvatarURL != "" {
		data.AvatarURL = edit.AvatarURL
	}
	if edit.Gender != "" {
		data.Gender = edit.Gender
	}
	if edit.Discriminator != nil {
		d, err := ParseDiscriminator(*edit.Discriminator)
		if err != nil {
			return err
		}
		data.Discriminator = d
	}

	rec, err := u.client.setUser(ctx, u.ID(), data)
	if err != nil {
		return fmt.Errorf("failed to edit user %d: %w", u.ID(), err)
	}
	u.record = *rec
	return nil
}

// UserWithRelationships is a resolved user together with their
// relationships. Relationships are actionable when the user is an Actor
// and read-only otherwise.
type UserWithRelationships struct {
	User     User
	Accepted []*Relationship
	Incoming []*Relationship
	Outgoing []*Relationship
}

// resolveWithRelationships resolves the subject through resolve and wraps
// each relationship from the subject's point of view.
func resolveWithRelationships(rec UserWithRelationshipsRecord, resolve resolveFunc) *UserWithRelationships {
	subject := resolve(rec.User)

	var client *authClient
	switch u := subject.(type) {
	case *SelfUser:
		client = u.client
	case *AppUser:
		client = u.client
	}

	wrap := func(records []RelationshipRecord) []*Relationship {
		out := make([]*Relationship, 0, len(records))
		for _, r := range records {
			out = append(out, newRelationship(r, resolve, client, subject.ID()))
		}
		return out
	}

	return &UserWithRelationships{
		User:     subject,
		Accepted: wrap(rec.Relationships.Accepted),
		Incoming: wrap(rec.Relationships.Incoming),
		Outgoing: wrap(rec.Relationships.Outgoing),
	}
}
