package cupid

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// recordValidate checks every record decoded from or sent to the API.
var recordValidate *validator.Validate

var discriminatorPattern = regexp.MustCompile(`^[0-9]{1,4}$`)

func init() {
	recordValidate = validator.New(validator.WithRequiredStructEnabled())

	_ = recordValidate.RegisterValidation("discriminator", func(fl validator.FieldLevel) bool {
		return discriminatorPattern.MatchString(fl.Field().String())
	})
	recordValidate.RegisterStructValidation(validateRelationshipRecord, RelationshipRecord{})
}

// validateRelationshipRecord enforces accepted <=> accepted_at and initiator != other.
func validateRelationshipRecord(sl validator.StructLevel) {
	r := sl.Current().Interface().(RelationshipRecord)
	if r.Accepted != (r.AcceptedAt != nil) {
		sl.ReportError(r.AcceptedAt, "accepted_at", "AcceptedAt", "accepted_at_matches_accepted", "")
	}
	if r.Initiator.ID == r.Other.ID {
		sl.ReportError(r.Other.ID, "other", "Other", "distinct_parties", "")
	}
}

// Gender is the gender of a user
type Gender string

const (
	// GenderNonBinary is a non-binary user
	GenderNonBinary Gender = "non_binary"
	// GenderFemale is a female user
	GenderFemale Gender = "female"
	// GenderMale is a male user
	GenderMale Gender = "male"
)

// ParseGender parses a gender name as used by the API
func ParseGender(s string) (Gender, error) {
	g := Gender(s)
	if !g.Valid() {
		return "", fmt.Errorf("invalid gender %q (must be non_binary, female or male)", s)
	}
	return g, nil
}

// Valid reports whether g is one of the known genders
func (g Gender) Valid() bool {
	return g == GenderNonBinary || g == GenderFemale || g == GenderMale
}

// RelationshipKind is the type of a relationship
type RelationshipKind string

const (
	// KindMarriage is a marriage between two users
	KindMarriage RelationshipKind = "marriage"
	// KindAdoption is an adoption of the other user by the initiator
	KindAdoption RelationshipKind = "adoption"
)

// ParseRelationshipKind parses a relationship kind name as used by the API
func ParseRelationshipKind(s string) (RelationshipKind, error) {
	k := RelationshipKind(s)
	if k != KindMarriage && k != KindAdoption {
		return "", fmt.Errorf("invalid relationship kind %q (must be marriage or adoption)", s)
	}
	return k, nil
}

// UserSearch holds options for searching or listing users
type UserSearch struct {
	Search  string `json:"search,omitempty"`
	PerPage int    `json:"per_page" validate:"gt=0"`
	Page    int    `json:"page" validate:"gte=0"`
}

// DefaultPerPage is the page size used when none is given
const DefaultPerPage = 20

// Values encodes the search as query parameters
func (s UserSearch) Values() url.Values {
	params := url.Values{}
	if s.Search != "" {
		params.Set("search", s.Search)
	}
	params.Set("per_page", strconv.Itoa(s.PerPage))
	params.Set("page", strconv.Itoa(s.Page))
	return params
}

// UserData is the editable data of a user, not including its ID
type UserData struct {
	Name          string  `json:"name" validate:"required,min=1,max=255"`
	AvatarURL     string  `json:"avatar_url" validate:"required,min=7,max=255"`
	Gender        Gender  `json:"gender" validate:"required,oneof=non_binary female male"`
	Discriminator *string `json:"discriminator" validate:"omitempty,discriminator"`
}

// UserRecord is a user as returned by the API
type UserRecord struct {
	ID int64 `json:"id"`
	UserData
}

// PartialRelationship is a relationship edge that refers to users by ID only
type PartialRelationship struct {
	ID         int64            `json:"id"`
	Initiator  int64            `json:"initiator"`
	Other      int64            `json:"other"`
	Kind       RelationshipKind `json:"kind" validate:"required,oneof=marriage adoption"`
	CreatedAt  time.Time        `json:"created_at" validate:"required"`
	AcceptedAt time.Time        `json:"accepted_at" validate:"required"`
}

// RelationshipRecord is the full data for a relationship
type RelationshipRecord struct {
	ID         int64            `json:"id"`
	Initiator  UserRecord       `json:"initiator"`
	Other      UserRecord       `json:"other"`
	Kind       RelationshipKind `json:"kind" validate:"required,oneof=marriage adoption"`
	Accepted   bool             `json:"accepted"`
	CreatedAt  time.Time        `json:"created_at" validate:"required"`
	AcceptedAt *time.Time       `json:"accepted_at"`
}

// UserRelationships groups all of a user's relationships
type UserRelationships struct {
	Accepted []RelationshipRecord `json:"accepted" validate:"dive"`
	Incoming []RelationshipRecord `json:"incoming" validate:"dive"`
	Outgoing []RelationshipRecord `json:"outgoing" validate:"dive"`
}

// UserWithRelationshipsRecord is a user together with all of their relationships
type UserWithRelationshipsRecord struct {
	User          UserRecord        `json:"user"`
	Relationships UserRelationships `json:"relationships"`
}

// GraphData is the raw relationship graph
type GraphData struct {
	Users         map[int64]UserRecord  `json:"users" validate:"dive"`
	Relationships []PartialRelationship `json:"relationships" validate:"dive"`
}

// PaginatedUsers is one page of a paginated list of users
type PaginatedUsers struct {
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	Pages   int          `json:"pages"`
	Total   int          `json:"total"`
	Users   []UserRecord `json:"users" validate:"dive"`
}

// SessionRecord is a user authentication session
type SessionRecord struct {
	ID        int64      `json:"id"`
	User      UserRecord `json:"user"`
	ExpiresAt time.Time  `json:"expires_at" validate:"required"`
}

// AppRecord is an API application
type AppRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name" validate:"required"`
}

// EntityKind tells which variant an AuthenticatedEntity holds
type EntityKind int

const (
	// EntityApp is an API application
	EntityApp EntityKind = iota
	// EntitySession is a user session
	EntitySession
)

// String returns the string representation of an EntityKind
func (k EntityKind) String() string {
	if k == EntitySession {
		return "session"
	}
	return "app"
}

// AuthenticatedEntity is either an app or a user session, optionally with its token
type AuthenticatedEntity struct {
	Kind    EntityKind
	App     *AppRecord
	Session *SessionRecord
	Token   string
}

// UnmarshalJSON decodes whichever entity the API returned. Sessions are
// recognised by their bound user.
func (e *AuthenticatedEntity) UnmarshalJSON(data []byte) error {
	var probe struct {
		User  json.RawMessage `json:"user"`
		Token string          `json:"token"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	e.Token = probe.Token
	if len(probe.User) > 0 && string(probe.User) != "null" {
		var session SessionRecord
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		e.Kind, e.Session, e.App = EntitySession, &session, nil
		return nil
	}
	var app AppRecord
	if err := json.Unmarshal(data, &app); err != nil {
		return err
	}
	e.Kind, e.App, e.Session = EntityApp, &app, nil
	return nil
}

// ID returns the entity's ID
func (e *AuthenticatedEntity) ID() int64 {
	if e.Kind == EntitySession {
		return e.Session.ID
	}
	return e.App.ID
}

func (e *AuthenticatedEntity) validate() error {
	if e.Kind == EntitySession {
		return recordValidate.Struct(e.Session)
	}
	return recordValidate.Struct(e.App)
}

// discordAuthenticate is the body of a Discord login request
type discordAuthenticate struct {
	Token string `json:"token" validate:"required"`
}

// relationshipCreate is the body of a proposal
type relationshipCreate struct {
	Kind RelationshipKind `json:"kind" validate:"required,oneof=marriage adoption"`
}

// genderUpdate is the body of a gender change
type genderUpdate struct {
	Gender Gender `json:"gender" validate:"required,oneof=non_binary female male"`
}
