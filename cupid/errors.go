package cupid

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed API call by its HTTP status
type Kind int

const (
	// KindClient is any 4xx status without a more specific kind
	KindClient Kind = iota
	// KindBadAuthentication is returned for 401 responses
	KindBadAuthentication
	// KindForbidden is returned for 403 responses
	KindForbidden
	// KindNotFound is returned for 404 responses
	KindNotFound
	// KindConflict is returned for 409 responses
	KindConflict
	// KindValidation is returned for 422 responses
	KindValidation
	// KindServer is returned for 5xx responses
	KindServer
)

// String returns the string representation of a Kind
func (k Kind) String() string {
	switch k {
	case KindBadAuthentication:
		return "bad authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server error"
	default:
		return "client error"
	}
}

// KindForStatus maps an HTTP status code onto the error taxonomy.
// It must only be called for non-2xx statuses.
func KindForStatus(status int) Kind {
	switch {
	case status >= 500:
		return KindServer
	case status == http.StatusUnauthorized:
		return KindBadAuthentication
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindClient
	}
}

// Sentinel errors matched by *APIError through errors.Is.
var (
	// ErrClient matches every client-caused (4xx) API error
	ErrClient = errors.New("cupid: client error")
	// ErrServer matches every server-caused (5xx) API error
	ErrServer = errors.New("cupid: server error")
	// ErrBadAuthentication indicates missing or invalid authentication
	ErrBadAuthentication = errors.New("cupid: bad authentication")
	// ErrForbidden indicates the operation is not permitted for the caller
	ErrForbidden = errors.New("cupid: forbidden")
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("cupid: not found")
	// ErrConflict indicates the operation conflicts with current state
	ErrConflict = errors.New("cupid: conflict")
	// ErrValidation indicates the server rejected the provided data
	ErrValidation = errors.New("cupid: validation failed")
)

// Errors that are not produced by an HTTP status.
var (
	// ErrInvalidResponse indicates a successful response whose body could not be decoded or validated
	ErrInvalidResponse = errors.New("cupid: invalid response from API")
	// ErrGraphInconsistent indicates a graph relationship referencing a user missing from the same snapshot
	ErrGraphInconsistent = errors.New("cupid: inconsistent relationship graph")
	// ErrReadOnlyRelationship is returned when acting on a relationship the caller is not a party to
	ErrReadOnlyRelationship = errors.New("cupid: relationship is read-only")
	// ErrWrongEntityKind indicates a token that authenticates a different kind of entity than requested
	ErrWrongEntityKind = errors.New("cupid: token belongs to a different kind of entity")
	// ErrTotalUnknown is returned when a user list's total is queried before any page was fetched
	ErrTotalUnknown = errors.New("cupid: total is unknown until a page has been fetched")
	// ErrIteratorDone is returned by UserIterator.Next once the results are exhausted
	ErrIteratorDone = errors.New("cupid: no more users")
)

func (k Kind) sentinel() error {
	switch k {
	case KindBadAuthentication:
		return ErrBadAuthentication
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindValidation:
		return ErrValidation
	case KindServer:
		return ErrServer
	default:
		return ErrClient
	}
}

// ValidationProblem is a single field problem reported with a 422 response
type ValidationProblem struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// Path joins the location elements with dots, e.g. "body.discriminator"
func (p ValidationProblem) Path() string {
	parts := make([]string, len(p.Loc))
	for i, elem := range p.Loc {
		switch v := elem.(type) {
		case float64:
			parts[i] = fmt.Sprintf("%d", int64(v))
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, ".")
}

// APIError represents an error response from the Cupid API.
//
// Exactly one APIError is produced per failed call. Use errors.Is with the
// sentinel errors, or errors.As to read the server's payload:
//
//	var apiErr *cupid.APIError
//	if errors.As(err, &apiErr) && apiErr.Kind == cupid.KindValidation {
//		for _, problem := range apiErr.Problems { ... }
//	}
type APIError struct {
	Kind        Kind                `json:"-"`
	Status      int                 `json:"status"`
	Description string              `json:"description"`
	Message     string              `json:"message"`
	Problems    []ValidationProblem `json:"errors,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	description := strings.TrimSuffix(e.Description, ".")
	message := strings.TrimSuffix(e.Message, ".")
	if message == "" {
		return fmt.Sprintf("cupid API error: status %d: %s", e.Status, description)
	}
	return fmt.Sprintf("cupid API error: status %d: %s (%s)", e.Status, description, lowerFirst(message))
}

// Is reports whether target is the sentinel for this error's kind.
// ErrClient matches every 4xx kind.
func (e *APIError) Is(target error) bool {
	if target == ErrClient {
		return e.Kind != KindServer
	}
	return target == e.Kind.sentinel()
}

// IsNotFound checks if the error indicates a not found response
func (e *APIError) IsNotFound() bool {
	return e.Kind == KindNotFound
}

// IsUnauthorized checks if the error indicates an authentication failure
func (e *APIError) IsUnauthorized() bool {
	return e.Kind == KindBadAuthentication
}

// IsConflict checks if the error indicates a state conflict
func (e *APIError) IsConflict() bool {
	return e.Kind == KindConflict
}

// GraphInconsistencyError reports a graph relationship whose user is absent from the snapshot
type GraphInconsistencyError struct {
	RelationshipID int64
	UserID         int64
}

func (e *GraphInconsistencyError) Error() string {
	return fmt.Sprintf("cupid: relationship %d references user %d missing from graph", e.RelationshipID, e.UserID)
}

func (e *GraphInconsistencyError) Unwrap() error {
	return ErrGraphInconsistent
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
