package workflow

import "errors"

// Workflow errors, grouped by taxonomy. Handlers map these to HTTP statuses;
// anything not listed here is an internal storage fault and the unit of work
// that produced it has been rolled back.

// Validation: malformed input, rejected before any state is read.
var (
	ErrNameTooShort = errors.New("party name must be at least 3 characters")
	ErrInvalidRank  = errors.New("only the admin rank can be requested")
	ErrUnknownKind  = errors.New("unknown request kind")
)

// Unauthorized: the actor lacks global or party-local authority. The message
// never reveals whether the target exists.
var ErrNotAuthorized = errors.New("not authorized")

// Not found.
var (
	ErrRequestNotFound = errors.New("request not found")
	ErrPartyNotFound   = errors.New("party not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Conflict: an invariant violated at submission or re-discovered at review
// time. Every message names the violated invariant.
var (
	ErrAlreadyInParty  = errors.New("user is already in a party")
	ErrPendingRequest  = errors.New("a pending request of this kind already exists")
	ErrPartyNameTaken  = errors.New("that party name already exists")
	ErrAlreadyReviewed = errors.New("request is not pending")
	ErrPartyArchived   = errors.New("party is already removed")
)
