package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RequestKind is the closed set of approval workflows. All three kinds share
// one table and one pending/approved/rejected state machine; the payload
// columns used depend on the kind.
type RequestKind string

const (
	KindPartyCreation RequestKind = "party_creation"
	KindPartyJoin     RequestKind = "party_join"
	KindRankElevation RequestKind = "rank_elevation"
)

func (k RequestKind) Valid() bool {
	switch k {
	case KindPartyCreation, KindPartyJoin, KindRankElevation:
		return true
	}
	return false
}

// Request statuses. A request is written once as pending and stamped exactly
// once by a reviewer; rows are never deleted, except pending join requests
// purged by a disband.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Request struct {
	bun.BaseModel `bun:"table:requests,alias:r"`

	ID     uuid.UUID   `bun:"id,pk,type:text"           json:"id"`
	Kind   RequestKind `bun:"kind,notnull"              json:"kind"`
	UserID uuid.UUID   `bun:"user_id,notnull,type:text" json:"user_id"`

	// Kind-specific payload: party_creation uses PartyName, party_join uses
	// PartyID, rank_elevation uses RequestedRank. Message is optional for all.
	PartyName     string     `bun:"party_name"              json:"party_name,omitempty"`
	PartyID       *uuid.UUID `bun:"party_id,type:text"      json:"party_id,omitempty"`
	RequestedRank string     `bun:"requested_rank"          json:"requested_rank,omitempty"`
	Message       string     `bun:"message"                 json:"message,omitempty"`

	Status     string     `bun:"status,notnull"              json:"status"`
	ReviewedBy *uuid.UUID `bun:"reviewed_by,type:text"       json:"reviewed_by,omitempty"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull" json:"created_at"`
	ReviewedAt *time.Time `bun:"reviewed_at"                 json:"reviewed_at,omitempty"`
}
