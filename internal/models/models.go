package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Guild ranks, lowest to highest. Everything above member counts as
// leadership for approval endpoints.
const (
	RankMember      = "member"
	RankAdmin       = "admin"
	RankGuildMaster = "guild_master"
	RankFounder     = "founder"
)

// IsLeadershipRank reports whether rank belongs to the leadership tier.
func IsLeadershipRank(rank string) bool {
	switch rank {
	case RankAdmin, RankGuildMaster, RankFounder:
		return true
	}
	return false
}

// Per-party role names. Every party gets exactly one row per name.
const (
	RoleCaptain = "captain"
	RoleSecond  = "second"
	RoleMember  = "member"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID `bun:"id,pk,type:text"              json:"id"`
	Username     string    `bun:"username,notnull,unique"      json:"username"`
	PasswordHash string    `bun:"password_hash,notnull"        json:"-"`
	GuildRank    string    `bun:"guild_rank,notnull"           json:"guild_rank"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull"  json:"created_at"`
}

type Party struct {
	bun.BaseModel `bun:"table:parties,alias:p"`

	ID          uuid.UUID `bun:"id,pk,type:text"              json:"id"`
	Name        string    `bun:"name,notnull"                 json:"name"`
	Description string    `bun:"description"                  json:"description"`
	CreatedBy   uuid.UUID `bun:"created_by,notnull,type:text" json:"created_by"`
	Active      bool      `bun:"is_active,notnull"            json:"is_active"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull"  json:"created_at"`

	Members []PartyMember `bun:"rel:has-many,join:id=party_id" json:"members,omitempty"`
	Roles   []PartyRole   `bun:"rel:has-many,join:id=party_id" json:"roles,omitempty"`
}

type PartyRole struct {
	bun.BaseModel `bun:"table:party_roles,alias:pr"`

	ID            uuid.UUID `bun:"id,pk,type:text"            json:"id"`
	PartyID       uuid.UUID `bun:"party_id,notnull,type:text" json:"party_id"`
	Name          string    `bun:"name,notnull"               json:"name"`
	ManageMembers bool      `bun:"manage_members,notnull"     json:"manage_members"`
	Invite        bool      `bun:"invite,notnull"             json:"invite"`
}

type PartyMember struct {
	bun.BaseModel `bun:"table:party_members,alias:pm"`

	ID       uuid.UUID `bun:"id,pk,type:text"            json:"id"`
	PartyID  uuid.UUID `bun:"party_id,notnull,type:text" json:"party_id"`
	UserID   uuid.UUID `bun:"user_id,notnull,type:text"  json:"user_id"`
	RoleID   uuid.UUID `bun:"role_id,notnull,type:text"  json:"role_id"`
	JoinedAt time.Time `bun:"joined_at,nullzero,notnull" json:"joined_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
