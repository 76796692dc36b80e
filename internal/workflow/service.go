package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emberhold-oss/keep/internal/models"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Actor is the authenticated caller as supplied by the session layer. The
// engine trusts it for the duration of one call; the rank is a snapshot and
// may lag behind an approved elevation until the user logs in again.
type Actor struct {
	ID       uuid.UUID
	Username string
	Rank     string
}

// Notifier delivers system mail. Failures are the caller's to log; a failed
// notification never rolls back a workflow mutation.
type Notifier interface {
	System(ctx context.Context, recipientID uuid.UUID, subject, body string) error
}

// Service is the request/approval engine. Every approve, reject and disband
// runs as one unit of work against the shared store; re-validation happens
// inside the same transaction that performs the mutation.
type Service struct {
	db       *bun.DB
	notifier Notifier
}

func NewService(db *bun.DB, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// ApprovalResult carries the reviewed request and, for creation approvals,
// the newly created party.
type ApprovalResult struct {
	Request *models.Request
	Party   *models.Party
}

// --- Submission ---

// SubmitCreation files a pending party-creation request.
func (s *Service) SubmitCreation(ctx context.Context, actor Actor, partyName, message string) (*models.Request, error) {
	partyName = strings.TrimSpace(partyName)
	if len(partyName) < 3 {
		return nil, ErrNameTooShort
	}

	if err := s.checkUnaffiliated(ctx, s.db, actor.ID); err != nil {
		return nil, err
	}
	if err := s.checkNoPending(ctx, s.db, actor.ID, models.KindPartyCreation); err != nil {
		return nil, err
	}

	taken, err := s.db.NewSelect().
		Model((*models.Party)(nil)).
		Where("name = ?", partyName).
		Where("is_active = 1").
		Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check party name: %w", err)
	}
	if taken {
		return nil, ErrPartyNameTaken
	}

	req := &models.Request{
		ID:        uuid.New(),
		Kind:      models.KindPartyCreation,
		UserID:    actor.ID,
		PartyName: partyName,
		Message:   strings.TrimSpace(message),
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(req).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert creation request: %w", err)
	}
	return req, nil
}

// SubmitJoin files a pending join request against an active party and
// notifies the party's captains. Notification is best-effort.
func (s *Service) SubmitJoin(ctx context.Context, actor Actor, partyID uuid.UUID, message string) (*models.Request, error) {
	if err := s.checkUnaffiliated(ctx, s.db, actor.ID); err != nil {
		return nil, err
	}
	if err := s.checkNoPending(ctx, s.db, actor.ID, models.KindPartyJoin); err != nil {
		return nil, err
	}

	party := new(models.Party)
	err := s.db.NewSelect().
		Model(party).
		Where("p.id = ?", partyID).
		Where("p.is_active = 1").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPartyNotFound
		}
		return nil, fmt.Errorf("load party: %w", err)
	}

	req := &models.Request{
		ID:        uuid.New(),
		Kind:      models.KindPartyJoin,
		UserID:    actor.ID,
		PartyID:   &party.ID,
		Message:   strings.TrimSpace(message),
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(req).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert join request: %w", err)
	}

	s.notifyCaptains(ctx, party, req, actor)
	return req, nil
}

// SubmitElevation files a pending rank-elevation request. Only the admin
// rank may be requested. Leadership is notified best-effort.
func (s *Service) SubmitElevation(ctx context.Context, actor Actor, requestedRank, message string) (*models.Request, error) {
	if requestedRank != models.RankAdmin {
		return nil, ErrInvalidRank
	}
	if err := s.checkNoPending(ctx, s.db, actor.ID, models.KindRankElevation); err != nil {
		return nil, err
	}

	req := &models.Request{
		ID:            uuid.New(),
		Kind:          models.KindRankElevation,
		UserID:        actor.ID,
		RequestedRank: requestedRank,
		Message:       strings.TrimSpace(message),
		Status:        models.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(req).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert elevation request: %w", err)
	}

	s.notifyLeadership(ctx, req, actor)
	return req, nil
}

// --- Review ---

// Approve transitions a pending request to approved and applies its mutation,
// all in one transaction. Preconditions are re-checked inside the transaction
// because state may have drifted since submission; any violation rolls the
// whole thing back.
func (s *Service) Approve(ctx context.Context, kind models.RequestKind, requestID uuid.UUID, reviewer Actor) (*ApprovalResult, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}

	req := new(models.Request)
	res := &ApprovalResult{Request: req}
	var notifyParty *models.Party

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.loadPending(ctx, tx, kind, requestID, req); err != nil {
			return err
		}
		if err := s.authorizeReview(ctx, tx, req, reviewer); err != nil {
			return err
		}

		switch req.Kind {
		case models.KindPartyCreation:
			party, err := s.applyCreation(ctx, tx, req)
			if err != nil {
				return err
			}
			res.Party = party
		case models.KindPartyJoin:
			party, err := s.applyJoin(ctx, tx, req)
			if err != nil {
				return err
			}
			notifyParty = party
		case models.KindRankElevation:
			if err := s.applyElevation(ctx, tx, req); err != nil {
				return err
			}
		}

		return s.stamp(ctx, tx, req, models.StatusApproved, reviewer)
	})
	if err != nil {
		return nil, err
	}

	switch req.Kind {
	case models.KindPartyJoin:
		s.notify(ctx, req.UserID,
			fmt.Sprintf("Join approved: %s", notifyParty.Name),
			fmt.Sprintf("Your request to join %s was approved.", notifyParty.Name))
	case models.KindRankElevation:
		s.notify(ctx, req.UserID,
			"Rank request approved",
			fmt.Sprintf("Your request for the %s rank was approved.", req.RequestedRank))
	}
	return res, nil
}

// Reject stamps a pending request rejected. No other entity is touched.
func (s *Service) Reject(ctx context.Context, kind models.RequestKind, requestID uuid.UUID, reviewer Actor) (*models.Request, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}

	req := new(models.Request)
	var partyName string

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.loadPending(ctx, tx, kind, requestID, req); err != nil {
			return err
		}
		if err := s.authorizeReview(ctx, tx, req, reviewer); err != nil {
			return err
		}
		if req.Kind == models.KindPartyJoin {
			// Best-effort lookup for the notification subject; the party may
			// legitimately be gone by now.
			_ = tx.NewSelect().
				Model((*models.Party)(nil)).
				Column("name").
				Where("id = ?", req.PartyID).
				Scan(ctx, &partyName)
		}
		return s.stamp(ctx, tx, req, models.StatusRejected, reviewer)
	})
	if err != nil {
		return nil, err
	}

	if req.Kind == models.KindPartyJoin {
		if partyName == "" {
			partyName = "the party"
		}
		s.notify(ctx, req.UserID,
			fmt.Sprintf("Join rejected: %s", partyName),
			fmt.Sprintf("Your request to join %s was rejected.", partyName))
	}
	return req, nil
}

// Disband archives an active party: memberships are deleted, the party is
// flagged inactive (its name becomes reusable) and its own pending join
// requests are purged. Leadership only.
func (s *Service) Disband(ctx context.Context, partyID uuid.UUID, actor Actor) error {
	if !models.IsLeadershipRank(actor.Rank) {
		return ErrNotAuthorized
	}

	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		party := new(models.Party)
		err := tx.NewSelect().
			Model(party).
			Where("p.id = ?", partyID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPartyNotFound
			}
			return fmt.Errorf("load party: %w", err)
		}
		if !party.Active {
			return ErrPartyArchived
		}

		if _, err := tx.NewDelete().
			Model((*models.PartyMember)(nil)).
			Where("party_id = ?", partyID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}

		if _, err := tx.NewUpdate().
			Model((*models.Party)(nil)).
			Set("is_active = 0").
			Where("id = ?", partyID).
			Exec(ctx); err != nil {
			return fmt.Errorf("archive party: %w", err)
		}

		// Pending join requests against this party can no longer be approved.
		// Requests targeting other parties are untouched.
		if _, err := tx.NewDelete().
			Model((*models.Request)(nil)).
			Where("kind = ?", models.KindPartyJoin).
			Where("party_id = ?", partyID).
			Where("status = ?", models.StatusPending).
			Exec(ctx); err != nil {
			return fmt.Errorf("purge pending join requests: %w", err)
		}
		return nil
	})
}

// IsCaptain reports whether the user holds the captain role of the given
// party. Computed live on every call; captaincy is never cached.
func (s *Service) IsCaptain(ctx context.Context, userID, partyID uuid.UUID) (bool, error) {
	return isCaptain(ctx, s.db, userID, partyID)
}

// --- Internals ---

func (s *Service) loadPending(ctx context.Context, tx bun.Tx, kind models.RequestKind, requestID uuid.UUID, req *models.Request) error {
	err := tx.NewSelect().
		Model(req).
		Where("r.id = ?", requestID).
		Where("r.kind = ?", kind).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("load request: %w", err)
	}
	if req.Status != models.StatusPending {
		return fmt.Errorf("request is already %s: %w", req.Status, ErrAlreadyReviewed)
	}
	return nil
}

// authorizeReview enforces the two authority axes: the leadership tier for
// creation and elevation requests, the live captain check for join requests.
func (s *Service) authorizeReview(ctx context.Context, tx bun.Tx, req *models.Request, reviewer Actor) error {
	switch req.Kind {
	case models.KindPartyCreation, models.KindRankElevation:
		if !models.IsLeadershipRank(reviewer.Rank) {
			return ErrNotAuthorized
		}
	case models.KindPartyJoin:
		ok, err := isCaptain(ctx, tx, reviewer.ID, *req.PartyID)
		if err != nil {
			return fmt.Errorf("captain check: %w", err)
		}
		if !ok {
			return ErrNotAuthorized
		}
	}
	return nil
}

func (s *Service) applyCreation(ctx context.Context, tx bun.Tx, req *models.Request) (*models.Party, error) {
	if err := s.checkUnaffiliated(ctx, tx, req.UserID); err != nil {
		return nil, err
	}

	taken, err := tx.NewSelect().
		Model((*models.Party)(nil)).
		Where("name = ?", req.PartyName).
		Where("is_active = 1").
		Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check party name: %w", err)
	}
	if taken {
		return nil, ErrPartyNameTaken
	}

	now := time.Now().UTC()
	party := &models.Party{
		ID:          uuid.New(),
		Name:        req.PartyName,
		Description: req.Message,
		CreatedBy:   req.UserID,
		Active:      true,
		CreatedAt:   now,
	}
	if _, err := tx.NewInsert().Model(party).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert party: %w", err)
	}

	roles := []models.PartyRole{
		{ID: uuid.New(), PartyID: party.ID, Name: models.RoleCaptain, ManageMembers: true, Invite: true},
		{ID: uuid.New(), PartyID: party.ID, Name: models.RoleSecond, ManageMembers: true, Invite: true},
		{ID: uuid.New(), PartyID: party.ID, Name: models.RoleMember},
	}
	if _, err := tx.NewInsert().Model(&roles).Exec(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap party roles: %w", err)
	}

	member := &models.PartyMember{
		ID:       uuid.New(),
		PartyID:  party.ID,
		UserID:   req.UserID,
		RoleID:   roles[0].ID,
		JoinedAt: now,
	}
	if _, err := tx.NewInsert().Model(member).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert captain membership: %w", err)
	}

	party.Roles = roles
	party.Members = []models.PartyMember{*member}
	return party, nil
}

func (s *Service) applyJoin(ctx context.Context, tx bun.Tx, req *models.Request) (*models.Party, error) {
	if err := s.checkUnaffiliated(ctx, tx, req.UserID); err != nil {
		return nil, err
	}

	party := new(models.Party)
	err := tx.NewSelect().
		Model(party).
		Where("p.id = ?", req.PartyID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPartyArchived
		}
		return nil, fmt.Errorf("load party: %w", err)
	}
	if !party.Active {
		return nil, ErrPartyArchived
	}

	roleID, err := s.ensureMemberRole(ctx, tx, party.ID)
	if err != nil {
		return nil, err
	}

	member := &models.PartyMember{
		ID:       uuid.New(),
		PartyID:  party.ID,
		UserID:   req.UserID,
		RoleID:   roleID,
		JoinedAt: time.Now().UTC(),
	}
	if _, err := tx.NewInsert().Model(member).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	return party, nil
}

func (s *Service) applyElevation(ctx context.Context, tx bun.Tx, req *models.Request) error {
	res, err := tx.NewUpdate().
		Model((*models.User)(nil)).
		Set("guild_rank = ?", req.RequestedRank).
		Where("id = ?", req.UserID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update guild rank: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	// The user's live session keeps its old rank until they log in again.
	return nil
}

// ensureMemberRole resolves the party's member role, creating it for parties
// bootstrapped before roles existed. Runs inside the caller's transaction.
func (s *Service) ensureMemberRole(ctx context.Context, tx bun.Tx, partyID uuid.UUID) (uuid.UUID, error) {
	role := new(models.PartyRole)
	err := tx.NewSelect().
		Model(role).
		Where("pr.party_id = ?", partyID).
		Where("pr.name = ?", models.RoleMember).
		Scan(ctx)
	if err == nil {
		return role.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("load member role: %w", err)
	}

	role = &models.PartyRole{
		ID:      uuid.New(),
		PartyID: partyID,
		Name:    models.RoleMember,
	}
	if _, err := tx.NewInsert().Model(role).Exec(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("backfill member role: %w", err)
	}
	return role.ID, nil
}

func (s *Service) stamp(ctx context.Context, tx bun.Tx, req *models.Request, status string, reviewer Actor) error {
	now := time.Now().UTC()
	req.Status = status
	req.ReviewedBy = &reviewer.ID
	req.ReviewedAt = &now

	if _, err := tx.NewUpdate().
		Model((*models.Request)(nil)).
		Set("status = ?", status).
		Set("reviewed_by = ?", reviewer.ID).
		Set("reviewed_at = ?", now).
		Where("id = ?", req.ID).
		Exec(ctx); err != nil {
		return fmt.Errorf("stamp request: %w", err)
	}
	return nil
}

func (s *Service) checkUnaffiliated(ctx context.Context, db bun.IDB, userID uuid.UUID) error {
	exists, err := db.NewSelect().
		Model((*models.PartyMember)(nil)).
		Where("user_id = ?", userID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if exists {
		return ErrAlreadyInParty
	}
	return nil
}

func (s *Service) checkNoPending(ctx context.Context, db bun.IDB, userID uuid.UUID, kind models.RequestKind) error {
	exists, err := db.NewSelect().
		Model((*models.Request)(nil)).
		Where("user_id = ?", userID).
		Where("kind = ?", kind).
		Where("status = ?", models.StatusPending).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("check pending request: %w", err)
	}
	if exists {
		return ErrPendingRequest
	}
	return nil
}

func isCaptain(ctx context.Context, db bun.IDB, userID, partyID uuid.UUID) (bool, error) {
	return db.NewSelect().
		Model((*models.PartyMember)(nil)).
		Join("JOIN party_roles AS pr ON pr.id = pm.role_id").
		Where("pm.party_id = ?", partyID).
		Where("pm.user_id = ?", userID).
		Where("pr.name = ?", models.RoleCaptain).
		Exists(ctx)
}

// --- Notifications ---

func (s *Service) notify(ctx context.Context, recipientID uuid.UUID, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.System(ctx, recipientID, subject, body); err != nil {
		log.Printf("workflow: notify %s failed: %v", recipientID, err)
	}
}

func (s *Service) notifyCaptains(ctx context.Context, party *models.Party, req *models.Request, requester Actor) {
	if s.notifier == nil {
		return
	}

	var captains []uuid.UUID
	err := s.db.NewSelect().
		Model((*models.PartyMember)(nil)).
		Column("pm.user_id").
		Join("JOIN party_roles AS pr ON pr.id = pm.role_id").
		Where("pm.party_id = ?", party.ID).
		Where("pr.name = ?", models.RoleCaptain).
		Scan(ctx, &captains)
	if err != nil {
		log.Printf("workflow: captain lookup for %s failed: %v", party.ID, err)
		return
	}

	subject := fmt.Sprintf("Join request: %s → %s", requester.Username, party.Name)
	body := fmt.Sprintf("Request ID: %s\n\n%s requested to join your party.", req.ID, requester.Username)
	if req.Message != "" {
		body += fmt.Sprintf("\n\nMessage:\n%s", req.Message)
	}
	for _, id := range captains {
		s.notify(ctx, id, subject, body)
	}
}

func (s *Service) notifyLeadership(ctx context.Context, req *models.Request, requester Actor) {
	if s.notifier == nil {
		return
	}

	var leaders []uuid.UUID
	err := s.db.NewSelect().
		Model((*models.User)(nil)).
		Column("u.id").
		Where("guild_rank IN (?)", bun.In([]string{models.RankAdmin, models.RankGuildMaster, models.RankFounder})).
		Scan(ctx, &leaders)
	if err != nil {
		log.Printf("workflow: leadership lookup failed: %v", err)
		return
	}

	subject := fmt.Sprintf("Admin request: %s", requester.Username)
	body := fmt.Sprintf("%s requested to become an admin.", requester.Username)
	if req.Message != "" {
		body += fmt.Sprintf("\n\nMessage from %s:\n%s", requester.Username, req.Message)
	}
	body += "\n\nReview it in the Rank Requests panel."
	for _, id := range leaders {
		s.notify(ctx, id, subject, body)
	}
}
