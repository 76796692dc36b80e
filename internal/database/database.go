package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emberhold-oss/keep/internal/models"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

func Connect(databaseURL string) (*bun.DB, error) {
	path := strings.TrimPrefix(databaseURL, "sqlite://")

	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := sqldb.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if _, err := sqldb.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Connected to SQLite: %s", path)
	return db, nil
}

func Migrate(ctx context.Context, db *bun.DB) error {
	log.Printf("Running database migrations...")

	tables := []interface{}{
		(*models.User)(nil),
		(*models.Party)(nil),
		(*models.PartyRole)(nil),
		(*models.PartyMember)(nil),
		(*models.Request)(nil),
		(*models.MailMessage)(nil),
		(*models.Announcement)(nil),
		(*models.PasswordReset)(nil),
	}

	for _, model := range tables {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	// The partial unique indexes are the storage-level backstop for the
	// workflow invariants: one membership per user, one pending request per
	// (user, kind), one active party per name.
	indexes := []struct {
		name  string
		query string
	}{
		{
			"idx_party_members_user",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_party_members_user ON party_members (user_id)",
		},
		{
			"idx_party_members_party",
			"CREATE INDEX IF NOT EXISTS idx_party_members_party ON party_members (party_id)",
		},
		{
			"idx_party_roles_unique",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_party_roles_unique ON party_roles (party_id, name)",
		},
		{
			"idx_parties_active_name",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_parties_active_name ON parties (name) WHERE is_active = 1",
		},
		{
			"idx_requests_pending_user_kind",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_pending_user_kind ON requests (user_id, kind) WHERE status = 'pending'",
		},
		{
			"idx_requests_status",
			"CREATE INDEX IF NOT EXISTS idx_requests_status ON requests (kind, status)",
		},
		{
			"idx_mail_recipient",
			"CREATE INDEX IF NOT EXISTS idx_mail_recipient ON mail_messages (recipient_id, is_read)",
		},
		{
			"idx_mail_sender",
			"CREATE INDEX IF NOT EXISTS idx_mail_sender ON mail_messages (sender_id)",
		},
	}

	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx.query); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	log.Printf("Migrations complete")
	return nil
}

// Seed ensures a usable admin account exists and optionally promotes the
// configured founder. Safe to run on every boot.
func Seed(ctx context.Context, db *bun.DB, adminPassword, founderUsername string) error {
	exists, err := db.NewSelect().
		Model((*models.User)(nil)).
		Where("username = ?", "admin").
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check admin user: %w", err)
	}

	if !exists {
		if adminPassword == "" {
			adminPassword = "admin123"
			log.Printf("Admin password is default 'admin123' (change this!)")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), 12)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}

		admin := &models.User{
			ID:           uuid.New(),
			Username:     "admin",
			PasswordHash: string(hash),
			GuildRank:    models.RankAdmin,
			CreatedAt:    time.Now().UTC(),
		}
		if _, err := db.NewInsert().Model(admin).Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}
		log.Printf("Seeded admin user: username=admin")
	}

	if founderUsername != "" {
		// Only promotes if the user exists; a no-op otherwise.
		if _, err := db.NewUpdate().
			Model((*models.User)(nil)).
			Set("guild_rank = ?", models.RankFounder).
			Where("username = ?", founderUsername).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to promote founder: %w", err)
		}
	}

	return nil
}
