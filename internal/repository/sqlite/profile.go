package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/repository"
)

// compile-time check that *ProfileStore implements repository.ProfileRepository
var _ repository.ProfileRepository = (*ProfileStore)(nil)

// ProfileStore persists profiles in the profiles table.
type ProfileStore struct {
	conn *sql.DB
}

const profileColumns = `id, discord_id, email, avatar_url, role, subscription_status,
	stripe_customer_id, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	var (
		p          model.Profile
		customerID sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.DiscordID,
		&p.Email,
		&p.AvatarURL,
		&p.Role,
		&p.SubscriptionStatus,
		&customerID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID.Valid && customerID.String != "" {
		p.BillingCustomerID = &customerID.String
	}
	return &p, nil
}

// Create inserts a new profile. ID and timestamps are generated here and
// written back onto p. A second profile for the same Discord id violates
// the UNIQUE constraint and is reported as apperror.ErrConflict.
func (s *ProfileStore) Create(ctx context.Context, p *model.Profile) error {
	now := time.Now().UTC()
	p.ID = xid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Role == "" {
		p.Role = model.RoleGuest
	}
	if p.SubscriptionStatus == "" {
		p.SubscriptionStatus = model.StatusInactive
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO profiles (id, discord_id, email, avatar_url, role, subscription_status,
			stripe_customer_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.DiscordID,
		p.Email,
		p.AvatarURL,
		p.Role,
		p.SubscriptionStatus,
		p.BillingCustomerID,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("profile", p.DiscordID)
		}
		return fmt.Errorf("sqlite: inserting profile (discordID=%s): %w", p.DiscordID, err)
	}
	return nil
}

// GetByID retrieves a profile by internal id.
func (s *ProfileStore) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(s.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", id)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", id, err)
	}
	return p, nil
}

// GetByDiscordID retrieves the profile linked to a Discord account.
func (s *ProfileStore) GetByDiscordID(ctx context.Context, discordID string) (*model.Profile, error) {
	p, err := scanProfile(s.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE discord_id = ?`, discordID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", discordID)
		}
		return nil, fmt.Errorf("sqlite: getting profile by discord id %s: %w", discordID, err)
	}
	return p, nil
}

// GetByBillingCustomerID retrieves the profile linked to a billing customer.
// Customer ids are not UNIQUE; the oldest matching profile wins.
func (s *ProfileStore) GetByBillingCustomerID(ctx context.Context, customerID string) (*model.Profile, error) {
	p, err := scanProfile(s.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE stripe_customer_id = ?
		 ORDER BY created_at ASC
		 LIMIT 1`, customerID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", customerID)
		}
		return nil, fmt.Errorf("sqlite: getting profile by customer %s: %w", customerID, err)
	}
	return p, nil
}

// List returns profiles newest first. A non-empty Query filters by a
// case-insensitive substring of email or discord id.
func (s *ProfileStore) List(ctx context.Context, opts repository.ProfileListOptions) ([]model.Profile, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if q := strings.TrimSpace(opts.Query); q != "" {
		query += ` WHERE email LIKE ? ESCAPE '\' OR discord_id LIKE ? ESCAPE '\'`
		pattern := "%" + escapeLike(q) + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing profiles: %w", err)
	}
	defer rows.Close()

	profiles := []model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile row: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profile rows: %w", err)
	}
	return profiles, nil
}

// UpdateLogin refreshes the fields sourced from the identity provider and
// the resolved role. Subscription status and customer id are left alone.
func (s *ProfileStore) UpdateLogin(ctx context.Context, id, email, avatarURL string, role model.Role) error {
	return s.update(ctx, id, "login",
		`UPDATE profiles SET email = ?, avatar_url = ?, role = ?, updated_at = ? WHERE id = ?`,
		email, avatarURL, role, time.Now().UTC(), id,
	)
}

func (s *ProfileStore) UpdateRole(ctx context.Context, id string, role model.Role) error {
	return s.update(ctx, id, "role",
		`UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`,
		role, time.Now().UTC(), id,
	)
}

func (s *ProfileStore) UpdateRoleAndStatus(ctx context.Context, id string, role model.Role, status model.SubscriptionStatus) error {
	return s.update(ctx, id, "role and status",
		`UPDATE profiles SET role = ?, subscription_status = ?, updated_at = ? WHERE id = ?`,
		role, status, time.Now().UTC(), id,
	)
}

func (s *ProfileStore) SetBillingCustomerID(ctx context.Context, id, customerID string) error {
	return s.update(ctx, id, "billing customer",
		`UPDATE profiles SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID, time.Now().UTC(), id,
	)
}

// update runs a single-row UPDATE and reports NotFound when no row matched.
func (s *ProfileStore) update(ctx context.Context, id, what, query string, args ...any) error {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s %s: %w", id, what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("profile", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
