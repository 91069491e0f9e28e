package service

import (
	"context"
	"log/slog"

	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/policy"
	"github.com/sakif/video-portal/internal/repository"
)

// SessionService derives session contents from the stored profile. It runs
// on first issuance and on every refresh, so the owner rule is re-applied
// each time.
type SessionService struct {
	profiles repository.ProfileRepository
	ownerID  string
	logger   *slog.Logger
}

var _ auth.Refresher = (*SessionService)(nil)

func NewSessionService(profiles repository.ProfileRepository, ownerID string, logger *slog.Logger) *SessionService {
	return &SessionService{profiles: profiles, ownerID: ownerID, logger: logger}
}

// Refresh implements auth.Refresher. It never fails.
func (s *SessionService) Refresh(ctx context.Context, sess auth.Session) (auth.Session, error) {
	return s.Enrich(ctx, sess), nil
}

// Enrich re-reads the profile behind sess and returns the session with the
// current internal id and role. A missing profile or a failed lookup yields
// the guest role. When the computed role differs from the stored one it is
// written back.
func (s *SessionService) Enrich(ctx context.Context, sess auth.Session) auth.Session {
	if sess.DiscordID == "" {
		sess.Role = model.RoleGuest
		return sess
	}

	p, err := s.profiles.GetByDiscordID(ctx, sess.DiscordID)
	if err != nil {
		s.logger.Warn("session enrichment fell back to guest",
			slog.String("discord_id", sess.DiscordID),
			slog.String("error", err.Error()),
		)
		sess.Role = model.RoleGuest
		return sess
	}

	sess.UserID = p.ID
	if p.Email != "" {
		sess.Email = p.Email
	}

	role := policy.ResolveRole(sess.DiscordID, s.ownerID, p.Role, true)
	if role != p.Role {
		if err := s.profiles.UpdateRole(ctx, p.ID, role); err != nil {
			s.logger.Error("persisting corrected role",
				slog.String("profile_id", p.ID),
				slog.String("role", role.String()),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("corrected stored role",
				slog.String("profile_id", p.ID),
				slog.String("from", p.Role.String()),
				slog.String("to", role.String()),
			)
		}
	}
	sess.Role = role
	return sess
}
