package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/policy"
	"github.com/sakif/video-portal/internal/repository"
)

// ProfileService serves profile reads and the staff role-update action.
type ProfileService struct {
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, logger: logger}
}

// Me returns the caller's stored profile.
func (s *ProfileService) Me(ctx context.Context, sess auth.Session) (*model.Profile, error) {
	var (
		p   *model.Profile
		err error
	)
	switch {
	case sess.UserID != "":
		p, err = s.profiles.GetByID(ctx, sess.UserID)
	case sess.DiscordID != "":
		p, err = s.profiles.GetByDiscordID(ctx, sess.DiscordID)
	default:
		return nil, apperror.NotFoundMessage("Profile not found")
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFoundMessage("Profile not found")
	}
	return p, err
}

// UpdateRole sets the role of userID on behalf of actor.
//
// Checks run in the order their errors are reported: actor privilege,
// missing input, requested role, admin promotion, target existence, owner
// immutability. The role and the derived subscription status are written
// in one statement.
func (s *ProfileService) UpdateRole(ctx context.Context, actor auth.Session, userID, role string) (*model.Profile, error) {
	if d := policy.Decide(actor.Role, policy.ActionPromoteSubscriber); !d.Allowed {
		return nil, apperror.Forbidden(d.Message)
	}

	userID = strings.TrimSpace(userID)
	newRole := model.Role(strings.TrimSpace(role))
	if userID == "" || newRole == "" {
		return nil, apperror.ValidationFailed("userId", "Missing userId or role")
	}
	if !policy.IsAssignable(newRole) {
		return nil, apperror.ValidationFailed("role", "Invalid role")
	}
	if newRole == model.RoleAdmin {
		if d := policy.Decide(actor.Role, policy.ActionPromoteAdmin); !d.Allowed {
			return nil, apperror.Forbidden(d.Message)
		}
	}

	target, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("User not found")
		}
		return nil, err
	}

	// Re-checked against the stored target role.
	if err := policy.CheckRoleAssignment(actor.Role, target.Role, newRole); err != nil {
		return nil, err
	}

	status := policy.DeriveStatus(newRole, target.SubscriptionStatus)
	if err := s.profiles.UpdateRoleAndStatus(ctx, target.ID, newRole, status); err != nil {
		s.logger.Error("failed to update role",
			slog.String("target_id", target.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("role updated",
		slog.String("actor_id", actor.UserID),
		slog.String("actor_role", actor.Role.String()),
		slog.String("target_id", target.ID),
		slog.String("from", target.Role.String()),
		slog.String("to", newRole.String()),
	)

	target.Role = newRole
	target.SubscriptionStatus = status
	return target, nil
}

// ListProfiles pages through profiles for staff. query matches a substring
// of the email or Discord id.
func (s *ProfileService) ListProfiles(ctx context.Context, actor auth.Session, query string, limit, offset int) ([]model.Profile, error) {
	if d := policy.Decide(actor.Role, policy.ActionListProfiles); !d.Allowed {
		return nil, apperror.Forbidden(d.Message)
	}
	limit, offset = clampPage(limit, offset)

	profiles, err := s.profiles.List(ctx, repository.ProfileListOptions{
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
		Query:       strings.TrimSpace(query),
	})
	if err != nil {
		s.logger.Error("failed to list profiles", slog.String("error", err.Error()))
		return nil, err
	}
	return profiles, nil
}
