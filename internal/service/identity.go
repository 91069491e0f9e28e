package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/metrics"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/policy"
	"github.com/sakif/video-portal/internal/repository"
)

// Defaults for the login persistence bounds.
const (
	DefaultLoginPersistTimeout = 5 * time.Second
	backgroundPersistCeiling   = 30 * time.Second
)

// Login results, reported to metrics.
const (
	loginCreated = "created"
	loginUpdated = "updated"
	loginSkipped = "skipped"
	loginFailed  = "failed"
	loginTimeout = "timeout"
)

// Identity is what the identity provider told us about the user at login.
type Identity struct {
	DiscordID string
	Email     string
	AvatarURL string
	Username  string
}

// IdentityService writes the profile for a completed provider login.
//
// It never fails a login: every error is logged and dropped, and when the
// database is slow the caller is released after the persist timeout while
// the write carries on in the background.
type IdentityService struct {
	profiles repository.ProfileRepository
	ownerID  string
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Registry

	wg sync.WaitGroup
}

func NewIdentityService(
	profiles repository.ProfileRepository,
	ownerID string,
	timeout time.Duration,
	logger *slog.Logger,
	m *metrics.Registry,
) *IdentityService {
	if timeout <= 0 {
		timeout = DefaultLoginPersistTimeout
	}
	return &IdentityService{
		profiles: profiles,
		ownerID:  ownerID,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
	}
}

// ResolveLogin creates or refreshes the profile for id. It returns once the
// write finished or the persist timeout elapsed, whichever is first.
func (s *IdentityService) ResolveLogin(ctx context.Context, id Identity) {
	if id.DiscordID == "" {
		s.logger.Error("login without a Discord id, profile not saved",
			slog.String("email", id.Email),
			slog.Bool("manualFollowUp", true),
		)
		s.metrics.Login(loginSkipped)
		return
	}

	// DETACHED PERSISTENCE:
	// The write runs on a context that ignores the request's cancellation
	// and has its own ceiling. If it overruns the login timeout the user is
	// redirected anyway and the goroutine finishes the write afterwards.
	// The next refresh or login picks up whatever it stored. Wait blocks on
	// these goroutines at shutdown.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundPersistCeiling)
	done := make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer close(done)
		s.metrics.Login(s.persist(persistCtx, id))
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("profile persistence exceeded login timeout, continuing in background",
			slog.String("discord_id", id.DiscordID),
			slog.Duration("timeout", s.timeout),
		)
		s.metrics.Login(loginTimeout)
	}
}

// Wait blocks until every background profile write has finished.
func (s *IdentityService) Wait() {
	s.wg.Wait()
}

func (s *IdentityService) persist(ctx context.Context, id Identity) string {
	existing, err := s.profiles.GetByDiscordID(ctx, id.DiscordID)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, id)
	case errors.Is(err, apperror.ErrNotFound):
		return s.create(ctx, id)
	default:
		s.logger.Error("looking up profile at login",
			slog.String("discord_id", id.DiscordID),
			slog.String("error", err.Error()),
		)
		return loginFailed
	}
}

func (s *IdentityService) refresh(ctx context.Context, existing *model.Profile, id Identity) string {
	role := policy.ResolveRole(id.DiscordID, s.ownerID, existing.Role, true)
	if err := s.profiles.UpdateLogin(ctx, existing.ID, id.Email, id.AvatarURL, role); err != nil {
		s.logger.Error("updating profile at login",
			slog.String("profile_id", existing.ID),
			slog.String("error", err.Error()),
		)
		return loginFailed
	}
	if role != existing.Role {
		s.logger.Info("role changed at login",
			slog.String("profile_id", existing.ID),
			slog.String("from", existing.Role.String()),
			slog.String("to", role.String()),
		)
	}
	return loginUpdated
}

func (s *IdentityService) create(ctx context.Context, id Identity) string {
	p := &model.Profile{
		DiscordID:          id.DiscordID,
		Email:              id.Email,
		AvatarURL:          id.AvatarURL,
		Role:               policy.ResolveRole(id.DiscordID, s.ownerID, "", false),
		SubscriptionStatus: model.StatusInactive,
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		// A concurrent login for the same account won the insert.
		if errors.Is(err, apperror.ErrConflict) {
			existing, getErr := s.profiles.GetByDiscordID(ctx, id.DiscordID)
			if getErr == nil {
				return s.refresh(ctx, existing, id)
			}
		}
		s.logger.Error("creating profile at login",
			slog.String("discord_id", id.DiscordID),
			slog.String("error", err.Error()),
		)
		return loginFailed
	}
	s.logger.Info("profile created",
		slog.String("profile_id", p.ID),
		slog.String("discord_id", p.DiscordID),
		slog.String("role", p.Role.String()),
	)
	return loginCreated
}
