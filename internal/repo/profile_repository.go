package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/db"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
)

type ProfileRepository interface {
	Get(ctx context.Context, id string) (*model.Profile, error)
	LastSeen(ctx context.Context, id string) (*time.Time, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

type profileRepository struct {
	profiles *db.Repository[model.Profile]
	logger   *zap.Logger
}

func NewProfileRepository(profiles *db.Repository[model.Profile], logger *zap.Logger) ProfileRepository {
	return &profileRepository{
		profiles: profiles,
		logger:   logger,
	}
}

func (r *profileRepository) Get(ctx context.Context, id string) (*model.Profile, error) {
	if id == "" {
		return nil, ErrMissingParticipant
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	profile, err := r.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("failed to fetch profile", zap.String("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("fetch profile failed: %w", err)
	}

	return profile, nil
}

// LastSeen reads the durable last_seen column. Returns nil when the user
// has no profile or has never been seen.
func (r *profileRepository) LastSeen(ctx context.Context, id string) (*time.Time, error) {
	profile, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, nil
	}
	return profile.LastSeen, nil
}

// TouchLastSeen durably records the moment a presence session detached.
// Best-effort by design: a killed process simply leaves the previous value
// stale until the next successful write.
func (r *profileRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	if id == "" {
		return ErrMissingParticipant
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.profiles.UpsertByID(ctx, id, bson.M{"last_seen": at})
	if err != nil {
		r.logger.Error("failed to write last_seen", zap.String("user_id", id), zap.Error(err))
		return fmt.Errorf("write last_seen failed: %w", err)
	}

	r.logger.Debug("last_seen written", zap.String("user_id", id), zap.Time("at", at))
	return nil
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
