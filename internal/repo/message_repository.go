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

var (
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	ErrInvalidMessage     = errors.New("invalid message: message cannot be nil")
	ErrMissingParticipant = errors.New("invalid participant: id cannot be empty")
	ErrOperationTimeout   = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	historyPageSize = 50
)

type messageRepository struct {
	messages *db.Repository[model.Message]
	logger   *zap.Logger
}

type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) error
	History(ctx context.Context, userA, userB string) ([]model.Message, error)
	HistoryPage(ctx context.Context, userA, userB string, page int64) (*db.PaginatedResult[model.Message], error)
	MarkRead(ctx context.Context, ids []string) (int64, error)
	MarkDelivered(ctx context.Context, ids []string) (int64, error)
	DeleteForAll(ctx context.Context, id, requesterID string) error
	UnreadCount(ctx context.Context, selfID, peerID string) (int64, error)
	LastBetween(ctx context.Context, userA, userB string) (*model.Message, error)
}

func NewMessageRepository(messages *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		messages: messages,
		logger:   logger,
	}
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) error {
	if err := m.validateMessage(msg); err != nil {
		return err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return err
			}
		}

		_, err := m.messages.Create(ctx, *msg)
		if err == nil {
			m.logger.Info("message inserted",
				zap.String("message_id", msg.ID),
				zap.String("sender_id", msg.SenderID),
				zap.String("receiver_id", msg.ReceiverID),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}

		// A duplicate key means the same logical message already round-tripped
		// (optimistic resend after a timed-out but committed write).
		if mongo.IsDuplicateKeyError(err) {
			m.logger.Debug("message already exists", zap.String("message_id", msg.ID))
			return nil
		}

		lastErr = err

		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("message_id", msg.ID),
	)

	if m.isRetryableError(lastErr) {
		return fmt.Errorf("insert message failed: %w", errors.Join(ErrMaxRetriesExceeded, lastErr))
	}
	return fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

// History returns every message of the unordered pair (userA, userB),
// oldest first.
func (m *messageRepository) History(ctx context.Context, userA, userB string) ([]model.Message, error) {
	if err := m.validatePair(userA, userB); err != nil {
		return nil, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msgs, err := m.messages.FindAllSorted(ctx, pairFilter(userA, userB), "created_at", false)
	if err != nil {
		return nil, m.handleReadError(err, userA, userB)
	}

	m.logger.Debug("history loaded",
		zap.String("user_a", userA),
		zap.String("user_b", userB),
		zap.Int("count", len(msgs)),
	)
	return msgs, nil
}

func (m *messageRepository) HistoryPage(ctx context.Context, userA, userB string, page int64) (*db.PaginatedResult[model.Message], error) {
	if err := m.validatePair(userA, userB); err != nil {
		return nil, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
			m.logger.Warn("retrying history page",
				zap.String("user_a", userA),
				zap.String("user_b", userB),
				zap.Int("attempt", attempt+1),
			)
		}

		result, err := m.messages.FindWithPagination(ctx, pairFilter(userA, userB), db.PaginationParams{
			Page:     page,
			PageSize: historyPageSize,
			SortBy:   "created_at",
			SortDesc: false,
		})
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}
	}

	return nil, m.handleReadError(lastErr, userA, userB)
}

// -----------------------------------------------------------------------------
// Receipt transitions
// -----------------------------------------------------------------------------

// MarkRead flips read=true and status=read for exactly the given ids.
// The status guard keeps the transition forward-only: rows already past
// the target status are untouched, so replays are no-ops.
func (m *messageRepository) MarkRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		In("_id", ids).
		Lt("status", model.StatusRead).
		Build()

	res, err := m.messages.UpdateMany(ctx, filter, bson.M{
		"read":   true,
		"status": model.StatusRead,
	})
	if err != nil {
		m.logger.Error("mark read failed", zap.Error(err), zap.Int("ids", len(ids)))
		return 0, fmt.Errorf("mark read failed: %w", err)
	}

	return res.ModifiedCount, nil
}

// MarkDelivered advances status to delivered for the given ids, never
// touching rows that already reached delivered or read.
func (m *messageRepository) MarkDelivered(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		In("_id", ids).
		Lt("status", model.StatusDelivered).
		Build()

	res, err := m.messages.UpdateMany(ctx, filter, bson.M{
		"status": model.StatusDelivered,
	})
	if err != nil {
		m.logger.Error("mark delivered failed", zap.Error(err), zap.Int("ids", len(ids)))
		return 0, fmt.Errorf("mark delivered failed: %w", err)
	}

	return res.ModifiedCount, nil
}

// DeleteForAll soft-deletes a message. Only the sender may delete for
// both sides; the row stays in place as a tombstone so receipts and
// ordering survive.
func (m *messageRepository) DeleteForAll(ctx context.Context, id, requesterID string) error {
	if id == "" || requesterID == "" {
		return ErrMissingParticipant
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("_id", id).
		Eq("sender_id", requesterID).
		Build()

	res, err := m.messages.UpdateOne(ctx, filter, bson.M{"deleted_for_all": true})
	if err != nil {
		m.logger.Error("delete for all failed", zap.Error(err), zap.String("message_id", id))
		return fmt.Errorf("delete for all failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("message %s not found or not owned by %s", id, requesterID)
	}

	return nil
}

// -----------------------------------------------------------------------------
// Inbox queries
// -----------------------------------------------------------------------------

func (m *messageRepository) UnreadCount(ctx context.Context, selfID, peerID string) (int64, error) {
	if err := m.validatePair(selfID, peerID); err != nil {
		return 0, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("receiver_id", selfID).
		Eq("sender_id", peerID).
		Eq("read", false).
		Build()

	return m.messages.Count(ctx, filter)
}

func (m *messageRepository) LastBetween(ctx context.Context, userA, userB string) (*model.Message, error) {
	if err := m.validatePair(userA, userB); err != nil {
		return nil, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	result, err := m.messages.FindWithPagination(ctx, pairFilter(userA, userB), db.PaginationParams{
		Page:     1,
		PageSize: 1,
		SortBy:   "created_at",
		SortDesc: true,
	})
	if err != nil {
		return nil, m.handleReadError(err, userA, userB)
	}
	if len(result.Data) == 0 {
		return nil, nil
	}

	last := result.Data[0]
	return &last, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

// pairFilter matches both orderings of sender/receiver for the pair.
func pairFilter(userA, userB string) bson.M {
	return db.NewFilter().Or(
		db.NewFilter().Eq("sender_id", userA).Eq("receiver_id", userB).Build(),
		db.NewFilter().Eq("sender_id", userB).Eq("receiver_id", userA).Build(),
	).Build()
}

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.SenderID == "" || msg.ReceiverID == "" {
		return ErrMissingParticipant
	}
	return nil
}

func (m *messageRepository) validatePair(userA, userB string) error {
	if userA == "" || userB == "" {
		return ErrMissingParticipant
	}
	return nil
}

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	return false
}

func (m *messageRepository) handleReadError(err error, userA, userB string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("user_a", userA), zap.String("user_b", userB))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("user_a", userA), zap.String("user_b", userB))
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil // Not an error, just empty result
	}

	m.logger.Error("read failed", zap.Error(err),
		zap.String("user_a", userA), zap.String("user_b", userB))
	return fmt.Errorf("load messages failed: %w", err)
}
