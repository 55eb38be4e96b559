package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/changefeed"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/db"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/messages"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/repo"
)

// stubRepo serves a fixed history; writes are accepted and discarded.
type stubRepo struct {
	history []model.Message
}

var _ repo.MessageRepository = (*stubRepo)(nil)

func (s *stubRepo) Insert(context.Context, *model.Message) error { return nil }

func (s *stubRepo) History(context.Context, string, string) ([]model.Message, error) {
	return s.history, nil
}

func (s *stubRepo) HistoryPage(context.Context, string, string, int64) (*db.PaginatedResult[model.Message], error) {
	return &db.PaginatedResult[model.Message]{Data: s.history}, nil
}

func (s *stubRepo) MarkRead(_ context.Context, ids []string) (int64, error) {
	return int64(len(ids)), nil
}

func (s *stubRepo) MarkDelivered(_ context.Context, ids []string) (int64, error) {
	return int64(len(ids)), nil
}

func (s *stubRepo) DeleteForAll(context.Context, string, string) error { return nil }

func (s *stubRepo) UnreadCount(context.Context, string, string) (int64, error) { return 0, nil }

func (s *stubRepo) LastBetween(context.Context, string, string) (*model.Message, error) {
	return nil, nil
}

type stubFeed struct{}

func (stubFeed) Subscribe(changefeed.Kind, string, func(changefeed.RowEvent[model.Message])) (func(), error) {
	return func() {}, nil
}

func openStore(t *testing.T, history []model.Message) *messages.Store {
	t.Helper()
	store := messages.NewStore("alice", "bob", &stubRepo{history: history}, stubFeed{}, zap.NewNop(), nil)
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(store.Close)
	return store
}

func tm(id string, at time.Time, sender string) TimelineMessage {
	return TimelineMessage{Message: model.Message{ID: id, CreatedAt: at, SenderID: sender}}
}

func TestGroupByDayLabels(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)
	msgs := []TimelineMessage{
		tm("m1", now.AddDate(0, 0, -7), "alice"),
		tm("m2", now.AddDate(0, 0, -1), "bob"),
		tm("m3", now.Add(-2*time.Hour), "alice"),
		tm("m4", now.Add(-time.Hour), "bob"),
	}

	groups := groupByDay(msgs, now)
	require.Len(t, groups, 3)

	assert.Equal(t, "August 24, 2026", groups[0].Label)
	assert.Equal(t, "Yesterday", groups[1].Label)
	assert.Equal(t, "Today", groups[2].Label)
	assert.Len(t, groups[2].Messages, 2)
	assert.Equal(t, "m3", groups[2].Messages[0].ID)
}

func TestGroupByDayEmpty(t *testing.T) {
	assert.Empty(t, groupByDay(nil, time.Now()))
}

func TestTruncatePreservesRunes(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
	assert.Equal(t, "héllo", truncate("héllo", 80))
}

func TestViewTimelineOwnershipAndGrouping(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	history := []model.Message{
		{ID: "m1", CreatedAt: now.Add(-time.Hour), SenderID: "bob", ReceiverID: "alice", Content: "hi", Status: model.StatusRead, Read: true},
		{ID: "m2", CreatedAt: now.Add(-30 * time.Minute), SenderID: "alice", ReceiverID: "bob", Content: "hello", Status: model.StatusSent},
	}
	view := NewView("alice", "bob", openStore(t, history), nil, nil, zap.NewNop())

	groups := view.Timeline(now)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Messages, 2)

	assert.False(t, groups[0].Messages[0].Mine)
	assert.True(t, groups[0].Messages[1].Mine)
}

func TestViewTimelineReplyPreview(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	ref := "m1"
	history := []model.Message{
		{ID: "m1", CreatedAt: now.Add(-time.Hour), SenderID: "bob", ReceiverID: "alice", Content: "original question", Status: model.StatusSent},
		{ID: "m2", CreatedAt: now.Add(-30 * time.Minute), SenderID: "alice", ReceiverID: "bob", Content: "answer", Status: model.StatusSent, ReplyToID: &ref},
	}
	view := NewView("alice", "bob", openStore(t, history), nil, nil, zap.NewNop())

	groups := view.Timeline(now)
	require.Len(t, groups, 1)

	reply := groups[0].Messages[1]
	require.NotNil(t, reply.ReplyPreview)
	assert.Equal(t, "m1", reply.ReplyPreview.MessageID)
	assert.Equal(t, "bob", reply.ReplyPreview.SenderID)
	assert.Equal(t, "original question", reply.ReplyPreview.Content)
}

func TestViewTimelineTombstone(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	ref := "m1"
	history := []model.Message{
		{ID: "m1", CreatedAt: now.Add(-time.Hour), SenderID: "alice", ReceiverID: "bob", Content: "oops", Status: model.StatusSent, DeletedForAll: true},
		{ID: "m2", CreatedAt: now.Add(-30 * time.Minute), SenderID: "bob", ReceiverID: "alice", Content: "?", Status: model.StatusSent, ReplyToID: &ref},
	}
	view := NewView("alice", "bob", openStore(t, history), nil, nil, zap.NewNop())

	groups := view.Timeline(now)
	require.Len(t, groups, 1)

	deleted := groups[0].Messages[0]
	assert.True(t, deleted.DeletedForAll)
	assert.Empty(t, deleted.Content, "tombstone keeps its slot but drops content")

	reply := groups[0].Messages[1]
	require.NotNil(t, reply.ReplyPreview)
	assert.Empty(t, reply.ReplyPreview.Content, "preview of a tombstone is blank too")
}
