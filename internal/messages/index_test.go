package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
)

func msgAt(id string, at time.Time, status model.MessageStatus) model.Message {
	return model.Message{
		ID:         id,
		CreatedAt:  at,
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "hello " + id,
		Status:     status,
	}
}

func TestIndexApplyIsIdempotent(t *testing.T) {
	ix := NewIndex()
	m := msgAt("m1", time.Now(), model.StatusSent)

	assert.True(t, ix.Apply(m))
	assert.False(t, ix.Apply(m), "re-applying the same row must be a no-op")

	require.Equal(t, 1, ix.Len())
	got, ok := ix.Get("m1")
	require.True(t, ok)
	assert.Equal(t, model.StatusSent, got.Status)
}

func TestIndexStatusNeverRegresses(t *testing.T) {
	ix := NewIndex()
	at := time.Now()

	ix.Apply(msgAt("m1", at, model.StatusRead))

	// A stale update claiming an earlier status must not walk it back.
	stale := msgAt("m1", at, model.StatusSent)
	ix.Apply(stale)

	got, _ := ix.Get("m1")
	assert.Equal(t, model.StatusRead, got.Status)
	assert.True(t, got.Read, "read flag is monotonic too")
}

func TestIndexReadImpliesDelivered(t *testing.T) {
	ix := NewIndex()
	m := msgAt("m1", time.Now(), model.StatusSent)
	m.Read = true

	ix.Apply(m)

	got, _ := ix.Get("m1")
	assert.Equal(t, model.StatusRead, got.Status)
}

func TestIndexKeepsChronologicalOrder(t *testing.T) {
	ix := NewIndex()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ix.Apply(msgAt("m3", base.Add(2*time.Minute), model.StatusSent))
	ix.Apply(msgAt("m1", base, model.StatusSent))
	ix.Apply(msgAt("m2", base.Add(time.Minute), model.StatusSent))

	snap := ix.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{snap[0].ID, snap[1].ID, snap[2].ID})
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex()
	base := time.Now()

	ix.Apply(msgAt("m1", base, model.StatusSending))
	ix.Apply(msgAt("m2", base.Add(time.Second), model.StatusSent))

	assert.True(t, ix.Remove("m1"))
	assert.False(t, ix.Remove("m1"))

	require.Equal(t, 1, ix.Len())
	got, ok := ix.Get("m2")
	require.True(t, ok)
	assert.Equal(t, "m2", got.ID)
}

func TestIndexReplaceUpdatesInPlace(t *testing.T) {
	ix := NewIndex()
	at := time.Now()

	ix.Apply(msgAt("m1", at, model.StatusSending))

	updated := msgAt("m1", at, model.StatusDelivered)
	assert.True(t, ix.Apply(updated))

	require.Equal(t, 1, ix.Len(), "replace must not duplicate the entry")
	got, _ := ix.Get("m1")
	assert.Equal(t, model.StatusDelivered, got.Status)
}
