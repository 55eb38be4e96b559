package messages

import (
	"sort"
	"time"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
)

// Index is the single ingestion path for a conversation's messages. Every
// producer (initial load, optimistic send, all three change-stream
// subscriptions) writes through Apply, which replaces by id, so duplicate
// and out-of-order deliveries collapse into one code path:
//
//   - applying the same row twice is a no-op
//   - a message's status only moves forward (sending → sent → delivered → read)
//   - the list stays ordered by created_at ascending
//
// Index is not goroutine-safe; the owning Store serialises access.
type Index struct {
	byID map[string]int
	list []model.Message
}

func NewIndex() *Index {
	return &Index{
		byID: make(map[string]int),
	}
}

// Apply inserts or replaces a message by id. Reports whether state
// actually changed.
func (ix *Index) Apply(m model.Message) bool {
	normalize(&m)

	if i, ok := ix.byID[m.ID]; ok {
		existing := ix.list[i]

		// Receipt fields are monotonic: never let a stale event walk a
		// message backwards.
		if m.Status < existing.Status {
			m.Status = existing.Status
		}
		m.Read = m.Read || existing.Read
		m.DeletedForAll = m.DeletedForAll || existing.DeletedForAll
		normalize(&m)

		if equal(m, existing) {
			return false
		}
		ix.list[i] = m
		return true
	}

	ix.insert(m)
	return true
}

// normalize enforces read ⇒ delivered ⇒ sent on a single row.
func normalize(m *model.Message) {
	if m.Read && m.Status < model.StatusRead {
		m.Status = model.StatusRead
	}
	if m.Status == model.StatusRead {
		m.Read = true
	}
}

// equal compares rows by value; ReplyToID is compared by pointee so a
// re-decoded copy of the same row counts as unchanged.
func equal(a, b model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	if a.ReplyToID != nil || b.ReplyToID != nil {
		if a.ReplyToID == nil || b.ReplyToID == nil || *a.ReplyToID != *b.ReplyToID {
			return false
		}
	}
	a.ReplyToID, b.ReplyToID = nil, nil
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	return a == b
}

// insert places m at its chronological position and reindexes.
func (ix *Index) insert(m model.Message) {
	pos := sort.Search(len(ix.list), func(i int) bool {
		return ix.list[i].CreatedAt.After(m.CreatedAt)
	})

	ix.list = append(ix.list, model.Message{})
	copy(ix.list[pos+1:], ix.list[pos:])
	ix.list[pos] = m

	for i := pos; i < len(ix.list); i++ {
		ix.byID[ix.list[i].ID] = i
	}
}

// Remove drops a message by id (optimistic-send rollback).
func (ix *Index) Remove(id string) bool {
	i, ok := ix.byID[id]
	if !ok {
		return false
	}

	ix.list = append(ix.list[:i], ix.list[i+1:]...)
	delete(ix.byID, id)
	for j := i; j < len(ix.list); j++ {
		ix.byID[ix.list[j].ID] = j
	}
	return true
}

// Get returns a message by id.
func (ix *Index) Get(id string) (model.Message, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return model.Message{}, false
	}
	return ix.list[i], true
}

// Snapshot returns a copy of the ordered message list.
func (ix *Index) Snapshot() []model.Message {
	out := make([]model.Message, len(ix.list))
	copy(out, ix.list)
	return out
}

func (ix *Index) Len() int {
	return len(ix.list)
}
