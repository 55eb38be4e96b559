package conversation

import (
	"time"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
)

const replyPreviewLimit = 80

// TimelineMessage is one rendered bubble: the row plus view-side fields.
type TimelineMessage struct {
	model.Message
	Mine         bool          `json:"mine"`
	ReplyPreview *ReplyPreview `json:"replyPreview,omitempty"`
}

// ReplyPreview is the quoted fragment shown above a threaded reply.
type ReplyPreview struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
}

// DayGroup is one date-separated bucket of the timeline.
type DayGroup struct {
	Label    string            `json:"label"`
	Date     time.Time         `json:"date"`
	Messages []TimelineMessage `json:"messages"`
}

// groupByDay buckets messages by local calendar day, preserving the
// original chronological order inside each bucket.
func groupByDay(msgs []TimelineMessage, now time.Time) []DayGroup {
	var groups []DayGroup

	for _, m := range msgs {
		day := startOfDay(m.CreatedAt.In(now.Location()))
		if n := len(groups); n > 0 && groups[n-1].Date.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{
			Label:    dayLabel(day, now),
			Date:     day,
			Messages: []TimelineMessage{m},
		})
	}

	return groups
}

// dayLabel renders the date separator: "Today", "Yesterday", or the full
// date for anything older.
func dayLabel(day time.Time, now time.Time) string {
	today := startOfDay(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("January 2, 2006")
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
