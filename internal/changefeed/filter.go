package changefeed

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

var ErrFeedClosed = errors.New("changefeed: feed is closed")

// rowFilter is a parsed column-equality predicate. The zero value matches
// every document.
type rowFilter struct {
	field string
	value string
}

// parseFilter understands the "column=eq.value" filter syntax. An empty
// string yields a match-all filter.
func parseFilter(s string) (rowFilter, error) {
	if s == "" {
		return rowFilter{}, nil
	}

	field, rest, ok := strings.Cut(s, "=")
	if !ok {
		return rowFilter{}, fmt.Errorf("changefeed: malformed filter %q", s)
	}

	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok {
		return rowFilter{}, fmt.Errorf("changefeed: unsupported operator in filter %q", s)
	}

	if field == "" || value == "" {
		return rowFilter{}, fmt.Errorf("changefeed: empty field or value in filter %q", s)
	}

	return rowFilter{field: field, value: value}, nil
}

// matches applies the predicate against a raw document. Delete events
// carry no document; only the match-all filter sees those.
func (f rowFilter) matches(doc bson.Raw) bool {
	if f.field == "" {
		return true
	}
	if doc == nil {
		return false
	}

	val, ok := doc.Lookup(f.field).StringValueOK()
	if !ok {
		return false
	}
	return val == f.value
}
