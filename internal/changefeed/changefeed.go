// Package changefeed turns a MongoDB change stream into keyed row-event
// subscriptions: one logical feed per (collection, filter), delivering
// insert/update/delete events for rows matching a column-equality filter.
package changefeed

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Kind is the row event type a subscription selects.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
	KindAll    Kind = "*"
)

// RowEvent is the tagged union delivered to subscribers. New carries the
// full document for inserts and updates; deletes carry only the id.
type RowEvent[T any] struct {
	Kind Kind
	New  *T
	ID   string
}

type subscription[T any] struct {
	kind   Kind
	filter rowFilter
	fn     func(RowEvent[T])
}

// Feed fans one collection's change stream out to filtered subscribers.
// Callbacks run synchronously on the pump goroutine in server-commit
// order; ordering across different feeds is not guaranteed.
//
// There is no reconnect-and-replay: when the stream drops, the feed
// closes and consumers must re-fetch a snapshot on the next subscribe.
type Feed[T any] struct {
	coll   *mongo.Collection
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[int64]*subscription[T]
	nextID int64
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// rawChange is the change stream document shape we care about.
type rawChange struct {
	OperationType string   `bson:"operationType"`
	FullDocument  bson.Raw `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// Open starts watching the collection. Requires the deployment to be a
// replica set (standalone mongod does not serve change streams).
func Open[T any](ctx context.Context, coll *mongo.Collection, logger *zap.Logger) (*Feed[T], error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := coll.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	f := &Feed[T]{
		coll:   coll,
		logger: logger,
		subs:   make(map[int64]*subscription[T]),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go f.pump(pumpCtx, stream)
	return f, nil
}

func (f *Feed[T]) pump(ctx context.Context, stream *mongo.ChangeStream) {
	defer close(f.done)
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var change rawChange
		if err := stream.Decode(&change); err != nil {
			f.logger.Error("change stream decode failed", zap.Error(err))
			continue
		}
		f.dispatch(change)
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		// Stream dropped on its own. No replay cursor is kept; consumers
		// re-fetch a fresh snapshot when they next subscribe.
		f.logger.Error("change stream terminated", zap.Error(err))
	}
	f.markClosed()
}

func (f *Feed[T]) dispatch(change rawChange) {
	kind, ok := kindOf(change.OperationType)
	if !ok {
		return
	}

	ev := RowEvent[T]{Kind: kind, ID: change.DocumentKey.ID}
	if kind != KindDelete && change.FullDocument != nil {
		var doc T
		if err := bson.Unmarshal(change.FullDocument, &doc); err != nil {
			f.logger.Error("change stream document unmarshal failed",
				zap.String("operation", change.OperationType), zap.Error(err))
			return
		}
		ev.New = &doc
	}

	for _, sub := range f.matching(kind, change.FullDocument) {
		sub.fn(ev)
	}
}

func (f *Feed[T]) matching(kind Kind, doc bson.Raw) []*subscription[T] {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []*subscription[T]
	for _, sub := range f.subs {
		if sub.kind != KindAll && sub.kind != kind {
			continue
		}
		if !sub.filter.matches(doc) {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// Subscribe registers a callback for row events of the given kind whose
// document matches the filter string ("column=eq.value", or empty for
// all rows). The returned function tears the subscription down; failing
// to call it leaks the subscription for the feed's lifetime.
func (f *Feed[T]) Subscribe(kind Kind, filter string, fn func(RowEvent[T])) (func(), error) {
	parsed, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFeedClosed
	}

	f.nextID++
	id := f.nextID
	f.subs[id] = &subscription[T]{kind: kind, filter: parsed, fn: fn}

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}, nil
}

func (f *Feed[T]) markClosed() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Closed reports whether the underlying stream has terminated.
func (f *Feed[T]) Closed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.closed
}

// Close stops the pump and waits for it to drain.
func (f *Feed[T]) Close() {
	f.cancel()
	<-f.done
}

func kindOf(operationType string) (Kind, bool) {
	switch operationType {
	case "insert":
		return KindInsert, true
	case "update", "replace":
		return KindUpdate, true
	case "delete":
		return KindDelete, true
	default:
		return "", false
	}
}
