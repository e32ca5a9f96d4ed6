package marketdata

import (
	"context"
	"sync"

	"github.com/vk/viewgrid/internal/value"
)

// Source is a market-data subscription. The engine only consumes the
// stream; the channel is closed when ctx is done or the source fails.
type Source interface {
	Subscribe(ctx context.Context, leaves []value.Specification) (<-chan Update, error)
}

// Feed is an in-process Source driven by Publish. It is used for tests and
// for views that replay ticks from a file.
type Feed struct {
	mu     sync.Mutex
	subs   map[*feedSub]struct{}
	closed bool
}

type feedSub struct {
	ctx    context.Context
	leaves map[value.Specification]struct{}
	ch     chan Update
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[*feedSub]struct{})}
}

// Subscribe implements Source. Only updates for the given leaves are
// delivered; an empty leaf list delivers everything.
func (f *Feed) Subscribe(ctx context.Context, leaves []value.Specification) (<-chan Update, error) {
	sub := &feedSub{ctx: ctx, leaves: make(map[value.Specification]struct{}, len(leaves)), ch: make(chan Update, 64)}
	for _, l := range leaves {
		l.FunctionID = FunctionID
		sub.leaves[l] = struct{}{}
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.ch)
		return sub.ch, nil
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.remove(sub)
	}()
	return sub.ch, nil
}

func (f *Feed) remove(sub *feedSub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers an update to every interested subscriber. It blocks while
// a live subscriber's buffer is full.
func (f *Feed) Publish(u Update) {
	u.Spec.FunctionID = FunctionID
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if len(sub.leaves) > 0 {
			if _, ok := sub.leaves[u.Spec]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- u:
		case <-sub.ctx.Done():
		}
	}
}

// Close ends every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for sub := range f.subs {
		delete(f.subs, sub)
		close(sub.ch)
	}
}
