package draftboard

import (
	"context"
	"time"
)

// effects collects what a committed mutation must announce.
type effects struct {
	events []Event
	// clock is the pick whose deadline needs scheduling.
	clock *Pick
	// notify is set when clock went on the clock in this mutation and its buyer should hear about it.
	notify bool
}

func (fx *effects) event(typ, pickID string, at time.Time) {
	fx.events = append(fx.events, Event{Type: typ, PickID: pickID, At: at})
}

// nextPick returns the index of the pick that goes on the clock next: the
// lowest pending position, otherwise the deferred pick that has waited the
// longest (ties broken by position). It returns -1 when nobody is left.
func nextPick(picks []Pick) int {
	best := -1
	for i, p := range picks {
		if p.Status != PickPending {
			continue
		}
		if best < 0 || p.Position < picks[best].Position {
			best = i
		}
	}
	if best >= 0 {
		return best
	}
	for i, p := range picks {
		if p.Status != PickDeferred {
			continue
		}
		if best < 0 || deferredBefore(p, picks[best]) {
			best = i
		}
	}
	return best
}

func deferredBefore(a, b Pick) bool {
	switch {
	case a.DeferredAt == nil || b.DeferredAt == nil:
		return a.Position < b.Position
	case a.DeferredAt.Equal(*b.DeferredAt):
		return a.Position < b.Position
	default:
		return a.DeferredAt.Before(*b.DeferredAt)
	}
}

func anyUnclaimed(pool []PoolEntry) bool {
	for _, e := range pool {
		if e.Unclaimed() {
			return true
		}
	}
	return false
}

func indexOfPick(picks []Pick, id string) int {
	for i := range picks {
		if picks[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfEntry(pool []PoolEntry, offspringID string) int {
	for i := range pool {
		if pool[i].OffspringID == offspringID {
			return i
		}
	}
	return -1
}

// advance puts the next pick on the clock or completes the board. The board
// must have no pick on the clock. Both the picks and the board are persisted.
func advance(ctx context.Context, repo Repository, b *Board, picks []Pick, pool []PoolEntry, now time.Time, fx *effects) error {
	b.CurrentPickID = ""
	b.UpdatedAt = now

	if !anyUnclaimed(pool) {
		for i := range picks {
			if picks[i].Status != PickPending && picks[i].Status != PickDeferred {
				continue
			}
			resolved := now
			picks[i].Status = PickVoid
			picks[i].ResolvedAt = &resolved
			if err := repo.UpdatePick(ctx, &picks[i]); err != nil {
				return err
			}
		}
		complete(b, now, fx)
		return repo.Update(ctx, b)
	}

	i := nextPick(picks)
	if i < 0 {
		complete(b, now, fx)
		return repo.Update(ctx, b)
	}

	p := &picks[i]
	started := now
	p.Status = PickOnClock
	p.ClockStartedAt = &started
	p.DeadlineAt = nil
	if window := b.PickWindow(); window > 0 {
		deadline := now.Add(window)
		p.DeadlineAt = &deadline
	}
	if err := repo.UpdatePick(ctx, p); err != nil {
		return err
	}
	b.CurrentPickID = p.ID
	clock := *p
	fx.clock = &clock
	fx.notify = true
	return repo.Update(ctx, b)
}

func complete(b *Board, now time.Time, fx *effects) {
	done := now
	b.Status = BoardCompleted
	b.CompletedAt = &done
	b.RemainingOnPauseSec = nil
	fx.event(EventCompleted, "", now)
}
