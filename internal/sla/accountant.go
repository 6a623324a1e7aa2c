// Package sla computes SLA consumption and risk tiers for tickets.
//
// Everything here is a pure function of stored ticket events. Paused time is
// excluded from SLA consumption: only wall-clock time while a ticket is new,
// accepted or in progress counts against its deadline.
package sla

import "time"

// Timeline is the subset of ticket state the accountant reads.
type Timeline struct {
	CreatedAt          time.Time
	Target             time.Duration
	TotalPausedSeconds int64
	// PausedAt is set only while the ticket is currently paused.
	PausedAt *time.Time
	// ResolvedAt is set only for resolved or closed tickets.
	ResolvedAt             *time.Time
	FrozenRemainingSeconds *int64
}

// Snapshot is the accountant's answer for one instant.
type Snapshot struct {
	ElapsedBusySeconds int64
	PausedSeconds      int64
	RemainingSeconds   int64
	// Frozen is true for resolved/closed tickets; the values no longer move.
	Frozen bool
}

// IsOverdue reports whether the SLA budget is exhausted.
func (s Snapshot) IsOverdue() bool {
	return s.RemainingSeconds < 0
}

// MinsRemaining floors the remaining seconds to whole minutes, so a ticket
// one second overdue reports -1.
func (s Snapshot) MinsRemaining() int64 {
	return floorDiv(s.RemainingSeconds, 60)
}

// Compute evaluates the timeline at now. Terminal timelines are evaluated at
// their resolution instant and never against now.
func Compute(tl Timeline, now time.Time) Snapshot {
	if tl.ResolvedAt != nil {
		snap := computeAt(tl, *tl.ResolvedAt)
		if tl.FrozenRemainingSeconds != nil {
			snap.RemainingSeconds = *tl.FrozenRemainingSeconds
		}
		snap.Frozen = true
		return snap
	}
	return computeAt(tl, now)
}

// RemainingAt is the remaining budget in seconds at now, ignoring any
// terminal freeze. The state machine uses it to freeze the value on resolve.
func RemainingAt(tl Timeline, now time.Time) int64 {
	tl.ResolvedAt = nil
	tl.FrozenRemainingSeconds = nil
	return computeAt(tl, now).RemainingSeconds
}

// OpenPauseSeconds is the length of the pause interval still open at now.
func OpenPauseSeconds(pausedAt *time.Time, now time.Time) int64 {
	if pausedAt == nil {
		return 0
	}
	return nonNegative(seconds(now.Sub(*pausedAt)))
}

func computeAt(tl Timeline, now time.Time) Snapshot {
	paused := tl.TotalPausedSeconds + OpenPauseSeconds(tl.PausedAt, now)
	busy := nonNegative(seconds(now.Sub(tl.CreatedAt)) - paused)
	return Snapshot{
		ElapsedBusySeconds: busy,
		PausedSeconds:      paused,
		RemainingSeconds:   seconds(tl.Target) - busy,
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
