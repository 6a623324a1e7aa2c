package sla

import "time"

// RiskTier is a coarse classification of remaining SLA budget.
type RiskTier string

const (
	// RiskTierNone is used for terminal tickets and tickets never escalated.
	RiskTierNone    RiskTier = ""
	RiskTierOnTrack RiskTier = "ON_TRACK"
	RiskTierDueSoon RiskTier = "DUE_SOON"
	RiskTierDueNow  RiskTier = "DUE_NOW"
	RiskTierOverdue RiskTier = "OVERDUE"
)

// Rank orders tiers by urgency; NONE ranks lowest.
func (t RiskTier) Rank() int {
	switch t {
	case RiskTierOnTrack:
		return 1
	case RiskTierDueSoon:
		return 2
	case RiskTierDueNow:
		return 3
	case RiskTierOverdue:
		return 4
	default:
		return 0
	}
}

// Valid reports whether t is a known tier, NONE included.
func (t RiskTier) Valid() bool {
	return t == RiskTierNone || t.Rank() > 0
}

// Default thresholds; deployments override them through config.
const (
	DefaultDueNow  = 5 * time.Minute
	DefaultDueSoon = 30 * time.Minute
)

// Classifier maps remaining budget to a tier.
type Classifier struct {
	DueNow  time.Duration
	DueSoon time.Duration
}

// NewClassifier builds a classifier, falling back to the defaults for
// non-positive thresholds and keeping DueSoon >= DueNow.
func NewClassifier(dueNow, dueSoon time.Duration) Classifier {
	if dueNow <= 0 {
		dueNow = DefaultDueNow
	}
	if dueSoon <= 0 {
		dueSoon = DefaultDueSoon
	}
	if dueSoon < dueNow {
		dueSoon = dueNow
	}
	return Classifier{DueNow: dueNow, DueSoon: dueSoon}
}

// Tier classifies a remaining-seconds figure. Boundaries are inclusive on the
// more urgent side: exactly DueNow left is DUE_NOW.
func (c Classifier) Tier(remainingSeconds int64) RiskTier {
	switch {
	case remainingSeconds < 0:
		return RiskTierOverdue
	case remainingSeconds <= seconds(c.DueNow):
		return RiskTierDueNow
	case remainingSeconds <= seconds(c.DueSoon):
		return RiskTierDueSoon
	default:
		return RiskTierOnTrack
	}
}

// Classify returns the tier for a snapshot; frozen snapshots have no tier.
func (c Classifier) Classify(s Snapshot) RiskTier {
	if s.Frozen {
		return RiskTierNone
	}
	return c.Tier(s.RemainingSeconds)
}
