package domain

import (
	"sort"
	"time"
)

// CorporateAction represents one dividend/bonus-share event for an instrument.
// Corresponds to the corporate_actions table in PostgreSQL.
type CorporateAction struct {
	Instrument   string    // instrument identifier
	ExDate       time.Time // ex-dividend date (date-only, UTC midnight)
	BonusRatio   float64   // bonus/transfer shares per ten held, >= 0
	CashDividend float64   // cash dividend per share, >= 0
}

// IsNoop reports whether the action has no price effect.
func (a CorporateAction) IsNoop() bool {
	return a.BonusRatio == 0 && a.CashDividend == 0
}

// SortActions orders actions by ex-dividend date ascending, in place.
func SortActions(actions []CorporateAction) {
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].ExDate.Before(actions[j].ExDate)
	})
}

// ClipActions drops actions whose ex-dividend date falls after lastBar.
// Such actions cannot yet affect the stored series.
func ClipActions(actions []CorporateAction, lastBar time.Time) []CorporateAction {
	out := actions[:0:0]
	for _, a := range actions {
		if !a.ExDate.After(lastBar) {
			out = append(out, a)
		}
	}
	return out
}
