// Package adjust produces dividend/split-adjusted price series from raw
// bars and corporate-action events.
//
// Forward adjustment anchors to the most recent price: bars at or after
// the latest ex-dividend date are untouched and each boundary crossed
// going backward compounds one more factor onto all earlier bars, making
// history comparable to today's unadjusted quote. Backward adjustment
// anchors to the earliest price, compounding all distributions forward
// into later bars (a total-return style series).
package adjust

import (
	"fmt"

	"kline-archive/internal/codec"
	"kline-archive/internal/domain"
)

// Mode selects the adjustment direction.
type Mode int

const (
	None Mode = iota
	Forward
	Backward
)

func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode normalizes a human adjustment mode string.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "none", "raw":
		return None, nil
	case "forward", "qfq":
		return Forward, nil
	case "backward", "hfq":
		return Backward, nil
	default:
		return None, fmt.Errorf("unknown adjustment mode %q", s)
	}
}

// factor is one registered corporate-action effect. The bonus ratio is
// stored per ten shares, so the dilution factor is 1 + r/10.
type factor struct {
	r float64 // bonus shares per ten held
	d float64 // cash dividend per share
}

// forwardStep removes one distribution from a price.
func (f factor) forwardStep(p float64) float64 {
	switch {
	case f.r == 0:
		p -= f.d
	case f.d == 0:
		p /= 1 + f.r/10
	default:
		p = (p - f.d) / (1 + f.r/10)
	}
	return codec.RoundPrice(p)
}

// backwardStep compounds one distribution into a price.
func (f factor) backwardStep(p float64) float64 {
	return codec.RoundPrice(p*(1+f.r/10) + f.d)
}

// Apply adjusts raw bars with the given corporate actions. Bars must be
// ascending by time and actions ascending by ex-dividend date; actions
// dated after the last bar are dropped first, since they cannot yet affect
// the stored series. No actions (or mode None) passes bars through
// unchanged.
func Apply(bars []domain.Bar, actions []domain.CorporateAction, mode Mode) ([]domain.Bar, error) {
	switch mode {
	case None:
		return bars, nil
	case Forward, Backward:
	default:
		return nil, fmt.Errorf("unknown adjustment mode %d", int(mode))
	}
	if len(bars) == 0 {
		return bars, nil
	}

	actions = domain.ClipActions(actions, bars[len(bars)-1].Time)
	if len(actions) == 0 {
		return bars, nil
	}

	out := make([]domain.Bar, len(bars))
	copy(out, bars)

	if mode == Forward {
		forward(out, actions)
	} else {
		backward(out, actions)
	}
	rederiveChange(out)
	return out, nil
}

// forward walks bars newest to oldest and actions newest to oldest in
// lock-step. Crossing an ex-dividend boundary permanently registers that
// action's factor; registered factors are composed oldest-crossing first,
// i.e. in reverse registration order.
func forward(bars []domain.Bar, actions []domain.CorporateAction) {
	var factors []factor
	ai := len(actions) - 1

	for i := len(bars) - 1; i >= 0; i-- {
		for ai >= 0 && bars[i].Time.Before(actions[ai].ExDate) {
			if !actions[ai].IsNoop() {
				factors = append(factors, factor{r: actions[ai].BonusRatio, d: actions[ai].CashDividend})
			}
			ai--
		}
		if len(factors) == 0 {
			continue
		}
		adjustPrices(&bars[i], func(p float64) float64 {
			for j := len(factors) - 1; j >= 0; j-- {
				p = factors[j].forwardStep(p)
			}
			return p
		})
	}
}

// backward walks bars oldest to newest; once a bar reaches or passes an
// action's ex-dividend date the factor applies to it and everything later.
func backward(bars []domain.Bar, actions []domain.CorporateAction) {
	var factors []factor
	ai := 0

	for i := range bars {
		for ai < len(actions) && !bars[i].Time.Before(actions[ai].ExDate) {
			if !actions[ai].IsNoop() {
				factors = append(factors, factor{r: actions[ai].BonusRatio, d: actions[ai].CashDividend})
			}
			ai++
		}
		if len(factors) == 0 {
			continue
		}
		adjustPrices(&bars[i], func(p float64) float64 {
			for _, f := range factors {
				p = f.backwardStep(p)
			}
			return p
		})
	}
}

func adjustPrices(b *domain.Bar, step func(float64) float64) {
	b.Open = step(b.Open)
	b.High = step(b.High)
	b.Low = step(b.Low)
	b.Close = step(b.Close)
}

// rederiveChange recomputes the change columns against the adjusted
// previous close. The first bar has no adjusted predecessor and keeps its
// raw change fields.
func rederiveChange(bars []domain.Bar) {
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		bars[i].ChangePx = codec.RoundPrice(bars[i].Close - prev)
		if prev != 0 {
			bars[i].Change = bars[i].ChangePx / prev
		} else {
			bars[i].Change = 0
		}
	}
}
