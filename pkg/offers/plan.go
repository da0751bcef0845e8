package offers

import (
	"github.com/canopy-network/liquidityx/pkg/ledger"
)

// Replacement resizes a live offer that sits at a target price with too little amount.
type Replacement struct {
	Live   ledger.Offer `json:"live"`
	Target Target       `json:"target"`
}

// Plan is the set of changes that moves the live book onto the targets.
type Plan struct {
	Kept    []ledger.Offer `json:"kept,omitempty"`
	Cancel  []ledger.Offer `json:"cancel,omitempty"`
	Replace []Replacement  `json:"replace,omitempty"`
	Create  []Target       `json:"create,omitempty"`
}

// Empty reports whether the live book already satisfies every target.
func (p Plan) Empty() bool {
	return len(p.Cancel) == 0 && len(p.Replace) == 0 && len(p.Create) == 0
}

// Operations renders the plan: cancellations first, then replacements, then creations.
func (p Plan) Operations() []ledger.Operation {
	ops := make([]ledger.Operation, 0, len(p.Cancel)+len(p.Replace)+len(p.Create))
	for _, o := range p.Cancel {
		ops = append(ops, ledger.CancelOffer(o))
	}
	for _, r := range p.Replace {
		ops = append(ops, ledger.ManageSellOffer(r.Target.Selling, r.Target.Buying, r.Target.Amount, r.Target.Price, r.Live.ID))
	}
	for _, t := range p.Create {
		ops = append(ops, ledger.ManageSellOffer(t.Selling, t.Buying, t.Amount, t.Price, 0))
	}
	return ops
}

// Diff matches every target with at most one live offer of the same pair within PriceTolerance.
// A match keeps the live offer when it carries at least the target amount and replaces it
// otherwise. Unmatched live offers are cancelled and unmatched targets created.
func Diff(targets []Target, live []ledger.Offer) Plan {
	var p Plan
	used := make([]bool, len(live))
	for _, t := range targets {
		i := match(t, live, used)
		if i < 0 {
			p.Create = append(p.Create, t)
			continue
		}
		used[i] = true
		if live[i].Amount.GreaterThanOrEqual(t.Amount) {
			p.Kept = append(p.Kept, live[i])
		} else {
			p.Replace = append(p.Replace, Replacement{Live: live[i], Target: t})
		}
	}
	for i, o := range live {
		if !used[i] {
			p.Cancel = append(p.Cancel, o)
		}
	}
	return p
}

func match(t Target, live []ledger.Offer, used []bool) int {
	for i, o := range live {
		if used[i] || o.Selling != t.Selling || o.Buying != t.Buying {
			continue
		}
		if o.Price.Sub(t.Price).Abs().Div(t.Price).LessThan(PriceTolerance) {
			return i
		}
	}
	return -1
}
