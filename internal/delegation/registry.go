package delegation

import (
	"sort"
	"time"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Delegation records who votes with a holder's weight
type Delegation struct {
	Delegate address.Address `json:"delegate"`
	Since    time.Time       `json:"since"`
}

// Registry maps holders to delegates and keeps the reverse index.
// Resolution is single-hop: a delegate's own delegation is never followed.
type Registry struct {
	Delegations map[address.Address]Delegation               `json:"delegations"`
	Delegators  map[address.Address]map[address.Address]bool `json:"delegators"`
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		Delegations: make(map[address.Address]Delegation),
		Delegators:  make(map[address.Address]map[address.Address]bool),
	}
}

// Ensure allocates maps left nil by decoding
func (r *Registry) Ensure() {
	if r.Delegations == nil {
		r.Delegations = make(map[address.Address]Delegation)
	}
	if r.Delegators == nil {
		r.Delegators = make(map[address.Address]map[address.Address]bool)
	}
}

// Delegate points holder's weight at to, replacing any earlier delegation.
func (r *Registry) Delegate(holder, to address.Address, now time.Time) error {
	if to.IsNull() || to == holder {
		return apperr.ErrInvalidDelegate
	}
	r.remove(holder)
	r.Delegations[holder] = Delegation{Delegate: to, Since: now}
	if r.Delegators[to] == nil {
		r.Delegators[to] = make(map[address.Address]bool)
	}
	r.Delegators[to][holder] = true
	return nil
}

// Undelegate returns holder's weight to holder.
func (r *Registry) Undelegate(holder address.Address) (address.Address, error) {
	d, ok := r.Delegations[holder]
	if !ok {
		return "", apperr.ErrNotDelegated
	}
	r.remove(holder)
	return d.Delegate, nil
}

func (r *Registry) remove(holder address.Address) {
	d, ok := r.Delegations[holder]
	if !ok {
		return
	}
	delete(r.Delegations, holder)
	if set := r.Delegators[d.Delegate]; set != nil {
		delete(set, holder)
		if len(set) == 0 {
			delete(r.Delegators, d.Delegate)
		}
	}
}

// DelegateOf returns holder's current delegation, if any
func (r *Registry) DelegateOf(holder address.Address) (Delegation, bool) {
	d, ok := r.Delegations[holder]
	return d, ok
}

// HasDelegated reports whether holder gave its weight away
func (r *Registry) HasDelegated(holder address.Address) bool {
	_, ok := r.Delegations[holder]
	return ok
}

// DelegatorsOf returns the holders that delegated directly to delegate, sorted.
func (r *Registry) DelegatorsOf(delegate address.Address) []address.Address {
	set := r.Delegators[delegate]
	out := make([]address.Address, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Weight resolves voting weight under single-hop delegation: zero for a
// holder that delegated away, otherwise its own balance plus the balances
// of its direct delegators.
func (r *Registry) Weight(holder address.Address, balanceOf func(address.Address) decimal.Amount) decimal.Amount {
	if r.HasDelegated(holder) {
		return decimal.Zero()
	}
	w := balanceOf(holder)
	for _, d := range r.DelegatorsOf(holder) {
		w = w.Add(balanceOf(d))
	}
	return w
}
