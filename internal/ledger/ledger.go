package ledger

import (
	"fmt"
	"sort"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Ledger is the unit balance store. It is not safe for concurrent use;
// the owning store serializes access.
type Ledger struct {
	Cap         decimal.Amount                                         `json:"cap"`
	TotalSupply decimal.Amount                                         `json:"total_supply"`
	UnitPrice   decimal.Amount                                         `json:"unit_price"`
	Treasury    decimal.Amount                                         `json:"treasury"`
	Balances    map[address.Address]decimal.Amount                     `json:"balances"`
	Allowances  map[address.Address]map[address.Address]decimal.Amount `json:"allowances"`

	// Checkpoint is the id of the most recent checkpoint, 0 when none was taken.
	Checkpoint    uint64                         `json:"checkpoint"`
	History       map[address.Address][]Snapshot `json:"history"`
	SupplyHistory []Snapshot                     `json:"supply_history"`
}

// Snapshot holds the value a balance had when checkpoint ID was taken.
type Snapshot struct {
	ID    uint64         `json:"id"`
	Value decimal.Amount `json:"value"`
}

// Receipt describes a completed purchase
type Receipt struct {
	Units  decimal.Amount `json:"units"`
	Cost   decimal.Amount `json:"cost"`
	Refund decimal.Amount `json:"refund"`
}

// New creates a new ledger
func New(cap, unitPrice decimal.Amount) *Ledger {
	return &Ledger{
		Cap:         cap,
		TotalSupply: decimal.Zero(),
		UnitPrice:   unitPrice,
		Treasury:    decimal.Zero(),
		Balances:    make(map[address.Address]decimal.Amount),
		Allowances:  make(map[address.Address]map[address.Address]decimal.Amount),
		History:     make(map[address.Address][]Snapshot),
	}
}

// Ensure allocates maps left nil by decoding an empty document.
func (l *Ledger) Ensure() {
	if l.Balances == nil {
		l.Balances = make(map[address.Address]decimal.Amount)
	}
	if l.Allowances == nil {
		l.Allowances = make(map[address.Address]map[address.Address]decimal.Amount)
	}
	if l.History == nil {
		l.History = make(map[address.Address][]Snapshot)
	}
}

// BalanceOf returns the current balance of holder
func (l *Ledger) BalanceOf(holder address.Address) decimal.Amount {
	if b, ok := l.Balances[holder]; ok {
		return b
	}
	return decimal.Zero()
}

// Supply returns the current total supply
func (l *Ledger) Supply() decimal.Amount {
	return l.TotalSupply
}

// Holders returns every identity ever credited, sorted.
func (l *Ledger) Holders() []address.Address {
	out := make([]address.Address, 0, len(l.Balances))
	for h := range l.Balances {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to address.Address, amount decimal.Amount) error {
	if err := l.checkTransfer(from, to, amount); err != nil {
		return err
	}
	l.move(from, to, amount)
	return nil
}

func (l *Ledger) checkTransfer(from, to address.Address, amount decimal.Amount) error {
	if !amount.IsPositive() {
		return apperr.ErrInvalidAmount
	}
	if to.IsNull() {
		return apperr.ErrInvalidRecipient
	}
	if amount.GreaterThan(l.BalanceOf(from)) {
		return apperr.ErrInsufficientBalance
	}
	return nil
}

func (l *Ledger) move(from, to address.Address, amount decimal.Amount) {
	l.setBalance(from, l.BalanceOf(from).Sub(amount))
	l.setBalance(to, l.BalanceOf(to).Add(amount))
}

// Approve sets the amount spender may move out of owner's balance.
func (l *Ledger) Approve(owner, spender address.Address, amount decimal.Amount) error {
	if spender.IsNull() {
		return apperr.ErrInvalidRecipient
	}
	if amount.IsNegative() {
		return apperr.ErrInvalidAmount
	}
	if l.Allowances[owner] == nil {
		l.Allowances[owner] = make(map[address.Address]decimal.Amount)
	}
	l.Allowances[owner][spender] = amount
	return nil
}

// Allowance returns what spender may still move out of owner's balance
func (l *Ledger) Allowance(owner, spender address.Address) decimal.Amount {
	if a, ok := l.Allowances[owner][spender]; ok {
		return a
	}
	return decimal.Zero()
}

// TransferFrom moves amount out of from's balance on behalf of spender.
func (l *Ledger) TransferFrom(spender, from, to address.Address, amount decimal.Amount) error {
	if err := l.checkTransfer(from, to, amount); err != nil {
		return err
	}
	allowed := l.Allowance(from, spender)
	if amount.GreaterThan(allowed) {
		return apperr.ErrInsufficientAllowance
	}
	l.Allowances[from][spender] = allowed.Sub(amount)
	l.move(from, to, amount)
	return nil
}

// Mint credits new units to a holder within the supply cap.
func (l *Ledger) Mint(to address.Address, amount decimal.Amount) error {
	if err := l.checkMint(to, amount); err != nil {
		return err
	}
	l.mint(to, amount)
	return nil
}

func (l *Ledger) checkMint(to address.Address, amount decimal.Amount) error {
	if !amount.IsPositive() {
		return apperr.ErrInvalidAmount
	}
	if to.IsNull() {
		return apperr.ErrInvalidRecipient
	}
	if l.TotalSupply.Add(amount).GreaterThan(l.Cap) {
		return apperr.ErrSupplyCapExceeded
	}
	return nil
}

func (l *Ledger) mint(to address.Address, amount decimal.Amount) {
	l.setSupply(l.TotalSupply.Add(amount))
	l.setBalance(to, l.BalanceOf(to).Add(amount))
}

// Quote returns what units would cost at the current price.
// Units and price share the ledger scale, so the product is rescaled once.
func (l *Ledger) Quote(units decimal.Amount) (decimal.Amount, error) {
	if !units.IsPositive() {
		return decimal.Amount{}, apperr.ErrInvalidAmount
	}
	if l.UnitPrice.IsZero() {
		return decimal.Amount{}, apperr.ErrSaleClosed
	}
	cost, err := units.MulScaled(l.UnitPrice)
	if err != nil {
		return decimal.Amount{}, fmt.Errorf("quote %s units: %w", units, apperr.ErrOverflow)
	}
	return cost, nil
}

// Buy mints units to the buyer against payment and returns the change.
func (l *Ledger) Buy(buyer address.Address, units, payment decimal.Amount) (Receipt, error) {
	cost, err := l.Quote(units)
	if err != nil {
		return Receipt{}, err
	}
	if payment.LessThan(cost) {
		return Receipt{}, apperr.ErrInsufficientPayment
	}
	if err := l.checkMint(buyer, units); err != nil {
		return Receipt{}, err
	}

	l.mint(buyer, units)
	l.Treasury = l.Treasury.Add(cost)

	return Receipt{Units: units, Cost: cost, Refund: payment.Sub(cost)}, nil
}

// SetUnitPrice changes the sale price. Zero closes the sale.
func (l *Ledger) SetUnitPrice(price decimal.Amount) error {
	if price.IsNegative() {
		return apperr.ErrInvalidAmount
	}
	l.UnitPrice = price
	return nil
}

// WithdrawTreasury takes amount out of collected payments.
func (l *Ledger) WithdrawTreasury(amount decimal.Amount) error {
	if !amount.IsPositive() {
		return apperr.ErrInvalidAmount
	}
	if amount.GreaterThan(l.Treasury) {
		return apperr.ErrInsufficientTreasury
	}
	l.Treasury = l.Treasury.Sub(amount)
	return nil
}

// TakeCheckpoint starts a new checkpoint and returns its id. Balances and
// supply as of this moment stay readable through BalanceAt and SupplyAt.
func (l *Ledger) TakeCheckpoint() uint64 {
	l.Checkpoint++
	return l.Checkpoint
}

// BalanceAt returns holder's balance as of checkpoint id
func (l *Ledger) BalanceAt(holder address.Address, id uint64) (decimal.Amount, error) {
	if id == 0 || id > l.Checkpoint {
		return decimal.Amount{}, fmt.Errorf("unknown checkpoint %d", id)
	}
	return valueAt(l.History[holder], id, l.BalanceOf(holder)), nil
}

// SupplyAt returns total supply as of checkpoint id
func (l *Ledger) SupplyAt(id uint64) (decimal.Amount, error) {
	if id == 0 || id > l.Checkpoint {
		return decimal.Amount{}, fmt.Errorf("unknown checkpoint %d", id)
	}
	return valueAt(l.SupplyHistory, id, l.TotalSupply), nil
}

func valueAt(history []Snapshot, id uint64, current decimal.Amount) decimal.Amount {
	i := sort.Search(len(history), func(i int) bool { return history[i].ID >= id })
	if i == len(history) {
		return current
	}
	return history[i].Value
}

func (l *Ledger) setBalance(holder address.Address, value decimal.Amount) {
	l.History[holder] = l.record(l.History[holder], l.BalanceOf(holder))
	l.Balances[holder] = value
}

func (l *Ledger) setSupply(value decimal.Amount) {
	l.SupplyHistory = l.record(l.SupplyHistory, l.TotalSupply)
	l.TotalSupply = value
}

// record keeps the pre-change value once per checkpoint.
func (l *Ledger) record(history []Snapshot, prior decimal.Amount) []Snapshot {
	if l.Checkpoint == 0 {
		return history
	}
	if n := len(history); n > 0 && history[n-1].ID >= l.Checkpoint {
		return history
	}
	return append(history, Snapshot{ID: l.Checkpoint, Value: prior})
}
