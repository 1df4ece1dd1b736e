package vault

import (
	"github.com/terminal-bench/assetdao/internal/audit"
	"github.com/terminal-bench/assetdao/internal/ledger"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Transfer moves caller's units to another holder
func (v *Vault) Transfer(caller, to address.Address, amount decimal.Amount) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return audit.Entry{}, v.reject("transfer", caller, err)
	}
	if err := v.ledger.Transfer(caller, to, amount); err != nil {
		return audit.Entry{}, v.reject("transfer", caller, err)
	}
	return v.commit(audit.KindUnitsTransferred, caller, v.now(), map[string]string{
		"to":     to.String(),
		"amount": amount.String(),
	}), nil
}

// Approve lets spender move up to amount of caller's units
func (v *Vault) Approve(caller, spender address.Address, amount decimal.Amount) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return audit.Entry{}, v.reject("approve", caller, err)
	}
	if err := v.ledger.Approve(caller, spender, amount); err != nil {
		return audit.Entry{}, v.reject("approve", caller, err)
	}
	return v.commit(audit.KindAllowanceApproved, caller, v.now(), map[string]string{
		"spender": spender.String(),
		"amount":  amount.String(),
	}), nil
}

// TransferFrom moves units out of from's balance against caller's allowance
func (v *Vault) TransferFrom(caller, from, to address.Address, amount decimal.Amount) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return audit.Entry{}, v.reject("transfer_from", caller, err)
	}
	if err := v.ledger.TransferFrom(caller, from, to, amount); err != nil {
		return audit.Entry{}, v.reject("transfer_from", caller, err)
	}
	return v.commit(audit.KindUnitsTransferred, caller, v.now(), map[string]string{
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount.String(),
	}), nil
}

// Buy purchases units at the current price; any overpayment is refunded.
func (v *Vault) Buy(caller address.Address, units, payment decimal.Amount) (Result[ledger.Receipt], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.holderOp(); err != nil {
		return Result[ledger.Receipt]{}, v.reject("buy", caller, err)
	}
	r, err := v.ledger.Buy(caller, units, payment)
	if err != nil {
		return Result[ledger.Receipt]{}, v.reject("buy", caller, err)
	}
	e := v.commit(audit.KindUnitsPurchased, caller, v.now(), map[string]string{
		"units":  r.Units.String(),
		"cost":   r.Cost.String(),
		"refund": r.Refund.String(),
	})
	return Result[ledger.Receipt]{Value: r, Entry: e}, nil
}

// Issue mints units to a holder
func (v *Vault) Issue(caller, to address.Address, amount decimal.Amount) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("issue", caller, err)
	}
	if err := v.ledger.Mint(to, amount); err != nil {
		return audit.Entry{}, v.reject("issue", caller, err)
	}
	return v.commit(audit.KindUnitsIssued, caller, v.now(), map[string]string{
		"to":     to.String(),
		"amount": amount.String(),
	}), nil
}

// SetUnitPrice changes the sale price; zero closes the sale
func (v *Vault) SetUnitPrice(caller address.Address, price decimal.Amount) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("set_unit_price", caller, err)
	}
	if err := v.ledger.SetUnitPrice(price); err != nil {
		return audit.Entry{}, v.reject("set_unit_price", caller, err)
	}
	return v.commit(audit.KindUnitPriceSet, caller, v.now(), map[string]string{"price": price.String()}), nil
}

// WithdrawTreasury pays collected sale proceeds out to the owner
func (v *Vault) WithdrawTreasury(caller address.Address, amount decimal.Amount) (audit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.admin.Authorize(caller); err != nil {
		return audit.Entry{}, v.reject("withdraw_treasury", caller, err)
	}
	if err := v.ledger.WithdrawTreasury(amount); err != nil {
		return audit.Entry{}, v.reject("withdraw_treasury", caller, err)
	}
	return v.commit(audit.KindTreasuryWithdrawn, caller, v.now(), map[string]string{"amount": amount.String()}), nil
}

// LedgerView is a consistent read of the ledger totals
type LedgerView struct {
	TotalSupply decimal.Amount `json:"total_supply"`
	Cap         decimal.Amount `json:"cap"`
	UnitPrice   decimal.Amount `json:"unit_price"`
	Treasury    decimal.Amount `json:"treasury"`
	Paused      bool           `json:"paused"`
}

// LedgerView reads every ledger total under one lock
func (v *Vault) LedgerView() LedgerView {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return LedgerView{
		TotalSupply: v.ledger.Supply(),
		Cap:         v.ledger.Cap,
		UnitPrice:   v.ledger.UnitPrice,
		Treasury:    v.ledger.Treasury,
		Paused:      v.admin.Paused,
	}
}

// TotalSupply returns the current unit supply
func (v *Vault) TotalSupply() decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.Supply()
}

// Cap returns the immutable supply cap
func (v *Vault) Cap() decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.Cap
}

// BalanceOf returns holder's balance
func (v *Vault) BalanceOf(holder address.Address) decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.BalanceOf(holder)
}

// Allowance returns what spender may move out of owner's balance
func (v *Vault) Allowance(owner, spender address.Address) decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.Allowance(owner, spender)
}

// UnitPrice returns the current sale price
func (v *Vault) UnitPrice() decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.UnitPrice
}

// Treasury returns collected, unwithdrawn payments
func (v *Vault) Treasury() decimal.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.Treasury
}

// Quote prices a purchase without making it
func (v *Vault) Quote(units decimal.Amount) (decimal.Amount, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.Quote(units)
}

// Holders lists every identity ever credited
func (v *Vault) Holders() []address.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.Holders()
}
