package asset

import (
	"strings"
	"time"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// Info describes the tokenized asset
type Info struct {
	Name             string         `json:"name"`
	Symbol           string         `json:"symbol"`
	AssetName        string         `json:"asset_name"`
	Location         string         `json:"location"`
	Description      string         `json:"description"`
	Valuation        decimal.Amount `json:"valuation"`
	TokenizedBps     int64          `json:"tokenized_bps"`
	Verified         bool           `json:"verified"`
	VerificationHash string         `json:"verification_hash,omitempty"`
	VerifiedAt       time.Time      `json:"verified_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Update carries the mutable metadata fields. Empty strings and a nil
// valuation leave the current value in place.
type Update struct {
	Location    string
	Description string
	Valuation   *decimal.Amount
}

// Registry holds asset metadata and the verification flag
type Registry struct {
	Info Info `json:"info"`
}

// NewRegistry creates a registry for info
func NewRegistry(info Info, now time.Time) (*Registry, error) {
	if strings.TrimSpace(info.Name) == "" || strings.TrimSpace(info.Symbol) == "" {
		return nil, apperr.ErrInvalidParams
	}
	if info.TokenizedBps <= 0 || info.TokenizedBps > 10000 {
		return nil, apperr.ErrInvalidParams
	}
	if info.Valuation.IsNegative() {
		return nil, apperr.ErrInvalidAmount
	}
	info.Verified = false
	info.VerificationHash = ""
	info.UpdatedAt = now
	return &Registry{Info: info}, nil
}

// Apply updates the mutable metadata
func (r *Registry) Apply(u Update, now time.Time) error {
	if u.Valuation != nil && u.Valuation.IsNegative() {
		return apperr.ErrInvalidAmount
	}
	if u.Location != "" {
		r.Info.Location = u.Location
	}
	if u.Description != "" {
		r.Info.Description = u.Description
	}
	if u.Valuation != nil {
		r.Info.Valuation = *u.Valuation
	}
	r.Info.UpdatedAt = now
	return nil
}

// Verify marks the asset verified against a document hash.
func (r *Registry) Verify(hash string, now time.Time) error {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return apperr.ErrInvalidHash
	}
	r.Info.Verified = true
	r.Info.VerificationHash = hash
	r.Info.VerifiedAt = now
	r.Info.UpdatedAt = now
	return nil
}

// UnitValue is the tokenized share of the valuation divided across supply.
func (r *Registry) UnitValue(supply decimal.Amount) (decimal.Amount, error) {
	if supply.IsZero() {
		return decimal.Amount{}, apperr.ErrZeroSupply
	}
	v, err := r.Info.Valuation.MulBps(r.Info.TokenizedBps).DivScaled(supply)
	if err != nil {
		return decimal.Amount{}, apperr.ErrOverflow
	}
	return v, nil
}
