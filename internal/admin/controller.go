package admin

import (
	"time"

	"github.com/terminal-bench/assetdao/internal/apperr"
	"github.com/terminal-bench/assetdao/pkg/address"
)

// Controller holds the owner identity and the pause flag
type Controller struct {
	Owner    address.Address `json:"owner"`
	Paused   bool            `json:"paused"`
	PausedAt time.Time       `json:"paused_at,omitempty"`
}

// NewController creates a controller owned by owner
func NewController(owner address.Address) (*Controller, error) {
	if owner.IsNull() {
		return nil, apperr.ErrInvalidAddress
	}
	return &Controller{Owner: owner}, nil
}

// IsOwner reports whether caller is the owner
func (c *Controller) IsOwner(caller address.Address) bool {
	return caller == c.Owner
}

// Authorize fails with ErrUnauthorized unless caller is the owner
func (c *Controller) Authorize(caller address.Address) error {
	if !c.IsOwner(caller) {
		return apperr.ErrUnauthorized
	}
	return nil
}

// RequireActive fails with ErrPaused while paused
func (c *Controller) RequireActive() error {
	if c.Paused {
		return apperr.ErrPaused
	}
	return nil
}

// Pause stops holder-facing mutations
func (c *Controller) Pause(now time.Time) error {
	if c.Paused {
		return apperr.ErrAlreadyPaused
	}
	c.Paused = true
	c.PausedAt = now
	return nil
}

// Unpause resumes holder-facing mutations
func (c *Controller) Unpause() error {
	if !c.Paused {
		return apperr.ErrNotPaused
	}
	c.Paused = false
	c.PausedAt = time.Time{}
	return nil
}

// TransferOwnership hands the owner role to next
func (c *Controller) TransferOwnership(next address.Address) error {
	if next.IsNull() {
		return apperr.ErrInvalidAddress
	}
	c.Owner = next
	return nil
}
