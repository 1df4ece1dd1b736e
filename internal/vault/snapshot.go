package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/terminal-bench/assetdao/internal/admin"
	"github.com/terminal-bench/assetdao/internal/asset"
	"github.com/terminal-bench/assetdao/internal/delegation"
	"github.com/terminal-bench/assetdao/internal/dividends"
	"github.com/terminal-bench/assetdao/internal/governance"
	"github.com/terminal-bench/assetdao/internal/ledger"
	"github.com/terminal-bench/assetdao/internal/reports"
)

// snapshotVersion is bumped when the document layout changes
const snapshotVersion = 1

type document struct {
	Version    int                  `json:"version"`
	TakenAt    time.Time            `json:"taken_at"`
	Seq        int64                `json:"seq"`
	Ledger     *ledger.Ledger       `json:"ledger"`
	Delegation *delegation.Registry `json:"delegation"`
	Asset      *asset.Registry      `json:"asset"`
	Reports    *reports.Register    `json:"reports"`
	Dividends  *dividends.Engine    `json:"dividends"`
	Governance *governance.Engine   `json:"governance"`
	Admin      *admin.Controller    `json:"admin"`
}

// Snapshot serializes the full state together with the last journal
// sequence number it reflects.
func (v *Vault) Snapshot() ([]byte, int64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	seq := v.journal.LastSeq()
	data, err := json.Marshal(document{
		Version:    snapshotVersion,
		TakenAt:    v.now(),
		Seq:        seq,
		Ledger:     v.ledger,
		Delegation: v.delegation,
		Asset:      v.asset,
		Reports:    v.reports,
		Dividends:  v.dividends,
		Governance: v.governance,
		Admin:      v.admin,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, seq, nil
}

// Restore builds a vault from a snapshot. Journal numbering continues
// after the snapshot's sequence number.
func Restore(data []byte, opts ...Option) (*Vault, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	v := newVault(opts)
	v.install(doc)
	v.journal.Resume(doc.Seq)

	v.logger.Info().
		Int64("seq", doc.Seq).
		Time("taken_at", doc.TakenAt).
		Str("supply", v.ledger.Supply().String()).
		Msg("vault restored from snapshot")
	return v, nil
}

// Reload replaces the state in place with a newer snapshot. The journal and
// its subscribers are kept. Snapshots older than the current state are
// ignored.
func (v *Vault) Reload(data []byte) (bool, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if doc.Seq <= v.journal.LastSeq() {
		return false, nil
	}
	v.install(doc)
	v.journal.Resume(doc.Seq)
	v.logger.Info().Int64("seq", doc.Seq).Msg("vault reloaded from snapshot")
	return true, nil
}

func (v *Vault) install(doc *document) {
	v.ledger = doc.Ledger
	v.delegation = doc.Delegation
	v.asset = doc.Asset
	v.reports = doc.Reports
	v.dividends = doc.Dividends
	v.governance = doc.Governance
	v.admin = doc.Admin
}

func decodeDocument(data []byte) (*document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if doc.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}
	if doc.Ledger == nil || doc.Asset == nil || doc.Reports == nil || doc.Dividends == nil || doc.Governance == nil || doc.Admin == nil {
		return nil, fmt.Errorf("snapshot is missing components")
	}
	if doc.Delegation == nil {
		doc.Delegation = delegation.NewRegistry()
	}
	doc.Ledger.Ensure()
	doc.Delegation.Ensure()
	doc.Reports.Ensure()
	doc.Dividends.Ensure()
	doc.Governance.Ensure()
	return &doc, nil
}
