package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/terminal-bench/assetdao/internal/asset"
	"github.com/terminal-bench/assetdao/internal/governance"
	"github.com/terminal-bench/assetdao/internal/vault"
	"github.com/terminal-bench/assetdao/pkg/address"
	"github.com/terminal-bench/assetdao/pkg/decimal"
)

// GenesisFile is the YAML layout of a genesis document. Amounts are
// written in human units, e.g. "1000000" or "0.002".
type GenesisFile struct {
	Owner string `yaml:"owner"`
	Asset struct {
		Name         string `yaml:"name"`
		Symbol       string `yaml:"symbol"`
		AssetName    string `yaml:"asset_name"`
		Location     string `yaml:"location"`
		Description  string `yaml:"description"`
		Valuation    string `yaml:"valuation"`
		TokenizedBps int64  `yaml:"tokenized_bps"`
	} `yaml:"asset"`
	Cap         string `yaml:"cap"`
	UnitPrice   string `yaml:"unit_price"`
	Allocations []struct {
		Holder string `yaml:"holder"`
		Units  string `yaml:"units"`
	} `yaml:"allocations"`
	Reporters  []string           `yaml:"reporters"`
	Governance *governance.Params `yaml:"governance"`
	IDBases    struct {
		Reports       uint64 `yaml:"reports"`
		Distributions uint64 `yaml:"distributions"`
		Proposals     uint64 `yaml:"proposals"`
	} `yaml:"id_bases"`
}

// LoadGenesis reads and converts a genesis file
func LoadGenesis(path string) (vault.Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vault.Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesis(data)
}

// ParseGenesis converts a YAML genesis document
func ParseGenesis(data []byte) (vault.Genesis, error) {
	var f GenesisFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return vault.Genesis{}, fmt.Errorf("parse genesis: %w", err)
	}
	return f.Genesis()
}

// Genesis converts the file form to vault.Genesis
func (f *GenesisFile) Genesis() (vault.Genesis, error) {
	var g vault.Genesis
	var err error

	if g.Owner, err = address.Parse(f.Owner); err != nil {
		return g, fmt.Errorf("genesis owner: %w", err)
	}
	if g.Cap, err = decimal.Parse(f.Cap); err != nil {
		return g, fmt.Errorf("genesis cap: %w", err)
	}
	g.UnitPrice = decimal.Zero()
	if f.UnitPrice != "" {
		if g.UnitPrice, err = decimal.Parse(f.UnitPrice); err != nil {
			return g, fmt.Errorf("genesis unit_price: %w", err)
		}
	}

	valuation := decimal.Zero()
	if f.Asset.Valuation != "" {
		if valuation, err = decimal.Parse(f.Asset.Valuation); err != nil {
			return g, fmt.Errorf("genesis asset valuation: %w", err)
		}
	}
	g.Asset = asset.Info{
		Name:         f.Asset.Name,
		Symbol:       f.Asset.Symbol,
		AssetName:    f.Asset.AssetName,
		Location:     f.Asset.Location,
		Description:  f.Asset.Description,
		Valuation:    valuation,
		TokenizedBps: f.Asset.TokenizedBps,
	}

	for i, a := range f.Allocations {
		holder, err := address.Parse(a.Holder)
		if err != nil {
			return g, fmt.Errorf("genesis allocation %d: %w", i, err)
		}
		units, err := decimal.Parse(a.Units)
		if err != nil {
			return g, fmt.Errorf("genesis allocation %d units: %w", i, err)
		}
		g.Allocations = append(g.Allocations, vault.Allocation{Holder: holder, Units: units})
	}

	for _, r := range f.Reporters {
		addr, err := address.Parse(r)
		if err != nil {
			return g, fmt.Errorf("genesis reporter: %w", err)
		}
		g.Reporters = append(g.Reporters, addr)
	}

	g.Governance = governance.DefaultParams()
	if f.Governance != nil {
		g.Governance = *f.Governance
	}
	g.ReportBase = f.IDBases.Reports
	g.DistributionBase = f.IDBases.Distributions
	g.ProposalBase = f.IDBases.Proposals
	return g, nil
}
