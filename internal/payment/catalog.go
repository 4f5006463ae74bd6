package payment

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed packages.yaml
var packagesYAML []byte

// Package is a purchasable bundle of coins. Prices are whole yen.
type Package struct {
	ID       string `yaml:"id" json:"id"`
	Coins    int    `yaml:"coins" json:"coins"`
	PriceJPY int64  `yaml:"price_jpy" json:"price_jpy"`
	Label    string `yaml:"label" json:"label"`
}

var catalog = mustParseCatalog(packagesYAML)

func parseCatalog(data []byte) ([]Package, error) {
	var doc struct {
		Packages []Package `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse coin packages: %w", err)
	}
	seen := map[string]bool{}
	for _, p := range doc.Packages {
		if p.ID == "" || p.Coins <= 0 || p.PriceJPY <= 0 {
			return nil, fmt.Errorf("coin package %q is incomplete", p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("coin package %q is duplicated", p.ID)
		}
		seen[p.ID] = true
	}
	return doc.Packages, nil
}

func mustParseCatalog(data []byte) []Package {
	pkgs, err := parseCatalog(data)
	if err != nil {
		panic(err)
	}
	return pkgs
}

func Packages() []Package {
	out := make([]Package, len(catalog))
	copy(out, catalog)
	return out
}

func FindPackage(id string) (Package, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}
