package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BidderConfig describes one HTTP bidder in the catalogue file.
type BidderConfig struct {
	Name      string `yaml:"name"`
	Endpoint  string `yaml:"endpoint"`
	TimeoutMS int    `yaml:"timeout_ms,omitempty"`
}

type biddersFile struct {
	Bidders []BidderConfig `yaml:"bidders"`
}

// LoadBidders reads the bidder catalogue at path. Every entry needs a unique
// name and an endpoint.
func LoadBidders(path string) ([]BidderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f biddersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Bidders))
	for i, b := range f.Bidders {
		if b.Name == "" {
			return nil, fmt.Errorf("bidders[%d]: missing name", i)
		}
		if b.Endpoint == "" {
			return nil, fmt.Errorf("bidder %q: missing endpoint", b.Name)
		}
		if b.TimeoutMS < 0 {
			return nil, fmt.Errorf("bidder %q: timeout_ms must be non-negative", b.Name)
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("bidder %q: duplicate name", b.Name)
		}
		seen[b.Name] = true
	}
	return f.Bidders, nil
}
