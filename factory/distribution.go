/*
Package factory decodes stored distribution settings into allocation configs.

PURPOSE:
  Beneficiary distribution settings are persisted as a loose mapping from
  destination to rule. The factory turns that mapping into a validated
  disbursement.AllocationConfig exactly once, at the boundary, so the
  allocator never deals with raw maps or strings.

STORED FORMAT (JSON):
  {
    "bank1": {"sequence": 1, "amount": "1000.00", "amount_is_percentage": false},
    "bank2": {"sequence": 2, "amount": 100, "amount_is_percentage": true}
  }

  Amounts may be JSON numbers or strings; both are parsed as exact decimals.
  The same mapping can be written in YAML.

FILE FORMAT (cmd/allocate, fixtures):
  destinations: [bank1, bank2, bank3]
  distribution:
    bank1: {sequence: 1, amount: "1000.00", amount_is_percentage: false}
    bank2: {sequence: 2, amount: 100, amount_is_percentage: true}

USAGE:
  f := factory.NewConfigFactory()
  cfg, err := f.ParseConfig(jsonStr, []disbursement.DestinationID{"bank1", "bank2"})

SEE ALSO:
  - disbursement/validate.go: Checks applied after decoding
  - store/sqlite/sqlite.go: Persists rules as rows
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/disbursement-engine/disbursement"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when stored settings cannot be decoded.
var ErrInvalidConfig = errors.New("invalid distribution settings")

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// Amount is an exact decimal that decodes from JSON/YAML numbers or strings.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d} }

// UnmarshalYAML parses a scalar without going through float64.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("amount must be a scalar")
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", value.Value, err)
	}
	a.Decimal = d
	return nil
}

// MarshalYAML renders the amount as a string to keep every digit.
func (a Amount) MarshalYAML() (any, error) {
	return a.Decimal.String(), nil
}

// RuleJSON is one destination's stored rule.
type RuleJSON struct {
	Sequence           int    `json:"sequence" yaml:"sequence"`
	Amount             Amount `json:"amount" yaml:"amount"`
	AmountIsPercentage bool   `json:"amount_is_percentage" yaml:"amount_is_percentage"`
}

// DistributionJSON is the stored mapping from destination id to rule.
type DistributionJSON map[string]RuleJSON

// ConfigFile is a standalone configuration: known destinations plus their rules.
type ConfigFile struct {
	Destinations []string         `json:"destinations" yaml:"destinations"`
	Distribution DistributionJSON `json:"distribution" yaml:"distribution"`
}

// =============================================================================
// CONFIG FACTORY
// =============================================================================

// ConfigFactory converts stored distribution settings to allocation configs.
type ConfigFactory struct{}

// NewConfigFactory creates a new config factory.
func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{}
}

// ParseConfig decodes the JSON stored format for the given known destinations.
func (f *ConfigFactory) ParseConfig(jsonStr string, destinations []disbursement.DestinationID) (disbursement.AllocationConfig, error) {
	var dj DistributionJSON
	if strings.TrimSpace(jsonStr) != "" {
		if err := json.Unmarshal([]byte(jsonStr), &dj); err != nil {
			return disbursement.AllocationConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return f.FromJSON(dj, destinations)
}

// ParseConfigYAML decodes the YAML form of the stored format.
func (f *ConfigFactory) ParseConfigYAML(data []byte, destinations []disbursement.DestinationID) (disbursement.AllocationConfig, error) {
	var dj DistributionJSON
	if err := yaml.Unmarshal(data, &dj); err != nil {
		return disbursement.AllocationConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return f.FromJSON(dj, destinations)
}

// FromJSON builds and validates an AllocationConfig.
//
// Rules come out sorted by sequence, then destination id, so the same stored
// mapping always yields the same config. A nil destinations slice means "the
// configured destinations only", in that same order.
func (f *ConfigFactory) FromJSON(dj DistributionJSON, destinations []disbursement.DestinationID) (disbursement.AllocationConfig, error) {
	rules := make([]disbursement.AllocationRule, 0, len(dj))
	for dest, rj := range dj {
		kind := disbursement.KindFixed
		if rj.AmountIsPercentage {
			kind = disbursement.KindPercentage
		}
		rules = append(rules, disbursement.AllocationRule{
			Destination: disbursement.DestinationID(strings.TrimSpace(dest)),
			Sequence:    rj.Sequence,
			Value:       rj.Amount.Decimal,
			Kind:        kind,
		})
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Sequence != rules[j].Sequence {
			return rules[i].Sequence < rules[j].Sequence
		}
		return rules[i].Destination < rules[j].Destination
	})

	if destinations == nil {
		destinations = make([]disbursement.DestinationID, len(rules))
		for i, r := range rules {
			destinations[i] = r.Destination
		}
	}

	cfg := disbursement.AllocationConfig{
		Destinations: append([]disbursement.DestinationID(nil), destinations...),
		Rules:        rules,
	}
	if err := disbursement.Validate(cfg); err != nil {
		return disbursement.AllocationConfig{}, err
	}
	return cfg, nil
}

// ToJSON converts a config back to the stored mapping. Implicit destinations
// have no entry.
func (f *ConfigFactory) ToJSON(cfg disbursement.AllocationConfig) DistributionJSON {
	dj := make(DistributionJSON, len(cfg.Rules))
	for _, r := range cfg.Rules {
		dj[string(r.Destination)] = RuleJSON{
			Sequence:           r.Sequence,
			Amount:             NewAmount(r.Value),
			AmountIsPercentage: r.Kind == disbursement.KindPercentage,
		}
	}
	return dj
}

// Encode renders cfg in the JSON stored format.
func (f *ConfigFactory) Encode(cfg disbursement.AllocationConfig) (string, error) {
	data, err := json.Marshal(f.ToJSON(cfg))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// FILES
// =============================================================================

// ParseFile decodes a ConfigFile. YAML is used for .yaml/.yml paths, JSON otherwise.
func (f *ConfigFactory) ParseFile(path string, data []byte) (disbursement.AllocationConfig, error) {
	var cf ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return disbursement.AllocationConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	default:
		if err := json.Unmarshal(data, &cf); err != nil {
			return disbursement.AllocationConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	var destinations []disbursement.DestinationID
	if len(cf.Destinations) > 0 {
		destinations = make([]disbursement.DestinationID, len(cf.Destinations))
		for i, d := range cf.Destinations {
			destinations[i] = disbursement.DestinationID(strings.TrimSpace(d))
		}
	}
	return f.FromJSON(cf.Distribution, destinations)
}

// LoadFile reads and decodes a ConfigFile from disk.
func (f *ConfigFactory) LoadFile(path string) (disbursement.AllocationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return disbursement.AllocationConfig{}, fmt.Errorf("read config file: %w", err)
	}
	return f.ParseFile(path, data)
}
