package disbursement

// Validate rejects structurally invalid configurations. It never looks at a
// net amount; over/under allocation is the allocator's concern.
//
// Checks run in this order, each over every rule, and the first failure wins:
//  1. each destination is listed once and carries at most one rule
//  2. no negative fixed amount or percentage
//  3. no percentage above 100
//  4. every rule targets a known, non-empty destination with a rule kind
func Validate(cfg AllocationConfig) error {
	known := make(map[DestinationID]struct{}, len(cfg.Destinations))
	for _, d := range cfg.Destinations {
		if _, dup := known[d]; dup {
			return &ConfigError{Destination: d, Err: ErrDuplicateDestination}
		}
		known[d] = struct{}{}
	}

	seen := make(map[DestinationID]struct{}, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if _, dup := seen[r.Destination]; dup {
			return &ConfigError{Destination: r.Destination, Value: r.Value, Err: ErrDuplicateDestination}
		}
		seen[r.Destination] = struct{}{}
	}

	for _, r := range cfg.Rules {
		if r.Value.IsNegative() {
			return &ConfigError{Destination: r.Destination, Value: r.Value, Err: ErrNegativeAmount}
		}
	}

	for _, r := range cfg.Rules {
		if r.Kind == KindPercentage && r.Value.GreaterThan(hundred) {
			return &ConfigError{Destination: r.Destination, Value: r.Value, Err: ErrPercentageOutOfRange}
		}
	}

	for _, r := range cfg.Rules {
		if _, ok := known[r.Destination]; !ok || r.Destination == "" {
			return &ConfigError{Destination: r.Destination, Value: r.Value, Err: ErrUnknownDestination}
		}
		if !r.Kind.IsExplicit() {
			return &ConfigError{Destination: r.Destination, Value: r.Value, Err: ErrInvalidRuleKind}
		}
	}
	return nil
}
