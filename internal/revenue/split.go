package revenue

import (
	"fmt"
	"math"
)

// splitTolerance for the sum-to-1.0 validation of configured percentages.
const splitTolerance = 1e-9

// SplitConfig is an explicit, versioned revenue split passed by value into
// engine calls, never a process-wide mutable singleton. Validated once at
// load time.
type SplitConfig struct {
	Version     string
	Investor    float64
	Rider       float64
	Management  float64
	Maintenance float64
}

// Validate checks that the four percentages are non-negative and sum to 1.0.
func (c SplitConfig) Validate() error {
	for name, pct := range map[string]float64{
		"investor":    c.Investor,
		"rider":       c.Rider,
		"management":  c.Management,
		"maintenance": c.Maintenance,
	} {
		if pct < 0 {
			return fmt.Errorf("split config %s: %s percentage is negative", c.Version, name)
		}
	}
	sum := c.Investor + c.Rider + c.Management + c.Maintenance
	if math.Abs(sum-1.0) > splitTolerance {
		return fmt.Errorf("split config %s: percentages sum to %v, want 1.0", c.Version, sum)
	}
	return nil
}

// Split is the four bucket amounts of one gross-revenue occurrence. The
// amounts always sum exactly to the gross: the maintenance bucket absorbs
// the rounding remainder of the other three. Intentional policy, not a bug.
type Split struct {
	Investor    float64 `json:"investor"`
	Rider       float64 `json:"rider"`
	Management  float64 `json:"management"`
	Maintenance float64 `json:"maintenance"`
}

// SplitRevenue splits a gross amount per the config.
func SplitRevenue(gross float64, cfg SplitConfig) Split {
	investor := round2(gross * cfg.Investor)
	rider := round2(gross * cfg.Rider)
	management := round2(gross * cfg.Management)
	return Split{
		Investor:    investor,
		Rider:       rider,
		Management:  management,
		Maintenance: round2(gross - investor - rider - management),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
