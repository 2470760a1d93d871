package delivery

import (
	"fmt"
	"strings"
	"time"
)

// Config is the pacing policy for one run. Delays are in seconds;
// BatchDelay and PauseDuration are in minutes. Zero fields take defaults.
type Config struct {
	DelayMin      int `json:"delay_min"`
	DelayMax      int `json:"delay_max"`
	BatchSize     int `json:"batch_size"`
	BatchDelay    int `json:"batch_delay"`
	PauseEvery    int `json:"pause_every"`
	PauseDuration int `json:"pause_duration"`
}

// DefaultConfig returns the stock pacing policy.
func DefaultConfig() Config {
	return Config{DelayMin: 5, DelayMax: 15, BatchSize: 50, BatchDelay: 30, PauseEvery: 50, PauseDuration: 10}
}

// WithDefaults fills zero fields from base. A delay bound taken from
// base never inverts the range: it moves to meet the explicit bound.
func (c Config) WithDefaults(base Config) Config {
	minSet, maxSet := c.DelayMin != 0, c.DelayMax != 0
	if !minSet {
		c.DelayMin = base.DelayMin
	}
	if !maxSet {
		c.DelayMax = base.DelayMax
	}
	if c.DelayMin > c.DelayMax {
		switch {
		case minSet && !maxSet:
			c.DelayMax = c.DelayMin
		case maxSet && !minSet:
			c.DelayMin = c.DelayMax
		}
	}
	if c.BatchSize == 0 {
		c.BatchSize = base.BatchSize
	}
	if c.BatchDelay == 0 {
		c.BatchDelay = base.BatchDelay
	}
	if c.PauseEvery == 0 {
		c.PauseEvery = base.PauseEvery
	}
	if c.PauseDuration == 0 {
		c.PauseDuration = base.PauseDuration
	}
	return c
}

// Validate rejects negative values and an inverted delay range.
func (c Config) Validate() error {
	var errs []string
	if c.DelayMin < 0 || c.DelayMax < 0 || c.BatchSize < 0 || c.BatchDelay < 0 || c.PauseEvery < 0 || c.PauseDuration < 0 {
		errs = append(errs, "values must not be negative")
	}
	if c.DelayMin > c.DelayMax {
		errs = append(errs, fmt.Sprintf("delay_min (%d) exceeds delay_max (%d)", c.DelayMin, c.DelayMax))
	}
	if len(errs) > 0 {
		return fmt.Errorf("delivery: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c Config) batchDelay() time.Duration    { return time.Duration(c.BatchDelay) * time.Minute }
func (c Config) pauseDuration() time.Duration { return time.Duration(c.PauseDuration) * time.Minute }

// Batches splits n recipients into consecutive batch sizes.
func Batches(n, size int) []int {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		return []int{n}
	}
	var out []int
	for n > 0 {
		b := size
		if n < size {
			b = n
		}
		out = append(out, b)
		n -= b
	}
	return out
}
