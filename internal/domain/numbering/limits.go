// Package numbering allocates batch numbers and serial numbers from scoped
// counters held in a sequence.Store.
package numbering

import (
	"fmt"

	"traceledger/pkg/labelcode"
)

// Limits bounds each counter family. Values may be lowered from the defaults
// but never raised past what the code widths can hold.
type Limits struct {
	MaxBatchSequence int64
	MaxUnitSequence  int64
	MaxDailySequence int64
	MaxBulk          int
}

// DefaultLimits returns the full code-width bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxBatchSequence: labelcode.MaxBatchSequence,
		MaxUnitSequence:  labelcode.MaxUnitSequence,
		MaxDailySequence: labelcode.MaxDailySequence,
		MaxBulk:          5000,
	}
}

// Validate checks every bound against its code width.
func (l Limits) Validate() error {
	check := func(name string, v, width int64) error {
		if v < 1 || v > width {
			return fmt.Errorf("%s must be within 1..%d, got %d", name, width, v)
		}
		return nil
	}
	if err := check("max batch sequence", l.MaxBatchSequence, labelcode.MaxBatchSequence); err != nil {
		return err
	}
	if err := check("max unit sequence", l.MaxUnitSequence, labelcode.MaxUnitSequence); err != nil {
		return err
	}
	if err := check("max daily sequence", l.MaxDailySequence, labelcode.MaxDailySequence); err != nil {
		return err
	}
	if l.MaxBulk < 1 || int64(l.MaxBulk) > l.MaxUnitSequence {
		return fmt.Errorf("max bulk must be within 1..%d, got %d", l.MaxUnitSequence, l.MaxBulk)
	}
	return nil
}
