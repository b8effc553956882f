package numerator

import (
	"fmt"
	"time"

	corenumerator "hivepos/internal/core/numerator"
)

const defaultPadWidth = 5

// buildKey names the sys_sequences row for cfg in the reset period containing at.
func buildKey(cfg corenumerator.Config, at time.Time) string {
	switch cfg.ResetPeriod {
	case corenumerator.ResetMonthly:
		return cfg.Prefix + "_" + at.Format("2006_01")
	case corenumerator.ResetYearly:
		return cfg.Prefix + "_" + at.Format("2006")
	default:
		return cfg.Prefix
	}
}

// formatNumber renders PREFIX-YYYY-NNNNN, or PREFIX-NNNNN without the year.
func formatNumber(cfg corenumerator.Config, at time.Time, n int64) string {
	width := cfg.PadWidth
	if width <= 0 {
		width = defaultPadWidth
	}
	if !cfg.IncludeYear {
		return fmt.Sprintf("%s-%0*d", cfg.Prefix, width, n)
	}
	return fmt.Sprintf("%s-%d-%0*d", cfg.Prefix, at.Year(), width, n)
}
