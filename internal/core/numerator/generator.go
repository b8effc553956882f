// Package numerator defines business document numbering (IMP, ORD, INV, REF).
package numerator

import (
	"context"
	"time"
)

// Generator issues sequential document numbers. Implementations live in the
// infrastructure layer.
type Generator interface {
	// GetNextNumber returns the next number for cfg in the period containing
	// period, e.g. IMP-2026-00001.
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber overwrites the stored counter. Used when migrating data
	// numbered elsewhere.
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}

// Next issues a number under policy p.
func Next(ctx context.Context, g Generator, p Policy, at time.Time) (string, error) {
	opts := p.Options
	return g.GetNextNumber(ctx, p.Config, &opts, at)
}
