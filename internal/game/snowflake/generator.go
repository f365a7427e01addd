// Package snowflake mints 64-bit, roughly time-ordered identifiers without a
// central coordinator.
//
// Layout (most significant bit first):
//
//	| timestamp - epoch (42 bits) | entity id (10 bits) | sequence (12 bits) |
//
// A Generator is single-writer: it must be owned by exactly one goroutine, or
// serialised externally. IDs from one instance are strictly increasing while the
// clock does not move backwards; IDs from instances with distinct entity ids never
// collide.
package snowflake

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
)

const (
	// EntityBits is the width of the owning-entity field.
	EntityBits = 10
	// SequenceBits is the width of the in-millisecond sequence counter.
	SequenceBits = 12
	// MaxEntityID is the largest entity id representable in EntityBits.
	MaxEntityID = 1<<EntityBits - 1

	maxSequence    = 1<<SequenceBits - 1
	entityShift    = SequenceBits
	timestampShift = SequenceBits + EntityBits
)

// DefaultEpoch is the custom epoch subtracted from every timestamp.
var DefaultEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrClockRegression is wrapped by every ClockRegressionError.
var ErrClockRegression = errors.New("clock moved backwards")

// ErrClockBeforeEpoch is returned when the clock reads earlier than the configured epoch.
var ErrClockBeforeEpoch = errors.New("clock reads before epoch")

// ClockRegressionError reports that the wall clock went backwards. It is fatal for
// the Generator that returned it: the owner must discard the instance.
type ClockRegressionError struct {
	// Last is the most recent timestamp the generator issued an id for.
	Last int64
	// Now is the regressed clock reading.
	Now int64
}

// Error implements error.
func (e *ClockRegressionError) Error() string {
	return fmt.Sprintf("clock moved backwards by %dms (last=%d now=%d)", e.Last-e.Now, e.Last, e.Now)
}

// Unwrap allows errors.Is(err, ErrClockRegression).
func (e *ClockRegressionError) Unwrap() error { return ErrClockRegression }

// Magnitude returns how far the clock moved backwards.
func (e *ClockRegressionError) Magnitude() time.Duration {
	return time.Duration(e.Last-e.Now) * time.Millisecond
}

// Generator produces snowflake identifiers for one owning entity.
//
// Invariant: after a ClockRegressionError every call fails with the same error.
type Generator struct {
	entityID      int64
	epochMs       int64
	clock         Clock
	lastTimestamp int64
	sequence      int64
	fatal         error
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithEpoch replaces DefaultEpoch.
func WithEpoch(epoch time.Time) Option {
	return func(g *Generator) { g.epochMs = epoch.UnixMilli() }
}

// New creates a Generator for entityID.
//
// Precondition: entityID >= 0. Values wider than EntityBits are masked.
// Postcondition: Returns a Generator, or an error wrapping gameerr.ErrArgument when
// entityID is negative.
func New(entityID int64, opts ...Option) (*Generator, error) {
	if entityID < 0 {
		return nil, gameerr.Argumentf("entity id must not be negative, got %d", entityID)
	}
	g := &Generator{
		entityID:      entityID & MaxEntityID,
		epochMs:       DefaultEpoch.UnixMilli(),
		clock:         SystemClock(),
		lastTimestamp: -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// EntityID returns the masked entity id embedded in every id.
func (g *Generator) EntityID() int64 { return g.entityID }

// NextID returns the next identifier.
//
// When the sequence wraps within one millisecond the call polls the clock until
// the millisecond advances.
//
// Postcondition: Returns an id strictly greater than every id previously returned
// by g, or a *ClockRegressionError (fatal), or ErrClockBeforeEpoch.
func (g *Generator) NextID() (uint64, error) {
	if g.fatal != nil {
		return 0, g.fatal
	}
	now := g.clock.NowMillis()
	if now < g.lastTimestamp {
		return 0, g.fail(now)
	}
	if now < g.epochMs {
		return 0, fmt.Errorf("%w: now=%d epoch=%d", ErrClockBeforeEpoch, now, g.epochMs)
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			next, err := g.waitPast(g.lastTimestamp)
			if err != nil {
				return 0, err
			}
			now = next
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = now
	return uint64(now-g.epochMs)<<timestampShift |
		uint64(g.entityID)<<entityShift |
		uint64(g.sequence), nil
}

// waitPast polls the clock until it reads later than last.
func (g *Generator) waitPast(last int64) (int64, error) {
	for {
		now := g.clock.NowMillis()
		if now > last {
			return now, nil
		}
		if now < last {
			return 0, g.fail(now)
		}
		runtime.Gosched()
	}
}

func (g *Generator) fail(now int64) error {
	g.fatal = &ClockRegressionError{Last: g.lastTimestamp, Now: now}
	return g.fatal
}

// Parts is an unpacked identifier.
type Parts struct {
	// TimestampMs is the absolute Unix millisecond the id was minted in.
	TimestampMs int64
	EntityID    int64
	Sequence    int64
}

// Unpack splits id into its fields, adding epoch back onto the timestamp.
func Unpack(id uint64, epoch time.Time) Parts {
	return Parts{
		TimestampMs: int64(id>>timestampShift) + epoch.UnixMilli(),
		EntityID:    int64(id>>entityShift) & MaxEntityID,
		Sequence:    int64(id) & maxSequence,
	}
}

// Factory builds fresh generators; owners use it to replace a generator that
// failed fatally.
type Factory func(entityID int64) (*Generator, error)

// NewFactory returns a Factory applying opts to every generator it builds.
func NewFactory(opts ...Option) Factory {
	return func(entityID int64) (*Generator, error) {
		return New(entityID, opts...)
	}
}
