package smartbatch

import (
	"fmt"
	"log/slog"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Config tunes a Writer. The zero value is usable: New fills defaults and
// validates the result.
type Config struct {
	// MinimalSize bounds the adaptive insert fallback. A run that fails its
	// bulk insert splits into sqrt-sized chunks while its length is at
	// least MinimalSize squared; below that it degrades to row-by-row.
	MinimalSize int `default:"5" validate:"min=1"`

	// OmitNulls drops nil-valued non-key columns from update and upsert
	// items, row and record forms alike, so a partial item cannot overwrite
	// stored values with NULL. Inserts always send the full column list.
	OmitNulls bool

	// Logger receives debug-level engine events. Defaults to slog.Default().
	Logger *slog.Logger `validate:"-"`
}

// Writer runs the bulk-write engines against any store reachable through a
// Handle. A Writer is immutable and safe for concurrent use; each call gets
// its own session via the broker.
type Writer struct {
	cfg Config
	log *slog.Logger
}

// New builds a Writer: defaults are applied to cfg, then the result is
// validated. An out-of-range value is a configuration error.
func New(cfg Config) (*Writer, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Writer{cfg: cfg, log: cfg.Logger}, nil
}

// InsertResult reports what an insert engine call did. Operations counts
// insert statements issued, bulk and single-row alike; Inserted counts rows
// actually persisted. Counts accumulate across splits and row-by-row
// fallbacks, and stand even when the call returns an error.
type InsertResult struct {
	Operations int
	Inserted   int
}

// UpdateResult reports what an update or upsert call did. Updated counts
// items whose conditional update matched (one per item, whatever the
// affected-row count); Inserted counts rows written by the upsert phase and
// stays zero for plain updates.
type UpdateResult struct {
	Updated  int
	Inserted int
}

// callOptions are the per-call knobs, seeded from Config.
type callOptions struct {
	minimalSize int
	omitNulls   bool
}

// Option adjusts a single engine call.
type Option func(*callOptions)

// WithMinimalSize overrides Config.MinimalSize for one insert call.
func WithMinimalSize(n int) Option {
	return func(o *callOptions) { o.minimalSize = n }
}

// WithOmitNulls overrides Config.OmitNulls for one update or upsert call.
func WithOmitNulls(v bool) Option {
	return func(o *callOptions) { o.omitNulls = v }
}

// options merges per-call overrides over the writer defaults and validates
// the result before any session is touched.
func (w *Writer) options(opts []Option) (callOptions, error) {
	o := callOptions{
		minimalSize: w.cfg.MinimalSize,
		omitNulls:   w.cfg.OmitNulls,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.minimalSize < 1 {
		return o, fmt.Errorf("%w: minimal size must be at least 1, got %d", ErrConfiguration, o.minimalSize)
	}
	return o, nil
}
