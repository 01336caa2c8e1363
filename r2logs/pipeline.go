package r2logs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultConcurrency is the default number of in-flight backend requests.
const DefaultConcurrency = 8

// -----------------------------------------------------------------------------
// Pipeline Configuration
// -----------------------------------------------------------------------------

// pipelineConfig holds the resolved configuration for a pipeline.
type pipelineConfig struct {
	layout      *Layout
	concurrency int
	pretty      bool
	retry       RetryPolicy
	log         zerolog.Logger
}

// Option configures pipeline construction.
type Option interface {
	applyPipeline(*pipelineConfig) error
}

// layoutOption implements Option for WithLayout.
type layoutOption struct {
	layout *Layout
}

// WithLayout sets the bucket partition layout.
// Default: NewHourlyLayout("").
func WithLayout(l *Layout) Option {
	return &layoutOption{layout: l}
}

func (o *layoutOption) applyPipeline(cfg *pipelineConfig) error {
	if o.layout == nil {
		return errors.New("WithLayout: layout must not be nil")
	}
	cfg.layout = o.layout
	return nil
}

// concurrencyOption implements Option for WithConcurrency.
type concurrencyOption struct {
	n int
}

// WithConcurrency bounds in-flight list and get requests.
// Default: DefaultConcurrency.
func WithConcurrency(n int) Option {
	return &concurrencyOption{n: n}
}

func (o *concurrencyOption) applyPipeline(cfg *pipelineConfig) error {
	if o.n < 1 {
		return &ConfigError{Field: "concurrency", Message: fmt.Sprintf("must be at least 1, got %d", o.n)}
	}
	cfg.concurrency = o.n
	return nil
}

// prettyOption implements Option for WithPretty.
type prettyOption struct {
	pretty bool
}

// WithPretty re-indents each JSON record before it reaches the sink.
func WithPretty(pretty bool) Option {
	return &prettyOption{pretty: pretty}
}

func (o *prettyOption) applyPipeline(cfg *pipelineConfig) error {
	cfg.pretty = o.pretty
	return nil
}

// retryOption implements Option for WithRetryPolicy.
type retryOption struct {
	policy RetryPolicy
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return &retryOption{policy: p}
}

func (o *retryOption) applyPipeline(cfg *pipelineConfig) error {
	if o.policy.MinBackoff < 0 || o.policy.MaxBackoff < 0 {
		return &ConfigError{Field: "retry policy", Message: "backoff must not be negative"}
	}
	cfg.retry = o.policy
	return nil
}

// loggerOption implements Option for WithLogger.
type loggerOption struct {
	log zerolog.Logger
}

// WithLogger sets the diagnostic logger. Default: zerolog.Nop().
func WithLogger(log zerolog.Logger) Option {
	return &loggerOption{log: log}
}

func (o *loggerOption) applyPipeline(cfg *pipelineConfig) error {
	cfg.log = o.log
	return nil
}

// -----------------------------------------------------------------------------
// Pipeline
// -----------------------------------------------------------------------------

// Pipeline resolves a time range to Logpush objects and retrieves them.
type Pipeline struct {
	layout    *Layout
	lister    *Lister
	assembler *Assembler
	log       zerolog.Logger
}

// NewPipeline creates a pipeline reading from store.
func NewPipeline(store Store, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("r2logs: store is required")
	}

	cfg := &pipelineConfig{
		layout:      NewHourlyLayout(""),
		concurrency: DefaultConcurrency,
		retry:       DefaultRetryPolicy(),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt.applyPipeline(cfg); err != nil {
			return nil, fmt.Errorf("r2logs: %w", err)
		}
	}

	fetcher := NewFetcher(store, cfg.retry, cfg.log)
	return &Pipeline{
		layout:    cfg.layout,
		lister:    NewLister(store, cfg.layout, cfg.concurrency, cfg.retry, cfg.log),
		assembler: NewAssembler(fetcher, cfg.concurrency, cfg.pretty, cfg.log),
		log:       cfg.log,
	}, nil
}

// Layout returns the pipeline's partition layout.
func (p *Pipeline) Layout() *Layout {
	return p.layout
}

// Resolve enumerates the partitions touched by r and lists the objects
// overlapping it, in chronological object order.
func (p *Pipeline) Resolve(ctx context.Context, r TimeRange) ([]StoredObject, error) {
	if r.Start.After(r.End) {
		return nil, &ConfigError{Field: "time range", Message: "start is after end"}
	}

	candidates := p.layout.Enumerate(r)
	p.log.Debug().Stringer("range", r).Int("partitions", len(candidates)).Msg("enumerated partitions")
	if len(candidates) == 0 {
		return nil, nil
	}
	return p.lister.List(ctx, r, candidates)
}

// Retrieve writes every line of every object overlapping r to sink, grouped
// by object in chronological order. The sink is flushed before returning,
// also on error.
func (p *Pipeline) Retrieve(ctx context.Context, r TimeRange, sink Sink) (Stats, error) {
	objects, err := p.Resolve(ctx, r)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Objects: len(objects)}
	for _, obj := range objects {
		stats.Bytes += obj.Size
	}

	stats.Records, err = p.assembler.Assemble(ctx, objects, sink)
	if flushErr := sink.Flush(); err == nil {
		err = flushErr
	}
	return stats, err
}

// List writes one record per object overlapping r to sink; the record data
// is the object key. No object body is read.
func (p *Pipeline) List(ctx context.Context, r TimeRange, sink Sink) (Stats, error) {
	objects, err := p.Resolve(ctx, r)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Objects: len(objects)}
	for _, obj := range objects {
		stats.Bytes += obj.Size
		if err := sink.Write(Record{Key: obj.Key, Data: []byte(obj.Key)}); err != nil {
			return stats, err
		}
		stats.Records++
	}
	return stats, sink.Flush()
}
