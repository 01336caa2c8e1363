package r2logs

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Lister resolves candidate prefixes to stored objects.
type Lister struct {
	store       Store
	layout      *Layout
	concurrency int
	retry       RetryPolicy
	log         zerolog.Logger
}

// NewLister creates a lister. A concurrency below 1 is treated as 1.
func NewLister(store Store, layout *Layout, concurrency int, retry RetryPolicy, log zerolog.Logger) *Lister {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Lister{
		store:       store,
		layout:      layout,
		concurrency: concurrency,
		retry:       retry,
		log:         log,
	}
}

// List lists every candidate prefix and returns the objects whose encoded
// range overlaps r.
//
// Prefixes are listed concurrently, but the result follows candidate order,
// and backend order within one prefix. Objects with names that do not encode
// a time range are skipped with a warning. The first prefix that cannot be
// listed aborts the call with a *BackendError.
func (l *Lister) List(ctx context.Context, r TimeRange, candidates []CandidateKey) ([]StoredObject, error) {
	results := make([][]StoredObject, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			objects, err := l.listPrefix(gctx, r, c)
			if err != nil {
				return err
			}
			results[i] = objects
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var objects []StoredObject
	for _, batch := range results {
		objects = append(objects, batch...)
	}
	return objects, nil
}

func (l *Lister) listPrefix(ctx context.Context, r TimeRange, c CandidateKey) ([]StoredObject, error) {
	var infos []ObjectInfo
	err := l.retry.do(ctx, l.log, "list", c.Prefix, func() error {
		var err error
		infos, err = l.store.List(ctx, c.Prefix)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &BackendError{Op: "list", Key: c.Prefix, Err: err}
	}

	var objects []StoredObject
	for _, info := range infos {
		// Directory markers
		if strings.HasSuffix(info.Key, "/") {
			continue
		}

		rng, err := l.layout.Parse(info.Key)
		if err != nil {
			l.log.Warn().Err(err).Str("key", info.Key).Msg("skipping object with unrecognized name")
			continue
		}
		if !rng.Overlaps(r) {
			continue
		}

		objects = append(objects, StoredObject{
			Key:          info.Key,
			Size:         info.Size,
			LastModified: info.LastModified,
			Range:        rng,
		})
	}

	l.log.Debug().Str("prefix", c.Prefix).Int("listed", len(infos)).Int("matched", len(objects)).Msg("listed partition")
	return objects, nil
}
