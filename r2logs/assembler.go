package r2logs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// streamBuffer is the number of records a fetch may run ahead of the
// consumer before blocking.
const streamBuffer = 256

// Assembler merges per-object record streams into one ordered stream.
//
// Up to concurrency objects are fetched at once. Records are emitted grouped
// by object in the given object order, and in line order within an object,
// regardless of which fetch completes first.
type Assembler struct {
	fetcher     *Fetcher
	concurrency int
	pretty      bool
	log         zerolog.Logger
}

// NewAssembler creates an assembler over fetcher. A concurrency below 1 is
// treated as 1.
func NewAssembler(fetcher *Fetcher, concurrency int, pretty bool, log zerolog.Logger) *Assembler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Assembler{
		fetcher:     fetcher,
		concurrency: concurrency,
		pretty:      pretty,
		log:         log,
	}
}

// objectStream carries one object's records from its fetch to the consumer.
type objectStream struct {
	obj     StoredObject
	records chan Record

	// err is written before records is closed.
	err error
}

// Assemble fetches objects and writes their records to sink in order.
// It returns the number of records written.
//
// The sink is flushed after each object. When an object fails, every record
// of the objects before it, and the records it produced before failing,
// have already been written and flushed. Once ctx is done no further record
// is written.
func (a *Assembler) Assemble(ctx context.Context, objects []StoredObject, sink Sink) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)

	// window bounds the fetches started but not yet drained.
	window := semaphore.NewWeighted(int64(a.concurrency))
	streams := make(chan *objectStream, a.concurrency)
	dispatched := make(chan struct{})

	go func() {
		defer close(dispatched)
		var wg sync.WaitGroup
		defer wg.Wait()
		defer close(streams)

		for _, obj := range objects {
			if err := window.Acquire(ctx, 1); err != nil {
				return
			}

			s := &objectStream{obj: obj, records: make(chan Record, streamBuffer)}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer close(s.records)
				s.err = a.fetcher.Fetch(ctx, obj, func(rec Record) error {
					select {
					case s.records <- rec:
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				})
			}()

			select {
			case streams <- s:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer func() {
		cancel()
		<-dispatched
	}()

	var written int64
	for s := range streams {
	drain:
		for {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case rec, ok := <-s.records:
				if !ok {
					break drain
				}
				// A buffered record may win the select after cancellation.
				if err := ctx.Err(); err != nil {
					return written, err
				}
				if a.pretty {
					rec = a.prettify(rec)
				}
				if err := sink.Write(rec); err != nil {
					return written, err
				}
				written++
			}
		}
		if err := sink.Flush(); err != nil {
			return written, err
		}
		window.Release(1)

		if s.err != nil {
			return written, s.err
		}
		a.log.Debug().Str("key", s.obj.Key).Msg("object assembled")
	}

	// The dispatcher stops early only when ctx is done.
	return written, ctx.Err()
}

// prettify indents a JSON record. Records that are not valid JSON pass
// through unchanged.
func (a *Assembler) prettify(rec Record) Record {
	pretty, err := Pretty(rec.Data)
	if err != nil {
		a.log.Warn().
			Err(err).
			Str("key", rec.Key).
			Int("line", rec.Line).
			Msg("record is not valid JSON; writing it verbatim")
		return rec
	}
	rec.Data = pretty
	return rec
}
