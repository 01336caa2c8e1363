package r2logs

import (
	"bufio"
	"errors"
	"io"
)

// -----------------------------------------------------------------------------
// Line Sink
// -----------------------------------------------------------------------------

// lineSink writes each record followed by a newline.
type lineSink struct {
	w *bufio.Writer
}

// NewLineSink creates a Sink writing one record per line to w.
func NewLineSink(w io.Writer) Sink {
	return &lineSink{w: bufio.NewWriter(w)}
}

func (s *lineSink) Write(rec Record) error {
	if _, err := s.w.Write(rec.Data); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *lineSink) Flush() error {
	return s.w.Flush()
}

// -----------------------------------------------------------------------------
// Multi Sink
// -----------------------------------------------------------------------------

type multiSink struct {
	sinks []Sink
}

// MultiSink duplicates records to every sink, in order. Write stops at the
// first failing sink; Flush flushes all sinks and joins their errors.
func MultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) Write(rec Record) error {
	for _, s := range m.sinks {
		if err := s.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiSink) Flush() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Collect Sink
// -----------------------------------------------------------------------------

// CollectSink keeps records in memory. Useful for tests and small ranges.
type CollectSink struct {
	Records []Record
	Flushes int
}

// Write implements Sink.
func (c *CollectSink) Write(rec Record) error {
	c.Records = append(c.Records, rec)
	return nil
}

// Flush implements Sink.
func (c *CollectSink) Flush() error {
	c.Flushes++
	return nil
}
