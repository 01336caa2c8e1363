package r2logs

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// objectTimeFormat is the timestamp format Logpush embeds in object names:
//
//	20240111T150000Z_20240111T150030Z_a1b2c3d4.log.gz
const objectTimeFormat = "20060102T150405Z"

// Layout names accepted by ParseLayout.
const (
	LayoutHourly = "hourly"
	LayoutDaily  = "daily"
)

// Layout describes how a bucket partitions Logpush objects by time.
//
// A layout maps a partition start time to a key prefix and recovers an
// object's time range from its name. Partitions are aligned to UTC.
type Layout struct {
	name   string
	prefix string
	unit   time.Duration
	path   func(t time.Time) string
}

// NewHourlyLayout creates a layout with one partition per UTC hour:
//
//	<prefix>date=2006-01-02/hour=15/<start>_<end>_<id>.log.gz
func NewHourlyLayout(prefix string) *Layout {
	return &Layout{
		name:   LayoutHourly,
		prefix: normalizePrefix(prefix),
		unit:   time.Hour,
		path: func(t time.Time) string {
			return fmt.Sprintf("date=%s/hour=%02d/", t.Format("2006-01-02"), t.Hour())
		},
	}
}

// NewDailyLayout creates a layout with one partition per UTC day, matching
// the Logpush {DATE} path template:
//
//	<prefix>20060102/<start>_<end>_<id>.log.gz
func NewDailyLayout(prefix string) *Layout {
	return &Layout{
		name:   LayoutDaily,
		prefix: normalizePrefix(prefix),
		unit:   24 * time.Hour,
		path: func(t time.Time) string {
			return t.Format("20060102") + "/"
		},
	}
}

// ParseLayout returns the layout registered under name.
func ParseLayout(name, prefix string) (*Layout, error) {
	switch name {
	case "", LayoutHourly:
		return NewHourlyLayout(prefix), nil
	case LayoutDaily:
		return NewDailyLayout(prefix), nil
	default:
		return nil, &ConfigError{
			Field:   "layout",
			Message: fmt.Sprintf("unknown layout %q (want %s or %s)", name, LayoutHourly, LayoutDaily),
		}
	}
}

// Name returns the layout identifier.
func (l *Layout) Name() string {
	return l.name
}

// Partition returns the start of the partition containing t.
func (l *Layout) Partition(t time.Time) time.Time {
	t = t.UTC()
	if l.unit == 24*time.Hour {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(l.unit)
}

// Enumerate returns one candidate prefix per partition touched by r, from
// the partition containing r.Start to the partition containing r.End
// inclusive, in chronological order. An empty range yields no candidates.
func (l *Layout) Enumerate(r TimeRange) []CandidateKey {
	if r.Empty() {
		return nil
	}

	last := l.Partition(r.End)
	var keys []CandidateKey
	for p := l.Partition(r.Start); !p.After(last); p = p.Add(l.unit) {
		keys = append(keys, CandidateKey{
			Prefix:    l.prefix + l.path(p),
			Partition: p,
		})
	}
	return keys
}

// Parse recovers the time range encoded in an object key.
// Returns ErrUnparsableKey if the name does not follow the Logpush convention.
//
// An object whose end equals its start covers the single second at start.
func (l *Layout) Parse(key string) (TimeRange, error) {
	name := path.Base(key)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}

	fields := strings.Split(name, "_")
	if len(fields) < 2 {
		return TimeRange{}, fmt.Errorf("%w: %s", ErrUnparsableKey, key)
	}

	start, err := time.Parse(objectTimeFormat, fields[0])
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: %s: bad start: %v", ErrUnparsableKey, key, err)
	}
	end, err := time.Parse(objectTimeFormat, fields[1])
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: %s: bad end: %v", ErrUnparsableKey, key, err)
	}

	switch {
	case end.Before(start):
		return TimeRange{}, fmt.Errorf("%w: %s: end before start", ErrUnparsableKey, key)
	case end.Equal(start):
		end = start.Add(time.Second)
	}

	return TimeRange{Start: start, End: end}, nil
}

// ObjectName formats the Logpush object name for a batch covering r.
// The id distinguishes batches with identical ranges; ext is usually ".log.gz".
func ObjectName(r TimeRange, id, ext string) string {
	return r.Start.UTC().Format(objectTimeFormat) + "_" + r.End.UTC().Format(objectTimeFormat) + "_" + id + ext
}

// ObjectKey returns the full key under which a batch covering r is stored.
func (l *Layout) ObjectKey(r TimeRange, id, ext string) string {
	return l.prefix + l.path(l.Partition(r.Start)) + ObjectName(r, id, ext)
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
