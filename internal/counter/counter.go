package counter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"calltrack/internal/apperr"
	"calltrack/internal/datekey"
	"calltrack/internal/lock"
	"calltrack/internal/metrics"
)

// Tally is the state of one day after an increment.
type Tally struct {
	Date  string `json:"date"`
	Calls int    `json:"calls"`
}

// Counter increments the call count of the current day.
type Counter interface {
	IncrementToday(ctx context.Context) (Tally, error)
}

// Sheet is a Counter over a two-column Table: column A holds date keys,
// column B the counts, row 1 is a header.
type Sheet struct {
	Table  Table
	Tab    string
	Zone   *time.Location
	Locker lock.Locker
	Now    func() time.Time
	Log    *slog.Logger

	// Timeout bounds the locked read and write. Keep it below the locker's TTL.
	Timeout time.Duration
}

// DefaultTimeout is shorter than the Redis lock TTL so a lock never expires
// while its holder is still writing.
const DefaultTimeout = 8 * time.Second

// NewSheet builds a Sheet counter. A nil locker serializes in-process only.
func NewSheet(t Table, tab string, zone *time.Location, locker lock.Locker, log *slog.Logger) *Sheet {
	if tab == "" {
		tab = "Sheet1"
	}
	if locker == nil {
		locker = lock.NewMemory()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sheet{Table: t, Tab: tab, Zone: zone, Locker: locker, Now: time.Now, Log: log, Timeout: DefaultTimeout}
}

// IncrementToday reads the whole table, bumps today's row or appends a new one.
// The read and the write run under a per-date-key lock so concurrent callers
// cannot both append or both write the same post-increment value.
func (s *Sheet) IncrementToday(ctx context.Context) (Tally, error) {
	key := datekey.Resolve(s.Now(), s.Zone)

	unlock, err := s.Locker.Lock(ctx, "calls:"+key)
	if err != nil {
		return Tally{}, apperr.Upstream("acquire counter lock", err)
	}
	defer unlock()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	rng := A1(s.Tab, "A:B")
	start := time.Now()
	rows, err := s.Table.Read(ctx, rng)
	metrics.StoreLatency.WithLabelValues("read").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CallsTracked.WithLabelValues("error").Inc()
		return Tally{}, apperr.Upstream("", err)
	}

	match, dups := findRow(rows, key)
	if dups > 0 {
		// First match wins; the extra rows are left for an operator to clean up.
		metrics.DuplicateDateRows.Inc()
		s.Log.Warn("duplicate counter rows for date", "date", key, "extra", dups, "using_row", match+1)
	}

	if match < 0 {
		start = time.Now()
		err = s.Table.Append(ctx, rng, [][]any{{key, 1}})
		metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CallsTracked.WithLabelValues("error").Inc()
			return Tally{}, apperr.Upstream("", err)
		}
		metrics.CallsTracked.WithLabelValues("appended").Inc()
		return Tally{Date: key, Calls: 1}, nil
	}

	current, _ := leadingInt(cell(rows[match], 1))
	next := current + 1
	start = time.Now()
	err = s.Table.Update(ctx, A1(s.Tab, fmt.Sprintf("B%d", match+1)), [][]any{{next}})
	metrics.StoreLatency.WithLabelValues("update").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CallsTracked.WithLabelValues("error").Inc()
		return Tally{}, apperr.Upstream("", err)
	}
	metrics.CallsTracked.WithLabelValues("incremented").Inc()
	return Tally{Date: key, Calls: next}, nil
}

// findRow returns the zero-based index of the first data row whose trimmed
// column A equals key (-1 if none) and how many later rows also match.
func findRow(rows [][]string, key string) (match, dups int) {
	match = -1
	for i := 1; i < len(rows); i++ {
		if strings.TrimSpace(cell(rows[i], 0)) != key {
			continue
		}
		if match < 0 {
			match = i
		} else {
			dups++
		}
	}
	return match, dups
}

// Upserter increments a date's count atomically on the store side.
type Upserter interface {
	IncrementCalls(ctx context.Context, dateKey string) (int, error)
}

// Atomic is a Counter over a store with a native conditional upsert; it needs no lock.
type Atomic struct {
	Store Upserter
	Zone  *time.Location
	Now   func() time.Time
}

// NewAtomic returns a Counter over an upsert-capable store.
func NewAtomic(store Upserter, zone *time.Location) *Atomic {
	return &Atomic{Store: store, Zone: zone, Now: time.Now}
}

// IncrementToday bumps today's count in a single store call.
func (a *Atomic) IncrementToday(ctx context.Context) (Tally, error) {
	key := datekey.Resolve(a.Now(), a.Zone)
	start := time.Now()
	n, err := a.Store.IncrementCalls(ctx, key)
	metrics.StoreLatency.WithLabelValues("upsert").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CallsTracked.WithLabelValues("error").Inc()
		return Tally{}, apperr.Upstream("", err)
	}
	metrics.CallsTracked.WithLabelValues("upserted").Inc()
	return Tally{Date: key, Calls: n}, nil
}
