// Package stats keeps process-wide writing statistics.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"scribe/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	dayLayout  = "2006-01-02"
	monthSpan  = 30
	bucketName = "words"
)

// DayCount is the number of words written on one calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Words int    `json:"words"`
}

func (d *DayCount) GetID() string { return d.Date }

// Summary reports word counts over the usual windows.
type Summary struct {
	Total    int        `json:"total"`     // since the tracker was created
	Today    int        `json:"today"`
	SumMonth int        `json:"sum_month"` // last 30 days, today included
	AvgMonth int        `json:"avg_month"` // mean over the days of SumMonth that have an entry
	Days     []DayCount `json:"days,omitempty"`
}

// Tracker accumulates word count changes. It is safe for concurrent use.
type Tracker struct {
	store  *storage.BadgerStore
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	total int
}

type Option func(*Tracker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(db *badger.DB, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:  storage.NewBadgerStore(db, bucketName),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IncreaseWordCount adds delta (which may be negative) to the running total and
// to today's bucket. Persistence failures are logged, never returned.
func (t *Tracker) IncreaseWordCount(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total += delta
	if delta == 0 {
		return
	}

	today := t.now().Format(dayLayout)
	day := DayCount{Date: today}
	if err := t.store.Get(today, &day); err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.logger.Error("reading word count", zap.String("date", today), zap.Error(err))
		return
	}
	day.Words += delta

	if err := t.store.Put(&day); err != nil {
		t.logger.Error("storing word count", zap.String("date", today), zap.Error(err))
		return
	}
	t.logger.Debug("word count updated", zap.Int("delta", delta), zap.Int("today", day.Words))
}

// Total returns the running total since the tracker was created.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Summary computes today's and the last 30 days' figures.
func (t *Tracker) Summary() (Summary, error) {
	t.mu.Lock()
	total := t.total
	now := t.now()
	t.mu.Unlock()

	today := now.Format(dayLayout)
	since := now.AddDate(0, 0, -(monthSpan - 1)).Format(dayLayout)

	s := Summary{Total: total}
	err := t.store.Each("", func(_ string, raw []byte) error {
		var day DayCount
		if err := json.Unmarshal(raw, &day); err != nil {
			return fmt.Errorf("decoding day: %w", err)
		}
		if day.Date < since || day.Date > today {
			return nil
		}
		if day.Date == today {
			s.Today = day.Words
		}
		s.SumMonth += day.Words
		s.Days = append(s.Days, day)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	if len(s.Days) > 0 {
		s.AvgMonth = int(math.Round(float64(s.SumMonth) / float64(len(s.Days))))
	}
	sort.Slice(s.Days, func(i, j int) bool { return s.Days[i].Date < s.Days[j].Date })
	return s, nil
}
