package privacy

import (
	"fmt"
	"math"
	"time"

	"github.com/google/differential-privacy/go/v3/checks"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// BudgetEntry records one differential-privacy query against the ledger.
type BudgetEntry struct {
	Query             string    `json:"query" yaml:"query"`
	Epsilon           float64   `json:"epsilon" yaml:"epsilon"`
	Timestamp         time.Time `json:"timestamp" yaml:"timestamp"`
	CumulativeEpsilon float64   `json:"cumulative_epsilon" yaml:"cumulative_epsilon"`
}

// BudgetReport is a snapshot of the ledger.
type BudgetReport struct {
	TotalEpsilonUsed float64       `json:"total_epsilon_used" yaml:"total_epsilon_used"`
	TotalQueries     int           `json:"total_queries" yaml:"total_queries"`
	Queries          []BudgetEntry `json:"queries" yaml:"queries"`
	BudgetRemaining  float64       `json:"budget_remaining" yaml:"budget_remaining"`
	RecommendedMax   float64       `json:"recommended_max" yaml:"recommended_max"`
	Exceeded         bool          `json:"exceeded" yaml:"exceeded"`
}

// Ledger is an append-only record of epsilon spent under sequential
// composition. Entries are never removed and the running total never
// decreases. A Ledger is not safe for concurrent use.
type Ledger struct {
	recommendedMax float64
	total          float64
	entries        []BudgetEntry
	sink           EventSink
	now            func() time.Time
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerSink sends a budget.recorded event for every recorded query.
func WithLedgerSink(sink EventSink) LedgerOption {
	return func(l *Ledger) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithLedgerClock overrides the timestamp source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates an empty ledger. recommendedMax is advisory: spending
// past it is allowed and only reported.
func NewLedger(recommendedMax float64, opts ...LedgerOption) (*Ledger, error) {
	if err := validateRecommendedMax(recommendedMax); err != nil {
		return nil, err
	}

	l := &Ledger{
		recommendedMax: recommendedMax,
		entries:        make([]BudgetEntry, 0),
		sink:           NopSink{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// NewDefaultLedger creates a ledger with a recommended maximum of 1.0.
func NewDefaultLedger(opts ...LedgerOption) *Ledger {
	l, _ := NewLedger(constants.DefaultRecommendedMaxEpsilon, opts...)
	return l
}

// RecordQuery appends a query that consumed epsilon. Negative, NaN and
// infinite epsilon are rejected with an InvalidBudgetError and leave the
// ledger unchanged.
func (l *Ledger) RecordQuery(query string, epsilon float64) (BudgetEntry, error) {
	if err := checks.CheckEpsilon(epsilon); err != nil {
		return BudgetEntry{}, errors.WrapError(err, errors.ErrorTypeBudget, errors.CodeInvalidBudget, "invalid epsilon").
			WithDetails(fmt.Sprintf("query %q, epsilon %g", query, epsilon))
	}

	l.total += epsilon
	entry := BudgetEntry{
		Query:             query,
		Epsilon:           epsilon,
		Timestamp:         l.now(),
		CumulativeEpsilon: l.total,
	}
	l.entries = append(l.entries, entry)

	l.sink.Emit(Event{
		Type: EventBudgetRecorded,
		Time: entry.Timestamp,
		Fields: map[string]interface{}{
			"query":      query,
			"epsilon":    epsilon,
			"cumulative": l.total,
		},
	})

	return entry, nil
}

// TotalEpsilon returns the cumulative epsilon spent.
func (l *Ledger) TotalEpsilon() float64 {
	return l.total
}

// Remaining returns max(0, recommendedMax - total).
func (l *Ledger) Remaining() float64 {
	return math.Max(0, l.recommendedMax-l.total)
}

// RecommendedMax returns the advisory ceiling.
func (l *Ledger) RecommendedMax() float64 {
	return l.recommendedMax
}

// Entries returns a copy of the recorded queries in insertion order.
func (l *Ledger) Entries() []BudgetEntry {
	out := make([]BudgetEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// BudgetReport snapshots the ledger.
func (l *Ledger) BudgetReport() *BudgetReport {
	return &BudgetReport{
		TotalEpsilonUsed: l.total,
		TotalQueries:     len(l.entries),
		Queries:          l.Entries(),
		BudgetRemaining:  l.Remaining(),
		RecommendedMax:   l.recommendedMax,
		Exceeded:         l.total > l.recommendedMax,
	}
}
