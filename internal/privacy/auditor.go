package privacy

import (
	"time"

	"github.com/google/uuid"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// AuditReport is the result of a comprehensive audit. Per-attribute maps
// are keyed by sensitive attribute name.
type AuditReport struct {
	ID                  string                       `json:"id" yaml:"id"`
	Timestamp           time.Time                    `json:"timestamp" yaml:"timestamp"`
	RecordCount         int                          `json:"record_count" yaml:"record_count"`
	QuasiIdentifiers    []string                     `json:"quasi_identifiers" yaml:"quasi_identifiers"`
	SensitiveAttributes []string                     `json:"sensitive_attributes" yaml:"sensitive_attributes"`
	KAnonymity          *KAnonymityResult            `json:"k_anonymity" yaml:"k_anonymity"`
	LDiversity          map[string]*LDiversityResult `json:"l_diversity" yaml:"l_diversity"`
	TCloseness          map[string]*TClosenessResult `json:"t_closeness" yaml:"t_closeness"`
	OverallPrivacyScore float64                      `json:"overall_privacy_score" yaml:"overall_privacy_score"`
}

// Auditor runs the privacy checks with a fixed set of thresholds and
// reports every step to its EventSink.
type Auditor struct {
	config AuditConfig
	sink   EventSink
	ledger *Ledger
	now    func() time.Time
	newID  func() string
}

// Option customises an Auditor.
type Option func(*Auditor)

// WithSink routes engine events to sink.
func WithSink(sink EventSink) Option {
	return func(a *Auditor) {
		if sink != nil {
			a.sink = sink
		}
	}
}

// WithLedger replaces the auditor's budget ledger.
func WithLedger(ledger *Ledger) Option {
	return func(a *Auditor) {
		if ledger != nil {
			a.ledger = ledger
		}
	}
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator overrides how report IDs are produced.
func WithIDGenerator(newID func() string) Option {
	return func(a *Auditor) {
		if newID != nil {
			a.newID = newID
		}
	}
}

// NewAuditor validates cfg and builds an Auditor. A nil cfg uses
// DefaultAuditConfig. Unless WithLedger is given, the auditor owns a fresh
// ledger bounded by cfg.RecommendedMaxEpsilon that reports to the same sink.
func NewAuditor(cfg *AuditConfig, opts ...Option) (*Auditor, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Auditor{
		config: *cfg,
		sink:   NopSink{},
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.ledger == nil {
		ledger, err := NewLedger(cfg.RecommendedMaxEpsilon, WithLedgerSink(a.sink), WithLedgerClock(a.now))
		if err != nil {
			return nil, err
		}
		a.ledger = ledger
	}

	return a, nil
}

// Config returns a copy of the auditor's thresholds.
func (a *Auditor) Config() AuditConfig {
	return a.config
}

// Ledger returns the auditor's privacy budget ledger.
func (a *Auditor) Ledger() *Ledger {
	return a.ledger
}

// CheckKAnonymity runs the k-anonymity check with the configured k.
func (a *Auditor) CheckKAnonymity(ds *models.Dataset, quasiIdentifiers []string) (*KAnonymityResult, error) {
	result, err := CheckKAnonymity(ds, quasiIdentifiers, a.config.K)
	if err != nil {
		return nil, err
	}
	a.emit(EventKAnonymityChecked, result.fields())
	return result, nil
}

// CheckLDiversity runs the l-diversity check with the configured l.
func (a *Auditor) CheckLDiversity(ds *models.Dataset, quasiIdentifiers []string, sensitive string) (*LDiversityResult, error) {
	result, err := CheckLDiversity(ds, quasiIdentifiers, sensitive, a.config.L)
	if err != nil {
		return nil, err
	}
	a.emit(EventLDiversityChecked, result.fields())
	return result, nil
}

// CheckTCloseness runs the t-closeness check with the configured t.
func (a *Auditor) CheckTCloseness(ds *models.Dataset, quasiIdentifiers []string, sensitive string) (*TClosenessResult, error) {
	result, err := CheckTCloseness(ds, quasiIdentifiers, sensitive, a.config.T)
	if err != nil {
		return nil, err
	}
	a.emit(EventTClosenessChecked, result.fields())
	return result, nil
}

// EnforceKAnonymity enforces the configured k on ds with method.
func (a *Auditor) EnforceKAnonymity(ds *models.Dataset, quasiIdentifiers []string, method Method) (*EnforcementResult, error) {
	result, err := EnforceKAnonymity(ds, quasiIdentifiers, a.config.K, method)
	if err != nil {
		return nil, err
	}
	a.emit(EventEnforcementComplete, result.fields())
	return result, nil
}

// ComprehensiveAudit runs k-anonymity once, then l-diversity and
// t-closeness for each sensitive attribute, and scores the outcome. The
// score is the mean over all 1+2n check results of 100 for a pass and 0
// for a fail. Any failing check aborts the whole audit. Check events are
// held back until every check has run, so an aborted audit emits nothing.
func (a *Auditor) ComprehensiveAudit(ds *models.Dataset, quasiIdentifiers, sensitiveAttributes []string) (*AuditReport, error) {
	var pending []Event
	hold := func(eventType EventType, fields map[string]interface{}) {
		pending = append(pending, a.event(eventType, fields))
	}

	kResult, err := CheckKAnonymity(ds, quasiIdentifiers, a.config.K)
	if err != nil {
		return nil, err
	}
	hold(EventKAnonymityChecked, kResult.fields())

	report := &AuditReport{
		ID:                  a.newID(),
		Timestamp:           a.now(),
		RecordCount:         ds.Len(),
		QuasiIdentifiers:    append([]string(nil), quasiIdentifiers...),
		SensitiveAttributes: append([]string{}, sensitiveAttributes...),
		KAnonymity:          kResult,
		LDiversity:          make(map[string]*LDiversityResult, len(sensitiveAttributes)),
		TCloseness:          make(map[string]*TClosenessResult, len(sensitiveAttributes)),
	}

	for _, attr := range sensitiveAttributes {
		lResult, err := CheckLDiversity(ds, quasiIdentifiers, attr, a.config.L)
		if err != nil {
			return nil, err
		}
		hold(EventLDiversityChecked, lResult.fields())
		report.LDiversity[attr] = lResult

		tResult, err := CheckTCloseness(ds, quasiIdentifiers, attr, a.config.T)
		if err != nil {
			return nil, err
		}
		hold(EventTClosenessChecked, tResult.fields())
		report.TCloseness[attr] = tResult
	}

	report.OverallPrivacyScore = score(report)

	for _, event := range pending {
		a.sink.Emit(event)
	}
	a.emit(EventAuditCompleted, map[string]interface{}{
		"audit_id":      report.ID,
		"record_count":  report.RecordCount,
		"privacy_score": report.OverallPrivacyScore,
		"k_satisfied":   kResult.Satisfies,
	})

	return report, nil
}

// score averages 100/0 over the k-anonymity result and, per listed
// attribute, its l-diversity and t-closeness results. Duplicate attributes
// are counted once per occurrence.
func score(report *AuditReport) float64 {
	passed, total := 0, 1
	if report.KAnonymity.Satisfies {
		passed++
	}
	for _, attr := range report.SensitiveAttributes {
		total += 2
		if report.LDiversity[attr].Satisfies {
			passed++
		}
		if report.TCloseness[attr].Satisfies {
			passed++
		}
	}
	return float64(100*passed) / float64(total)
}

func (a *Auditor) event(eventType EventType, fields map[string]interface{}) Event {
	return Event{Type: eventType, Time: a.now(), Fields: fields}
}

func (a *Auditor) emit(eventType EventType, fields map[string]interface{}) {
	a.sink.Emit(a.event(eventType, fields))
}
