package privacy

import (
	"time"

	"github.com/sirupsen/logrus"
)

// EventType names a structured event emitted by the engine.
type EventType string

const (
	EventAuditCompleted      EventType = "audit.completed"
	EventKAnonymityChecked   EventType = "check.k_anonymity"
	EventLDiversityChecked   EventType = "check.l_diversity"
	EventTClosenessChecked   EventType = "check.t_closeness"
	EventEnforcementComplete EventType = "enforce.completed"
	EventBudgetRecorded      EventType = "budget.recorded"
)

// Event is one structured observation. Fields hold primitive values only.
type Event struct {
	Type   EventType
	Time   time.Time
	Fields map[string]interface{}
}

// EventSink receives engine events. Implementations must not retain or
// modify Fields after Emit returns. A comprehensive audit delivers its
// check events only after the whole audit succeeds.
type EventSink interface {
	Emit(event Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// MultiSink fans an event out to each sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(event)
		}
	}
}

// LogrusSink writes events as structured log lines.
type LogrusSink struct {
	logger *logrus.Logger
	level  logrus.Level
}

// NewLogrusSink logs every event at info level. A nil logger gets a default one.
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogrusSink{logger: logger, level: logrus.InfoLevel}
}

// WithLevel changes the level events are logged at.
func (s *LogrusSink) WithLevel(level logrus.Level) *LogrusSink {
	s.level = level
	return s
}

func (s *LogrusSink) Emit(event Event) {
	fields := make(logrus.Fields, len(event.Fields)+1)
	for k, v := range event.Fields {
		fields[k] = v
	}
	fields["event"] = string(event.Type)

	s.logger.WithFields(fields).WithTime(event.Time).Log(s.level, eventMessages[event.Type])
}

var eventMessages = map[EventType]string{
	EventAuditCompleted:      "Privacy audit complete",
	EventKAnonymityChecked:   "K-anonymity check complete",
	EventLDiversityChecked:   "L-diversity check complete",
	EventTClosenessChecked:   "T-closeness check complete",
	EventEnforcementComplete: "K-anonymity enforcement complete",
	EventBudgetRecorded:      "Privacy budget used",
}
