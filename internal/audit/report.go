package audit

import (
	"fmt"
	"sort"
	"time"

	dErrors "fingov/pkg/domain-errors"
)

// ReportKind selects how much event detail a period report carries.
type ReportKind string

const (
	ReportFull           ReportKind = "full"
	ReportSummary        ReportKind = "summary"
	ReportViolationsOnly ReportKind = "violations_only"
	ReportDecisionsOnly  ReportKind = "decisions_only"
)

// Report aggregates ledger activity over a period.
type Report struct {
	GeneratedAt       string         `json:"report_generated"`
	PeriodStart       string         `json:"period_start"`
	PeriodEnd         string         `json:"period_end"`
	TotalEvents       int            `json:"total_events"`
	EventTypes        map[string]int `json:"event_types"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
	UserActivity      map[string]int `json:"user_activity"`
	CorruptLines      []CorruptLine  `json:"corrupt_lines"`
	Events            []Event        `json:"events"`
}

// GenerateReport builds a period report over [from, to].
func (l *Ledger) GenerateReport(from, to time.Time, kind ReportKind) (*Report, error) {
	switch kind {
	case ReportFull, ReportSummary, ReportViolationsOnly, ReportDecisionsOnly:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown report kind %q", kind))
	}

	all, corrupt, err := l.ReadAll()
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt:       l.now().UTC().Format(TimeFormat),
		PeriodStart:       from.UTC().Format(TimeFormat),
		PeriodEnd:         to.UTC().Format(TimeFormat),
		EventTypes:        map[string]int{},
		SeverityBreakdown: map[string]int{},
		UserActivity:      map[string]int{},
		CorruptLines:      corrupt,
		Events:            []Event{},
	}

	for _, e := range all {
		ts, err := time.Parse(TimeFormat, e.Timestamp)
		if err != nil || ts.Before(from) || ts.After(to) {
			continue
		}
		report.TotalEvents++
		report.EventTypes[string(e.EventType)]++
		report.SeverityBreakdown[string(e.Severity)]++
		report.UserActivity[e.UserName]++

		switch kind {
		case ReportFull:
			report.Events = append(report.Events, e)
		case ReportViolationsOnly:
			if e.EventType == EventRuleViolation {
				report.Events = append(report.Events, e)
			}
		case ReportDecisionsOnly:
			if e.EventType == EventHumanDecision {
				report.Events = append(report.Events, e)
			}
		}
		// ReportSummary keeps the events list empty.
	}

	return report, nil
}

// TrailEntry is one step in an entity's audit timeline.
type TrailEntry struct {
	Timestamp string         `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Action    string         `json:"action"`
	User      string         `json:"user"`
	Details   map[string]any `json:"details"`
}

// Trail is the chronological audit history of one governed entity.
type Trail struct {
	EntityType  string       `json:"entity_type"`
	EntityID    string       `json:"entity_id"`
	GeneratedAt string       `json:"report_generated"`
	TotalEvents int          `json:"total_events"`
	Timeline    []TrailEntry `json:"timeline"`
}

// EntityTrail builds the timeline for one entity, sorted by timestamp.
func (l *Ledger) EntityTrail(entityType, entityID string) (*Trail, error) {
	events, err := l.EventsByEntity(entityType, entityID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})

	trail := &Trail{
		EntityType:  entityType,
		EntityID:    entityID,
		GeneratedAt: l.now().UTC().Format(TimeFormat),
		TotalEvents: len(events),
		Timeline:    make([]TrailEntry, 0, len(events)),
	}
	for _, e := range events {
		trail.Timeline = append(trail.Timeline, TrailEntry{
			Timestamp: e.Timestamp,
			EventType: e.EventType,
			Action:    e.Action,
			User:      e.UserName,
			Details:   e.Details,
		})
	}
	return trail, nil
}
