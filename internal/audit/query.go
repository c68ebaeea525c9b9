package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"time"

	dErrors "fingov/pkg/domain-errors"
)

// CorruptLine describes a ledger line that failed to parse. Corruption is
// reported, never fatal: a bad middle line must not hide the events around it.
type CorruptLine struct {
	LineNumber int    `json:"line_number"`
	Error      string `json:"error"`
	RawSnippet string `json:"raw_snippet"`
}

// ReadAll materializes every well-formed event in file order along with
// reports for the lines that could not be parsed.
func (l *Ledger) ReadAll() ([]Event, []CorruptLine, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "open audit file")
	}
	defer f.Close() //nolint:errcheck // read-only

	var (
		events  []Event
		corrupt []CorruptLine
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		event, err := decodeEvent(line)
		if err != nil {
			corrupt = append(corrupt, CorruptLine{
				LineNumber: lineNo,
				Error:      err.Error(),
				RawSnippet: snippet(line, 80),
			})
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan audit file")
	}
	return events, corrupt, nil
}

// decodeEvent parses one line preserving numeric literals exactly, so a
// recomputed checksum matches the one computed at write time.
func decodeEvent(line string) (Event, error) {
	var e Event
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&e); err != nil {
		return Event{}, err
	}
	return e, nil
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// EventsByEntity returns the history of one governed entity. The entity type
// must match exactly so system bookkeeping entries are never mistaken for
// entity history.
func (l *Ledger) EventsByEntity(entityType, entityID string) ([]Event, error) {
	events, _, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		if e.EntityID == entityID && e.EntityType == entityType {
			out = append(out, e)
		}
	}
	return out, nil
}

// EventsByUser returns every event recorded for the given user id.
func (l *Ledger) EventsByUser(userID string) ([]Event, error) {
	events, _, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// EventsByType returns every event of the given type.
func (l *Ledger) EventsByType(eventType EventType) ([]Event, error) {
	events, _, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

// EventsByDateRange returns events whose timestamp falls inside [from, to],
// bounds inclusive. Events with unparseable timestamps are excluded.
func (l *Ledger) EventsByDateRange(from, to time.Time) ([]Event, error) {
	events, _, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		ts, err := time.Parse(TimeFormat, e.Timestamp)
		if err != nil {
			continue
		}
		if ts.Before(from) || ts.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// HumanDecisions returns every recorded human decision.
func (l *Ledger) HumanDecisions() ([]Event, error) {
	return l.EventsByType(EventHumanDecision)
}

// RuleViolations returns recorded violations, optionally filtered by severity.
func (l *Ledger) RuleViolations(severity Severity) ([]Event, error) {
	events, err := l.EventsByType(EventRuleViolation)
	if err != nil {
		return nil, err
	}
	if severity == "" {
		return events, nil
	}
	var out []Event
	for _, e := range events {
		if e.Severity == severity {
			out = append(out, e)
		}
	}
	return out, nil
}
