package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	dErrors "fingov/pkg/domain-errors"
	psync "fingov/pkg/platform/sync"
)

// Registry hands out one Ledger per canonical file path. Logical loggers that
// target the same file share a single writer identity, so the hash chain and
// event IDs never collide across independent handles. Created once at startup
// and injected; lives for the process lifetime.
type Registry struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
	locks   *psync.PathLocks
}

// NewRegistry creates an empty ledger registry.
func NewRegistry() *Registry {
	return &Registry{
		ledgers: make(map[string]*Ledger),
		locks:   psync.NewPathLocks(),
	}
}

// Ledger returns the shared writer for path, creating the file (and parent
// directory) on first reference.
func (r *Registry) Ledger(path string) (*Ledger, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve ledger path: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.ledgers[abs]; ok {
		return l, nil
	}

	if dir := filepath.Dir(abs); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create ledger file: %w", err)
	}
	f.Close() //nolint:errcheck // file only touched to ensure it exists

	l := &Ledger{
		path:   abs,
		mu:     r.locks.For(abs),
		now:    time.Now,
		logger: slog.Default(),
	}
	r.ledgers[abs] = l
	return l, nil
}

// Ledger is an append-only, hash-chained writer over one JSONL file.
// Writes to the same file serialize on the path-scoped mutex; writes to
// different files do not block each other.
type Ledger struct {
	path   string
	mu     *sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// Path returns the canonical file path this ledger appends to.
func (l *Ledger) Path() string { return l.path }

// append finalizes and writes one event: reads the tail checksum, assigns a
// fresh event ID and UTC timestamp, computes the checksum over everything
// else, then appends the serialized line. The whole sequence holds the
// path-scoped lock so the chain is a direct encoding of write order.
func (l *Ledger) append(e *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.EventID = newEventID()
	e.Timestamp = l.now().UTC().Format(TimeFormat)
	e.Details = asCanonicalMap(e.Details)
	e.PreviousState = asCanonicalMap(e.PreviousState)
	e.NewState = asCanonicalMap(e.NewState)
	e.PreviousHash = l.lastChecksum()

	checksum, err := e.computeChecksum()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "compute event checksum")
	}
	e.Checksum = checksum

	line, err := json.Marshal(e)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "serialize audit event")
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "open audit file")
	}
	defer f.Close() //nolint:errcheck // write error is what matters

	if _, err := f.Write(append(line, '\n')); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "append audit event")
	}
	return nil
}

// asCanonicalMap canonicalizes a detail map in place of the original so the
// bytes written to disk are the same bytes the checksum covered.
func asCanonicalMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return canonicalize(m).(map[string]any)
}

// lastChecksum returns the checksum of the last well-formed line in the file.
// A missing file, an empty file, or an unreadable tail all mean "no prior
// event" rather than a failed write.
func (l *Ledger) lastChecksum() *string {
	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close() //nolint:errcheck // read-only

	var last *string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var tail struct {
			Checksum string `json:"checksum"`
		}
		if err := json.Unmarshal([]byte(line), &tail); err != nil || tail.Checksum == "" {
			continue
		}
		checksum := tail.Checksum
		last = &checksum
	}
	if scanner.Err() != nil {
		return nil
	}
	return last
}

// maxLineBytes bounds a single ledger line. Large validation payloads fit
// comfortably; anything beyond this is treated as corrupt.
const maxLineBytes = 4 * 1024 * 1024

// requireHumanUser rejects reserved system identifiers for operations that
// record a human judgement.
func requireHumanUser(actor Actor, operation string) error {
	if IsSystemUser(actor.ID) {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf(
			"%s requires a real user id: %q is a reserved system identifier", operation, actor.ID))
	}
	return nil
}

// LogEntityValidation records the outcome of a policy evaluation.
func (l *Ledger) LogEntityValidation(entityType, entityID string, passed bool, actionRequired, maxSeverity string, violations []map[string]any, actor Actor) (*Event, error) {
	severity := SeverityInfo
	if !passed {
		severity = SeverityWarning
	}
	e := &Event{
		EventType:  EventEntityValidated,
		Severity:   severity,
		UserID:     actor.ID,
		UserName:   actor.Name,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     "validated",
		Details: map[string]any{
			"passed":          passed,
			"action_required": actionRequired,
			"severity":        maxSeverity,
			"violations":      violations,
		},
	}
	if err := l.append(e); err != nil {
		return nil, err
	}
	return e, nil
}

// LogHumanDecision records an explicit human approve/reject/review call.
// Reserved system identifiers are rejected outright.
func (l *Ledger) LogHumanDecision(entityType, entityID, decision, reason string, actor Actor, previousState, newState map[string]any) (*Event, error) {
	if err := requireHumanUser(actor, "LogHumanDecision"); err != nil {
		return nil, err
	}
	e := &Event{
		EventType:  EventHumanDecision,
		Severity:   SeverityInfo,
		UserID:     actor.ID,
		UserName:   actor.Name,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     strings.ToLower(decision),
		Details: map[string]any{
			"decision": decision,
			"reason":   reason,
		},
		PreviousState: previousState,
		NewState:      newState,
	}
	if err := l.append(e); err != nil {
		return nil, err
	}
	return e, nil
}

// LogRuleViolation records one policy violation. Event severity is derived
// from the violation's own severity grade.
func (l *Ledger) LogRuleViolation(entityType, entityID string, violation map[string]any, actor Actor) (*Event, error) {
	severity := SeverityWarning
	if raw, ok := violation["severity"].(string); ok {
		switch strings.ToLower(raw) {
		case "critical":
			severity = SeverityCritical
		case "high":
			severity = SeverityError
		case "medium":
			severity = SeverityWarning
		case "low":
			severity = SeverityInfo
		}
	}
	e := &Event{
		EventType:  EventRuleViolation,
		Severity:   severity,
		UserID:     actor.ID,
		UserName:   actor.Name,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     "rule_violated",
		Details:    violation,
	}
	if err := l.append(e); err != nil {
		return nil, err
	}
	return e, nil
}

// LogBatchProcessed records the summary of a processed batch.
func (l *Ledger) LogBatchProcessed(batchID string, total, autoApproved, needsReview, rejected int, actor Actor) (*Event, error) {
	e := &Event{
		EventType:  EventBatchProcessed,
		Severity:   SeverityInfo,
		UserID:     actor.ID,
		UserName:   actor.Name,
		EntityType: "batch",
		EntityID:   batchID,
		Action:     "processed",
		Details: map[string]any{
			"total_entities": total,
			"auto_approved":  autoApproved,
			"needs_review":   needsReview,
			"rejected":       rejected,
		},
	}
	if err := l.append(e); err != nil {
		return nil, err
	}
	return e, nil
}

// LogStateChange records a workflow transition.
func (l *Ledger) LogStateChange(entityType, entityID, fromState, toState, reason string, actor Actor) (*Event, error) {
	e := &Event{
		EventType:  EventWorkflowStateChange,
		Severity:   SeverityInfo,
		UserID:     actor.ID,
		UserName:   actor.Name,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     "state_changed",
		Details: map[string]any{
			"from_state": fromState,
			"to_state":   toState,
			"reason":     reason,
		},
	}
	if err := l.append(e); err != nil {
		return nil, err
	}
	return e, nil
}

// LogDataModification records a direct field change on a governed entity.
// Reserved system identifiers are rejected outright.
func (l *Ledger) LogDataModification(entityType, entityID, field string, oldValue, newValue any, reason string, actor Actor) (*Event, error) {
	if err := requireHumanUser(actor, "LogDataModification"); err != nil {
		return nil, err
	}
	e := &Event{
		EventType:  EventDataModified,
		Severity:   SeverityWarning,
		UserID:     actor.ID,
		UserName:   actor.Name,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     "modified",
		Details: map[string]any{
			"field":     field,
			"old_value": fmt.Sprint(oldValue),
			"new_value": fmt.Sprint(newValue),
			"reason":    reason,
		},
	}
	if err := l.append(e); err != nil {
		return nil, err
	}
	return e, nil
}

// LogUserAction records a system-level bookkeeping entry. The entity id is
// the reserved "SYSTEM" marker so entity-scoped queries never pick these up.
func (l *Ledger) LogUserAction(action, description string, actor Actor, severity Severity) (*Event, error) {
	e := &Event{
		EventType:  EventUserAction,
		Severity:   severity,
		UserID:     actor.ID,
		UserName:   actor.Name,
		EntityType: "system",
		EntityID:   "SYSTEM",
		Action:     action,
		Details: map[string]any{
			"description": description,
		},
	}
	if err := l.append(e); err != nil {
		return nil, err
	}
	return e, nil
}
