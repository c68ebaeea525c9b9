package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType enumerates the kinds of entries the ledger records.
type EventType string

const (
	EventEntityValidated     EventType = "entity_validated"
	EventHumanDecision       EventType = "human_decision"
	EventRuleViolation       EventType = "rule_violation"
	EventBatchProcessed      EventType = "batch_processed"
	EventWorkflowStateChange EventType = "workflow_state_change"
	EventDataModified        EventType = "data_modified"
	EventUserAction          EventType = "user_action"
	EventSystemEvent         EventType = "system_event"
)

// Severity grades a ledger entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// TimeFormat is the fixed-width RFC 3339 layout used for every timestamp the
// ledger writes. Fixed-width fractions keep timestamps lexicographically
// ordered and byte-stable across a parse/serialize round trip.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Actor identifies who performed the recorded action.
type Actor struct {
	ID   string
	Name string
}

var systemUserIDs = map[string]struct{}{
	"system":    {},
	"SYSTEM":    {},
	"scheduler": {},
	"batch":     {},
}

// IsSystemUser reports whether id is a reserved system identifier.
func IsSystemUser(id string) bool {
	_, ok := systemUserIDs[id]
	return ok
}

// Event is one immutable ledger record. Checksum covers every field except
// itself; PreviousHash chains the record to the prior line in the same file.
type Event struct {
	EventID       string         `json:"event_id"`
	Timestamp     string         `json:"timestamp"`
	EventType     EventType      `json:"event_type"`
	Severity      Severity       `json:"severity"`
	UserID        string         `json:"user_id"`
	UserName      string         `json:"user_name"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Action        string         `json:"action"`
	Details       map[string]any `json:"details"`
	PreviousState map[string]any `json:"previous_state"`
	NewState      map[string]any `json:"new_state"`
	PreviousHash  *string        `json:"previous_hash"`
	Checksum      string         `json:"checksum"`
}

// newEventID generates a globally unique ledger identifier.
func newEventID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "EVT-" + strings.ToUpper(raw[:16])
}

// canonicalize rewrites a value tree so that serialization is deterministic
// and lossless: decimals and timestamps become canonical strings, maps are
// copied (encoding/json sorts their keys), json.Number literals pass through
// untouched so a read-back event re-hashes to the same checksum.
func canonicalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return t.String()
	case *decimal.Decimal:
		if t == nil {
			return nil
		}
		return t.String()
	case time.Time:
		return t.UTC().Format(TimeFormat)
	case json.Number:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	default:
		return v
	}
}

func canonicalJSON(v any) (string, error) {
	b, err := json.Marshal(canonicalize(v))
	if err != nil {
		return "", fmt.Errorf("canonical serialization: %w", err)
	}
	return string(b), nil
}

// computeChecksum hashes every field except the checksum itself. Nested
// details and state snapshots are embedded as canonical JSON strings so the
// digest is independent of map iteration order.
func (e *Event) computeChecksum() (string, error) {
	details, err := canonicalJSON(e.Details)
	if err != nil {
		return "", err
	}
	prevState := "null"
	if e.PreviousState != nil {
		if prevState, err = canonicalJSON(e.PreviousState); err != nil {
			return "", err
		}
	}
	newState := "null"
	if e.NewState != nil {
		if newState, err = canonicalJSON(e.NewState); err != nil {
			return "", err
		}
	}

	payload := map[string]any{
		"event_id":       e.EventID,
		"timestamp":      e.Timestamp,
		"event_type":     string(e.EventType),
		"severity":       string(e.Severity),
		"user_id":        e.UserID,
		"user_name":      e.UserName,
		"entity_type":    e.EntityType,
		"entity_id":      e.EntityID,
		"action":         e.Action,
		"details":        details,
		"previous_state": prevState,
		"new_state":      newState,
		"previous_hash":  e.PreviousHash,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("checksum serialization: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the event's checksum and compares it to the stored value.
// It detects in-place tampering of any checksummed field.
func (e *Event) Verify() bool {
	computed, err := e.computeChecksum()
	if err != nil {
		return false
	}
	return computed == e.Checksum
}
