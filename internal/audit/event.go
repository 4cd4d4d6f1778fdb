// ABOUTME: Audit event taxonomy, outcomes and the Event value recorded by sinks
// ABOUTME: Legacy event names resolve through a fixed alias table

package audit

import (
	"errors"
	"fmt"
	"time"
)

// EventType names a security-relevant action.
type EventType string

const (
	EventLogin          EventType = "auth.login"
	EventLogout         EventType = "auth.logout"
	EventRefresh        EventType = "auth.refresh"
	EventAdapterCreate  EventType = "adapter.create"
	EventAdapterExecute EventType = "adapter.execute"
	EventToolExecute    EventType = "tool.execute"
	EventHTTPRequest    EventType = "http.request"
	EventError          EventType = "error"
)

// EventTypes lists every known event type.
var EventTypes = []EventType{
	EventLogin,
	EventLogout,
	EventRefresh,
	EventAdapterCreate,
	EventAdapterExecute,
	EventToolExecute,
	EventHTTPRequest,
	EventError,
}

// legacyAliases maps older event names onto the current taxonomy.
var legacyAliases = map[string]EventType{
	"authentication": EventLogin,
	"authorization":  EventLogin,
	"adapter.fetch":  EventAdapterExecute,
}

// ErrUnknownEventType is returned by ParseEventType.
var ErrUnknownEventType = errors.New("unknown audit event type")

// ParseEventType resolves s to an EventType, accepting legacy aliases.
func ParseEventType(s string) (EventType, error) {
	for _, et := range EventTypes {
		if string(et) == s {
			return et, nil
		}
	}
	if et, ok := legacyAliases[s]; ok {
		return et, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// OutcomeOf maps a boolean result to an Outcome.
func OutcomeOf(ok bool) Outcome {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// SystemActor is recorded when an event has no actor.
const SystemActor = "system"

// Event is one audit record.
type Event struct {
	Type    EventType      `json:"event"`
	Actor   string         `json:"actor"`
	Outcome Outcome        `json:"outcome"`
	Context map[string]any `json:"context"`
	Time    time.Time      `json:"ts"`
}

// normalize fills defaults: system actor, current time, success, non-nil context.
func (e Event) normalize() Event {
	if e.Actor == "" {
		e.Actor = SystemActor
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	return e
}
