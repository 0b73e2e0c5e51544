package engine

import "github.com/c360studio/orc/internal/model"

// EventKind names one of the optional observer events described in spec
// §9. Observability is optional and never affects correctness.
type EventKind string

const (
	EventPhaseEntered      EventKind = "PHASE_ENTERED"
	EventArtifactCreated   EventKind = "ARTIFACT_CREATED"
	EventArtifactApproved  EventKind = "ARTIFACT_APPROVED"
	EventApprovalRequired  EventKind = "APPROVAL_REQUIRED"
	EventApprovalGranted   EventKind = "APPROVAL_GRANTED"
	EventWorkflowCompleted EventKind = "WORKFLOW_COMPLETED"
	EventWorkflowFailed    EventKind = "WORKFLOW_FAILED"
	EventIterationStarted  EventKind = "ITERATION_STARTED"
	// EventGateOutcome and EventActionExecuted back the
	// orc_gate_outcomes_total/orc_actions_total counters in
	// PrometheusObserver; every other EventKind is for log/slog-style
	// observers only and carries no Decision/Action.
	EventGateOutcome    EventKind = "GATE_OUTCOME"
	EventActionExecuted EventKind = "ACTION_EXECUTED"
)

// Event is one occurrence emitted to an Observer. Decision is set only on
// EventGateOutcome; Action is set only on EventActionExecuted.
type Event struct {
	Kind      EventKind
	SessionID string
	Phase     model.Phase
	Stage     model.Stage
	Detail    string
	Decision  model.Decision
	Action    model.Action
}

// Observer receives engine events. Implementations must not panic;
// the engine recovers and logs any panic rather than letting it escape
// into the command path.
type Observer interface {
	OnEvent(Event)
}

// noopObserver is the default when none is configured.
type noopObserver struct{}

func (noopObserver) OnEvent(Event) {}

func (e *Engine) emit(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("observer panicked", "recover", r, "event", ev.Kind)
		}
	}()
	e.observer.OnEvent(ev)
}
