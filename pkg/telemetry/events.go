package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a planner progress notification.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the planning run the event belongs to.
	RunID string `json:"run_id,omitempty"`

	// Happenings is the horizon of the attempt, if applicable.
	Happenings int `json:"happenings,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types published by the planner.
const (
	EventTypePlanStarted      = "plan.started"
	EventTypeHorizonAttempted = "plan.horizon_attempted"
	EventTypePlanFound        = "plan.found"
	EventTypePlanExhausted    = "plan.exhausted"
	EventTypePlanFailed       = "plan.failed"
	EventTypePolicyViolation  = "policy.violation"
	EventTypeModelReloaded    = "model.reloaded"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. A nil or disabled
// publisher drops every event.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	mu          sync.RWMutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish delivers an event to all matching subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishPlanStarted publishes the start of a planning run.
func (ep *EventPublisher) PublishPlanStarted(runID, required string, maxHappenings int) error {
	return ep.Publish(Event{
		Type:    EventTypePlanStarted,
		RunID:   runID,
		Message: fmt.Sprintf("Planning %s with up to %d happenings", required, maxHappenings),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"required":       required,
			"max_happenings": maxHappenings,
		},
	})
}

// PublishHorizonAttempted publishes the outcome of one horizon attempt.
func (ep *EventPublisher) PublishHorizonAttempted(runID string, happenings int, outcome string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:       EventTypeHorizonAttempted,
		RunID:      runID,
		Happenings: happenings,
		Message:    fmt.Sprintf("Horizon %d: %s", happenings, outcome),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"outcome":  outcome,
			"duration": duration.Seconds(),
		},
	})
}

// PublishPlanFound publishes a successful planning run.
func (ep *EventPublisher) PublishPlanFound(runID string, happenings int) error {
	return ep.Publish(Event{
		Type:       EventTypePlanFound,
		RunID:      runID,
		Happenings: happenings,
		Message:    fmt.Sprintf("Plan found with %d happenings", happenings),
		Level:      EventLevelInfo,
	})
}

// PublishPlanExhausted publishes a search that ran out of horizons.
func (ep *EventPublisher) PublishPlanExhausted(runID string, maxHappenings int, core []string) error {
	return ep.Publish(Event{
		Type:       EventTypePlanExhausted,
		RunID:      runID,
		Happenings: maxHappenings,
		Message:    fmt.Sprintf("No plan within %d happenings", maxHappenings),
		Level:      EventLevelWarning,
		Data: map[string]interface{}{
			"unsat_core": core,
		},
	})
}

// PublishPlanFailed publishes a planning run aborted by an error.
func (ep *EventPublisher) PublishPlanFailed(runID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePlanFailed,
		RunID:   runID,
		Message: fmt.Sprintf("Planning failed: %s", reason),
		Level:   EventLevelError,
	})
}

// PublishPolicyViolation publishes a plan policy violation.
func (ep *EventPublisher) PublishPolicyViolation(runID, policyName, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		RunID:   runID,
		Message: fmt.Sprintf("Policy %s: %s", policyName, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"policy": policyName,
		},
	})
}

// PublishModelReloaded publishes a model reload attempt.
func (ep *EventPublisher) PublishModelReloaded(err error) error {
	event := Event{
		Type:    EventTypeModelReloaded,
		Message: "Model reloaded",
		Level:   EventLevelInfo,
	}
	if err != nil {
		event.Message = fmt.Sprintf("Model reload failed: %v", err)
		event.Level = EventLevelError
	}
	return ep.Publish(event)
}

// Subscribe adds a subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent calls subscribers in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains buffered events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}
	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
