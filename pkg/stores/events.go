package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/telemetry"
)

// EventRecorder returns a telemetry subscriber that appends every published
// event to the store's event log. Write failures are logged and dropped.
func EventRecorder(store RunStore, logger zerolog.Logger) telemetry.EventSubscriber {
	logger = logger.With().Str("component", "event-recorder").Logger()
	return func(ev telemetry.Event) {
		e := &Event{
			Type:      ev.Type,
			Level:     EventLevel(ev.Level),
			Message:   ev.Message,
			Timestamp: ev.Timestamp,
		}
		if ev.RunID != "" {
			runID := ev.RunID
			e.RunID = &runID
		}
		details := make(map[string]interface{}, len(ev.Data)+1)
		for k, v := range ev.Data {
			details[k] = v
		}
		if ev.Happenings > 0 {
			details["happenings"] = ev.Happenings
		}
		if len(details) > 0 {
			if data, err := json.Marshal(details); err == nil {
				s := string(data)
				e.Details = &s
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.AppendEvent(ctx, e); err != nil {
			logger.Warn().Err(err).Str("type", ev.Type).Msg("Failed to record event")
		}
	}
}
