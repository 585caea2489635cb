// Package telemetry provides observability for the planner.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and planner progress events into one bundle.
//
// # Usage
//
// Initialize telemetry at startup and carry it in the context:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("planner")
//	logger.WithRunID(runID).WithHorizon(3).Info("Horizon unsatisfiable")
//
// Packages that take a zerolog.Logger directly get one from Logger.Zerolog.
//
// # Tracing
//
// A planning request opens a plan.search span, each horizon attempt a
// plan.horizon child span and each solver call a solver.<backend> span.
//
// # Metrics
//
// Metrics live on a private registry exposed by Metrics.Handler. A nil or
// disabled *Metrics accepts every call and records nothing, so components
// can hold one unconditionally.
//
//	metrics.RecordHorizonAttempt("unsat")
//	metrics.RecordFactQuery("mangle", "hit", d)
//
// # Events
//
// The planner publishes plan.started, plan.horizon_attempted, plan.found,
// plan.exhausted and plan.failed events. The CLI subscribes to print
// progress.
package telemetry
