// Package quartzite provides a job lifecycle orchestration subsystem
// for Go. Applications register named job types, create jobs that run
// now or at a scheduled time, and quartzite drives each job through a
// durable state machine, notifies subscribers of transitions, retries
// failures with capped exponential backoff, cleans up after terminal
// states, and recovers orphaned work on startup.
//
// Quartzite is a library, not a service. Import it, pick a store, and
// register handlers as ordinary Go functions.
//
// # Quick Start
//
//	eng, err := engine.Build(memory.New(),
//	    engine.WithConcurrency(20),
//	)
//	eng.Register("report.generate", job.HandlerFunc(generateReport))
//	eng.Start(ctx)
//	j, err := eng.CreateJob(ctx, "report.generate", nil, taskIDs)
//
// # Architecture
//
// Each subsystem lives in its own package: job (entities, handler
// registry, store contract), sched (triggers), runner (the execution
// envelope), retry, cleanup, recovery, and notify. The engine package
// wires them together; nothing below it imports across subsystems.
//
// A job's trigger carries only the job ID. The fire path re-reads the
// job from the store, so state observed at execution time is never a
// stale snapshot. Status changes are persisted before subscribers are
// notified, for every transition.
package quartzite
