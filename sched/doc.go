// Package sched converts persisted jobs into timed triggers and fires
// them into a bounded worker pool.
//
// # Engine
//
// The [Engine] keeps at most one live trigger per job id, backed by a
// time.Timer. Installing a trigger for an id that already has one
// replaces it atomically, so a rescheduled job can never fire twice.
// Due job ids are handed to a fixed set of worker goroutines through a
// FIFO queue; the [Limits] gate adds token-bucket rate smoothing
// (golang.org/x/time/rate) on top of the worker count, which matters
// when many triggers share a fire time, such as right after startup
// recovery.
//
// Triggers carry only the job id. The fire callback re-reads the job
// from the store, so the engine never executes a stale snapshot.
//
// # Service
//
// The [Service] is what the rest of the system talks to:
//
//	svc := sched.NewService(engine, registry, store, logger)
//	err := svc.Schedule(ctx, j)        // validates type, installs trigger
//	err  = svc.Reschedule(ctx, id, at) // persists the time, replaces trigger
//	_    = svc.Unschedule(id)          // cancels; absence is not an error
//
// Schedule rejects jobs whose type does not resolve in the registry; a
// job with an elapsed ScheduledAt fires immediately and logs a warning
// rather than silently running late.
package sched
