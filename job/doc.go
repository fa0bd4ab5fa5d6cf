// Package job defines the core entities, the handler registry, and the
// store contract shared by every subsystem.
//
// # Entities
//
// A [Job] is one unit of orchestrated work. It carries no payload; the
// work's inputs are [TaskItem] rows the job claims, and its outputs are
// [Report] rows. Jobs progress through a closed state machine:
//
//	queued → running → completed
//	queued → running → failed
//	failed → queued        (retry re-queue only)
//
// [RetryInfo] holds the retry bookkeeping the retry service maintains
// for failed jobs.
//
// # Registry
//
// [Registry] maps job type names to [Handler] values. It is built
// during wiring and then frozen; after [Registry.Freeze] lookups are
// lock-free and further registration fails. Resolving an unknown type
// returns an [UnknownJobTypeError] that lists every registered type.
//
// # Store
//
// [Store] is the persistence contract. Stores enforce the transition
// table via guarded updates and enforce task claim exclusivity: a task
// held by one job can never be claimed by another.
package job
