// Package engine computes when maintenance schedules fire.
//
// # Pipeline
//
// UpdateNextOccurrence loads a schedule with its active rules and dependency
// edges, dispatches to the occurrence calculator for the schedule's kind,
// then pipes the candidate date through the rule applicator (blackout dates,
// then business days) and the dependency resolver before persisting it.
// Usage-based schedules have no calendar occurrence; they fire from
// UpdateUsageCounter when the counter crosses the schedule's threshold.
//
// # Failure posture
//
// A malformed recurrence expression or a blackout configuration that blocks
// the whole scan window degrades to "no occurrence" or a best-effort date,
// logged at warn. One schedule's bad configuration must never abort a batch
// pass over the rest.
//
// All now-dependent computation goes through the engine's injected clock so
// tests are deterministic.
package engine
