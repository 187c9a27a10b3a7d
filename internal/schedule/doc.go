// Package schedule defines the persisted records the recurrence engine
// operates on: schedules, constraint rules, dependency edges, usage counters
// and the completion log.
//
// # Schedule kinds
//
// A schedule's recurrence behavior is a closed variant: exactly one of
// FixedInterval, CalendarRule, Seasonal or UsageBased. Each kind carries its
// own params struct implementing Params, so dispatch sites type-switch over
// a known set instead of branching on raw strings.
//
// Records are created by the service layer and mutated only through the
// engine; the engine never deletes them (deactivation only).
package schedule
