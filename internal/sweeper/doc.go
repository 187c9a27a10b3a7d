// Package sweeper drives the recurrence engine in batch.
//
// On a fixed tick it asks the engine for due schedules per organization,
// publishes a task.due event for each (the task-creation service's cue) and
// rolls the occurrence forward. One schedule's failure never stops a pass;
// pacing between schedules is rate-limited so a large backlog doesn't
// monopolize the store.
//
// The Service can be started/stopped at runtime (e.g. via config hot
// reload); Apply() swaps interval and pacing without restart.
package sweeper
