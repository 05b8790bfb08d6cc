// Package analysis is the orchestration core. It accepts a video analysis
// request, runs the pre-flight checks (credits, model resolution), persists
// the task row, drives the vendor stream through the task lifecycle, and
// exposes pre-encoded wire frames for the transport layer to relay.
//
// The stale-task reaper lives here too, since it operates on the same task
// lifecycle from the other end.
package analysis
