// Package tracker is the tracking-session and proximity-alert engine.
//
// Registry owns the sessions and enforces one active session per vehicle.
// Every active session runs a worker goroutine that consumes its position
// subscription, republishes the last fix on a ticker and feeds fixes through
// the dispatcher, which raises one approaching alert per target per session.
// Store writes go through a per-session bounded queue and never block fix
// processing. Broadcaster raises emergency alerts independently of sessions.
package tracker
