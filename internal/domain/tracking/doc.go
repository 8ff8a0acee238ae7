// Package tracking contains core domain types for trip tracking.
//
// It defines Position (a single location fix), Target (a waypoint watched for
// proximity), Session (one vehicle's trip from start to stop) and AlertEvent
// (a proximity or emergency notification), with Clone helpers to avoid leaking
// internal references, and the sentinel errors shared by the tracker.
package tracking
