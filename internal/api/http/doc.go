// Package http exposes the tracker over HTTP/JSON with gin.
//
// Besides the session and emergency endpoints it serves /healthz and, when a
// live feed is configured, the /ws/alerts WebSocket.
package http
