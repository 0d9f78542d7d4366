// Package events provides the broker's publish/subscribe event fan-out.
// The transport (WebSocket, in-process channel) is layered on top of the
// Broadcaster so business logic never touches socket handles.
package events
