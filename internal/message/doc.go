// Package message defines the signaling envelope exchanged over the relay's
// WebSocket and the codec that turns raw frames into typed messages.
//
// SDP and ICE payloads are opaque to the relay. They are parsed only far
// enough to validate their shape and are forwarded untouched.
package message
