package router

import (
	"fmt"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/message"
)

// ValidationError is a well formed message missing a field its type needs.
type ValidationError struct {
	Type  message.Type
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s is required", e.Type, e.Field)
}

// StorageError wraps a membership store failure. Its cause is logged; clients
// only see a generic reason.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("membership %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Reasons carried in fail replies.
const (
	reasonInvalidMessage = "invalid message"
	reasonStorage        = "membership store unavailable"
	reasonInternal       = "internal error"
)
