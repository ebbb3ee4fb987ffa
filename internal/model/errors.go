package model

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadInFlight is returned when a load for the same conversation is already running.
	ErrLoadInFlight = errors.New("load already in flight")
	// ErrStaleResponse marks a response that arrived after its conversation stopped being active.
	ErrStaleResponse = errors.New("stale response discarded")
	// ErrMalformedExtension marks an extension blob that failed to parse.
	ErrMalformedExtension = errors.New("malformed extension payload")
	// ErrNoActiveRoom is returned by operations that need a selected room.
	ErrNoActiveRoom = errors.New("no active room")
	// ErrRoomNotFound is returned when a group id is unknown to the directory.
	ErrRoomNotFound = errors.New("room not found")
	// ErrMessageNotFound is returned when a message is not in the active timeline.
	ErrMessageNotFound = errors.New("message not found")
)

// FetchError reports a failed history or metadata fetch. Local state is left
// untouched and the operation may be retried by the caller.
type FetchError struct {
	Op             string
	ConversationID string
	Err            error
}

func (e *FetchError) Error() string {
	if e.ConversationID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ConversationID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a fetch failure that can be retried.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
