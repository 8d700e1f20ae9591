////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package inbound

import (
	"fmt"

	"github.com/pkg/errors"

	"gitlab.com/elixxir/megolm/catalog"
)

// Sentinel kinds for the closed decryption-failure taxonomy. Callers classify
// failures with errors.Is against these and read details with errors.As;
// message strings are never part of the contract.
var (
	// ErrUnknownSession - no inbound session and no withheld record.
	// Transient: may self-resolve when the key later arrives.
	ErrUnknownSession = errors.New("no inbound group session for message")

	// ErrWithheld - no session, and the peer told us why.
	ErrWithheld = errors.New("session key was withheld by the sender")

	// ErrReplayDetected - message index reused with a different event
	// identity. Always fatal for the event.
	ErrReplayDetected = errors.New("possible replay attack detected")

	// ErrCorruptedChannel - the engine failed to decrypt on a session that
	// should be valid. A fresh session is required to recover.
	ErrCorruptedChannel = errors.New("decryption failed on a known session")
)

// UnknownSessionError reports a decrypt attempted before the session key
// arrived.
type UnknownSessionError struct {
	SenderKey string
	SessionID string
}

func (e UnknownSessionError) Error() string {
	return fmt.Sprintf("no inbound group session %s from sender key %s",
		e.SessionID, e.SenderKey)
}

func (e UnknownSessionError) Unwrap() error { return ErrUnknownSession }

// WithheldKeyError reports a decrypt that can never succeed because the
// sender declined to share the key. Error returns the sender's reason
// verbatim; it is the user-facing message.
type WithheldKeyError struct {
	Code      catalog.WithheldCode
	Reason    string
	SenderKey string
	SessionID string
}

func (e WithheldKeyError) Error() string { return e.Reason }

func (e WithheldKeyError) Unwrap() error { return ErrWithheld }

// ReplayDetectedError reports a message index that was already decrypted as a
// different event.
type ReplayDetectedError struct {
	SenderKey    string
	SessionID    string
	MessageIndex uint32
	EventID      string
}

func (e ReplayDetectedError) Error() string {
	return fmt.Sprintf("message index %d on session %s was already decrypted "+
		"as a different event than %s",
		e.MessageIndex, e.SessionID, e.EventID)
}

func (e ReplayDetectedError) Unwrap() error { return ErrReplayDetected }

// CorruptedChannelError reports an engine decrypt failure on a session that
// exists and should work.
type CorruptedChannelError struct {
	SenderKey string
	SessionID string
	Cause     error
}

func (e CorruptedChannelError) Error() string {
	return fmt.Sprintf("failed to decrypt on known session %s: %s",
		e.SessionID, e.Cause)
}

func (e CorruptedChannelError) Unwrap() error { return ErrCorruptedChannel }
