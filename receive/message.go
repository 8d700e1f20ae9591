////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package receive

import (
	"time"

	"gitlab.com/elixxir/megolm/catalog"
)

// Message is a decrypted to-device or room event delivered through the
// Switchboard.
type Message struct {
	EventType catalog.EventType

	// EventID identifies the originating event. Empty for to-device events,
	// which carry no event ID.
	EventID string

	// Content is the raw JSON content of the event.
	Content []byte

	// Sender is the user ID the event came from.
	Sender string

	// SenderKey is the curve25519 identity key of the sending device. Empty
	// when the event did not arrive over an encrypted channel.
	SenderKey string

	// ClaimedEd25519 is the ed25519 key the sending device claimed during
	// pairwise decryption. Only trustworthy to the extent the pairwise
	// channel is.
	ClaimedEd25519 string

	// Timestamp of when the sender sent the event.
	Timestamp time.Time

	// Encrypted is true when the event arrived over a verified pairwise
	// channel. Key material must never be accepted from unencrypted events.
	Encrypted bool
}
