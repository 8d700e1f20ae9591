////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package catalog

// EventType identifies the kind of an event moving through the engine, both
// room events and to-device events. The values are the wire type strings and
// must not be changed.
type EventType string

const (
	/* room event types */

	// RoomEncrypted - An encrypted room event carrying a group-ratchet
	// ciphertext envelope.
	RoomEncrypted EventType = "m.room.encrypted"

	/* to-device event types */

	// RoomKey - Direct delivery of a group session key over a pairwise
	// channel.
	RoomKey EventType = "m.room_key"

	// ForwardedRoomKey - Relayed delivery of a group session key on behalf of
	// another device. Carries the forwarding key chain.
	ForwardedRoomKey EventType = "m.forwarded_room_key"

	// RoomKeyWithheld - Notification that a session key was deliberately not
	// shared, with a machine-readable code.
	RoomKeyWithheld EventType = "m.room_key.withheld"

	// RoomKeyWithheldLegacy - Older namespaced form of RoomKeyWithheld still
	// sent by some peers. Treated identically on receive.
	RoomKeyWithheldLegacy EventType = "org.matrix.room_key.withheld"

	// RoomKeyRequest - Cross-device request for a session key, and its
	// cancellation.
	RoomKeyRequest EventType = "m.room_key_request"
)
