////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package format defines the wire payloads exchanged by the engine. The JSON
// field names are fixed by the protocol; interoperability depends on them
// matching exactly.
package format

import (
	"encoding/json"

	"github.com/pkg/errors"

	"gitlab.com/elixxir/megolm/catalog"
)

// RoomKey is the payload of a direct key share delivered over a pairwise
// channel.
type RoomKey struct {
	Algorithm  catalog.Algorithm `json:"algorithm"`
	RoomID     string            `json:"room_id"`
	SessionID  string            `json:"session_id"`
	SessionKey string            `json:"session_key"`
	ChainIndex uint32            `json:"chain_index"`
}

// ForwardedRoomKey is the payload of a relayed key share. ForwardingKeyChain
// lists the curve25519 identity keys of every device the session key passed
// through before this hop; it is empty when the relaying device received the
// session directly from its creator.
type ForwardedRoomKey struct {
	Algorithm             catalog.Algorithm `json:"algorithm"`
	RoomID                string            `json:"room_id"`
	SessionID             string            `json:"session_id"`
	SessionKey            string            `json:"session_key"`
	SenderKey             string            `json:"sender_key"`
	SenderClaimedEd25519  string            `json:"sender_claimed_ed25519_key"`
	ForwardingKeyChain    []string          `json:"forwarding_curve25519_key_chain"`
	ChainIndex            uint32            `json:"chain_index"`
}

// Withheld is the payload of a withheld-key notification. SessionID is
// omitted for codes that apply to a whole channel rather than one session
// (m.no_olm).
type Withheld struct {
	Algorithm catalog.Algorithm `json:"algorithm"`
	// RoomID and SessionID are omitted for m.no_olm, which refers to the
	// pairwise channel rather than any one session. Every other code
	// carries both.
	RoomID    string               `json:"room_id,omitempty"`
	Code      catalog.WithheldCode `json:"code"`
	Reason    string               `json:"reason"`
	SenderKey string               `json:"sender_key"`
	SessionID string               `json:"session_id,omitempty"`
}

// Room key request actions.
const (
	RequestActionRequest = "request"
	RequestActionCancel  = "request_cancellation"
)

// RoomKeyRequest is the payload of a cross-device key request. Body is absent
// on cancellations.
type RoomKeyRequest struct {
	Action             string            `json:"action"`
	RequestingDeviceID string            `json:"requesting_device_id"`
	RequestID          string            `json:"request_id"`
	Body               *RequestedKeyInfo `json:"body,omitempty"`
}

// RequestedKeyInfo identifies the session a key request asks for.
type RequestedKeyInfo struct {
	Algorithm catalog.Algorithm `json:"algorithm"`
	RoomID    string            `json:"room_id"`
	SenderKey string            `json:"sender_key"`
	SessionID string            `json:"session_id"`
}

// Encrypted is the envelope placed in a room event's content after group
// encryption, and parsed from incoming encrypted room events.
type Encrypted struct {
	Algorithm  catalog.Algorithm `json:"algorithm"`
	SenderKey  string            `json:"sender_key"`
	Ciphertext string            `json:"ciphertext"`
	SessionID  string            `json:"session_id"`
	DeviceID   string            `json:"device_id"`
}

// Unmarshal parses b into out, wrapping the error with the payload type for
// log context.
func Unmarshal(b []byte, out interface{}) error {
	if err := json.Unmarshal(b, out); err != nil {
		return errors.WithMessagef(err, "failed to unmarshal %T", out)
	}
	return nil
}
