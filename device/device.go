////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package device defines the identity types shared by the engine's components
// when referring to a user's device. Device discovery and trust computation
// live in the device directory, an external collaborator; this package only
// carries what the directory reports.
package device

import "fmt"

// Key identifies a single device of a single user.
type Key struct {
	UserID   string
	DeviceID string
}

// NewKey builds a device Key from its parts.
func NewKey(userID, deviceID string) Key {
	return Key{UserID: userID, DeviceID: deviceID}
}

// String adheres to the fmt.Stringer interface. The separator cannot occur in
// either field, so the result is usable as a storage key.
func (k Key) String() string {
	return k.UserID + "|" + k.DeviceID
}

// ParseKey inverts Key.String. Input that does not contain the separator
// parses as a Key with an empty DeviceID.
func ParseKey(s string) Key {
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			return Key{UserID: s[:i], DeviceID: s[i+1:]}
		}
	}
	return Key{UserID: s}
}

// Device is the directory's view of one device: its identifiers, long-term
// keys, and trust state at lookup time.
type Device struct {
	UserID   string
	DeviceID string

	// IdentityKey is the device's long-term curve25519 key. Pairwise
	// channels are addressed to this key, and shares are bound to it.
	IdentityKey string

	// SigningKey is the device's ed25519 fingerprint key.
	SigningKey string

	Trust Trust
}

// Key returns the device's Key.
func (d Device) Key() Key {
	return NewKey(d.UserID, d.DeviceID)
}

// Trust is the trust state the directory has computed for a device.
type Trust uint8

const (
	Unverified Trust = iota
	Verified
	Blocked
)

// String adheres to the fmt.Stringer interface.
func (t Trust) String() string {
	switch t {
	case Unverified:
		return "Unverified"
	case Verified:
		return "Verified"
	case Blocked:
		return "Blocked"
	default:
		return fmt.Sprintf("UNKNOWN TRUST: %d", t)
	}
}
