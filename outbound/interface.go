////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package outbound

import (
	"encoding/json"
	"time"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/session"
)

// Transport is the subset of the transport client the outbound manager
// needs.
type Transport interface {
	// ClaimOneTimeKeys claims one one-time key per listed device, returning
	// whatever subset the server could satisfy within the timeout. Timeout
	// expiry surfaces as an error or an incomplete map; either way the
	// affected devices feed the no-olm withheld path.
	ClaimOneTimeKeys(devices []device.Key, algorithm catalog.Algorithm,
		timeout time.Duration) (map[device.Key]string, error)

	// SendToDevice sends a to-device message per recipient device.
	SendToDevice(eventType catalog.EventType,
		contents map[device.Key]json.RawMessage) error

	// QueueToDevice enqueues a to-device message per recipient device
	// without blocking on delivery. Used for key shares.
	QueueToDevice(eventType catalog.EventType,
		contents map[device.Key]json.RawMessage) error
}

// Policy is a room's encryption configuration, owned by the room model. Zero
// values fall back to the manager's Params defaults.
type Policy struct {
	// RotationPeriod is the maximum age of an outbound session.
	RotationPeriod time.Duration

	// RotationMsgs is the maximum number of messages an outbound session
	// may encrypt.
	RotationMsgs uint32

	// BlockUnverified withholds keys from devices the directory has not
	// verified.
	BlockUnverified bool
}

// RoomModel resolves a room to the devices its messages must be encrypted
// for, and to its encryption policy. The model owns membership and consults
// the device directory; the manager only sees the resulting device list with
// trust state attached.
type RoomModel interface {
	// EncryptionTargets returns every device of every user that should
	// receive the room's session key. Errors when the room is not known
	// (e.g. torn down after the caller resolved it).
	EncryptionTargets(roomID string) ([]device.Device, error)

	// Policy returns the room's encryption policy.
	Policy(roomID string) (Policy, error)
}

// InboundStore is the subset of the inbound session store the manager needs:
// every outbound session gets an inbound twin at creation so this device can
// decrypt its own messages and re-deliver keys at historical indexes.
type InboundStore interface {
	AddDirect(senderKey, claimedEd25519, roomID, sessionKey string) error
	Export(senderKey, sessionID string, messageIndex uint32) (string, error)
}

// BackupHook receives every newly created outbound session, e.g. to feed a
// server-side key vault. Called fire-and-forget on its own goroutine; a
// failing or panicking hook never blocks encryption.
type BackupHook func(s *session.Outbound)
