////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package outbound

import (
	"encoding/json"
	"testing"

	"gitlab.com/elixxir/megolm/device"
)

// Tests that a reshare re-delivers the key at the original share index even
// after the chain has advanced.
func TestManager_ReshareKeyWithDevice(t *testing.T) {
	h := makeTestManager("TestManager_ReshareKeyWithDevice", t)
	bob := h.addRecipient("!room:a", "@bob:a", "BOBDEV", "bobCurve",
		device.Verified)

	sessionID := ""
	for i := 0; i < 4; i++ {
		e, err := h.manager.EncryptMessage("!room:a", "m.room.message",
			json.RawMessage(`{}`))
		if err != nil {
			t.Fatalf("Send %d failed: %+v", i, err)
		}
		sessionID = e.SessionID
	}

	queuedBefore := len(h.transport.queued)
	if err := h.manager.ReshareKeyWithDevice(sessionID, bob); err != nil {
		t.Fatalf("ReshareKeyWithDevice failed: %+v", err)
	}
	if len(h.transport.queued) != queuedBefore+1 {
		t.Fatalf("Expected 1 reshare to be queued")
	}

	roomKey := unpackRoomKey(
		h.transport.queued[queuedBefore].contents[bob.Key()], t)
	if roomKey.SessionID != sessionID {
		t.Errorf("Reshared session %q, expected %q",
			roomKey.SessionID, sessionID)
	}
	// Bob was first given the key before any message went out.
	if roomKey.ChainIndex != 0 {
		t.Errorf("Reshared at index %d, expected the original share "+
			"index 0", roomKey.ChainIndex)
	}
}

// Tests that a reshare with a device whose identity key changed since the
// original share is silently refused.
func TestManager_ReshareKeyWithDevice_IdentityChanged(t *testing.T) {
	h := makeTestManager("TestManager_ReshareKeyWithDevice_IdentityChanged",
		t)
	bob := h.addRecipient("!room:a", "@bob:a", "BOBDEV", "bobCurve",
		device.Verified)

	e, err := h.manager.EncryptMessage("!room:a", "m.room.message",
		json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Send failed: %+v", err)
	}

	imposter := bob
	imposter.IdentityKey = "newCurve"
	queuedBefore := len(h.transport.queued)
	if err = h.manager.ReshareKeyWithDevice(e.SessionID,
		imposter); err != nil {
		t.Fatalf("Reshare with changed identity errored: %+v", err)
	}
	if len(h.transport.queued) != queuedBefore {
		t.Errorf("Key re-delivered to a device with a changed " +
			"identity key")
	}
}

// Tests that a reshare with a device the session was never shared with is a
// no-op.
func TestManager_ReshareKeyWithDevice_NeverShared(t *testing.T) {
	h := makeTestManager("TestManager_ReshareKeyWithDevice_NeverShared", t)
	h.addRecipient("!room:a", "@bob:a", "BOBDEV", "bobCurve",
		device.Verified)

	e, err := h.manager.EncryptMessage("!room:a", "m.room.message",
		json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Send failed: %+v", err)
	}

	stranger := device.Device{
		UserID:      "@mallory:a",
		DeviceID:    "MALDEV",
		IdentityKey: "malCurve",
	}
	queuedBefore := len(h.transport.queued)
	if err = h.manager.ReshareKeyWithDevice(e.SessionID,
		stranger); err != nil {
		t.Fatalf("Reshare with stranger errored: %+v", err)
	}
	if len(h.transport.queued) != queuedBefore {
		t.Errorf("Key delivered to a device it was never shared with")
	}
}

// Tests that resharing an unknown session is a no-op.
func TestManager_ReshareKeyWithDevice_UnknownSession(t *testing.T) {
	h := makeTestManager("TestManager_ReshareKeyWithDevice_UnknownSession",
		t)
	bob := device.Device{
		UserID: "@bob:a", DeviceID: "BOBDEV", IdentityKey: "bobCurve",
	}
	if err := h.manager.ReshareKeyWithDevice("nonesuch", bob); err != nil {
		t.Errorf("Reshare of unknown session errored: %+v", err)
	}
	if len(h.transport.queued) != 0 {
		t.Errorf("Key delivered for an unknown session")
	}
}
