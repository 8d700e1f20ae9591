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

	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/format"
	"gitlab.com/elixxir/megolm/storage/versioned"
)

func unpackWithheld(content json.RawMessage, t *testing.T) format.Withheld {
	var w format.Withheld
	if err := json.Unmarshal(content, &w); err != nil {
		t.Fatalf("Failed to unmarshal withheld notification: %+v", err)
	}
	return w
}

// Tests that a blocked device gets a blacklisted withheld notification
// instead of the key, and is never included in the one-time key claim.
func TestManager_Share_Blacklisted(t *testing.T) {
	h := makeTestManager("TestManager_Share_Blacklisted", t)
	h.addRecipient("!room:a", "@bob:a", "BOBDEV", "bobCurve",
		device.Verified)
	eve := h.addRecipient("!room:a", "@eve:a", "EVEDEV", "eveCurve",
		device.Blocked)

	env, err := h.manager.EncryptMessage("!room:a", "m.room.message",
		json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("EncryptMessage failed: %+v", err)
	}

	if len(h.transport.sent) != 1 {
		t.Fatalf("Expected 1 withheld send, got %d",
			len(h.transport.sent))
	}
	sent := h.transport.sent[0]
	if sent.eventType != catalog.RoomKeyWithheld {
		t.Errorf("Withheld sent as %q", sent.eventType)
	}
	w := unpackWithheld(sent.contents[eve.Key()], t)
	if w.Code != catalog.WithheldBlacklisted {
		t.Errorf("Withheld code %q, expected %q",
			w.Code, catalog.WithheldBlacklisted)
	}
	if w.Reason != catalog.WithheldBlacklisted.Message() {
		t.Errorf("Non-canonical withheld reason %q", w.Reason)
	}
	if w.SessionID != env.SessionID || w.RoomID != "!room:a" {
		t.Errorf("Withheld misidentifies the session: %+v", w)
	}

	// Eve must not appear in any claim or key share.
	for _, batch := range h.transport.claimed {
		for _, k := range batch {
			if k == eve.Key() {
				t.Errorf("Claimed one-time key for blocked "+
					"device %s", k)
			}
		}
	}
	for _, q := range h.transport.queued {
		if _, ok := q.contents[eve.Key()]; ok {
			t.Errorf("Key share queued for blocked device")
		}
	}
}

// Tests that with the block-unverified policy an unverified device is
// withheld while a verified one still gets the key.
func TestManager_Share_Unverified(t *testing.T) {
	h := makeTestManager("TestManager_Share_Unverified", t)
	bob := h.addRecipient("!room:a", "@bob:a", "BOBDEV", "bobCurve",
		device.Verified)
	mal := h.addRecipient("!room:a", "@mal:a", "MALDEV", "malCurve",
		device.Unverified)
	h.rooms.policies["!room:a"] = Policy{BlockUnverified: true}

	if _, err := h.manager.EncryptMessage("!room:a", "m.room.message",
		json.RawMessage(`{}`)); err != nil {
		t.Fatalf("EncryptMessage failed: %+v", err)
	}

	if len(h.transport.sent) != 1 {
		t.Fatalf("Expected 1 withheld send, got %d",
			len(h.transport.sent))
	}
	w := unpackWithheld(h.transport.sent[0].contents[mal.Key()], t)
	if w.Code != catalog.WithheldUnverified {
		t.Errorf("Withheld code %q, expected %q",
			w.Code, catalog.WithheldUnverified)
	}

	if _, ok := h.transport.queued[0].contents[bob.Key()]; !ok {
		t.Errorf("Verified device did not receive the key")
	}
}

// Tests that without the policy an unverified device receives the key.
func TestManager_Share_UnverifiedAllowedByDefault(t *testing.T) {
	h := makeTestManager("TestManager_Share_UnverifiedAllowedByDefault", t)
	mal := h.addRecipient("!room:a", "@mal:a", "MALDEV", "malCurve",
		device.Unverified)

	if _, err := h.manager.EncryptMessage("!room:a", "m.room.message",
		json.RawMessage(`{}`)); err != nil {
		t.Fatalf("EncryptMessage failed: %+v", err)
	}

	if len(h.transport.sent) != 0 {
		t.Errorf("Unexpected withheld send: %+v", h.transport.sent)
	}
	if _, ok := h.transport.queued[0].contents[mal.Key()]; !ok {
		t.Errorf("Unverified device did not receive the key")
	}
}

// Tests that a device with no claimable one-time key gets the channel-wide
// no-olm notification, without room or session identifiers.
func TestManager_Share_NoOlm(t *testing.T) {
	h := makeTestManager("TestManager_Share_NoOlm", t)
	dan := h.addRecipient("!room:a", "@dan:a", "DANDEV", "danCurve",
		device.Verified)
	delete(h.transport.otks, dan.Key())

	if _, err := h.manager.EncryptMessage("!room:a", "m.room.message",
		json.RawMessage(`{}`)); err != nil {
		t.Fatalf("EncryptMessage failed: %+v", err)
	}

	if len(h.transport.sent) != 1 {
		t.Fatalf("Expected 1 withheld send, got %d",
			len(h.transport.sent))
	}
	w := unpackWithheld(h.transport.sent[0].contents[dan.Key()], t)
	if w.Code != catalog.WithheldNoOlm {
		t.Errorf("Withheld code %q, expected %q",
			w.Code, catalog.WithheldNoOlm)
	}
	if w.SessionID != "" || w.RoomID != "" {
		t.Errorf("No-olm notification carries session scope: %+v", w)
	}
	if len(h.transport.queued) != 0 {
		t.Errorf("Key share queued despite failed claim")
	}
}

// Tests that a withheld notification goes out once per session, not once per
// message.
func TestManager_Share_WithheldOnce(t *testing.T) {
	h := makeTestManager("TestManager_Share_WithheldOnce", t)
	h.addRecipient("!room:a", "@bob:a", "BOBDEV", "bobCurve",
		device.Verified)
	h.addRecipient("!room:a", "@eve:a", "EVEDEV", "eveCurve",
		device.Blocked)

	for i := 0; i < 3; i++ {
		if _, err := h.manager.EncryptMessage("!room:a",
			"m.room.message", json.RawMessage(`{}`)); err != nil {
			t.Fatalf("Send %d failed: %+v", i, err)
		}
	}

	if len(h.transport.sent) != 1 {
		t.Errorf("Expected 1 withheld send across 3 messages, got %d",
			len(h.transport.sent))
	}
}

// Tests that notifications for several excluded devices coalesce into a
// single withheld send.
func TestManager_Share_WithheldCoalesced(t *testing.T) {
	h := makeTestManager("TestManager_Share_WithheldCoalesced", t)
	eve := h.addRecipient("!room:a", "@eve:a", "EVEDEV", "eveCurve",
		device.Blocked)
	dan := h.addRecipient("!room:a", "@dan:a", "DANDEV", "danCurve",
		device.Verified)
	delete(h.transport.otks, dan.Key())

	if _, err := h.manager.EncryptMessage("!room:a", "m.room.message",
		json.RawMessage(`{}`)); err != nil {
		t.Fatalf("EncryptMessage failed: %+v", err)
	}

	if len(h.transport.sent) != 1 {
		t.Fatalf("Expected 1 coalesced withheld send, got %d",
			len(h.transport.sent))
	}
	contents := h.transport.sent[0].contents
	if len(contents) != 2 {
		t.Fatalf("Expected 2 withheld notifications, got %d",
			len(contents))
	}
	if w := unpackWithheld(contents[eve.Key()], t); w.Code !=
		catalog.WithheldBlacklisted {
		t.Errorf("Eve got code %q", w.Code)
	}
	if w := unpackWithheld(contents[dan.Key()], t); w.Code !=
		catalog.WithheldNoOlm {
		t.Errorf("Dan got code %q", w.Code)
	}
}

// Tests that a failed save of the blocked list does not fail the share; the
// withheld notification still goes out.
func TestManager_Share_BlockedSaveFailure(t *testing.T) {
	backing := &failingKV{
		KeyValue: ekv.MakeMemstore(),
		fragment: "outboundGroupSession",
		allowed:  1, // session creation saves once before the block
	}
	h := makeTestManagerFromKV("TestManager_Share_BlockedSaveFailure",
		versioned.NewKV(backing), t)
	eve := h.addRecipient("!room:a", "@eve:a", "EVEDEV", "eveCurve",
		device.Blocked)

	if err := h.manager.PrepareToEncrypt("!room:a"); err != nil {
		t.Fatalf("PrepareToEncrypt failed: %+v", err)
	}

	if len(h.transport.sent) != 1 {
		t.Fatalf("Expected 1 withheld send, got %d",
			len(h.transport.sent))
	}
	w := unpackWithheld(h.transport.sent[0].contents[eve.Key()], t)
	if w.Code != catalog.WithheldBlacklisted {
		t.Errorf("Withheld code %q, expected %q",
			w.Code, catalog.WithheldBlacklisted)
	}
}
