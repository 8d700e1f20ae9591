////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package replay

import (
	"testing"
	"time"

	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/megolm/storage/versioned"
)

const (
	testSenderKey = "CURVE25519:alice"
	testSessionID = "session-1"
)

// Shows the first decrypt of an index records it, an identical re-decrypt is
// idempotent, and a mismatched re-decrypt is flagged without overwriting the
// original record.
func TestGuard_CheckOrRecord(t *testing.T) {
	g, err := NewGuard(versioned.NewKV(ekv.MakeMemstore()))
	if err != nil {
		t.Fatalf("NewGuard failed: %+v", err)
	}

	ts := time.Unix(1650000000, 0)

	isReplay, err := g.CheckOrRecord(testSenderKey, testSessionID, 3,
		"$event1", ts)
	if err != nil {
		t.Fatalf("CheckOrRecord failed: %+v", err)
	}
	if isReplay {
		t.Errorf("first decrypt flagged as replay")
	}

	// same event again: idempotent
	isReplay, err = g.CheckOrRecord(testSenderKey, testSessionID, 3,
		"$event1", ts)
	if err != nil {
		t.Fatalf("CheckOrRecord failed: %+v", err)
	}
	if isReplay {
		t.Errorf("identical re-decrypt flagged as replay")
	}

	// same index, different event ID: replay
	isReplay, _ = g.CheckOrRecord(testSenderKey, testSessionID, 3,
		"$event2", ts)
	if !isReplay {
		t.Errorf("reused index with different event ID not flagged")
	}

	// same index, different timestamp: replay
	isReplay, _ = g.CheckOrRecord(testSenderKey, testSessionID, 3,
		"$event1", ts.Add(time.Second))
	if !isReplay {
		t.Errorf("reused index with different timestamp not flagged")
	}

	// the original record must be untouched
	r, ok := g.Lookup(testSenderKey, testSessionID, 3)
	if !ok {
		t.Fatalf("record vanished")
	}
	if r.EventID != "$event1" || !r.Timestamp.Equal(ts) {
		t.Errorf("record overwritten by replay attempt: %+v", r)
	}
}

// Shows records survive a reload from the same storage.
func TestGuard_Persistence(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	g, err := NewGuard(kv)
	if err != nil {
		t.Fatalf("NewGuard failed: %+v", err)
	}

	ts := time.Unix(1650000000, 0)
	if _, err = g.CheckOrRecord(
		testSenderKey, testSessionID, 0, "$event1", ts); err != nil {
		t.Fatalf("CheckOrRecord failed: %+v", err)
	}

	reloaded, err := NewGuard(kv)
	if err != nil {
		t.Fatalf("NewGuard on existing storage failed: %+v", err)
	}

	isReplay, _ := reloaded.CheckOrRecord(
		testSenderKey, testSessionID, 0, "$other", ts)
	if !isReplay {
		t.Errorf("reloaded guard forgot a recorded index")
	}
}
