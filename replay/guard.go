////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package replay tracks the provenance of every successfully decrypted
// message index so a reused index with a different event identity is caught
// before the plaintext is surfaced.
package replay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/megolm/storage/versioned"
)

const (
	guardStorePrefix  = "replayGuard"
	guardStoreKey     = "records"
	guardStoreVersion = 0
)

// Record is the identity of the event that first decrypted a given
// (senderKey, sessionID, messageIndex). Every later decrypt of that index
// must agree with it exactly.
type Record struct {
	EventID   string
	Timestamp time.Time
}

// Guard is the replay-detection table. The in-memory map is authoritative;
// it is persisted whole on every new record so a restart cannot forget what
// was already decrypted.
type Guard struct {
	records map[string]Record

	kv  *versioned.KV
	mux sync.Mutex
}

// NewGuard loads the replay table from storage, or starts an empty one if
// none is stored.
func NewGuard(kv *versioned.KV) (*Guard, error) {
	g := &Guard{
		records: make(map[string]Record),
		kv:      kv.Prefix(guardStorePrefix),
	}

	obj, err := g.kv.Get(guardStoreKey, guardStoreVersion)
	if err != nil {
		if g.kv.Exists(err) {
			return nil, errors.WithMessage(err,
				"failed to load replay guard")
		}
		return g, nil
	}

	if err = json.Unmarshal(obj.Data, &g.records); err != nil {
		return nil, errors.WithMessage(err,
			"failed to unmarshal replay guard")
	}
	return g, nil
}

// CheckOrRecord performs the mandatory pre-success replay check for a
// decrypt. The first decrypt of an index records the event identity and
// passes. A later decrypt of the same index passes only if eventID and
// timestamp both match the record exactly; any difference reports a replay
// and leaves the original record untouched.
func (g *Guard) CheckOrRecord(senderKey, sessionID string, messageIndex uint32,
	eventID string, timestamp time.Time) (isReplay bool, err error) {
	key := recordKey(senderKey, sessionID, messageIndex)

	g.mux.Lock()
	defer g.mux.Unlock()

	if existing, ok := g.records[key]; ok {
		if existing.EventID == eventID &&
			existing.Timestamp.Equal(timestamp) {
			// idempotent re-decryption of the same event
			return false, nil
		}
		jww.WARN.Printf("[MEGOLM] Replay detected on %s: index %d already "+
			"decrypted as event %s at %s, now presented as event %s at %s",
			sessionID, messageIndex, existing.EventID, existing.Timestamp,
			eventID, timestamp)
		return true, nil
	}

	g.records[key] = Record{EventID: eventID, Timestamp: timestamp}
	return false, g.save()
}

// Lookup returns the stored record for the index, if any.
func (g *Guard) Lookup(senderKey, sessionID string, messageIndex uint32) (
	Record, bool) {
	g.mux.Lock()
	defer g.mux.Unlock()
	r, ok := g.records[recordKey(senderKey, sessionID, messageIndex)]
	return r, ok
}

// List returns a copy of every replay record, keyed by
// "senderKey|sessionID|messageIndex". Used for inspection tooling.
func (g *Guard) List() map[string]Record {
	g.mux.Lock()
	defer g.mux.Unlock()
	records := make(map[string]Record, len(g.records))
	for k, r := range g.records {
		records[k] = r
	}
	return records
}

func (g *Guard) save() error {
	data, err := json.Marshal(g.records)
	if err != nil {
		return errors.WithMessage(err, "failed to marshal replay guard")
	}
	return g.kv.Set(guardStoreKey, &versioned.Object{
		Version:   guardStoreVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	})
}

func recordKey(senderKey, sessionID string, messageIndex uint32) string {
	return fmt.Sprintf("%s|%s|%d", senderKey, sessionID, messageIndex)
}
