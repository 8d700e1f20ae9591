////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package withheld records the reasons peers gave for deliberately not
// sharing a session key. The registry is written when a withheld notification
// arrives and read lazily when a decrypt fails for lack of a session; it
// never overrides a usable session and entries never expire.
package withheld

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/storage/versioned"
)

const (
	registryStorePrefix  = "withheldKeys"
	registryStoreKey     = "records"
	registryStoreVersion = 0
)

// Record is one withheld notification: the machine-readable code and the
// sender's human-readable reason, surfaced verbatim to the user.
type Record struct {
	Code   catalog.WithheldCode
	Reason string
}

// Registry is the withheld-key lookup table, keyed by (senderKey, sessionID).
// A code that applies to a whole pairwise channel rather than one session
// (m.no_olm) is stored under an empty session ID and matches any session from
// that sender key.
type Registry struct {
	records map[string]Record

	kv  *versioned.KV
	mux sync.Mutex
}

// NewRegistry loads the registry from storage, or starts an empty one.
func NewRegistry(kv *versioned.KV) (*Registry, error) {
	r := &Registry{
		records: make(map[string]Record),
		kv:      kv.Prefix(registryStorePrefix),
	}

	obj, err := r.kv.Get(registryStoreKey, registryStoreVersion)
	if err != nil {
		if r.kv.Exists(err) {
			return nil, errors.WithMessage(err,
				"failed to load withheld registry")
		}
		return r, nil
	}

	if err = json.Unmarshal(obj.Data, &r.records); err != nil {
		return nil, errors.WithMessage(err,
			"failed to unmarshal withheld registry")
	}
	return r, nil
}

// Receive records an incoming withheld notification.
func (r *Registry) Receive(senderKey, sessionID string,
	code catalog.WithheldCode, reason string) error {
	if reason == "" {
		reason = code.Message()
	}

	jww.INFO.Printf("[WITHHELD] Key withheld by %s for session %q: %s (%s)",
		senderKey, sessionID, code, reason)

	r.mux.Lock()
	defer r.mux.Unlock()
	r.records[recordKey(senderKey, sessionID)] = Record{
		Code:   code,
		Reason: reason,
	}
	return r.save()
}

// Lookup returns the withheld record for the session, if one exists. A
// channel-wide record for the sender key matches when no session-specific
// record does.
func (r *Registry) Lookup(senderKey, sessionID string) (Record, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()

	if rec, ok := r.records[recordKey(senderKey, sessionID)]; ok {
		return rec, true
	}
	rec, ok := r.records[recordKey(senderKey, "")]
	return rec, ok
}

// List returns a copy of every withheld record, keyed by
// "senderKey|sessionID". Channel-wide records have an empty session ID part.
// Used for inspection tooling.
func (r *Registry) List() map[string]Record {
	r.mux.Lock()
	defer r.mux.Unlock()
	records := make(map[string]Record, len(r.records))
	for k, rec := range r.records {
		records[k] = rec
	}
	return records
}

func (r *Registry) save() error {
	data, err := json.Marshal(r.records)
	if err != nil {
		return errors.WithMessage(err,
			"failed to marshal withheld registry")
	}
	return r.kv.Set(registryStoreKey, &versioned.Object{
		Version:   registryStoreVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	})
}

func recordKey(senderKey, sessionID string) string {
	return senderKey + "|" + sessionID
}
