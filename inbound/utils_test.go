////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package inbound

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/engine"
	"gitlab.com/elixxir/megolm/replay"
	"gitlab.com/elixxir/megolm/session"
	"gitlab.com/elixxir/megolm/storage/versioned"
	"gitlab.com/elixxir/megolm/withheld"
)

type queuedToDevice struct {
	eventType catalog.EventType
	contents  map[device.Key]json.RawMessage
}

type mockTransport struct {
	otks       map[device.Key]string
	claimCalls int
	queued     []queuedToDevice
	mux        sync.Mutex
}

func newMockTransport() *mockTransport {
	return &mockTransport{otks: make(map[device.Key]string)}
}

func (mt *mockTransport) ClaimOneTimeKeys(devices []device.Key,
	_ catalog.Algorithm, _ time.Duration) (map[device.Key]string, error) {
	mt.mux.Lock()
	defer mt.mux.Unlock()
	mt.claimCalls++
	claimed := make(map[device.Key]string)
	for _, k := range devices {
		if otk, ok := mt.otks[k]; ok {
			claimed[k] = otk
		}
	}
	return claimed, nil
}

func (mt *mockTransport) QueueToDevice(eventType catalog.EventType,
	contents map[device.Key]json.RawMessage) error {
	mt.mux.Lock()
	defer mt.mux.Unlock()
	mt.queued = append(mt.queued,
		queuedToDevice{eventType: eventType, contents: contents})
	return nil
}

type mockDirectory struct {
	devices   map[device.Key]device.Device
	denyShare bool
	mux       sync.Mutex
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{devices: make(map[device.Key]device.Device)}
}

func (md *mockDirectory) addDevice(d device.Device) {
	md.mux.Lock()
	md.devices[d.Key()] = d
	md.mux.Unlock()
}

func (md *mockDirectory) LookupDevice(userID, deviceID string) (
	device.Device, error) {
	md.mux.Lock()
	defer md.mux.Unlock()
	d, ok := md.devices[device.NewKey(userID, deviceID)]
	if !ok {
		return device.Device{}, UnknownSessionError{} // any error will do
	}
	return d, nil
}

func (md *mockDirectory) AllowKeyShare(device.Device,
	session.InboundRecord) bool {
	return !md.denyShare
}

// makeTestStore builds a Store over fresh in-memory storage.
func makeTestStore(tag string, t *testing.T) (*Store, *mockTransport,
	*mockDirectory, *versioned.KV, *engine.MockEngine) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	return makeTestStoreFromKV(tag, kv, t)
}

// makeTestStoreFromKV builds a Store over existing storage so persistence can
// be exercised.
func makeTestStoreFromKV(tag string, kv *versioned.KV, t *testing.T) (*Store,
	*mockTransport, *mockDirectory, *versioned.KV, *engine.MockEngine) {
	eng := engine.NewMockEngine(tag, t)
	guard, err := replay.NewGuard(kv)
	if err != nil {
		t.Fatalf("failed to make replay guard: %+v", err)
	}
	registry, err := withheld.NewRegistry(kv)
	if err != nil {
		t.Fatalf("failed to make withheld registry: %+v", err)
	}
	transport := newMockTransport()
	directory := newMockDirectory()

	s, err := NewStore(eng, transport, directory, guard, registry, kv,
		GetDefaultParams())
	if err != nil {
		t.Fatalf("failed to make store: %+v", err)
	}
	return s, transport, directory, kv, eng
}

// makeSenderSession creates an outbound session on a second engine and feeds
// its key into the store, returning the sender's cipher for producing
// ciphertexts.
func makeSenderSession(s *Store, roomID string, t *testing.T) (
	engine.OutboundGroupSession, string) {
	sender := engine.NewMockEngine("sender", t)
	out, err := sender.NewOutboundGroupSession()
	if err != nil {
		t.Fatalf("failed to make sender session: %+v", err)
	}
	key, err := out.Key()
	if err != nil {
		t.Fatalf("failed to export sender session key: %+v", err)
	}

	senderCurve, senderEd := sender.IdentityKeys()
	if err = s.AddDirect(senderCurve, senderEd, roomID, key); err != nil {
		t.Fatalf("AddDirect failed: %+v", err)
	}
	return out, senderCurve
}
