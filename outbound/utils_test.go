////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package outbound

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/engine"
	"gitlab.com/elixxir/megolm/inbound"
	"gitlab.com/elixxir/megolm/replay"
	"gitlab.com/elixxir/megolm/storage/versioned"
	"gitlab.com/elixxir/megolm/withheld"
)

type sentToDevice struct {
	eventType catalog.EventType
	contents  map[device.Key]json.RawMessage
}

type mockTransport struct {
	otks       map[device.Key]string
	claimCalls int
	claimed    [][]device.Key
	sent       []sentToDevice
	queued     []sentToDevice
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
	mt.claimed = append(mt.claimed, devices)
	claimed := make(map[device.Key]string)
	for _, k := range devices {
		if otk, ok := mt.otks[k]; ok {
			claimed[k] = otk
		}
	}
	return claimed, nil
}

func (mt *mockTransport) SendToDevice(eventType catalog.EventType,
	contents map[device.Key]json.RawMessage) error {
	mt.mux.Lock()
	defer mt.mux.Unlock()
	mt.sent = append(mt.sent,
		sentToDevice{eventType: eventType, contents: contents})
	return nil
}

func (mt *mockTransport) QueueToDevice(eventType catalog.EventType,
	contents map[device.Key]json.RawMessage) error {
	mt.mux.Lock()
	defer mt.mux.Unlock()
	mt.queued = append(mt.queued,
		sentToDevice{eventType: eventType, contents: contents})
	return nil
}

type mockRoomModel struct {
	targets  map[string][]device.Device
	policies map[string]Policy
	mux      sync.Mutex
}

func newMockRoomModel() *mockRoomModel {
	return &mockRoomModel{
		targets:  make(map[string][]device.Device),
		policies: make(map[string]Policy),
	}
}

func (mr *mockRoomModel) addTarget(roomID string, d device.Device) {
	mr.mux.Lock()
	defer mr.mux.Unlock()
	mr.targets[roomID] = append(mr.targets[roomID], d)
}

func (mr *mockRoomModel) EncryptionTargets(roomID string) (
	[]device.Device, error) {
	mr.mux.Lock()
	defer mr.mux.Unlock()
	targets, ok := mr.targets[roomID]
	if !ok {
		return nil, errRoomUnknown
	}
	return append([]device.Device{}, targets...), nil
}

func (mr *mockRoomModel) Policy(roomID string) (Policy, error) {
	mr.mux.Lock()
	defer mr.mux.Unlock()
	if _, ok := mr.targets[roomID]; !ok {
		return Policy{}, errRoomUnknown
	}
	return mr.policies[roomID], nil
}

var errRoomUnknown = constError("room unknown")

// failingKV wraps a backing store and fails every Set under the given key
// fragment after the first allowed writes, simulating a dying disk.
type failingKV struct {
	ekv.KeyValue
	fragment string
	allowed  int
	sets     int
	mux      sync.Mutex
}

func (f *failingKV) Set(key string, objectToStore ekv.Marshaler) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	if strings.Contains(key, f.fragment) {
		f.sets++
		if f.sets > f.allowed {
			return constError("disk full")
		}
	}
	return f.KeyValue.Set(key, objectToStore)
}

type constError string

func (e constError) Error() string { return string(e) }

// testHarness bundles a manager with its collaborators and the inbound store
// acting as the twin registry.
type testHarness struct {
	manager   *Manager
	transport *mockTransport
	rooms     *mockRoomModel
	inbound   *inbound.Store
	eng       *engine.MockEngine
	kv        *versioned.KV
}

func makeTestManager(tag string, t *testing.T) *testHarness {
	return makeTestManagerFromKV(tag, versioned.NewKV(ekv.MakeMemstore()), t)
}

func makeTestManagerFromKV(tag string, kv *versioned.KV,
	t *testing.T) *testHarness {
	if t == nil {
		panic("makeTestManagerFromKV is restricted to testing")
	}

	eng := engine.NewMockEngine(tag, t)
	transport := newMockTransport()

	guard, err := replay.NewGuard(kv)
	if err != nil {
		t.Fatalf("Failed to make replay guard: %+v", err)
	}
	registry, err := withheld.NewRegistry(kv)
	if err != nil {
		t.Fatalf("Failed to make withheld registry: %+v", err)
	}
	store, err := inbound.NewStore(eng, nil, nil, guard, registry, kv,
		inbound.GetDefaultParams())
	if err != nil {
		t.Fatalf("Failed to make inbound store: %+v", err)
	}

	rooms := newMockRoomModel()
	m := NewManager(eng, transport, rooms, store, kv, "DEVICE01", nil,
		GetDefaultParams())

	return &testHarness{
		manager:   m,
		transport: transport,
		rooms:     rooms,
		inbound:   store,
		eng:       eng,
		kv:        kv,
	}
}

// addRecipient registers a device as a room target with a claimable one-time
// key.
func (h *testHarness) addRecipient(roomID, userID, deviceID, identityKey string,
	trust device.Trust) device.Device {
	d := device.Device{
		UserID:      userID,
		DeviceID:    deviceID,
		IdentityKey: identityKey,
		SigningKey:  identityKey + "-ed",
		Trust:       trust,
	}
	h.rooms.addTarget(roomID, d)
	h.transport.otks[d.Key()] = "otk-" + identityKey
	return d
}
