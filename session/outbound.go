////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package session holds the data model for group-ratchet sessions: the
// outbound session a device encrypts with, and the stored record of every
// inbound session it can decrypt with. All ratchet state is opaque engine
// handles; this package owns the bookkeeping around them and its persistence.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/engine"
	"gitlab.com/elixxir/megolm/storage/versioned"
)

const (
	outboundStorePrefix  = "outboundGroupSession"
	outboundStoreVersion = 0
)

// SharedDevice records the delivery of the session key to one device: the
// device's identity key at share time and the ratchet index the key was
// exported at.
type SharedDevice struct {
	IdentityKey  string
	MessageIndex uint32
}

// Outbound is the write side of a group session for one room. At most one
// live Outbound exists per room; the outbound manager serializes all mutation
// through its per-room setup path, the internal mutex only guards storage
// writes racing reads.
type Outbound struct {
	roomID       string
	cipher       engine.OutboundGroupSession
	creationTime time.Time
	messagesSent uint32

	sharedWith map[device.Key]SharedDevice
	blocked    map[device.Key]struct{}
	deleted    bool

	kv  *versioned.KV
	mux sync.RWMutex
}

// outboundDisk is the marshalable mirror of Outbound.
type outboundDisk struct {
	RoomID       string
	Pickle       []byte
	CreationTime time.Time
	MessagesSent uint32
	SharedWith   map[string]SharedDevice
	Blocked      []string
}

// NewOutbound creates a fresh outbound session for the room through the
// engine and persists it.
func NewOutbound(roomID string, eng engine.Engine, kv *versioned.KV) (
	*Outbound, error) {
	cipher, err := eng.NewOutboundGroupSession()
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to create outbound group session for room %s", roomID)
	}

	s := &Outbound{
		roomID:       roomID,
		cipher:       cipher,
		creationTime: netTime.Now(),
		messagesSent: 0,
		sharedWith:   make(map[device.Key]SharedDevice),
		blocked:      make(map[device.Key]struct{}),
		kv:           kv.Prefix(outboundStorePrefix),
	}

	if err = s.save(); err != nil {
		return nil, err
	}

	jww.INFO.Printf("[MEGOLM] Created outbound session %s for room %s",
		cipher.ID(), roomID)
	return s, nil
}

// LoadOutbound restores the room's outbound session from storage.
func LoadOutbound(roomID string, eng engine.Engine, kv *versioned.KV) (
	*Outbound, error) {
	kv = kv.Prefix(outboundStorePrefix)
	obj, err := kv.Get(roomID, outboundStoreVersion)
	if err != nil {
		return nil, err
	}

	disk := outboundDisk{}
	if err = json.Unmarshal(obj.Data, &disk); err != nil {
		return nil, errors.WithMessagef(err,
			"failed to unmarshal outbound session for room %s", roomID)
	}

	cipher, err := eng.UnpickleOutboundGroupSession(disk.Pickle)
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to unpickle outbound session for room %s", roomID)
	}

	s := &Outbound{
		roomID:       roomID,
		cipher:       cipher,
		creationTime: disk.CreationTime,
		messagesSent: disk.MessagesSent,
		sharedWith:   make(map[device.Key]SharedDevice, len(disk.SharedWith)),
		blocked:      make(map[device.Key]struct{}, len(disk.Blocked)),
		kv:           kv,
	}
	for k, sd := range disk.SharedWith {
		s.sharedWith[device.ParseKey(k)] = sd
	}
	for _, k := range disk.Blocked {
		s.blocked[device.ParseKey(k)] = struct{}{}
	}

	return s, nil
}

// ID returns the session ID.
func (s *Outbound) ID() string {
	return s.cipher.ID()
}

// RoomID returns the room the session encrypts for.
func (s *Outbound) RoomID() string {
	return s.roomID
}

// Key exports the session key at the current ratchet index.
func (s *Outbound) Key() (string, error) {
	return s.cipher.Key()
}

// MessageIndex returns the current ratchet position.
func (s *Outbound) MessageIndex() uint32 {
	return s.cipher.MessageIndex()
}

// CreationTime returns when the session was created.
func (s *Outbound) CreationTime() time.Time {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.creationTime
}

// MessagesSent returns the number of messages encrypted with the session.
func (s *Outbound) MessagesSent() uint32 {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.messagesSent
}

// IsStale reports whether the session must be rotated before the next
// encrypt, either by age or by message count.
func (s *Outbound) IsStale(rotationPeriod time.Duration,
	rotationMsgs uint32) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if netTime.Now().Sub(s.creationTime) > rotationPeriod {
		return true
	}
	return s.messagesSent >= rotationMsgs
}

// Encrypt advances the ratchet, increments the sent counter, and persists the
// new state.
func (s *Outbound) Encrypt(plaintext []byte) (string, error) {
	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return "", errors.WithMessagef(err,
			"failed to encrypt with session %s", s.ID())
	}

	s.mux.Lock()
	s.messagesSent++
	err = s.save()
	s.mux.Unlock()
	if err != nil {
		return "", err
	}

	return ciphertext, nil
}

// SharedWith returns the share record for the device, if one exists.
func (s *Outbound) SharedWith(k device.Key) (SharedDevice, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	sd, ok := s.sharedWith[k]
	return sd, ok
}

// MarkShared records that the session key was delivered to the device with
// the given identity key at the given ratchet index.
func (s *Outbound) MarkShared(k device.Key, identityKey string,
	messageIndex uint32) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.sharedWith[k] = SharedDevice{
		IdentityKey:  identityKey,
		MessageIndex: messageIndex,
	}
	return s.save()
}

// MarkBlocked records that the device was deliberately excluded from the
// session.
func (s *Outbound) MarkBlocked(k device.Key) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.blocked[k] = struct{}{}
	return s.save()
}

// IsBlocked reports whether the device was excluded from the session.
func (s *Outbound) IsBlocked(k device.Key) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	_, ok := s.blocked[k]
	return ok
}

// Delete removes the session from storage. Called when the session is
// superseded on rotation. The successor is stored under the same room key, so
// the session is tombstoned as well: a handle retained across the rotation
// can still encrypt, but its state writes no longer reach storage and cannot
// overwrite the successor's record.
func (s *Outbound) Delete() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.deleted = true
	return s.kv.Delete(s.roomID, outboundStoreVersion)
}

// save persists the session. Callers must hold the write lock or have
// exclusive ownership.
func (s *Outbound) save() error {
	if s.deleted {
		jww.DEBUG.Printf("[MEGOLM] Dropped state write for deleted "+
			"session %s in room %s", s.ID(), s.roomID)
		return nil
	}
	pickle, err := s.cipher.Pickle()
	if err != nil {
		return errors.WithMessagef(err,
			"failed to pickle outbound session %s", s.ID())
	}

	disk := outboundDisk{
		RoomID:       s.roomID,
		Pickle:       pickle,
		CreationTime: s.creationTime,
		MessagesSent: s.messagesSent,
		SharedWith:   make(map[string]SharedDevice, len(s.sharedWith)),
		Blocked:      make([]string, 0, len(s.blocked)),
	}
	for k, sd := range s.sharedWith {
		disk.SharedWith[k.String()] = sd
	}
	for k := range s.blocked {
		disk.Blocked = append(disk.Blocked, k.String())
	}

	data, err := json.Marshal(&disk)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to marshal outbound session %s", s.ID())
	}

	return s.kv.Set(s.roomID, &versioned.Object{
		Version:   outboundStoreVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	})
}
