////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package inbound owns every group session this device can decrypt with. It
// ingests session keys from direct and forwarded key events, decrypts room
// events with mandatory replay checking, and answers key requests from the
// user's other devices.
package inbound

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/megolm/engine"
	"gitlab.com/elixxir/megolm/replay"
	"gitlab.com/elixxir/megolm/session"
	"gitlab.com/elixxir/megolm/storage/versioned"
	"gitlab.com/elixxir/megolm/withheld"
)

const (
	indexStoreKey     = "inboundSessionIndex"
	indexStoreVersion = 0
)

// Error messages.
const (
	duplicateSessionLog = "[MEGOLM] Ignoring %s key for known session %s " +
		"from sender key %s, keeping the first-received session"
)

// Store holds the inbound sessions and the machinery around decryption.
type Store struct {
	eng       engine.Engine
	transport Transport
	directory DeviceDirectory
	guard     *replay.Guard
	registry  *withheld.Registry
	params    Params

	sessions map[string]engine.InboundGroupSession
	records  map[string]session.InboundRecord

	kv  *versioned.KV
	mux sync.RWMutex
}

// indexEntry locates one stored inbound session so the set can be iterated on
// load.
type indexEntry struct {
	SenderKey string
	SessionID string
}

// NewStore loads all stored inbound sessions, or starts empty when storage is
// fresh.
func NewStore(eng engine.Engine, transport Transport,
	directory DeviceDirectory, guard *replay.Guard,
	registry *withheld.Registry, kv *versioned.KV, params Params) (
	*Store, error) {

	s := &Store{
		eng:       eng,
		transport: transport,
		directory: directory,
		guard:     guard,
		registry:  registry,
		params:    params,
		sessions:  make(map[string]engine.InboundGroupSession),
		records:   make(map[string]session.InboundRecord),
		kv:        kv,
	}

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	for _, entry := range index {
		rec, err := session.LoadInbound(kv, entry.SenderKey, entry.SessionID)
		if err != nil {
			return nil, errors.WithMessagef(err,
				"failed to load inbound session %s", entry.SessionID)
		}
		cipher, err := eng.UnpickleInboundGroupSession(rec.Pickle)
		if err != nil {
			return nil, errors.WithMessagef(err,
				"failed to unpickle inbound session %s", entry.SessionID)
		}
		key := session.InboundKey(entry.SenderKey, entry.SessionID)
		s.records[key] = rec
		s.sessions[key] = cipher
	}

	jww.INFO.Printf("[MEGOLM] Loaded %d inbound sessions", len(s.records))
	return s, nil
}

// AddDirect ingests a session key received directly from its creator over a
// pairwise channel. A key for an already-known session is ignored;
// first-writer-wins.
func (s *Store) AddDirect(senderKey, claimedEd25519, roomID,
	sessionKey string) error {
	return s.add(senderKey, claimedEd25519, roomID, sessionKey, nil, "direct")
}

// AddForwarded ingests a session key relayed by another device. The
// forwarding chain is recorded as received. A forwarded key never replaces a
// known session of any provenance.
func (s *Store) AddForwarded(senderKey, claimedEd25519, roomID,
	sessionKey string, forwardingChain []string) error {
	if forwardingChain == nil {
		forwardingChain = []string{}
	}
	return s.add(senderKey, claimedEd25519, roomID, sessionKey,
		forwardingChain, "forwarded")
}

func (s *Store) add(senderKey, claimedEd25519, roomID, sessionKey string,
	forwardingChain []string, source string) error {

	cipher, err := s.eng.NewInboundGroupSession(sessionKey)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to instantiate %s inbound session from %s",
			source, senderKey)
	}

	key := session.InboundKey(senderKey, cipher.ID())

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, exists := s.records[key]; exists {
		jww.INFO.Printf(duplicateSessionLog, source, cipher.ID(), senderKey)
		return nil
	}

	pickle, err := cipher.Pickle()
	if err != nil {
		return errors.WithMessagef(err,
			"failed to pickle inbound session %s", cipher.ID())
	}

	rec := session.InboundRecord{
		SenderKey:         senderKey,
		SessionID:         cipher.ID(),
		ClaimedEd25519Key: claimedEd25519,
		RoomID:            roomID,
		ForwardingChain:   forwardingChain,
		FirstKnownIndex:   cipher.FirstKnownIndex(),
		Pickle:            pickle,
	}

	if err = session.StoreInbound(s.kv, rec); err != nil {
		return err
	}

	s.records[key] = rec
	s.sessions[key] = cipher

	if err = s.saveIndex(); err != nil {
		return err
	}

	jww.INFO.Printf("[MEGOLM] Stored %s inbound session %s from sender key "+
		"%s for room %s (first known index %d)",
		source, cipher.ID(), senderKey, roomID, rec.FirstKnownIndex)
	return nil
}

// Has reports whether an inbound session exists for the key.
func (s *Store) Has(senderKey, sessionID string) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	_, ok := s.sessions[session.InboundKey(senderKey, sessionID)]
	return ok
}

// HasKeysForKeyRequest reports whether the request for (senderKey, sessionID)
// can be satisfied from this store.
func (s *Store) HasKeysForKeyRequest(senderKey, sessionID string) bool {
	return s.Has(senderKey, sessionID)
}

// Get returns the session handle and its record.
func (s *Store) Get(senderKey, sessionID string) (
	engine.InboundGroupSession, session.InboundRecord, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	key := session.InboundKey(senderKey, sessionID)
	cipher, ok := s.sessions[key]
	if !ok {
		return nil, session.InboundRecord{}, false
	}
	return cipher, s.records[key], true
}

// Export exports the session key at the given message index.
func (s *Store) Export(senderKey, sessionID string, messageIndex uint32) (
	string, error) {
	cipher, _, ok := s.Get(senderKey, sessionID)
	if !ok {
		return "", UnknownSessionError{
			SenderKey: senderKey, SessionID: sessionID}
	}
	return cipher.Export(messageIndex)
}

// List returns a copy of every stored record, for diagnostics.
func (s *Store) List() []session.InboundRecord {
	s.mux.RLock()
	defer s.mux.RUnlock()
	list := make([]session.InboundRecord, 0, len(s.records))
	for _, rec := range s.records {
		list = append(list, rec)
	}
	return list
}

// persist re-pickles a session after its ratchet state advanced. Callers must
// not hold the mutex.
func (s *Store) persist(senderKey, sessionID string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	key := session.InboundKey(senderKey, sessionID)
	cipher, ok := s.sessions[key]
	if !ok {
		return nil
	}

	pickle, err := cipher.Pickle()
	if err != nil {
		return errors.WithMessagef(err,
			"failed to pickle inbound session %s", sessionID)
	}
	rec := s.records[key]
	rec.Pickle = pickle
	s.records[key] = rec
	return session.StoreInbound(s.kv, rec)
}

// ListStoredRecords reads every stored inbound session record without
// unpickling its ratchet, so inspection tooling can run without the
// cryptographic engine.
func ListStoredRecords(kv *versioned.KV) ([]session.InboundRecord, error) {
	s := &Store{kv: kv}
	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	records := make([]session.InboundRecord, 0, len(index))
	for _, entry := range index {
		rec, err := session.LoadInbound(kv, entry.SenderKey,
			entry.SessionID)
		if err != nil {
			return nil, errors.WithMessagef(err,
				"failed to load inbound session %s",
				entry.SessionID)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) loadIndex() ([]indexEntry, error) {
	obj, err := s.kv.Get(indexStoreKey, indexStoreVersion)
	if err != nil {
		if s.kv.Exists(err) {
			return nil, errors.WithMessage(err,
				"failed to load inbound session index")
		}
		return nil, nil
	}

	var index []indexEntry
	if err = json.Unmarshal(obj.Data, &index); err != nil {
		return nil, errors.WithMessage(err,
			"failed to unmarshal inbound session index")
	}
	return index, nil
}

// saveIndex persists the set of stored session keys. Callers must hold the
// write lock.
func (s *Store) saveIndex() error {
	index := make([]indexEntry, 0, len(s.records))
	for _, rec := range s.records {
		index = append(index, indexEntry{
			SenderKey: rec.SenderKey,
			SessionID: rec.SessionID,
		})
	}

	data, err := json.Marshal(index)
	if err != nil {
		return errors.WithMessage(err,
			"failed to marshal inbound session index")
	}
	return s.kv.Set(indexStoreKey, &versioned.Object{
		Version:   indexStoreVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	})
}
