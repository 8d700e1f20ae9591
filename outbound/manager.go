////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package outbound owns the lifecycle of this device's group sessions: one
// live outbound session per room, rotated by age and message count, with its
// key distributed to every eligible device over pairwise channels before any
// ciphertext goes out.
package outbound

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/engine"
	"gitlab.com/elixxir/megolm/session"
	"gitlab.com/elixxir/megolm/storage/versioned"
)

// Error messages.
const (
	policyLookupErr  = "failed to look up encryption policy for room %s: %+v"
	targetsLookupErr = "failed to resolve encryption targets for room %s: %+v"
	newSessionErr    = "failed to create outbound session for room %s: %+v"
)

// Manager creates, rotates, shares, and persists outbound group sessions. It
// guarantees at most one session setup in flight per room; concurrent sends
// into the same room attach to the pending setup rather than racing it.
type Manager struct {
	eng       engine.Engine
	transport Transport
	rooms     RoomModel
	inbound   InboundStore
	backup    BackupHook
	deviceID  string
	params    Params
	kv        *versioned.KV

	// Live session per room ID. Sessions not in the map may still exist
	// in storage and are loaded on first use.
	sessions map[string]*session.Outbound

	// Pending setup per room ID.
	setups map[string]*setup

	mux sync.Mutex
}

// setup is a pending session setup. done is closed once sess and err are
// final; every waiter observes the same result.
type setup struct {
	done chan struct{}
	sess *session.Outbound
	err  error
}

// NewManager builds an outbound session manager. The inbound store receives
// a twin of every session the manager creates, so this device can decrypt
// its own traffic and answer key requests. The backup hook may be nil.
func NewManager(eng engine.Engine, transport Transport, rooms RoomModel,
	inbound InboundStore, kv *versioned.KV, deviceID string,
	backup BackupHook, params Params) *Manager {
	return &Manager{
		eng:       eng,
		transport: transport,
		rooms:     rooms,
		inbound:   inbound,
		backup:    backup,
		deviceID:  deviceID,
		params:    params,
		kv:        kv,
		sessions:  make(map[string]*session.Outbound),
		setups:    make(map[string]*setup),
	}
}

// PrepareToEncrypt sets up and shares the room's session ahead of sending so
// the first real message does not pay the key-claim round trip. Safe to call
// concurrently with sends; duplicate calls attach to the in-flight setup.
func (m *Manager) PrepareToEncrypt(roomID string) error {
	_, err := m.ensureSession(roomID, true)
	return err
}

// DiscardSession drops the room's current outbound session. The next message
// into the room creates and shares a fresh session. Dropping a session that
// does not exist is a no-op.
func (m *Manager) DiscardSession(roomID string) error {
	m.mux.Lock()
	s, ok := m.sessions[roomID]
	delete(m.sessions, roomID)
	m.mux.Unlock()

	if !ok {
		loaded, err := session.LoadOutbound(roomID, m.eng, m.kv)
		if err != nil {
			// Nothing stored either.
			return nil
		}
		s = loaded
	}

	jww.INFO.Printf("[MEGOLM] Discarding outbound session %s for room %s",
		s.ID(), roomID)
	return s.Delete()
}

// ensureSession returns the room's live outbound session, creating, rotating,
// and sharing as needed. Only one setup runs per room; late callers wait on
// the pending setup's result.
func (m *Manager) ensureSession(roomID string, prewarm bool) (
	*session.Outbound, error) {
	m.mux.Lock()
	if st, ok := m.setups[roomID]; ok {
		m.mux.Unlock()
		<-st.done
		return st.sess, st.err
	}

	st := &setup{done: make(chan struct{})}
	m.setups[roomID] = st
	m.mux.Unlock()

	st.sess, st.err = m.runSetup(roomID, prewarm)

	m.mux.Lock()
	delete(m.setups, roomID)
	m.mux.Unlock()
	close(st.done)

	return st.sess, st.err
}

// runSetup resolves the room's policy, rotates the session if stale, and
// shares the key with any devices that do not hold it yet. Completes safely
// when the room was torn down after the caller resolved it: the policy or
// target lookup fails and the error propagates to every waiter.
func (m *Manager) runSetup(roomID string, prewarm bool) (
	*session.Outbound, error) {
	policy, err := m.rooms.Policy(roomID)
	if err != nil {
		return nil, errors.Errorf(policyLookupErr, roomID, err)
	}

	rotationPeriod := policy.RotationPeriod
	if rotationPeriod == 0 {
		rotationPeriod = m.params.RotationPeriod
	}
	rotationMsgs := policy.RotationMsgs
	if rotationMsgs == 0 {
		rotationMsgs = m.params.RotationMsgs
	}

	m.mux.Lock()
	s := m.sessions[roomID]
	m.mux.Unlock()

	if s == nil {
		if loaded, loadErr := session.LoadOutbound(
			roomID, m.eng, m.kv); loadErr == nil {
			s = loaded
		}
	}

	if s == nil || s.IsStale(rotationPeriod, rotationMsgs) {
		if s != nil {
			jww.INFO.Printf("[MEGOLM] Rotating outbound session %s "+
				"for room %s after %d message(s)", s.ID(),
				roomID, s.MessagesSent())
			if delErr := s.Delete(); delErr != nil {
				jww.WARN.Printf("[MEGOLM] Failed to delete "+
					"superseded session %s: %+v", s.ID(), delErr)
			}
		}

		s, err = m.newSession(roomID)
		if err != nil {
			return nil, err
		}
	}

	m.mux.Lock()
	m.sessions[roomID] = s
	m.mux.Unlock()

	if err = m.shareSession(roomID, s, policy, prewarm); err != nil {
		return nil, err
	}

	return s, nil
}

// newSession creates a fresh outbound session, registers its inbound twin,
// and hands it to the backup hook.
func (m *Manager) newSession(roomID string) (*session.Outbound, error) {
	s, err := session.NewOutbound(roomID, m.eng, m.kv)
	if err != nil {
		return nil, errors.Errorf(newSessionErr, roomID, err)
	}

	// Inbound twin: lets this device decrypt its own messages and export
	// the key at historical indexes for re-delivery.
	sessionKey, err := s.Key()
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to export key of new session %s", s.ID())
	}
	ourCurve, ourEd := m.eng.IdentityKeys()
	if err = m.inbound.AddDirect(
		ourCurve, ourEd, roomID, sessionKey); err != nil {
		return nil, errors.WithMessagef(err,
			"failed to register inbound twin of session %s", s.ID())
	}

	if m.backup != nil {
		go func(hook BackupHook, sess *session.Outbound) {
			defer func() {
				if r := recover(); r != nil {
					jww.ERROR.Printf("[MEGOLM] Backup hook "+
						"panicked on session %s: %+v",
						sess.ID(), r)
				}
			}()
			hook(sess)
		}(m.backup, s)
	}

	return s, nil
}
