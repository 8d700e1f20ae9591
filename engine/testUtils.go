////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

// MockEngine is a deterministic engine for testing. Ciphertexts are JSON
// records carrying the session ID, message index, and plaintext, so the group
// ratchet round trip can be exercised without real crypto.
type MockEngine struct {
	curve25519Key string
	ed25519Key    string

	nextSessionID uint64
	mux           sync.Mutex
}

// NewMockEngine creates a MockEngine whose identity keys are derived from the
// passed tag. For testing only.
func NewMockEngine(tag string, t *testing.T) *MockEngine {
	if t == nil {
		panic("NewMockEngine: cannot be used outside tests")
	}
	return &MockEngine{
		curve25519Key: "CURVE25519:" + tag,
		ed25519Key:    "ED25519:" + tag,
	}
}

func (e *MockEngine) IdentityKeys() (string, string) {
	return e.curve25519Key, e.ed25519Key
}

func (e *MockEngine) NewOutboundGroupSession() (OutboundGroupSession, error) {
	e.mux.Lock()
	e.nextSessionID++
	sid := fmt.Sprintf("mockSession-%s-%d", e.curve25519Key, e.nextSessionID)
	e.mux.Unlock()
	return &MockOutboundSession{id: sid}, nil
}

func (e *MockEngine) NewInboundGroupSession(sessionKey string) (
	InboundGroupSession, error) {
	var sk mockSessionKey
	if err := json.Unmarshal([]byte(sessionKey), &sk); err != nil {
		return nil, errors.WithMessage(err, "malformed mock session key")
	}
	return &MockInboundSession{id: sk.SessionID, firstKnown: sk.Index}, nil
}

func (e *MockEngine) UnpickleOutboundGroupSession(pickle []byte) (
	OutboundGroupSession, error) {
	s := &MockOutboundSession{}
	if err := json.Unmarshal(pickle, &s.state); err != nil {
		return nil, errors.WithMessage(err, "bad outbound session pickle")
	}
	s.id = s.state.SessionID
	s.index = s.state.Index
	return s, nil
}

func (e *MockEngine) UnpickleInboundGroupSession(pickle []byte) (
	InboundGroupSession, error) {
	var sk mockSessionKey
	if err := json.Unmarshal(pickle, &sk); err != nil {
		return nil, errors.WithMessage(err, "bad inbound session pickle")
	}
	return &MockInboundSession{id: sk.SessionID, firstKnown: sk.Index}, nil
}

func (e *MockEngine) EstablishPairwiseChannel(identityKey, oneTimeKey string) (
	PairwiseChannel, error) {
	if oneTimeKey == "" {
		return nil, errors.Errorf(
			"no one time key for device %s", identityKey)
	}
	return &MockChannel{identityKey: identityKey}, nil
}

// mockSessionKey is the exported form of a mock session at an index.
type mockSessionKey struct {
	SessionID string `json:"session_id"`
	Index     uint32 `json:"index"`
}

// mockCiphertext is what MockOutboundSession.Encrypt produces.
type mockCiphertext struct {
	SessionID string `json:"session_id"`
	Index     uint32 `json:"index"`
	Plaintext []byte `json:"plaintext"`
}

// MockOutboundSession implements OutboundGroupSession.
type MockOutboundSession struct {
	id    string
	index uint32
	state mockSessionKey
	mux   sync.Mutex
}

func (s *MockOutboundSession) ID() string { return s.id }

func (s *MockOutboundSession) Key() (string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	b, _ := json.Marshal(mockSessionKey{SessionID: s.id, Index: s.index})
	return string(b), nil
}

func (s *MockOutboundSession) MessageIndex() uint32 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.index
}

func (s *MockOutboundSession) Encrypt(plaintext []byte) (string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	b, _ := json.Marshal(mockCiphertext{
		SessionID: s.id, Index: s.index, Plaintext: plaintext})
	s.index++
	return string(b), nil
}

func (s *MockOutboundSession) Pickle() ([]byte, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return json.Marshal(mockSessionKey{SessionID: s.id, Index: s.index})
}

// MockInboundSession implements InboundGroupSession.
type MockInboundSession struct {
	id         string
	firstKnown uint32
	wedged     bool
	mux        sync.Mutex
}

func (s *MockInboundSession) ID() string { return s.id }

// Wedge makes every subsequent Decrypt fail, simulating a corrupted ratchet.
// For testing only.
func (s *MockInboundSession) Wedge(t *testing.T) {
	if t == nil {
		panic("Wedge: cannot be used outside tests")
	}
	s.mux.Lock()
	s.wedged = true
	s.mux.Unlock()
}

func (s *MockInboundSession) Decrypt(ciphertext string) ([]byte, uint32, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.wedged {
		return nil, 0, errors.New("mock session is wedged")
	}
	var ct mockCiphertext
	if err := json.Unmarshal([]byte(ciphertext), &ct); err != nil {
		return nil, 0, errors.WithMessage(err, "malformed mock ciphertext")
	}
	if ct.SessionID != s.id {
		return nil, 0, errors.Errorf("ciphertext for session %s cannot be "+
			"decrypted by session %s", ct.SessionID, s.id)
	}
	if ct.Index < s.firstKnown {
		return nil, 0, errors.Errorf("ciphertext index %d predates first "+
			"known index %d", ct.Index, s.firstKnown)
	}
	return ct.Plaintext, ct.Index, nil
}

func (s *MockInboundSession) Export(messageIndex uint32) (string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if messageIndex < s.firstKnown {
		return "", errors.Errorf("cannot export at index %d, first known "+
			"index is %d", messageIndex, s.firstKnown)
	}
	b, _ := json.Marshal(mockSessionKey{SessionID: s.id, Index: messageIndex})
	return string(b), nil
}

func (s *MockInboundSession) FirstKnownIndex() uint32 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.firstKnown
}

func (s *MockInboundSession) Pickle() ([]byte, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return json.Marshal(mockSessionKey{SessionID: s.id, Index: s.firstKnown})
}

// MockChannel implements PairwiseChannel. The "ciphertext" is a JSON record
// of the target identity key and the payload.
type MockChannel struct {
	identityKey string
}

type mockChannelMessage struct {
	IdentityKey string `json:"identity_key"`
	Payload     []byte `json:"payload"`
}

func (c *MockChannel) EncryptForDevice(payload []byte) (string, error) {
	b, _ := json.Marshal(mockChannelMessage{
		IdentityKey: c.identityKey, Payload: payload})
	return string(b), nil
}

// DecryptMockChannelMessage opens a MockChannel ciphertext, returning the
// payload. For testing only.
func DecryptMockChannelMessage(wireCiphertext string, t *testing.T) ([]byte,
	error) {
	if t == nil {
		panic("DecryptMockChannelMessage: cannot be used outside tests")
	}
	var m mockChannelMessage
	if err := json.Unmarshal([]byte(wireCiphertext), &m); err != nil {
		return nil, err
	}
	return m.Payload, nil
}
