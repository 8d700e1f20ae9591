////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package engine defines the contract of the cryptographic engine, the
// external collaborator that owns all ratchet math and AEAD primitives. The
// rest of the module treats session and channel state as opaque handles
// behind these interfaces. Serialization of ratchet mutation on a single
// handle is the engine's responsibility; callers may invoke handles for
// different sessions concurrently.
package engine

// Engine creates and restores the opaque cryptographic handles used by the
// group-session lifecycle.
type Engine interface {
	// NewOutboundGroupSession creates a fresh outbound group-ratchet
	// session.
	NewOutboundGroupSession() (OutboundGroupSession, error)

	// NewInboundGroupSession instantiates the read side of a group session
	// from an exported session key.
	NewInboundGroupSession(sessionKey string) (InboundGroupSession, error)

	// UnpickleOutboundGroupSession restores an outbound session from its
	// pickled form.
	UnpickleOutboundGroupSession(pickle []byte) (OutboundGroupSession, error)

	// UnpickleInboundGroupSession restores an inbound session from its
	// pickled form.
	UnpickleInboundGroupSession(pickle []byte) (InboundGroupSession, error)

	// EstablishPairwiseChannel builds a one-to-one encrypted channel to the
	// device holding identityKey, consuming the claimed one-time key.
	EstablishPairwiseChannel(identityKey, oneTimeKey string) (
		PairwiseChannel, error)

	// IdentityKeys returns this device's long-term curve25519 and ed25519
	// public keys.
	IdentityKeys() (curve25519, ed25519 string)
}

// OutboundGroupSession is the write side of a group ratchet.
type OutboundGroupSession interface {
	// ID returns the session ID.
	ID() string

	// Key exports the session key at the current message index, suitable
	// for delivery to recipient devices.
	Key() (string, error)

	// MessageIndex returns the current ratchet position.
	MessageIndex() uint32

	// Encrypt advances the ratchet and returns the ciphertext for the
	// passed plaintext.
	Encrypt(plaintext []byte) (ciphertext string, err error)

	// Pickle serializes the session for storage.
	Pickle() ([]byte, error)
}

// InboundGroupSession is the read side of a group ratchet, reconstructed from
// a received session key.
type InboundGroupSession interface {
	// ID returns the session ID.
	ID() string

	// Decrypt returns the plaintext and the ratchet position of the
	// ciphertext.
	Decrypt(ciphertext string) (plaintext []byte, messageIndex uint32,
		err error)

	// Export returns the session key at the given message index. Fails if
	// the index predates FirstKnownIndex.
	Export(messageIndex uint32) (string, error)

	// FirstKnownIndex returns the earliest message index this session can
	// decrypt.
	FirstKnownIndex() uint32

	// Pickle serializes the session for storage.
	Pickle() ([]byte, error)
}

// PairwiseChannel is a one-to-one encrypted channel to a single device, used
// to deliver group session keys.
type PairwiseChannel interface {
	// EncryptForDevice encrypts the payload for the channel's device.
	EncryptForDevice(payload []byte) (wireCiphertext string, err error)
}
