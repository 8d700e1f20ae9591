////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package inbound

import (
	"encoding/json"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/format"
)

// ShareKeysWithDevice forwards the stored session to the requesting device.
// Best effort: the caller detaches it from any decrypt/encrypt critical path
// and only logs the returned error. The session is exported at its first
// known index, and the forwarding chain is passed through unchanged, so a
// directly-received session forwards with an empty chain.
func (s *Store) ShareKeysWithDevice(userID, deviceID, senderKey,
	sessionID string) error {

	d, err := s.directory.LookupDevice(userID, deviceID)
	if err != nil {
		return errors.WithMessagef(err,
			"cannot share session %s: requester %s/%s not in directory",
			sessionID, userID, deviceID)
	}

	_, rec, ok := s.Get(senderKey, sessionID)
	if !ok {
		return UnknownSessionError{SenderKey: senderKey, SessionID: sessionID}
	}

	if !s.directory.AllowKeyShare(d, rec) {
		// declined is implicit: drop without notification
		jww.DEBUG.Printf("[KEYSHARE] Dropping key request for session %s "+
			"from %s/%s: policy check failed", sessionID, userID, deviceID)
		return nil
	}

	exported, err := s.Export(senderKey, sessionID, rec.FirstKnownIndex)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to export session %s for %s/%s",
			sessionID, userID, deviceID)
	}

	payload, err := json.Marshal(format.ForwardedRoomKey{
		Algorithm:            catalog.MegolmV1,
		RoomID:               rec.RoomID,
		SessionID:            sessionID,
		SessionKey:           exported,
		SenderKey:            rec.SenderKey,
		SenderClaimedEd25519: rec.ClaimedEd25519Key,
		ForwardingKeyChain:   rec.ForwardingChain,
		ChainIndex:           rec.FirstKnownIndex,
	})
	if err != nil {
		return errors.WithMessage(err,
			"failed to marshal forwarded room key")
	}

	claimed, err := s.transport.ClaimOneTimeKeys([]device.Key{d.Key()},
		catalog.SignedCurve25519, s.params.KeyShareClaimTimeout)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to claim one time key for %s/%s", userID, deviceID)
	}

	channel, err := s.eng.EstablishPairwiseChannel(
		d.IdentityKey, claimed[d.Key()])
	if err != nil {
		return errors.WithMessagef(err,
			"failed to establish channel to %s/%s", userID, deviceID)
	}

	wire, err := channel.EncryptForDevice(payload)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to encrypt forwarded key for %s/%s", userID, deviceID)
	}

	ourCurve, _ := s.eng.IdentityKeys()
	content, err := json.Marshal(format.Encrypted{
		Algorithm:  catalog.OlmV1,
		SenderKey:  ourCurve,
		Ciphertext: wire,
	})
	if err != nil {
		return errors.WithMessage(err, "failed to marshal olm envelope")
	}

	err = s.transport.QueueToDevice(catalog.RoomEncrypted,
		map[device.Key]json.RawMessage{d.Key(): content})
	if err != nil {
		return errors.WithMessagef(err,
			"failed to queue forwarded key to %s/%s", userID, deviceID)
	}

	jww.INFO.Printf("[KEYSHARE] Forwarded session %s (sender key %s) to "+
		"%s/%s at index %d", sessionID, senderKey, userID, deviceID,
		rec.FirstKnownIndex)
	return nil
}
