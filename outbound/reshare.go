////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package outbound

import (
	"encoding/json"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/format"
	"gitlab.com/elixxir/megolm/session"
)

// ReshareKeyWithDevice re-delivers one of our session keys to a device that
// already received it, e.g. after the device lost local state. The key is
// exported at the message index recorded when the device was first given it,
// never earlier. The call is a silent no-op when the session was never shared
// with the device, or when the device's identity key changed since the
// original share.
func (m *Manager) ReshareKeyWithDevice(sessionID string, d device.Device) error {
	s := m.lookupSession(sessionID)
	if s == nil {
		jww.DEBUG.Printf("[KEYSHARE] Reshare of unknown session %s "+
			"with %s ignored", sessionID, d.Key())
		return nil
	}

	k := d.Key()
	sd, shared := s.SharedWith(k)
	if !shared {
		jww.DEBUG.Printf("[KEYSHARE] Reshare of session %s with %s "+
			"ignored: never shared", sessionID, k)
		return nil
	}
	if sd.IdentityKey != d.IdentityKey {
		jww.WARN.Printf("[KEYSHARE] Reshare of session %s with %s "+
			"refused: identity key changed since original share",
			sessionID, k)
		return nil
	}

	ourCurve, ourEd := m.eng.IdentityKeys()
	exported, err := m.inbound.Export(ourCurve, sessionID, sd.MessageIndex)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to export session %s at index %d for reshare",
			sessionID, sd.MessageIndex)
	}

	roomKey, err := json.Marshal(format.RoomKey{
		Algorithm:  catalog.MegolmV1,
		RoomID:     s.RoomID(),
		SessionID:  sessionID,
		SessionKey: exported,
		ChainIndex: sd.MessageIndex,
	})
	if err != nil {
		return errors.Errorf(
			"failed to marshal reshared room key %s: %+v",
			sessionID, err)
	}

	claimed, err := m.transport.ClaimOneTimeKeys([]device.Key{k},
		catalog.SignedCurve25519, m.params.PrewarmClaimTimeout)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to claim one-time key for reshare with %s", k)
	}
	otk, ok := claimed[k]
	if !ok || otk == "" {
		return errors.Errorf(
			"no one-time key available for reshare with %s", k)
	}

	channel, err := m.eng.EstablishPairwiseChannel(d.IdentityKey, otk)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to establish pairwise channel for reshare with %s", k)
	}
	wire, err := channel.EncryptForDevice(roomKey)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to encrypt reshared room key for %s", k)
	}

	envelope, err := json.Marshal(format.Encrypted{
		Algorithm:  catalog.OlmV1,
		SenderKey:  ourCurve,
		Ciphertext: wire,
		DeviceID:   m.deviceID,
	})
	if err != nil {
		return errors.Errorf(
			"failed to marshal reshare envelope for %s: %+v", k, err)
	}

	jww.INFO.Printf("[KEYSHARE] Resharing session %s at index %d with %s "+
		"(claimed ed25519 %s)", sessionID, sd.MessageIndex, k, ourEd)
	return m.transport.QueueToDevice(catalog.RoomEncrypted,
		map[device.Key]json.RawMessage{k: envelope})
}

// lookupSession finds a live or stored session by ID. Only sessions this
// manager created can match.
func (m *Manager) lookupSession(sessionID string) *session.Outbound {
	m.mux.Lock()
	defer m.mux.Unlock()
	for _, s := range m.sessions {
		if s.ID() == sessionID {
			return s
		}
	}
	return nil
}
