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

// shareSession distributes the session key to every target device that does
// not already hold it. Devices the policy excludes get a withheld
// notification instead, exactly once per session; devices with no claimable
// one-time key get the channel-wide no-olm notification. Devices already in
// the session's shared or blocked lists are skipped without any network
// traffic.
func (m *Manager) shareSession(roomID string, s *session.Outbound,
	policy Policy, prewarm bool) error {
	targets, err := m.rooms.EncryptionTargets(roomID)
	if err != nil {
		return errors.Errorf(targetsLookupErr, roomID, err)
	}

	ourCurve, _ := m.eng.IdentityKeys()

	var pending []device.Device
	withheld := make(map[device.Key]json.RawMessage)

	for _, d := range targets {
		if d.IdentityKey == ourCurve {
			// Our own device decrypts via the inbound twin.
			continue
		}
		k := d.Key()
		if _, shared := s.SharedWith(k); shared || s.IsBlocked(k) {
			continue
		}

		switch {
		case d.Trust == device.Blocked:
			withheld[k] = m.withheldContent(
				catalog.WithheldBlacklisted, roomID, s.ID())
			m.markBlocked(s, k)
		case policy.BlockUnverified && d.Trust != device.Verified:
			withheld[k] = m.withheldContent(
				catalog.WithheldUnverified, roomID, s.ID())
			m.markBlocked(s, k)
		default:
			pending = append(pending, d)
		}
	}

	if len(pending) > 0 {
		if err = m.deliverKeys(roomID, s, pending, withheld,
			prewarm); err != nil {
			return err
		}
	}

	if len(withheld) > 0 {
		jww.INFO.Printf("[WITHHELD] Withholding session %s from %d "+
			"device(s) in room %s", s.ID(), len(withheld), roomID)
		if err = m.transport.SendToDevice(
			catalog.RoomKeyWithheld, withheld); err != nil {
			jww.WARN.Printf("[WITHHELD] Failed to send withheld "+
				"notifications for session %s: %+v", s.ID(), err)
		}
	}

	return nil
}

// deliverKeys claims one-time keys for the pending devices and sends each a
// pairwise-encrypted room key. Devices the claim could not satisfy are moved
// onto the withheld map with the no-olm code.
func (m *Manager) deliverKeys(roomID string, s *session.Outbound,
	pending []device.Device, withheld map[device.Key]json.RawMessage,
	prewarm bool) error {
	timeout := m.params.InlineClaimTimeout
	if prewarm {
		timeout = m.params.PrewarmClaimTimeout
	}

	keys := make([]device.Key, len(pending))
	for i, d := range pending {
		keys[i] = d.Key()
	}

	claimed, err := m.transport.ClaimOneTimeKeys(
		keys, catalog.SignedCurve25519, timeout)
	if err != nil {
		jww.WARN.Printf("[KEYSHARE] One-time key claim for %d "+
			"device(s) failed after %s: %+v", len(pending), timeout,
			err)
		claimed = nil
	}

	sessionKey, err := s.Key()
	if err != nil {
		return errors.WithMessagef(err,
			"failed to export key of session %s", s.ID())
	}
	shareIndex := s.MessageIndex()

	roomKey, err := json.Marshal(format.RoomKey{
		Algorithm:  catalog.MegolmV1,
		RoomID:     roomID,
		SessionID:  s.ID(),
		SessionKey: sessionKey,
		ChainIndex: shareIndex,
	})
	if err != nil {
		return errors.WithMessagef(err,
			"failed to marshal room key of session %s", s.ID())
	}

	ourCurve, _ := m.eng.IdentityKeys()
	shares := make(map[device.Key]json.RawMessage)

	for _, d := range pending {
		k := d.Key()
		otk, ok := claimed[k]
		if !ok || otk == "" {
			jww.INFO.Printf("[KEYSHARE] No one-time key for %s; "+
				"withholding session %s", k, s.ID())
			withheld[k] = m.withheldContent(
				catalog.WithheldNoOlm, "", "")
			m.markBlocked(s, k)
			continue
		}

		channel, chanErr := m.eng.EstablishPairwiseChannel(
			d.IdentityKey, otk)
		if chanErr != nil {
			jww.WARN.Printf("[KEYSHARE] Failed to establish "+
				"pairwise channel with %s: %+v", k, chanErr)
			withheld[k] = m.withheldContent(
				catalog.WithheldNoOlm, "", "")
			m.markBlocked(s, k)
			continue
		}

		wire, encErr := channel.EncryptForDevice(roomKey)
		if encErr != nil {
			jww.WARN.Printf("[KEYSHARE] Failed to encrypt room "+
				"key for %s: %+v", k, encErr)
			withheld[k] = m.withheldContent(
				catalog.WithheldNoOlm, "", "")
			m.markBlocked(s, k)
			continue
		}

		envelope, mErr := json.Marshal(format.Encrypted{
			Algorithm:  catalog.OlmV1,
			SenderKey:  ourCurve,
			Ciphertext: wire,
			DeviceID:   m.deviceID,
		})
		if mErr != nil {
			return errors.WithMessagef(mErr,
				"failed to marshal key share envelope for %s", k)
		}

		shares[k] = envelope
		if err = s.MarkShared(k, d.IdentityKey, shareIndex); err != nil {
			return errors.WithMessagef(err,
				"failed to record share with %s", k)
		}
	}

	if len(shares) > 0 {
		jww.INFO.Printf("[KEYSHARE] Sharing session %s at index %d "+
			"with %d device(s) in room %s", s.ID(), shareIndex,
			len(shares), roomID)
		if err = m.transport.QueueToDevice(
			catalog.RoomEncrypted, shares); err != nil {
			return errors.WithMessagef(err,
				"failed to queue key shares for session %s", s.ID())
		}
	}

	return nil
}

// markBlocked records the device's exclusion from the session. A failed save
// only costs a duplicate withheld notification after restart, so it is logged
// rather than failing the share.
func (m *Manager) markBlocked(s *session.Outbound, k device.Key) {
	if err := s.MarkBlocked(k); err != nil {
		jww.WARN.Printf("[WITHHELD] Failed to record block of %s for "+
			"session %s: %+v", k, s.ID(), err)
	}
}

// withheldContent marshals a withheld notification. The no-olm code is
// channel-wide and carries no room or session, so both are passed empty.
func (m *Manager) withheldContent(code catalog.WithheldCode,
	roomID, sessionID string) json.RawMessage {
	ourCurve, _ := m.eng.IdentityKeys()
	content, err := json.Marshal(format.Withheld{
		Algorithm: catalog.MegolmV1,
		RoomID:    roomID,
		Code:      code,
		Reason:    code.Message(),
		SenderKey: ourCurve,
		SessionID: sessionID,
	})
	if err != nil {
		jww.FATAL.Panicf("[WITHHELD] Failed to marshal withheld "+
			"notification: %+v", err)
	}
	return content
}
