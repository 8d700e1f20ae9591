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
	"gitlab.com/elixxir/megolm/format"
)

// eventPlaintext is what actually gets encrypted: the event type and content
// are bound to the room ID so a ciphertext cannot be replayed into another
// room.
type eventPlaintext struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	RoomID  string          `json:"room_id"`
}

// EncryptMessage encrypts an event for the room under its current outbound
// session, rotating and sharing the session first when needed. The returned
// envelope identifies this sender by identity key, session ID, and device ID.
func (m *Manager) EncryptMessage(roomID, eventType string,
	content json.RawMessage) (format.Encrypted, error) {
	s, err := m.ensureSession(roomID, false)
	if err != nil {
		return format.Encrypted{}, errors.WithMessagef(err,
			"cannot encrypt for room %s", roomID)
	}

	plaintext, err := json.Marshal(eventPlaintext{
		Type:    eventType,
		Content: content,
		RoomID:  roomID,
	})
	if err != nil {
		return format.Encrypted{}, errors.Errorf(
			"failed to marshal %s event for room %s: %+v",
			eventType, roomID, err)
	}

	ciphertext, err := s.Encrypt(plaintext)
	if err != nil {
		return format.Encrypted{}, errors.WithMessagef(err,
			"failed to encrypt %s event for room %s under session %s",
			eventType, roomID, s.ID())
	}

	jww.DEBUG.Printf("[MEGOLM] Encrypted %s event for room %s under "+
		"session %s (%d messages sent)", eventType, roomID, s.ID(),
		s.MessagesSent())

	ourCurve, _ := m.eng.IdentityKeys()
	return format.Encrypted{
		Algorithm:  catalog.MegolmV1,
		SenderKey:  ourCurve,
		Ciphertext: ciphertext,
		SessionID:  s.ID(),
		DeviceID:   m.deviceID,
	}, nil
}
