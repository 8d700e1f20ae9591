////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package inbound

import (
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/format"
)

// EncryptedEvent is an encrypted room event as handed in by the event layer.
type EncryptedEvent struct {
	EventID   string
	RoomID    string
	Sender    string
	Timestamp time.Time
	Content   format.Encrypted
}

// DecryptedEvent is the result of a successful decryption, with the
// provenance the caller needs for trust decisions.
type DecryptedEvent struct {
	Plaintext    []byte
	MessageIndex uint32

	SessionID         string
	SenderKey         string
	ClaimedEd25519Key string

	// ForwardingChain is non-empty when the session used to decrypt was
	// relayed to us rather than received from its creator.
	ForwardingChain []string
}

// DecryptEvent decrypts one encrypted room event. Failures are classified
// into the closed taxonomy in errors.go; an UnknownSessionError is transient
// and worth retrying once the missing key arrives, everything else is final
// for the event.
func (s *Store) DecryptEvent(ev EncryptedEvent) (DecryptedEvent, error) {
	if !catalog.IsSupportedGroupAlgorithm(ev.Content.Algorithm) {
		return DecryptedEvent{}, errors.Errorf(
			"cannot decrypt event %s: unsupported algorithm %q",
			ev.EventID, ev.Content.Algorithm)
	}

	senderKey := ev.Content.SenderKey
	sessionID := ev.Content.SessionID

	cipher, rec, ok := s.Get(senderKey, sessionID)
	if !ok {
		if w, found := s.registry.Lookup(senderKey, sessionID); found {
			return DecryptedEvent{}, WithheldKeyError{
				Code:      w.Code,
				Reason:    w.Reason,
				SenderKey: senderKey,
				SessionID: sessionID,
			}
		}
		return DecryptedEvent{}, UnknownSessionError{
			SenderKey: senderKey, SessionID: sessionID}
	}

	plaintext, messageIndex, err := cipher.Decrypt(ev.Content.Ciphertext)
	if err != nil {
		return DecryptedEvent{}, CorruptedChannelError{
			SenderKey: senderKey,
			SessionID: sessionID,
			Cause:     err,
		}
	}

	// mandatory replay check before the plaintext is surfaced
	isReplay, err := s.guard.CheckOrRecord(
		senderKey, sessionID, messageIndex, ev.EventID, ev.Timestamp)
	if err != nil {
		return DecryptedEvent{}, errors.WithMessagef(err,
			"failed to record decrypt of event %s", ev.EventID)
	}
	if isReplay {
		return DecryptedEvent{}, ReplayDetectedError{
			SenderKey:    senderKey,
			SessionID:    sessionID,
			MessageIndex: messageIndex,
			EventID:      ev.EventID,
		}
	}

	if err = s.persist(senderKey, sessionID); err != nil {
		jww.WARN.Printf("[MEGOLM] Failed to persist session %s after "+
			"decrypt: %+v", sessionID, err)
	}

	jww.DEBUG.Printf("[MEGOLM] Decrypted event %s on session %s at index %d "+
		"(%s)", ev.EventID, sessionID, messageIndex,
		format.DigestContents(plaintext))

	return DecryptedEvent{
		Plaintext:         plaintext,
		MessageIndex:      messageIndex,
		SessionID:         sessionID,
		SenderKey:         senderKey,
		ClaimedEd25519Key: rec.ClaimedEd25519Key,
		ForwardingChain:   rec.ForwardingChain,
	}, nil
}
