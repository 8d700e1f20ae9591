////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package inbound

import (
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/format"
	"gitlab.com/elixxir/megolm/receive"
)

// RegisterListeners wires the store into the switchboard for all key-material
// event types. The returned IDs can be used to unregister on teardown.
func (s *Store) RegisterListeners(sw *receive.Switchboard) []receive.ListenerID {
	return []receive.ListenerID{
		sw.RegisterFunc("roomKey", catalog.RoomKey, s.handleRoomKey),
		sw.RegisterFunc("forwardedRoomKey", catalog.ForwardedRoomKey,
			s.handleForwardedRoomKey),
		sw.RegisterFunc("roomKeyWithheld", catalog.RoomKeyWithheld,
			s.handleWithheld),
		sw.RegisterFunc("roomKeyWithheldLegacy", catalog.RoomKeyWithheldLegacy,
			s.handleWithheld),
	}
}

// handleRoomKey ingests a directly-shared session key. Key material is only
// ever accepted from encrypted events; the sender key and claimed ed25519 key
// come from the pairwise channel, not the payload.
func (s *Store) handleRoomKey(item receive.Message) {
	if !item.Encrypted {
		jww.WARN.Printf("[MEGOLM] Dropping unencrypted %s from %s",
			item.EventType, item.Sender)
		return
	}

	p := format.RoomKey{}
	if err := format.Unmarshal(item.Content, &p); err != nil {
		jww.ERROR.Printf("[MEGOLM] Bad %s from %s: %+v",
			item.EventType, item.Sender, err)
		return
	}
	if !catalog.IsSupportedGroupAlgorithm(p.Algorithm) {
		jww.WARN.Printf("[MEGOLM] Dropping %s with unsupported algorithm "+
			"%q from %s", item.EventType, p.Algorithm, item.Sender)
		return
	}

	err := s.AddDirect(item.SenderKey, item.ClaimedEd25519, p.RoomID,
		p.SessionKey)
	if err != nil {
		jww.ERROR.Printf("[MEGOLM] Failed to store room key from %s: %+v",
			item.Sender, err)
	}
}

// handleForwardedRoomKey ingests a relayed session key. The session's
// creator identity comes from the payload; item.SenderKey identifies only the
// forwarder.
func (s *Store) handleForwardedRoomKey(item receive.Message) {
	if !item.Encrypted {
		jww.WARN.Printf("[MEGOLM] Dropping unencrypted %s from %s",
			item.EventType, item.Sender)
		return
	}

	p := format.ForwardedRoomKey{}
	if err := format.Unmarshal(item.Content, &p); err != nil {
		jww.ERROR.Printf("[MEGOLM] Bad %s from %s: %+v",
			item.EventType, item.Sender, err)
		return
	}
	if !catalog.IsSupportedGroupAlgorithm(p.Algorithm) {
		jww.WARN.Printf("[MEGOLM] Dropping %s with unsupported algorithm "+
			"%q from %s", item.EventType, p.Algorithm, item.Sender)
		return
	}

	err := s.AddForwarded(p.SenderKey, p.SenderClaimedEd25519, p.RoomID,
		p.SessionKey, p.ForwardingKeyChain)
	if err != nil {
		jww.ERROR.Printf("[MEGOLM] Failed to store forwarded room key "+
			"from %s: %+v", item.Sender, err)
	}
}

// handleWithheld records a withheld-key notification in the registry.
func (s *Store) handleWithheld(item receive.Message) {
	p := format.Withheld{}
	if err := format.Unmarshal(item.Content, &p); err != nil {
		jww.ERROR.Printf("[WITHHELD] Bad %s from %s: %+v",
			item.EventType, item.Sender, err)
		return
	}

	err := s.registry.Receive(p.SenderKey, p.SessionID, p.Code, p.Reason)
	if err != nil {
		jww.ERROR.Printf("[WITHHELD] Failed to record withheld from %s: %+v",
			item.Sender, err)
	}
}
