////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/megolm/storage/versioned"
)

const (
	inboundStorePrefix  = "inboundGroupSession"
	inboundStoreVersion = 0
)

// InboundRecord is the stored record of one inbound group session: the
// engine's pickled ratchet state plus the provenance needed to answer key
// requests and judge trust.
type InboundRecord struct {
	SenderKey         string
	SessionID         string
	ClaimedEd25519Key string
	RoomID            string

	// ForwardingChain lists the curve25519 keys of the devices the session
	// key was relayed through before it reached us. Empty when the key was
	// received directly from its creator.
	ForwardingChain []string

	// FirstKnownIndex is the earliest ratchet position the session can
	// decrypt; also the export point when the session is forwarded onward.
	FirstKnownIndex uint32

	Pickle []byte
}

// Forwarded reports whether the session key was relayed rather than received
// directly.
func (r InboundRecord) Forwarded() bool {
	return len(r.ForwardingChain) > 0
}

// InboundKey builds the storage key of an inbound session record.
func InboundKey(senderKey, sessionID string) string {
	return senderKey + "|" + sessionID
}

// StoreInbound persists the record under its (senderKey, sessionID) key.
func StoreInbound(kv *versioned.KV, r InboundRecord) error {
	data, err := json.Marshal(&r)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to marshal inbound session %s", r.SessionID)
	}
	return kv.Prefix(inboundStorePrefix).Set(
		InboundKey(r.SenderKey, r.SessionID), &versioned.Object{
			Version:   inboundStoreVersion,
			Timestamp: netTime.Now(),
			Data:      data,
		})
}

// LoadInbound retrieves the record for (senderKey, sessionID) from storage.
func LoadInbound(kv *versioned.KV, senderKey, sessionID string) (
	InboundRecord, error) {
	obj, err := kv.Prefix(inboundStorePrefix).Get(
		InboundKey(senderKey, sessionID), inboundStoreVersion)
	if err != nil {
		return InboundRecord{}, err
	}

	r := InboundRecord{}
	if err = json.Unmarshal(obj.Data, &r); err != nil {
		return InboundRecord{}, errors.WithMessagef(err,
			"failed to unmarshal inbound session %s", sessionID)
	}
	return r, nil
}
