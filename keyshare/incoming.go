////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package keyshare

import (
	"encoding/json"
	"fmt"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/format"
	"gitlab.com/elixxir/megolm/receive"
)

// requestKey identifies a request across re-deliveries.
func requestKey(sender, deviceID, requestID string) string {
	return fmt.Sprintf("%s|%s|%s", sender, deviceID, requestID)
}

// handleRequest processes one m.room_key_request event: a request action is
// answered at most once, a cancel action retracts a request that has not
// been served yet. Cancellations may arrive before their request; they are
// remembered and the request is then dropped on arrival.
func (m *Manager) handleRequest(item receive.Message) {
	var req format.RoomKeyRequest
	if err := json.Unmarshal(item.Content, &req); err != nil {
		jww.WARN.Printf("[KEYSHARE] Dropping malformed key request "+
			"from %s: %+v", item.Sender, err)
		return
	}
	if req.RequestID == "" || req.RequestingDeviceID == "" {
		jww.WARN.Printf("[KEYSHARE] Dropping key request from %s "+
			"with missing identifiers", item.Sender)
		return
	}

	key := requestKey(item.Sender, req.RequestingDeviceID, req.RequestID)

	switch req.Action {
	case format.RequestActionRequest:
		m.serveRequest(key, item.Sender, req)
	case format.RequestActionCancel:
		m.cancelRequest(key, item.Sender, req)
	default:
		jww.WARN.Printf("[KEYSHARE] Dropping key request from %s "+
			"with unknown action %q", item.Sender, req.Action)
	}
}

func (m *Manager) serveRequest(key, sender string, req format.RoomKeyRequest) {
	if req.Body == nil {
		jww.WARN.Printf("[KEYSHARE] Dropping bodiless key request "+
			"%s from %s", req.RequestID, sender)
		return
	}

	m.mux.Lock()
	if m.handled.has(key) {
		m.mux.Unlock()
		jww.DEBUG.Printf("[KEYSHARE] Ignoring re-delivered key "+
			"request %s from %s", req.RequestID, sender)
		return
	}
	if m.cancelled.has(key) {
		m.cancelled.remove(key)
		m.mux.Unlock()
		jww.DEBUG.Printf("[KEYSHARE] Dropping key request %s from "+
			"%s: cancelled before arrival", req.RequestID, sender)
		return
	}
	m.handled.add(key)
	m.mux.Unlock()

	if !m.source.HasKeysForKeyRequest(req.Body.SenderKey,
		req.Body.SessionID) {
		jww.DEBUG.Printf("[KEYSHARE] Cannot serve key request %s "+
			"from %s: session %s not held from its creator",
			req.RequestID, sender, req.Body.SessionID)
		return
	}

	jww.INFO.Printf("[KEYSHARE] Serving key request %s: session %s to "+
		"%s device %s", req.RequestID, req.Body.SessionID, sender,
		req.RequestingDeviceID)

	// The share claims a one-time key over the network; keep the worker
	// free for further requests.
	go func(sender, deviceID string, body format.RequestedKeyInfo) {
		if err := m.source.ShareKeysWithDevice(sender, deviceID,
			body.SenderKey, body.SessionID); err != nil {
			jww.WARN.Printf("[KEYSHARE] Failed to serve key "+
				"request from %s device %s: %+v", sender,
				deviceID, err)
		}
	}(sender, req.RequestingDeviceID, *req.Body)
}

func (m *Manager) cancelRequest(key, sender string, req format.RoomKeyRequest) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.handled.has(key) {
		// Already served; cancellation came too late.
		jww.DEBUG.Printf("[KEYSHARE] Late cancellation of key "+
			"request %s from %s", req.RequestID, sender)
		return
	}
	m.cancelled.add(key)
}
