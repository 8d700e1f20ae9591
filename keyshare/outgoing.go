////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package keyshare

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/format"
	"gitlab.com/elixxir/megolm/storage/versioned"
)

// Storage constants.
const (
	keyRequestPrefix     = "outgoingKeyRequests"
	outgoingStoreKey     = "requests"
	outgoingStoreVersion = 0
)

// outgoingRequest is one of our in-flight key requests, kept so it can be
// cancelled with the same request ID it was issued under.
type outgoingRequest struct {
	Targets []device.Key
	Body    format.RequestedKeyInfo
}

// RequestKeyFromDevices asks the given devices for a session key we are
// missing, returning the request ID the caller can later cancel with. All
// targets receive the same request under one ID; any one of them answering
// satisfies it.
func (m *Manager) RequestKeyFromDevices(roomID, senderKey, sessionID string,
	targets []device.Key) (string, error) {
	if len(targets) == 0 {
		return "", errors.New("cannot request a key from zero devices")
	}

	requestID := uuid.New().String()
	body := format.RequestedKeyInfo{
		Algorithm: catalog.MegolmV1,
		RoomID:    roomID,
		SenderKey: senderKey,
		SessionID: sessionID,
	}

	content, err := json.Marshal(format.RoomKeyRequest{
		Action:             format.RequestActionRequest,
		RequestingDeviceID: m.deviceID,
		RequestID:          requestID,
		Body:               &body,
	})
	if err != nil {
		return "", errors.Errorf(
			"failed to marshal key request %s: %+v", requestID, err)
	}

	contents := make(map[device.Key]json.RawMessage, len(targets))
	for _, k := range targets {
		contents[k] = content
	}

	m.mux.Lock()
	m.outgoing[requestID] = outgoingRequest{Targets: targets, Body: body}
	err = m.saveOutgoing()
	m.mux.Unlock()
	if err != nil {
		return "", err
	}

	jww.INFO.Printf("[KEYSHARE] Requesting session %s from %d device(s) "+
		"as request %s", sessionID, len(targets), requestID)

	if err = m.transport.SendToDevice(catalog.RoomKeyRequest,
		contents); err != nil {
		return "", errors.WithMessagef(err,
			"failed to send key request %s", requestID)
	}
	return requestID, nil
}

// CancelKeyRequest retracts an earlier key request from every device it was
// sent to. Cancelling an unknown or already cancelled request errors.
func (m *Manager) CancelKeyRequest(requestID string) error {
	m.mux.Lock()
	req, ok := m.outgoing[requestID]
	if ok {
		delete(m.outgoing, requestID)
		if err := m.saveOutgoing(); err != nil {
			m.mux.Unlock()
			return err
		}
	}
	m.mux.Unlock()

	if !ok {
		return errors.Errorf("no outstanding key request %s", requestID)
	}

	content, err := json.Marshal(format.RoomKeyRequest{
		Action:             format.RequestActionCancel,
		RequestingDeviceID: m.deviceID,
		RequestID:          requestID,
	})
	if err != nil {
		return errors.Errorf(
			"failed to marshal cancellation of %s: %+v", requestID, err)
	}

	contents := make(map[device.Key]json.RawMessage, len(req.Targets))
	for _, k := range req.Targets {
		contents[k] = content
	}

	jww.INFO.Printf("[KEYSHARE] Cancelling key request %s to %d device(s)",
		requestID, len(req.Targets))
	return m.transport.SendToDevice(catalog.RoomKeyRequest, contents)
}

// OutstandingRequests lists the IDs of key requests not yet cancelled.
func (m *Manager) OutstandingRequests() []string {
	m.mux.Lock()
	defer m.mux.Unlock()
	ids := make([]string, 0, len(m.outgoing))
	for id := range m.outgoing {
		ids = append(ids, id)
	}
	return ids
}

// saveOutgoing persists the outgoing request map. Callers must hold the mux.
func (m *Manager) saveOutgoing() error {
	data, err := json.Marshal(m.outgoing)
	if err != nil {
		return errors.Errorf(
			"failed to marshal outgoing key requests: %+v", err)
	}
	return m.kv.Set(outgoingStoreKey, &versioned.Object{
		Version:   outgoingStoreVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	})
}

// loadOutgoing restores the outgoing request map; a fresh store is not an
// error.
func (m *Manager) loadOutgoing() error {
	obj, err := m.kv.Get(outgoingStoreKey, outgoingStoreVersion)
	if err != nil {
		if m.kv.Exists(err) {
			return errors.WithMessage(err,
				"failed to load outgoing key requests")
		}
		return nil
	}
	return json.Unmarshal(obj.Data, &m.outgoing)
}
