////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package keyshare answers other devices' session key requests and issues
// our own. Incoming requests flow off the switchboard through a single worker
// thread; a request is honored only when the inbound store holds the session
// from its creator and the device directory approves the requester.
package keyshare

import (
	"encoding/json"
	"sync"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/receive"
	"gitlab.com/elixxir/megolm/stoppable"
	"gitlab.com/elixxir/megolm/storage/versioned"
)

const (
	listenerName  = "keyRequestListener"
	stoppableName = "keyRequestHandler"
)

// Transport is the subset of the transport client the key request manager
// needs.
type Transport interface {
	SendToDevice(eventType catalog.EventType,
		contents map[device.Key]json.RawMessage) error
}

// SessionSource answers whether a key request can be honored and performs
// the share. Satisfied by the inbound session store.
type SessionSource interface {
	HasKeysForKeyRequest(senderKey, sessionID string) bool
	ShareKeysWithDevice(userID, deviceID, senderKey, sessionID string) error
}

// Manager handles the m.room_key_request protocol in both directions.
type Manager struct {
	source    SessionSource
	transport Transport
	deviceID  string
	params    Params
	kv        *versioned.KV

	// handled records requests already answered or refused, keyed by
	// requester, device, and request ID, so re-delivered requests are
	// not answered twice. Bounded; the oldest entries age out.
	handled *trackedSet

	// cancelled records cancellations that arrived before their request.
	cancelled *trackedSet

	// outgoing records our own in-flight requests by request ID.
	outgoing map[string]outgoingRequest

	mux sync.Mutex
}

// NewManager builds a key request manager. Outstanding outgoing requests are
// reloaded from storage so they can still be cancelled after a restart.
func NewManager(source SessionSource, transport Transport, deviceID string,
	kv *versioned.KV, params Params) (*Manager, error) {
	m := &Manager{
		source:    source,
		transport: transport,
		deviceID:  deviceID,
		params:    params,
		kv:        kv.Prefix(keyRequestPrefix),
		handled:   newTrackedSet(params.MaxTrackedRequests),
		cancelled: newTrackedSet(params.MaxTrackedRequests),
		outgoing:  make(map[string]outgoingRequest),
	}
	if err := m.loadOutgoing(); err != nil {
		return nil, err
	}
	return m, nil
}

// Start builds a manager and starts its request handler in one call.
func Start(sw *receive.Switchboard, source SessionSource, transport Transport,
	deviceID string, kv *versioned.KV, params Params) (
	*Manager, stoppable.Stoppable, error) {
	m, err := NewManager(source, transport, deviceID, kv, params)
	if err != nil {
		return nil, nil, err
	}
	return m, m.StartProcesses(sw), nil
}

// StartProcesses registers the request listener on the switchboard and
// starts the worker thread that serves requests. The returned stoppable
// stops the worker and unregisters the listener.
func (m *Manager) StartProcesses(sw *receive.Switchboard) stoppable.Stoppable {
	requestCh := make(chan receive.Message, m.params.RequestBufferLen)
	lid := sw.RegisterChannel(listenerName, catalog.RoomKeyRequest,
		requestCh)

	stop := stoppable.NewSingle(stoppableName)
	go m.process(requestCh, sw, lid, stop)
	return stop
}

// process serves incoming key requests until the stoppable closes.
func (m *Manager) process(requestCh chan receive.Message,
	sw *receive.Switchboard, lid receive.ListenerID, stop *stoppable.Single) {
	for {
		select {
		case <-stop.Quit():
			sw.Unregister(lid)
			stop.ToStopped()
			return
		case item := <-requestCh:
			m.handleRequest(item)
		}
	}
}
