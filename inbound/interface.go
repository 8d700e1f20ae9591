////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package inbound

import (
	"encoding/json"
	"time"

	"gitlab.com/elixxir/megolm/catalog"
	"gitlab.com/elixxir/megolm/device"
	"gitlab.com/elixxir/megolm/session"
)

// Transport is the subset of the transport client the inbound engine needs to
// forward session keys to a requesting device.
type Transport interface {
	// ClaimOneTimeKeys claims one one-time key per listed device from the
	// server, returning whatever subset the server could satisfy.
	ClaimOneTimeKeys(devices []device.Key, algorithm catalog.Algorithm,
		timeout time.Duration) (map[device.Key]string, error)

	// QueueToDevice enqueues a to-device message per recipient device
	// without blocking on delivery.
	QueueToDevice(eventType catalog.EventType,
		contents map[device.Key]json.RawMessage) error
}

// DeviceDirectory is the subset of the device directory the inbound engine
// needs to answer key requests.
type DeviceDirectory interface {
	// LookupDevice returns the directory's record of the device.
	LookupDevice(userID, deviceID string) (device.Device, error)

	// AllowKeyShare is the trust/policy gate on forwarding a stored session
	// to the device. A failing check silently drops the request.
	AllowKeyShare(d device.Device, rec session.InboundRecord) bool
}
