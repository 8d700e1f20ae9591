////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package keyshare

import "encoding/json"

// Default values.
const (
	defaultRequestBufferLen   = 100
	defaultMaxTrackedRequests = 500
)

// Params contains the tunables of the key request handler.
type Params struct {
	// RequestBufferLen is the capacity of the incoming request channel.
	// Requests arriving while the buffer is full are dropped; the
	// requester falls back to waiting for the next session rotation.
	RequestBufferLen uint32

	// MaxTrackedRequests bounds the number of served and cancelled
	// request IDs remembered for de-duplication. The oldest entries are
	// evicted first; an evicted request that is re-delivered is answered
	// again, which the requester tolerates.
	MaxTrackedRequests uint32
}

// paramsDisk will be the marshalable and unmarshalable object.
type paramsDisk struct {
	RequestBufferLen   uint32
	MaxTrackedRequests uint32
}

// GetDefaultParams returns a default set of Params.
func GetDefaultParams() Params {
	return Params{
		RequestBufferLen:   defaultRequestBufferLen,
		MaxTrackedRequests: defaultMaxTrackedRequests,
	}
}

// GetParameters returns the default Params, or override with given
// parameters, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// MarshalJSON adheres to the json.Marshaler interface.
func (p Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(paramsDisk{
		RequestBufferLen:   p.RequestBufferLen,
		MaxTrackedRequests: p.MaxTrackedRequests,
	})
}

// UnmarshalJSON adheres to the json.Unmarshaler interface.
func (p *Params) UnmarshalJSON(data []byte) error {
	pDisk := paramsDisk{}
	err := json.Unmarshal(data, &pDisk)
	if err != nil {
		return err
	}
	*p = Params{
		RequestBufferLen:   pDisk.RequestBufferLen,
		MaxTrackedRequests: pDisk.MaxTrackedRequests,
	}
	return nil
}
