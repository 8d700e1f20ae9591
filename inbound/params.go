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
)

// Params adjusts the behavior of the inbound engine.
type Params struct {
	// KeyShareClaimTimeout bounds the one-time-key claim made when
	// forwarding a session to a requesting device. Key forwarding is off
	// the hot path, so this matches the pre-warm timeout, not the inline
	// one.
	KeyShareClaimTimeout time.Duration
}

// paramsDisk is the marshalable mirror of Params.
type paramsDisk struct {
	KeyShareClaimTimeout time.Duration
}

// GetDefaultParams returns a default set of Params.
func GetDefaultParams() Params {
	return Params{
		KeyShareClaimTimeout: 10 * time.Second,
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
	pDisk := paramsDisk{
		KeyShareClaimTimeout: p.KeyShareClaimTimeout,
	}
	return json.Marshal(&pDisk)
}

// UnmarshalJSON adheres to the json.Unmarshaler interface.
func (p *Params) UnmarshalJSON(data []byte) error {
	pDisk := paramsDisk{}
	err := json.Unmarshal(data, &pDisk)
	if err != nil {
		return err
	}
	*p = Params{
		KeyShareClaimTimeout: pDisk.KeyShareClaimTimeout,
	}
	return nil
}
