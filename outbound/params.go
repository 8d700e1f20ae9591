////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package outbound

import (
	"encoding/json"
	"time"
)

// Default values.
const (
	defaultRotationPeriod      = 7 * 24 * time.Hour
	defaultRotationMsgs        = 100
	defaultPrewarmClaimTimeout = 10 * time.Second
	defaultInlineClaimTimeout  = 2 * time.Second
)

// Params contains the tunables of the outbound session manager.
type Params struct {
	// RotationPeriod is the default maximum session age, used when a
	// room's policy does not set one.
	RotationPeriod time.Duration

	// RotationMsgs is the default maximum message count per session.
	RotationMsgs uint32

	// PrewarmClaimTimeout bounds the one-time key claim when a session is
	// set up ahead of sending.
	PrewarmClaimTimeout time.Duration

	// InlineClaimTimeout bounds the one-time key claim when a session is
	// set up on the message send path.
	InlineClaimTimeout time.Duration
}

// paramsDisk will be the marshalable and unmarshalable object.
type paramsDisk struct {
	RotationPeriod      time.Duration
	RotationMsgs        uint32
	PrewarmClaimTimeout time.Duration
	InlineClaimTimeout  time.Duration
}

// GetDefaultParams returns a default set of Params.
func GetDefaultParams() Params {
	return Params{
		RotationPeriod:      defaultRotationPeriod,
		RotationMsgs:        defaultRotationMsgs,
		PrewarmClaimTimeout: defaultPrewarmClaimTimeout,
		InlineClaimTimeout:  defaultInlineClaimTimeout,
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
		RotationPeriod:      p.RotationPeriod,
		RotationMsgs:        p.RotationMsgs,
		PrewarmClaimTimeout: p.PrewarmClaimTimeout,
		InlineClaimTimeout:  p.InlineClaimTimeout,
	}

	return json.Marshal(pDisk)
}

// UnmarshalJSON adheres to the json.Unmarshaler interface.
func (p *Params) UnmarshalJSON(data []byte) error {
	pDisk := paramsDisk{}
	err := json.Unmarshal(data, &pDisk)
	if err != nil {
		return err
	}

	*p = Params{
		RotationPeriod:      pDisk.RotationPeriod,
		RotationMsgs:        pDisk.RotationMsgs,
		PrewarmClaimTimeout: pDisk.PrewarmClaimTimeout,
		InlineClaimTimeout:  pDisk.InlineClaimTimeout,
	}

	return nil
}
