////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"encoding/json"
	"fmt"
	"time"
)

// Object is the stored unit in a KV. It tracks the version of the serialized
// data and when it was written.
type Object struct {
	// Used to determine version upgrade, if any
	Version uint64

	// Set when this object is written
	Timestamp time.Time

	// Serialized version of original object
	Data []byte
}

// Unmarshal deserializes an Object from a byte slice. It is used to make
// these storable in a KeyValue. Object exports all fields and they have
// simple types, so json.Unmarshal works fine.
func (v *Object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, v)
}

// Marshal serializes an Object into a byte slice. It is used to make these
// storable in a KeyValue.
func (v *Object) Marshal() []byte {
	d, err := json.Marshal(v)
	// Not being able to marshal this simple object means something is really
	// wrong
	if err != nil {
		panic(fmt.Sprintf("Could not marshal: %+v", v))
	}
	return d
}
