////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"fmt"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

const PrefixSeparator = "/"

type root struct {
	data ekv.KeyValue
}

// KV stores versioned data under prefixed keys. Each component of the engine
// takes a KV and prefixes it with its own namespace, so one backing store
// holds all state.
type KV struct {
	r      *root
	prefix string
}

// NewKV creates a versioned key/value store backed by something implementing
// ekv.KeyValue.
func NewKV(data ekv.KeyValue) *KV {
	newKV := KV{}
	newKV.r = &root{data: data}
	return &newKV
}

// Get returns the object stored at the versioned key. Check the returned
// version against the expected one; this module only defines version 0
// objects, so no upgrade table is kept.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	key = v.makeKey(key, version)
	jww.TRACE.Printf("get %p with key %v", v.r.data, key)
	result := Object{}
	err := v.r.data.Get(key, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Set upserts the object under the versioned key. The object carries its own
// version.
func (v *KV) Set(key string, object *Object) error {
	key = v.makeKey(key, object.Version)
	jww.TRACE.Printf("set %p with key %v", v.r.data, key)
	return v.r.data.Set(key, object)
}

// Delete removes the versioned key from the data store.
func (v *KV) Delete(key string, version uint64) error {
	key = v.makeKey(key, version)
	jww.TRACE.Printf("delete %p with key %v", v.r.data, key)
	return v.r.data.Delete(key)
}

// Prefix returns a new KV with the prefix appended. The underlying store is
// shared.
func (v *KV) Prefix(prefix string) *KV {
	kvPrefix := KV{
		r:      v.r,
		prefix: v.prefix + prefix + PrefixSeparator,
	}
	return &kvPrefix
}

// GetPrefix returns the prefix of the KV.
func (v *KV) GetPrefix() string {
	return v.prefix
}

// GetFullKey returns the key with all prefixes appended.
func (v *KV) GetFullKey(key string, version uint64) string {
	return v.makeKey(key, version)
}

// IsMemStore returns true if the underlying store is ephemeral.
func (v *KV) IsMemStore() bool {
	_, success := v.r.data.(*ekv.Memstore)
	return success
}

func (v *KV) makeKey(key string, version uint64) string {
	return fmt.Sprintf("%s%s_%d", v.prefix, key, version)
}

// Exists returns false if the passed error indicates the element does not
// exist.
func (v *KV) Exists(err error) bool {
	return ekv.Exists(err)
}
