////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"bytes"
	"testing"
	"time"

	"gitlab.com/elixxir/ekv"
)

// Shows a stored object can be retrieved under the same versioned key.
func TestKV_SetGet(t *testing.T) {
	kv := NewKV(ekv.MakeMemstore())
	original := Object{
		Version:   0,
		Timestamp: time.Now(),
		Data:      []byte("the data"),
	}

	err := kv.Set("test", &original)
	if err != nil {
		t.Fatalf("Set failed: %+v", err)
	}

	result, err := kv.Get("test", 0)
	if err != nil {
		t.Fatalf("Get failed: %+v", err)
	}
	if !bytes.Equal(result.Data, original.Data) {
		t.Errorf("Get returned wrong data: %q, expected %q",
			result.Data, original.Data)
	}
}

// Shows prefixed KVs do not collide on the same key.
func TestKV_Prefix(t *testing.T) {
	kv := NewKV(ekv.MakeMemstore())
	a := kv.Prefix("componentA")
	b := kv.Prefix("componentB")

	obj := Object{Version: 0, Timestamp: time.Now(), Data: []byte("A")}
	if err := a.Set("key", &obj); err != nil {
		t.Fatalf("Set failed: %+v", err)
	}

	if _, err := b.Get("key", 0); err == nil {
		t.Errorf("Get under a different prefix should not find the key")
	}

	if a.GetFullKey("key", 0) == b.GetFullKey("key", 0) {
		t.Errorf("full keys under different prefixes match: %s",
			a.GetFullKey("key", 0))
	}
}

// Shows Delete removes the object.
func TestKV_Delete(t *testing.T) {
	kv := NewKV(ekv.MakeMemstore())
	obj := Object{Version: 0, Timestamp: time.Now(), Data: []byte("gone")}
	if err := kv.Set("key", &obj); err != nil {
		t.Fatalf("Set failed: %+v", err)
	}
	if err := kv.Delete("key", 0); err != nil {
		t.Fatalf("Delete failed: %+v", err)
	}
	if _, err := kv.Get("key", 0); kv.Exists(err) {
		t.Errorf("Get after Delete should report not found")
	}
}
