////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package format

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/megolm/catalog"
)

// Tests that a no-olm withheld notification omits the session scope on the
// wire while a session-scoped one carries it.
func TestWithheld_SessionScope(t *testing.T) {
	noOlm, err := json.Marshal(Withheld{
		Algorithm: catalog.MegolmV1,
		Code:      catalog.WithheldNoOlm,
		Reason:    catalog.WithheldNoOlm.Message(),
		SenderKey: "ourCurve",
	})
	require.NoError(t, err)
	require.NotContains(t, string(noOlm), "session_id")
	require.NotContains(t, string(noOlm), "room_id")

	scoped, err := json.Marshal(Withheld{
		Algorithm: catalog.MegolmV1,
		RoomID:    "!room:a",
		Code:      catalog.WithheldBlacklisted,
		Reason:    catalog.WithheldBlacklisted.Message(),
		SenderKey: "ourCurve",
		SessionID: "sess1",
	})
	require.NoError(t, err)
	require.Contains(t, string(scoped), `"session_id":"sess1"`)
	require.Contains(t, string(scoped), `"room_id":"!room:a"`)
}

// Tests that a cancellation drops the body field entirely.
func TestRoomKeyRequest_CancelOmitsBody(t *testing.T) {
	b, err := json.Marshal(RoomKeyRequest{
		Action:             RequestActionCancel,
		RequestingDeviceID: "DEVICE01",
		RequestID:          "req1",
	})
	require.NoError(t, err)
	require.NotContains(t, string(b), "body")
}

// Tests the wrapped error context of the Unmarshal helper.
func TestUnmarshal_Error(t *testing.T) {
	var rk RoomKey
	err := Unmarshal([]byte("not json"), &rk)
	require.Error(t, err)
	require.Contains(t, err.Error(), "format.RoomKey")

	require.NoError(t, Unmarshal(
		[]byte(`{"session_id":"s","chain_index":3}`), &rk))
	require.Equal(t, "s", rk.SessionID)
	require.Equal(t, uint32(3), rk.ChainIndex)
}

// Tests that digests are stable, short, and free of raw content.
func TestDigestContents(t *testing.T) {
	content := []byte("the quick brown fox")
	d1 := DigestContents(content)
	d2 := DigestContents(content)
	require.Equal(t, d1, d2)
	require.Len(t, d1, digestLen)
	require.False(t, strings.Contains(d1, "quick"))
	require.NotEqual(t, d1, DigestContents([]byte("the quick brown cat")))
}
