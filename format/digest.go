////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package format

import (
	"encoding/base64"

	"golang.org/x/crypto/blake2b"
)

const digestLen = 16

// DigestContents creates a digest of the passed contents for logging and
// debugging. Used so ciphertext and plaintext never appear in logs.
func DigestContents(contents []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write(contents)
	s := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return s[:digestLen]
}
