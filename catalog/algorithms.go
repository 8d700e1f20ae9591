////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package catalog

// Algorithm identifies an encryption algorithm on the wire. The set of
// algorithms is closed; anything outside it is rejected on receive rather
// than dispatched dynamically.
type Algorithm string

const (
	// MegolmV1 - The group-ratchet algorithm this engine implements.
	MegolmV1 Algorithm = "m.megolm.v1.aes-sha2"

	// OlmV1 - The pairwise-channel algorithm used to deliver group session
	// keys between devices.
	OlmV1 Algorithm = "m.olm.v1.curve25519-aes-sha2"

	// SignedCurve25519 - The one-time-key algorithm claimed from the server
	// when establishing pairwise channels.
	SignedCurve25519 Algorithm = "signed_curve25519"
)

// IsSupportedGroupAlgorithm reports whether a is a group algorithm this
// engine can decrypt.
func IsSupportedGroupAlgorithm(a Algorithm) bool {
	return a == MegolmV1
}
