////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package catalog

// WithheldCode is the machine-readable reason attached to a withheld-key
// notification. The values are wire strings and must not be changed.
type WithheldCode string

const (
	// WithheldBlacklisted - The sender has the recipient device blocked.
	WithheldBlacklisted WithheldCode = "m.blacklisted"

	// WithheldUnverified - The sender refuses to encrypt to unverified
	// devices and the recipient device is unverified.
	WithheldUnverified WithheldCode = "m.unverified"

	// WithheldUnavailable - The sender cannot satisfy the request, e.g. the
	// session predates the recipient's membership.
	WithheldUnavailable WithheldCode = "m.unavailable"

	// WithheldNoOlm - The sender could not establish a pairwise channel to
	// the recipient device.
	WithheldNoOlm WithheldCode = "m.no_olm"
)

// withheldMessages maps each code to its canonical human-readable reason.
// These strings are sent on the wire alongside the code.
var withheldMessages = map[WithheldCode]string{
	WithheldBlacklisted: "The sender has blocked you.",
	WithheldUnverified: "The sender has disabled encrypting to " +
		"unverified devices.",
	WithheldUnavailable: "The requested key was not found.",
	WithheldNoOlm:       "Unable to establish a secure channel.",
}

// Message returns the canonical reason string for the code, or the code
// itself when no canonical reason is defined.
func (c WithheldCode) Message() string {
	if msg, ok := withheldMessages[c]; ok {
		return msg
	}
	return string(c)
}
