////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable tracks the lifecycle of long-running goroutines, such as
// the key-share protocol threads, so they can be shut down cleanly.
package stoppable

// Stoppable is the interface for stopping a goroutine or group of goroutines.
type Stoppable interface {
	// Name returns the name of the Stoppable.
	Name() string

	// GetStatus returns the status of the Stoppable.
	GetStatus() Status

	// IsRunning returns true if the Stoppable is running.
	IsRunning() bool

	// Close signals the Stoppable to quit. It does not block on exit
	// confirmation.
	Close() error
}
