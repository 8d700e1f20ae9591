////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Error message.
const closeMultiErr = "multi stoppable %q failed to close %d/%d stoppables"

// Multi holds a list of child Stoppables and stops them as a group.
type Multi struct {
	name       string
	stoppables []Stoppable
	mux        sync.RWMutex
	once       sync.Once
}

// NewMulti returns a new multi Stoppable.
func NewMulti(name string) *Multi {
	return &Multi{name: name}
}

// Add adds the given Stoppable to the list of stoppables.
func (m *Multi) Add(stoppable Stoppable) {
	m.mux.Lock()
	m.stoppables = append(m.stoppables, stoppable)
	m.mux.Unlock()
}

// Name returns the name of the Multi Stoppable and the names of all its
// children.
func (m *Multi) Name() string {
	m.mux.RLock()
	names := make([]string, len(m.stoppables))
	for i, s := range m.stoppables {
		names[i] = s.Name()
	}
	m.mux.RUnlock()
	return m.name + "{" + strings.Join(names, ", ") + "}"
}

// GetStatus returns the lowest status of all the child Stoppables. The status
// is not the status of all Stoppables, but the status of the Stoppable
// farthest from stopped.
func (m *Multi) GetStatus() Status {
	lowest := Stopped
	m.mux.RLock()
	for _, s := range m.stoppables {
		status := s.GetStatus()
		if status < lowest {
			lowest = status
		}
	}
	m.mux.RUnlock()
	return lowest
}

// IsRunning returns true if any of the child Stoppables are running.
func (m *Multi) IsRunning() bool {
	return m.GetStatus() == Running
}

// Close signals all child Stoppables to close.
func (m *Multi) Close() error {
	var err error
	m.once.Do(func() {
		var numErrors int
		m.mux.RLock()
		for _, s := range m.stoppables {
			if closeErr := s.Close(); closeErr != nil {
				numErrors++
			}
		}
		total := len(m.stoppables)
		m.mux.RUnlock()

		if numErrors > 0 {
			err = errors.Errorf(closeMultiErr, m.name, numErrors, total)
		}
	})
	return err
}
