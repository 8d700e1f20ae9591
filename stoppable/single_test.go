////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"testing"
	"time"
)

// Tests that a Single transitions running -> stopping -> stopped through the
// quit channel handshake.
func TestSingle_Close(t *testing.T) {
	s := NewSingle("test")
	if !s.IsRunning() {
		t.Errorf("new Single is not running")
	}

	done := make(chan struct{})
	go func() {
		<-s.Quit()
		s.ToStopped()
		close(done)
	}()

	if err := s.Close(); err != nil {
		t.Fatalf("Close returned an error: %+v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("goroutine did not quit")
	}

	if s.GetStatus() != Stopped {
		t.Errorf("status is %s, expected %s", s.GetStatus(), Stopped)
	}

	// a second Close is a no-op
	if err := s.Close(); err != nil {
		t.Errorf("second Close returned an error: %+v", err)
	}
}

// Tests that a Multi closes all children.
func TestMulti_Close(t *testing.T) {
	m := NewMulti("multi")
	singles := []*Single{NewSingle("a"), NewSingle("b")}
	for _, s := range singles {
		m.Add(s)
		go func(s *Single) {
			<-s.Quit()
			s.ToStopped()
		}(s)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close returned an error: %+v", err)
	}

	deadline := time.After(time.Second)
	for m.GetStatus() != Stopped {
		select {
		case <-deadline:
			t.Fatalf("children did not stop, status %s", m.GetStatus())
		case <-time.After(time.Millisecond):
		}
	}
}
