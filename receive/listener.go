////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package receive

import (
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/catalog"
)

// Listener interface for a listener to adhere to.
type Listener interface {
	// Hear is called to exercise the listener, passing in the data as an
	// item.
	Hear(item Message)
	// Name returns a name, used for debugging.
	Name() string
}

// ListenerFunc defines callbacks that get passed when the listener is
// listened to. It will always be called in its own goroutine. It may be
// called multiple times simultaneously.
type ListenerFunc func(item Message)

// ListenerID is returned when a listener is registered and is used to delete
// it from the system.
type ListenerID struct {
	eventType catalog.EventType
	listener  Listener
}

// GetEventType is a getter for the event type.
func (lid ListenerID) GetEventType() catalog.EventType {
	return lid.eventType
}

// GetName is a getter for the listener name.
func (lid ListenerID) GetName() string {
	return lid.listener.Name()
}

/*internal listener implementations*/

// listener based off of a function
type funcListener struct {
	listener ListenerFunc
	name     string
}

func newFuncListener(listener ListenerFunc, name string) *funcListener {
	return &funcListener{
		listener: listener,
		name:     name,
	}
}

func (fl *funcListener) Hear(item Message) {
	fl.listener(item)
}

func (fl *funcListener) Name() string {
	return fl.name
}

// listener based off of a channel
type chanListener struct {
	listener chan Message
	name     string
}

func newChanListener(listener chan Message, name string) *chanListener {
	return &chanListener{
		listener: listener,
		name:     name,
	}
}

func (cl *chanListener) Hear(item Message) {
	select {
	case cl.listener <- item:
	default:
		jww.WARN.Printf("Switchboard failed to speak on channel listener "+
			"%s, event type %s dropped", cl.name, item.EventType)
	}
}

func (cl *chanListener) Name() string {
	return cl.name
}
