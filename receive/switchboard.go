////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package receive routes decrypted to-device events to the engine components
// that handle them. The transport layer calls Speak once per arriving event;
// components register listeners per event type.
package receive

import (
	"sync"

	"github.com/golang-collections/collections/set"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/catalog"
)

// AnyType is a wildcard event type; listeners registered under it hear every
// event.
const AnyType = catalog.EventType("")

// Switchboard routes events to listeners by event type.
type Switchboard struct {
	list    map[catalog.EventType]*set.Set
	generic *set.Set

	mux sync.RWMutex
}

// New generates and returns a new switchboard object.
func New() *Switchboard {
	sw := &Switchboard{
		list:    make(map[catalog.EventType]*set.Set),
		generic: set.New(),
	}
	sw.list[AnyType] = sw.generic
	return sw
}

// RegisterListener registers a new listener. Returns the ID of the new
// listener; keep it around if you want to be able to delete the listener
// later. Pass AnyType to hear all events. Do not pass a nil listener.
func (sw *Switchboard) RegisterListener(eventType catalog.EventType,
	newListener Listener) ListenerID {

	if newListener == nil {
		jww.FATAL.Panicf("cannot register nil listener")
	}

	sw.mux.Lock()
	s, ok := sw.list[eventType]
	if !ok {
		s = set.New(newListener)
		sw.list[eventType] = s
	} else {
		s.Insert(newListener)
	}
	sw.mux.Unlock()

	return ListenerID{
		eventType: eventType,
		listener:  newListener,
	}
}

// RegisterFunc registers a new listener built around the passed function.
// name is used for debug printing and is not checked for uniqueness.
func (sw *Switchboard) RegisterFunc(name string, eventType catalog.EventType,
	newListener ListenerFunc) ListenerID {
	if newListener == nil {
		jww.FATAL.Panicf(
			"cannot register function listener %q with nil func", name)
	}
	return sw.RegisterListener(eventType, newFuncListener(newListener, name))
}

// RegisterChannel registers a new listener built around the passed channel.
// If the channel is full when an event arrives, the event is dropped with a
// warning.
func (sw *Switchboard) RegisterChannel(name string,
	eventType catalog.EventType, newListener chan Message) ListenerID {
	if newListener == nil {
		jww.FATAL.Panicf(
			"cannot register channel listener %q with nil channel", name)
	}
	return sw.RegisterListener(eventType, newChanListener(newListener, name))
}

// Speak delivers the event to all listeners registered for its type, plus all
// wildcard listeners. Each listener is exercised in its own goroutine.
func (sw *Switchboard) Speak(item Message) {
	sw.mux.RLock()
	defer sw.mux.RUnlock()

	matches := sw.matchListeners(item.EventType)

	if matches.Len() == 0 {
		jww.DEBUG.Printf("Event of type %s from %s did not match any "+
			"listeners", item.EventType, item.Sender)
		return
	}

	matches.Do(func(it interface{}) {
		l := it.(Listener)
		go l.Hear(item)
	})
}

// Unregister removes the listener from the switchboard.
func (sw *Switchboard) Unregister(lid ListenerID) {
	sw.mux.Lock()
	defer sw.mux.Unlock()

	if s, ok := sw.list[lid.eventType]; ok {
		s.Remove(lid.listener)
	}
}

func (sw *Switchboard) matchListeners(eventType catalog.EventType) *set.Set {
	lookup, ok := sw.list[eventType]
	if !ok {
		return sw.generic
	}
	return lookup.Union(sw.generic)
}
