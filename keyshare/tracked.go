////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package keyshare

// trackedSet is a fixed-capacity set of request keys. When full, the oldest
// entry is evicted on insert. It keeps the handled and cancelled tracking
// from growing without bound on a long-lived client. Not safe for concurrent
// use; the manager's mutex guards it.
type trackedSet struct {
	keys  map[string]struct{}
	order []string
	cap   int
}

func newTrackedSet(capacity uint32) *trackedSet {
	if capacity == 0 {
		capacity = defaultMaxTrackedRequests
	}
	return &trackedSet{
		keys: make(map[string]struct{}, capacity),
		cap:  int(capacity),
	}
}

func (ts *trackedSet) add(key string) {
	if _, ok := ts.keys[key]; ok {
		return
	}
	if len(ts.order) >= ts.cap {
		oldest := ts.order[0]
		ts.order = ts.order[1:]
		delete(ts.keys, oldest)
	}
	ts.keys[key] = struct{}{}
	ts.order = append(ts.order, key)
}

func (ts *trackedSet) has(key string) bool {
	_, ok := ts.keys[key]
	return ok
}

func (ts *trackedSet) remove(key string) {
	if _, ok := ts.keys[key]; !ok {
		return
	}
	delete(ts.keys, key)
	for i, k := range ts.order {
		if k == key {
			ts.order = append(ts.order[:i], ts.order[i+1:]...)
			break
		}
	}
}
