package server

import "sync"

// streamRegistry tracks open streaming connections and which one owns the
// live session of each meeting.
type streamRegistry struct {
	mu        sync.Mutex
	conns     map[string]*streamConn
	byMeeting map[string]string
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{
		conns:     make(map[string]*streamConn),
		byMeeting: make(map[string]string),
	}
}

func (r *streamRegistry) add(c *streamConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

func (r *streamRegistry) remove(c *streamConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.id)
	for meetingID, connID := range r.byMeeting {
		if connID == c.id {
			delete(r.byMeeting, meetingID)
		}
	}
}

// claim reserves meetingID for connID. It fails when another connection
// already streams that meeting.
func (r *streamRegistry) claim(meetingID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.byMeeting[meetingID]; ok && owner != connID {
		return false
	}
	r.byMeeting[meetingID] = connID
	return true
}

// Streaming reports whether a connection currently owns meetingID.
func (r *streamRegistry) Streaming(meetingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byMeeting[meetingID]
	return ok
}

func (r *streamRegistry) release(meetingID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byMeeting[meetingID] == connID {
		delete(r.byMeeting, meetingID)
	}
}

func (r *streamRegistry) closeAll() {
	r.mu.Lock()
	conns := make([]*streamConn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		c.closeSocket()
	}
}
