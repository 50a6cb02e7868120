package room

import (
	"sort"
	"sync"
)

type sent struct {
	To      string // handle, or room code when Room is set
	Room    bool
	Event   string
	Payload any
	// Recipients is who actually got it at emit time.
	Recipients []string
}

// recordingHub is an in-memory Broadcaster that remembers every emit.
type recordingHub struct {
	mu      sync.Mutex
	members map[string]map[string]bool
	log     []sent
}

func newRecordingHub() *recordingHub {
	return &recordingHub{members: make(map[string]map[string]bool)}
}

func (h *recordingHub) Emit(handle, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = append(h.log, sent{To: handle, Event: event, Payload: payload, Recipients: []string{handle}})
}

func (h *recordingHub) EmitRoom(code, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var rcpt []string
	for m := range h.members[code] {
		rcpt = append(rcpt, m)
	}
	sort.Strings(rcpt)
	h.log = append(h.log, sent{To: code, Room: true, Event: event, Payload: payload, Recipients: rcpt})
}

func (h *recordingHub) Join(handle, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[code] == nil {
		h.members[code] = make(map[string]bool)
	}
	h.members[code][handle] = true
}

func (h *recordingHub) Leave(handle, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members[code], handle)
	if len(h.members[code]) == 0 {
		delete(h.members, code)
	}
}

// received returns every event delivered to handle, in order.
func (h *recordingHub) received(handle string) []sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sent
	for _, s := range h.log {
		for _, r := range s.Recipients {
			if r == handle {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func (h *recordingHub) events(handle string) []string {
	var out []string
	for _, s := range h.received(handle) {
		out = append(out, s.Event)
	}
	return out
}

// last returns the most recent event of the given name delivered to handle.
func (h *recordingHub) last(handle, event string) (sent, bool) {
	rs := h.received(handle)
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].Event == event {
			return rs[i], true
		}
	}
	return sent{}, false
}

func (h *recordingHub) mark() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.log)
}

func (h *recordingHub) since(n int) []sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sent(nil), h.log[n:]...)
}

type captureSink struct {
	mu      sync.Mutex
	results []Result
}

func (c *captureSink) Publish(r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

func (c *captureSink) all() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}
