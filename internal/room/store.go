package room

import "sort"

// Store maps room codes to sessions. It is not safe for concurrent use; the
// Manager serializes access.
type Store struct {
	rooms map[string]*Session
}

func NewStore() *Store { return &Store{rooms: make(map[string]*Session)} }

func (s *Store) Get(code string) (*Session, bool) {
	r, ok := s.rooms[code]
	return r, ok
}

func (s *Store) Has(code string) bool {
	_, ok := s.rooms[code]
	return ok
}

func (s *Store) Put(r *Session)     { s.rooms[r.Code] = r }
func (s *Store) Delete(code string) { delete(s.rooms, code) }
func (s *Store) Len() int           { return len(s.rooms) }

// Codes returns live codes in sorted order.
func (s *Store) Codes() []string {
	out := make([]string, 0, len(s.rooms))
	for c := range s.rooms {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Registry maps connection handles to their room and role.
type Registry struct {
	entries map[string]Entry
}

func NewRegistry() *Registry { return &Registry{entries: make(map[string]Entry)} }

func (r *Registry) Get(handle string) (Entry, bool) {
	e, ok := r.entries[handle]
	return e, ok
}

func (r *Registry) Put(handle string, e Entry) { r.entries[handle] = e }
func (r *Registry) Delete(handle string)       { delete(r.entries, handle) }
func (r *Registry) Len() int                   { return len(r.entries) }
