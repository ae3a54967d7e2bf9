package invoice

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned when a record ID is not in the ledger
var ErrRecordNotFound = errors.New("record not found")

// ErrSessionNotFound is returned when a session ID is unknown
var ErrSessionNotFound = errors.New("session not found")

// Session owns one user's ledger: an ordered collection of records plus the
// uploaded image bytes behind them. Insertion order is upload order and is
// preserved through edits and export. Nothing survives the session.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	mu      sync.Mutex
	records []*Record
	images  map[string]*Image
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		images:    make(map[string]*Image),
	}
}

// Append adds a record and its backing image to the end of the ledger
func (s *Session) Append(record *Record, image *Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	if image != nil {
		s.images[record.ID] = image
	}
}

// Records returns the ledger in insertion order
func (s *Session) Records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}

// Get retrieves a record by ID
func (s *Session) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrRecordNotFound
}

// Update applies a mutation to a record under the session lock. If apply
// returns an error the record is left exactly as it was.
func (s *Session) Update(id string, apply func(*Record) error) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			copied := *r
			if err := apply(&copied); err != nil {
				return nil, err
			}
			*r = copied
			return r, nil
		}
	}
	return nil, ErrRecordNotFound
}

// Remove deletes a record and its image from the ledger
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			delete(s.images, id)
			return nil
		}
	}
	return ErrRecordNotFound
}

// Image returns the uploaded bytes backing a record
func (s *Session) Image(id string) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	image, ok := s.images[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return image, nil
}

// Len returns the number of records in the ledger
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Manager tracks live sessions in memory. Sessions are created lazily on
// first request and discarded on explicit reset or process exit; there is no
// persistence between sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create starts a new session with a fresh ID
func (m *Manager) Create() *Session {
	session := newSession(uuid.NewString(), time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return session
}

// Get retrieves a session by ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete discards a session, its ledger, and its images
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
