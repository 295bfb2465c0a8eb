package meeting

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. It keeps finished meetings around
// until they are swept, like the durable store does.
type MemoryStore struct {
	mu       sync.RWMutex
	meetings []*Meeting
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// active returns the active record for code. Callers hold s.mu.
func (s *MemoryStore) active(code string) *Meeting {
	for _, m := range s.meetings {
		if m.Active && m.Code == code {
			return m
		}
	}
	return nil
}

func (s *MemoryStore) FindActive(_ context.Context, code string) (*Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.active(code)
	if m == nil {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) FindAllActive(_ context.Context) ([]*Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Meeting
	for _, m := range s.meetings {
		if m.Active {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, m *Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active(m.Code) != nil {
		return ErrDuplicate
	}
	s.meetings = append(s.meetings, m.Clone())
	return nil
}

// update applies fn to the active record for code.
func (s *MemoryStore) update(code string, fn func(m *Meeting)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.active(code)
	if m == nil {
		return ErrNotFound
	}
	fn(m)
	return nil
}

func (s *MemoryStore) AddParticipant(_ context.Context, code string, p Participant) error {
	return s.update(code, func(m *Meeting) {
		m.Participants = append(m.Participants, p)
	})
}

func (s *MemoryStore) SetParticipantLeft(_ context.Context, code, connID string, at time.Time) error {
	return s.update(code, func(m *Meeting) {
		for i := range m.Participants {
			if m.Participants[i].ConnID == connID && m.Participants[i].LeftAt == nil {
				left := at
				m.Participants[i].LeftAt = &left
			}
		}
	})
}

func (s *MemoryStore) AppendChat(_ context.Context, code string, msg ChatMessage) error {
	return s.update(code, func(m *Meeting) {
		m.Chat = append(m.Chat, msg)
	})
}

func (s *MemoryStore) UpdateAccess(_ context.Context, code string, waiting []WaitingEntry, allow, ban []string) error {
	return s.update(code, func(m *Meeting) {
		m.Waiting = slices.Clone(waiting)
		m.AllowList = slices.Clone(allow)
		m.BanList = slices.Clone(ban)
	})
}

func (s *MemoryStore) SetRecording(_ context.Context, code string, recording bool, recordings []Recording) error {
	return s.update(code, func(m *Meeting) {
		m.IsRecording = recording
		m.Recordings = slices.Clone(recordings)
	})
}

func (s *MemoryStore) MarkInactive(_ context.Context, code string, end time.Time, duration time.Duration) error {
	return s.update(code, func(m *Meeting) {
		m.Active = false
		m.EndTime = &end
		m.DurationSeconds = int64(duration / time.Second)
	})
}

func (s *MemoryStore) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.meetings)
	s.meetings = slices.DeleteFunc(s.meetings, func(m *Meeting) bool {
		return !m.Active && m.EndTime != nil && m.EndTime.Before(cutoff)
	})
	return int64(before - len(s.meetings)), nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// All returns a copy of every stored record, active or not.
func (s *MemoryStore) All() []*Meeting {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, m.Clone())
	}
	return out
}
