// Package registry tracks which connections are present in which room.
//
// Every room has its own lock. Mutations for one room are serialized through
// Locked; different rooms never contend with each other.
package registry

import (
	"errors"
	"slices"
	"sync"
	"time"
)

var (
	// ErrAlreadyJoined is a warning: the connection is already a member and
	// the member list was left unchanged.
	ErrAlreadyJoined = errors.New("connection already joined this room")
	ErrInOtherRoom   = errors.New("connection is already in another room")
	ErrNotFound      = errors.New("connection is not in any room")
)

// Member is one connection present in a room.
type Member struct {
	ConnID   string
	Name     string
	UserID   string
	JoinedAt time.Time
}

type room struct {
	mu      sync.Mutex
	refs    int // goroutines holding or waiting for mu
	members []Member
}

// Registry is the process-local presence table.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	conns map[string]string // connection id -> room code

	onEmptied func(code string)
}

// New creates an empty registry. onEmptied, if set, is called with the room
// lock held whenever a leave brings a room's member count to zero.
func New(onEmptied func(code string)) *Registry {
	return &Registry{
		rooms:     make(map[string]*room),
		conns:     make(map[string]string),
		onEmptied: onEmptied,
	}
}

// Tx gives access to a single room while its lock is held. It must not be
// retained after the Locked callback returns.
type Tx struct {
	reg  *Registry
	code string
	room *room
}

func (tx *Tx) Code() string { return tx.code }

// Members returns a copy of the member list in join order.
func (tx *Tx) Members() []Member {
	return slices.Clone(tx.room.members)
}

func (tx *Tx) Count() int {
	return len(tx.room.members)
}

func (tx *Tx) Has(connID string) bool {
	return tx.index(connID) >= 0
}

func (tx *Tx) index(connID string) int {
	return slices.IndexFunc(tx.room.members, func(m Member) bool { return m.ConnID == connID })
}

// Join adds m to the room and returns the new member list. Joining twice
// returns the unchanged list together with ErrAlreadyJoined.
func (tx *Tx) Join(m Member) ([]Member, error) {
	if tx.Has(m.ConnID) {
		return tx.Members(), ErrAlreadyJoined
	}

	tx.reg.mu.Lock()
	if code, ok := tx.reg.conns[m.ConnID]; ok && code != tx.code {
		tx.reg.mu.Unlock()
		return nil, ErrInOtherRoom
	}
	tx.reg.conns[m.ConnID] = tx.code
	tx.reg.mu.Unlock()

	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	tx.room.members = append(tx.room.members, m)
	return tx.Members(), nil
}

// Leave removes connID and returns the departed member and the remaining
// members. When the room becomes empty the registry's emptied hook runs
// before Leave returns.
func (tx *Tx) Leave(connID string) (Member, []Member, error) {
	i := tx.index(connID)
	if i < 0 {
		return Member{}, nil, ErrNotFound
	}
	left := tx.room.members[i]
	tx.room.members = slices.Delete(tx.room.members, i, i+1)

	tx.reg.mu.Lock()
	delete(tx.reg.conns, connID)
	tx.reg.mu.Unlock()

	if len(tx.room.members) == 0 && tx.reg.onEmptied != nil {
		tx.reg.onEmptied(tx.code)
	}
	return left, tx.Members(), nil
}

// Locked runs fn with exclusive access to the room identified by code.
func (r *Registry) Locked(code string, fn func(tx *Tx)) {
	rm := r.acquire(code)
	rm.mu.Lock()
	defer r.release(code, rm)
	defer rm.mu.Unlock()

	fn(&Tx{reg: r, code: code, room: rm})
}

func (r *Registry) acquire(code string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		rm = &room{}
		r.rooms[code] = rm
	}
	rm.refs++
	return rm
}

func (r *Registry) release(code string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm.refs--
	if rm.refs == 0 && len(rm.members) == 0 {
		delete(r.rooms, code)
	}
}

// Join adds a member to the room for code.
func (r *Registry) Join(code string, m Member) (members []Member, err error) {
	r.Locked(code, func(tx *Tx) {
		members, err = tx.Join(m)
	})
	return members, err
}

// Leave removes connID from whichever room it is in.
func (r *Registry) Leave(connID string) (code string, remaining []Member, err error) {
	for {
		code, err = r.LookupRoom(connID)
		if err != nil {
			return "", nil, err
		}

		retry := false
		r.Locked(code, func(tx *Tx) {
			if !tx.Has(connID) {
				// Moved or left between lookup and lock.
				retry = true
				return
			}
			_, remaining, err = tx.Leave(connID)
		})
		if !retry {
			return code, remaining, err
		}
	}
}

// LookupRoom returns the room code connID is in, or ErrNotFound.
func (r *Registry) LookupRoom(connID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.conns[connID]
	if !ok {
		return "", ErrNotFound
	}
	return code, nil
}

// Members returns the member list for code.
func (r *Registry) Members(code string) (members []Member) {
	r.Locked(code, func(tx *Tx) {
		members = tx.Members()
	})
	return members
}

// RoomCount returns the number of occupied rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	occupied := make(map[string]struct{})
	for _, code := range r.conns {
		occupied[code] = struct{}{}
	}
	return len(occupied)
}
