package meeting

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/utkarsh2338/NexMeet/internal/metrics"
)

// Options tunes the lifecycle manager's durable writes.
type Options struct {
	// WriteTimeout bounds each individual store call.
	WriteTimeout time.Duration
	// RetryAttempts is how many times a failed write is retried before it is dropped.
	RetryAttempts int
	// RetryDelay is the first retry delay, doubled after each attempt.
	RetryDelay time.Duration
	// QueueSize bounds the number of writes waiting for retry.
	QueueSize int
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	return o
}

type pendingWrite struct {
	op   string
	code string
	fn   func(ctx context.Context) error
}

// Manager keeps the durable meeting record in step with room occupancy.
//
// Methods that take a meeting code must be called while holding that room's
// lock in the registry; the manager only guards its own tables.
type Manager struct {
	store Store
	opts  Options
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	meetings map[string]*Meeting
	orphans  map[string]time.Time
	pending  map[string]int

	retries chan pendingWrite
}

// NewManager creates a lifecycle manager on top of store.
func NewManager(store Store, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Manager{
		store:    store,
		opts:     opts,
		log:      logger.With("component", "lifecycle"),
		now:      time.Now,
		meetings: make(map[string]*Meeting),
		orphans:  make(map[string]time.Time),
		pending:  make(map[string]int),
		retries:  make(chan pendingWrite, opts.QueueSize),
	}
}

// Reconstruct loads every active meeting from the store. It is called once at
// startup; an error means the process has no reliable view of what is active.
func (m *Manager) Reconstruct(ctx context.Context) (int, error) {
	list, err := m.store.FindAllActive(ctx)
	if err != nil {
		return 0, NewError("reconstruct", "", err)
	}

	now := m.now()
	for _, mt := range list {
		// Connections do not survive a restart.
		mt.Waiting = nil
		for i := range mt.Participants {
			if mt.Participants[i].LeftAt == nil {
				left := now
				mt.Participants[i].LeftAt = &left
				connID := mt.Participants[i].ConnID
				m.persist(ctx, "set participant left", mt.Code, func(ctx context.Context) error {
					return m.store.SetParticipantLeft(ctx, mt.Code, connID, now)
				})
			}
		}

		m.mu.Lock()
		m.meetings[mt.Code] = mt
		m.orphans[mt.Code] = now
		m.mu.Unlock()

		m.log.Info("meeting reconstructed", "room", mt.Code, "chat", len(mt.Chat))
	}
	return len(list), nil
}

// Lookup returns the active meeting for code, consulting the store on a cache
// miss. It returns ErrNotFound when no active meeting exists.
func (m *Manager) Lookup(ctx context.Context, code string) (*Meeting, error) {
	if mt := m.Get(code); mt != nil {
		return mt, nil
	}
	// An uncached code with queued writes belongs to a meeting whose end has
	// not reached the store yet. The stored record is stale.
	if m.queued(code) {
		return nil, ErrNotFound
	}

	rctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
	defer cancel()

	found, err := m.store.FindActive(rctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewError("find meeting", code, err)
	}

	m.mu.Lock()
	m.meetings[code] = found
	m.mu.Unlock()
	return found, nil
}

// Get returns the cached active meeting for code or nil.
func (m *Manager) Get(code string) *Meeting {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meetings[code]
}

// ActiveCodes returns the codes of all cached active meetings.
func (m *Manager) ActiveCodes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	codes := make([]string, 0, len(m.meetings))
	for code := range m.meetings {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// OnRoomCreated is called when the first member enters an empty room. With a
// non-nil existing meeting the room reattaches to it; otherwise a new meeting
// hosted by host is created.
func (m *Manager) OnRoomCreated(ctx context.Context, code string, existing *Meeting, host Participant, policy Policy) *Meeting {
	if existing != nil {
		m.mu.Lock()
		delete(m.orphans, code)
		m.meetings[code] = existing
		m.mu.Unlock()

		m.log.Info("meeting resumed", "room", code, "host", existing.HostName)
		return existing
	}

	mt := &Meeting{
		Code:       code,
		HostUserID: Identity(host.UserID, host.ConnID),
		HostName:   host.Name,
		Policy:     policy,
		Active:     true,
		StartTime:  m.now(),
	}
	mt.Allow(mt.HostUserID)

	snapshot := mt.Clone()
	createLater := func(ctx context.Context) error {
		err := m.store.Create(ctx, snapshot)
		if errors.Is(err, ErrDuplicate) {
			return nil
		}
		return err
	}

	if m.queued(code) {
		// The previous meeting's end is still queued; the create lands after it.
		m.enqueue(pendingWrite{op: "create meeting", code: code, fn: createLater})
		m.mu.Lock()
		m.meetings[code] = mt
		m.mu.Unlock()

		m.log.Info("meeting created behind queued writes", "room", code, "host", host.Name)
		return mt
	}

	wctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
	err := m.store.Create(wctx, mt.Clone())
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicate):
		// Someone else already holds an active record for this code.
		if found, ferr := m.Lookup(ctx, code); ferr == nil {
			m.mu.Lock()
			m.meetings[code] = found
			m.mu.Unlock()
			m.log.Warn("meeting already active, adopting stored record", "room", code)
			return found
		}
	default:
		m.log.Warn("create meeting failed, retrying in background", "room", code, "error", err)
		m.enqueue(pendingWrite{op: "create meeting", code: code, fn: createLater})
	}

	m.mu.Lock()
	m.meetings[code] = mt
	m.mu.Unlock()

	m.log.Info("meeting created", "room", code, "host", host.Name)
	return mt
}

// OnParticipantJoined records a join event.
func (m *Manager) OnParticipantJoined(ctx context.Context, code string, p Participant) {
	mt := m.Get(code)
	if mt == nil {
		return
	}
	mt.Participants = append(mt.Participants, p)

	m.persist(ctx, "add participant", code, func(ctx context.Context) error {
		return m.store.AddParticipant(ctx, code, p)
	})
}

// OnParticipantLeft stamps the leave time on the open history entry of connID.
func (m *Manager) OnParticipantLeft(ctx context.Context, code, connID string, at time.Time) {
	mt := m.Get(code)
	if mt == nil {
		return
	}
	found := false
	for i := range mt.Participants {
		if mt.Participants[i].ConnID == connID && mt.Participants[i].LeftAt == nil {
			left := at
			mt.Participants[i].LeftAt = &left
			found = true
		}
	}
	if !found {
		return
	}

	m.persist(ctx, "set participant left", code, func(ctx context.Context) error {
		return m.store.SetParticipantLeft(ctx, code, connID, at)
	})
}

// OnRoomEmptied ends the meeting: it becomes inactive with an end time and a
// duration. The ended meeting is returned, or nil if none was active.
func (m *Manager) OnRoomEmptied(ctx context.Context, code string, at time.Time) *Meeting {
	m.mu.Lock()
	mt := m.meetings[code]
	delete(m.meetings, code)
	delete(m.orphans, code)
	m.mu.Unlock()

	if mt == nil {
		return nil
	}

	duration := at.Sub(mt.StartTime)
	if duration < 0 {
		duration = 0
	}
	mt.Active = false
	mt.EndTime = &at
	mt.DurationSeconds = int64(duration / time.Second)
	mt.Waiting = nil

	metrics.MeetingDuration.Observe(duration.Seconds())
	m.log.Info("meeting ended", "room", code, "duration", duration.Round(time.Second))

	m.persist(ctx, "mark inactive", code, func(ctx context.Context) error {
		return m.store.MarkInactive(ctx, code, at, duration)
	})
	return mt
}

// AppendChat adds msg to the meeting's history.
func (m *Manager) AppendChat(ctx context.Context, code string, msg ChatMessage) error {
	mt := m.Get(code)
	if mt == nil {
		return NewError("append chat", code, ErrNotFound)
	}
	mt.Chat = append(mt.Chat, msg)

	m.persist(ctx, "append chat", code, func(ctx context.Context) error {
		return m.store.AppendChat(ctx, code, msg)
	})
	return nil
}

// SaveAccess persists the waiting queue, allow list and ban list.
func (m *Manager) SaveAccess(ctx context.Context, code string) {
	mt := m.Get(code)
	if mt == nil {
		return
	}
	waiting := slices.Clone(mt.Waiting)
	allow := slices.Clone(mt.AllowList)
	ban := slices.Clone(mt.BanList)

	m.persist(ctx, "update access", code, func(ctx context.Context) error {
		return m.store.UpdateAccess(ctx, code, waiting, allow, ban)
	})
}

// SaveRecording persists the recording flag and intervals.
func (m *Manager) SaveRecording(ctx context.Context, code string) {
	mt := m.Get(code)
	if mt == nil {
		return
	}
	recording := mt.IsRecording
	recordings := slices.Clone(mt.Recordings)

	m.persist(ctx, "set recording", code, func(ctx context.Context) error {
		return m.store.SetRecording(ctx, code, recording, recordings)
	})
}

// RoomGuard runs fn while holding the room lock for code. occupied reports
// whether the room currently has members.
type RoomGuard func(code string, fn func(occupied bool))

// ExpireOrphans ends reconstructed meetings that nobody rejoined within
// timeout. It returns how many meetings were ended.
func (m *Manager) ExpireOrphans(ctx context.Context, timeout time.Duration, guard RoomGuard) int {
	cutoff := m.now().Add(-timeout)

	m.mu.Lock()
	var stale []string
	for code, loaded := range m.orphans {
		if loaded.Before(cutoff) {
			stale = append(stale, code)
		}
	}
	m.mu.Unlock()

	ended := 0
	for _, code := range stale {
		guard(code, func(occupied bool) {
			m.mu.Lock()
			_, still := m.orphans[code]
			if occupied {
				delete(m.orphans, code)
			}
			m.mu.Unlock()

			if occupied || !still {
				return
			}
			if m.OnRoomEmptied(ctx, code, m.now()) != nil {
				ended++
			}
		})
	}
	return ended
}

// persist runs a durable write. Failures are queued for retry instead of
// being returned; writes for a code that already has queued writes go to the
// back of the queue so they stay in order.
func (m *Manager) persist(ctx context.Context, op, code string, fn func(ctx context.Context) error) {
	if !m.queued(code) {
		wctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
		err := fn(wctx)
		cancel()
		if err == nil {
			return
		}
		m.log.Warn("store write failed, retrying in background", "op", op, "room", code, "error", err)
	}

	m.enqueue(pendingWrite{op: op, code: code, fn: fn})
}

func (m *Manager) queued(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[code] > 0
}

func (m *Manager) enqueue(w pendingWrite) {
	m.mu.Lock()
	m.pending[w.code]++
	m.mu.Unlock()

	select {
	case m.retries <- w:
		metrics.StoreRetries.WithLabelValues(w.op).Inc()
	default:
		m.done(w.code)
		metrics.StoreDropped.WithLabelValues(w.op).Inc()
		m.log.Error("store retry queue full, dropping write", "op", w.op, "room", w.code)
	}
}

func (m *Manager) done(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[code]--
	if m.pending[code] <= 0 {
		delete(m.pending, code)
	}
}

// Pending returns the number of writes waiting for retry.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.pending {
		n += c
	}
	return n
}

// RunRetries drains the retry queue until ctx is cancelled.
func (m *Manager) RunRetries(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-m.retries:
			m.retry(ctx, w)
		}
	}
}

func (m *Manager) retry(ctx context.Context, w pendingWrite) {
	defer m.done(w.code)

	delay := m.opts.RetryDelay
	for attempt := 1; attempt <= m.opts.RetryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		wctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
		err := w.fn(wctx)
		cancel()
		if err == nil {
			m.log.Info("store write recovered", "op", w.op, "room", w.code, "attempt", attempt)
			return
		}
		m.log.Warn("store retry failed", "op", w.op, "room", w.code, "attempt", attempt, "error", err)
		delay *= 2
	}

	metrics.StoreDropped.WithLabelValues(w.op).Inc()
	m.log.Error("store write abandoned", "op", w.op, "room", w.code, "attempts", m.opts.RetryAttempts)
}
