package negotiation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

// fakeTransport enforces the same description ordering rules as a real peer
// connection so glare and buffering mistakes surface as errors.
type fakeTransport struct {
	id     string
	events Events

	mu         sync.Mutex
	signaling  State // StateStable, StateHaveLocalOffer or StateHaveRemoteOffer
	local      string
	remote     string
	candidates []string
	offers     int
	restarts   int
	answers    int
	rollbacks  int
	closed     bool
}

func newFakeTransport(id string, events Events) *fakeTransport {
	return &fakeTransport{id: id, events: events, signaling: StateStable}
}

func (f *fakeTransport) CreateOffer(restart bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaling != StateStable {
		return "", fmt.Errorf("create offer in %s", f.signaling)
	}
	f.offers++
	if restart {
		f.restarts++
	}
	f.local = fmt.Sprintf("offer-%s-%d", f.id, f.offers)
	f.signaling = StateHaveLocalOffer
	return f.local, nil
}

func (f *fakeTransport) CreateAnswer() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaling != StateHaveRemoteOffer {
		return "", fmt.Errorf("create answer in %s", f.signaling)
	}
	f.answers++
	f.local = fmt.Sprintf("answer-%s-%d", f.id, f.answers)
	f.signaling = StateStable
	return f.local, nil
}

func (f *fakeTransport) SetRemoteDescription(kind protocol.SignalKind, sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch kind {
	case protocol.SignalOffer:
		if f.signaling != StateStable {
			return fmt.Errorf("remote offer in %s", f.signaling)
		}
		f.signaling = StateHaveRemoteOffer
	case protocol.SignalAnswer:
		if f.signaling != StateHaveLocalOffer {
			return fmt.Errorf("remote answer in %s", f.signaling)
		}
		f.signaling = StateStable
	}
	f.remote = sdp
	return nil
}

func (f *fakeTransport) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaling != StateHaveLocalOffer {
		return errors.New("nothing to roll back")
	}
	f.rollbacks++
	f.local = ""
	f.signaling = StateStable
	return nil
}

func (f *fakeTransport) AddCandidate(c protocol.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == "" {
		return errors.New("candidate before remote description")
	}
	f.candidates = append(f.candidates, c.Candidate)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeStats struct {
	signaling  State
	local      string
	remote     string
	candidates []string
	offers     int
	restarts   int
	answers    int
	rollbacks  int
	closed     bool
}

func (f *fakeTransport) stats() fakeStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeStats{
		signaling:  f.signaling,
		local:      f.local,
		remote:     f.remote,
		candidates: append([]string(nil), f.candidates...),
		offers:     f.offers,
		restarts:   f.restarts,
		answers:    f.answers,
		rollbacks:  f.rollbacks,
		closed:     f.closed,
	}
}

type envelope struct {
	from, to string
	sig      protocol.Signal
}

// relay queues signals between sessions so tests control delivery order.
type relay struct {
	mu    sync.Mutex
	queue []envelope
}

func (r *relay) sender(from, to string) SendFunc {
	return func(sig protocol.Signal) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.queue = append(r.queue, envelope{from: from, to: to, sig: sig})
		return nil
	}
}

func (r *relay) take() []envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.queue
	r.queue = nil
	return q
}

// drain delivers queued signals until none are left.
func (r *relay) drain(deliver func(e envelope) error) error {
	for {
		batch := r.take()
		if len(batch) == 0 {
			return nil
		}
		for _, e := range batch {
			if err := deliver(e); err != nil {
				return err
			}
		}
	}
}
