package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/utkarsh2338/NexMeet/internal/client"
	"github.com/utkarsh2338/NexMeet/internal/config"
	"github.com/utkarsh2338/NexMeet/internal/negotiation"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/ui"
)

var (
	errLeft     = errors.New("left the meeting")
	errRejected = errors.New("not admitted")
)

// session is one participant's stay in a meeting.
type session struct {
	ctx     context.Context
	client  *client.Client
	cfg     *config.Client
	handler *client.Handler
	peers   *negotiation.Manager
	screen  *ui.MeetingUI
	log     *slog.Logger

	mu       sync.Mutex
	waiting  map[string]string
	seen     map[string]bool
	messages int
	linked   int
	failed   int
	started  time.Time
	code     string
	status   string
}

func newSession(ctx context.Context, c *client.Client, cfg *config.Client, media bool) (*session, error) {
	s := &session{
		ctx:     ctx,
		client:  c,
		cfg:     cfg,
		log:     slog.Default().With("component", "session"),
		waiting: make(map[string]string),
		seen:    make(map[string]bool),
	}

	var peers client.Peers
	if media {
		ice := client.ICEServers(ctx, cfg)
		mgr, err := negotiation.NewManager(negotiation.Config{
			LocalID:      c.ID(),
			NewTransport: negotiation.NewPionFactory(negotiation.PionConfiguration(ice)),
			Send:         c.SendSignal,
			OnConnected:  s.peerConnected,
			OnFailed:     s.peerFailed,
			Logger:       slog.Default(),
		})
		if err != nil {
			return nil, err
		}
		s.peers = mgr
		peers = mgr
	}

	s.handler = client.NewHandler(c, peers, slog.Default())
	go s.handler.Start()
	return s, nil
}

func (s *session) close() {
	if s.peers != nil {
		s.peers.Close()
	}
}

// run joins, shows the meeting screen and prints a summary on the way out.
func (s *session) run(req client.JoinRequest) error {
	joined, err := s.enter(req)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.code = joined.RoomID
	s.started = time.Now()
	s.status = "left"
	for _, m := range joined.Members {
		s.seen[m.ID] = true
	}
	s.mu.Unlock()

	if joined.Meeting != nil {
		fmt.Println(ui.MeetingBox(joined.Meeting, s.cfg.MeetingLink(joined.RoomID), joined.IsHost))
	}

	screen := ui.NewMeetingUI(joined.RoomID, s.client.ID(), s.submit)
	s.mu.Lock()
	s.screen = screen
	s.mu.Unlock()
	s.screen.Roster(s.handler.Members())
	if joined.IsHost {
		s.screen.Notice("You are the host. Type /help for host commands.")
	}

	go s.pump()
	err = s.screen.Run()
	s.client.Leave()

	s.printSummary()
	if err != nil {
		return err
	}
	return errLeft
}

// enter sends the join and waits until this client is in the room,
// rejoining once the host admits it from the waiting room.
func (s *session) enter(req client.JoinRequest) (*protocol.Message, error) {
	if err := s.client.Join(req); err != nil {
		return nil, err
	}

	var wait *ui.Spinner
	defer func() {
		if wait != nil {
			wait.Stop()
		}
	}()

	for {
		select {
		case msg, ok := <-s.handler.Updates:
			if !ok {
				return nil, client.ErrClosed
			}
			switch msg.Type {
			case protocol.MessageTypeJoined:
				return msg, nil

			case protocol.MessageTypePendingApproval:
				if wait == nil {
					wait = ui.NewWaitingSpinner("Waiting for the host to let you in...")
					wait.Start()
				}

			case protocol.MessageTypeAdmitted:
				if wait != nil {
					wait.SetMessage("Admitted, joining...")
				}
				if err := s.client.Join(req); err != nil {
					return nil, err
				}

			case protocol.MessageTypeRejected:
				return nil, fmt.Errorf("%w: %s", errRejected, msg.Reason)
			}

		case err, ok := <-s.handler.Errors:
			if !ok {
				return nil, client.ErrClosed
			}
			return nil, err

		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
}

// pump feeds server updates to the meeting screen until the connection ends.
func (s *session) pump() {
	updates, errs := s.handler.Updates, s.handler.Errors
	for updates != nil || errs != nil {
		select {
		case msg, ok := <-updates:
			if !ok {
				updates = nil
				s.end("disconnected", "Connection to the server was lost")
				continue
			}
			s.show(msg)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.screen.Error(err)

		case <-s.ctx.Done():
			s.end("interrupted", "Interrupted")
			return
		}
	}
}

func (s *session) show(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeUserJoined:
		s.mu.Lock()
		s.seen[msg.From] = true
		s.mu.Unlock()
		s.screen.Roster(s.handler.Members())
		s.screen.Notice("%s joined", msg.Name)

	case protocol.MessageTypeUserLeft:
		s.screen.Roster(s.handler.Members())
		s.screen.Notice("%s left", msg.Name)

	case protocol.MessageTypeChatMessage:
		s.countMessage()
		s.screen.Chat(msg.Name, msg.Text, time.UnixMilli(msg.Timestamp))

	case protocol.MessageTypeChatHistory:
		if len(msg.Chat) > 0 {
			s.screen.Notice("%s %d earlier messages", ui.IconChat, len(msg.Chat))
		}
		for _, e := range msg.Chat {
			s.countMessage()
			s.screen.Chat(e.Name, e.Text, time.UnixMilli(e.Timestamp))
		}

	case protocol.MessageTypeWaitingParticipant:
		if msg.Entry == nil {
			return
		}
		s.mu.Lock()
		s.waiting[msg.Entry.ID] = msg.Entry.Name
		s.mu.Unlock()
		s.screen.Notice("%s is waiting. /admit %s or /reject %s", msg.Entry.Name, msg.Entry.ID, msg.Entry.ID)

	case protocol.MessageTypeWaitingCancelled:
		if msg.Entry == nil {
			return
		}
		s.mu.Lock()
		delete(s.waiting, msg.Entry.ID)
		s.mu.Unlock()
		s.screen.Notice("%s stopped waiting", msg.Entry.Name)

	case protocol.MessageTypeRecording:
		if msg.Recording == nil {
			return
		}
		if msg.Recording.Active {
			s.screen.Notice("%s Recording started", ui.IconRecord)
		} else {
			s.screen.Notice("Recording stopped after %s", time.Duration(msg.Recording.DurationSeconds)*time.Second)
		}

	case protocol.MessageTypeRemoved:
		s.end("removed", "You were removed: "+msg.Reason)

	case protocol.MessageTypeRejected:
		s.end("rejected", "Meeting closed: "+msg.Reason)
	}
}

// submit handles a line typed on the meeting screen.
func (s *session) submit(line string) {
	cmd, err := ui.ParseCommand(line)
	if err != nil {
		s.screen.Error(err)
		return
	}

	switch cmd.Name {
	case ui.CommandChat:
		err = s.client.Chat(cmd.Text)
	case "admit":
		err = s.client.Admit(s.resolve(cmd.Arg))
	case "reject":
		err = s.client.Reject(s.resolve(cmd.Arg))
	case "remove":
		err = s.client.Remove(s.resolve(cmd.Arg), false)
	case "ban":
		err = s.client.Remove(s.resolve(cmd.Arg), true)
	case "record":
		err = s.client.SetRecording(cmd.Arg == "on")
	case "who":
		s.screen.Notice("%s", s.who())
	case "help":
		s.screen.Notice("%s", ui.HelpText())
	}
	if err != nil {
		s.screen.Error(err)
	}
}

// resolve accepts a connection id or a unique display name.
func (s *session) resolve(arg string) string {
	var match string
	for _, m := range s.handler.Members() {
		if strings.EqualFold(m.Name, arg) {
			if match != "" {
				return arg
			}
			match = m.ID
		}
	}

	s.mu.Lock()
	for id, name := range s.waiting {
		if strings.EqualFold(name, arg) {
			if match != "" {
				s.mu.Unlock()
				return arg
			}
			match = id
		}
	}
	s.mu.Unlock()

	if match == "" {
		return arg
	}
	return match
}

func (s *session) who() string {
	var b strings.Builder
	for _, m := range s.handler.Members() {
		state := ""
		if s.peers != nil && m.ID != s.client.ID() {
			state = " [" + s.peers.State(m.ID).String() + "]"
		}
		fmt.Fprintf(&b, "%s %s (%s)%s\n", ui.IconPeer, m.Name, m.ID, state)
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.waiting))
	for id := range s.waiting {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "%s %s (%s) waiting\n", ui.IconWaiting, s.waiting[id], id)
	}
	s.mu.Unlock()

	return strings.TrimRight(b.String(), "\n")
}

// Peer callbacks can fire before the screen exists.
func (s *session) peerConnected(remoteID string) {
	s.mu.Lock()
	s.linked++
	n, screen := s.linked, s.screen
	s.mu.Unlock()
	s.log.Debug("peer connected", "remote", remoteID)
	if screen != nil {
		screen.Status(fmt.Sprintf("%d linked", n))
	}
}

func (s *session) peerFailed(remoteID string, err error) {
	s.mu.Lock()
	s.failed++
	screen := s.screen
	s.mu.Unlock()
	s.log.Warn("peer connection failed", "remote", remoteID, "error", err)
	if screen != nil {
		screen.Error(fmt.Errorf("connection to %s failed: %w", remoteID, err))
	}
}

func (s *session) countMessage() {
	s.mu.Lock()
	s.messages++
	s.mu.Unlock()
}

func (s *session) end(status, reason string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.screen.End(reason)
}

func (s *session) printSummary() {
	s.mu.Lock()
	summary := ui.Summary{
		Code:         s.code,
		Status:       s.status,
		Duration:     time.Since(s.started),
		Participants: len(s.seen),
		Messages:     s.messages,
		Peers:        s.linked,
		FailedPeers:  s.failed,
	}
	s.mu.Unlock()

	fmt.Println()
	ui.RenderSummary(summary)
}
