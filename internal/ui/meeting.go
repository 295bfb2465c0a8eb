package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

// EventKind says how the meeting screen shows an Event.
type EventKind int

const (
	EventChat EventKind = iota
	EventNotice
	EventError
	EventRoster
	EventStatus
	EventEnded
)

// Event is pushed to the meeting screen from other goroutines.
type Event struct {
	Kind    EventKind
	Name    string
	Text    string
	At      time.Time
	Members []protocol.MemberInfo
}

const sidebarWidth = 28

// meetingModel is the bubbletea model behind MeetingUI.
type meetingModel struct {
	title  string
	self   string
	status string

	log     []string
	members []protocol.MemberInfo

	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int

	events   <-chan Event
	onSubmit func(line string)
}

func newMeetingModel(title, self string, events <-chan Event, onSubmit func(string)) *meetingModel {
	in := textinput.New()
	in.Placeholder = "Message, or /help"
	in.Prompt = "› "
	in.CharLimit = 2000
	in.Focus()

	return &meetingModel{
		title:    title,
		self:     self,
		status:   "connected",
		viewport: viewport.New(80, 20),
		input:    in,
		events:   events,
		onSubmit: onSubmit,
		width:    80,
		height:   24,
	}
}

func (m *meetingModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenForEvents())
}

func (m *meetingModel) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return Event{Kind: EventEnded, Text: "disconnected"}
		}
		return ev
	}
}

func (m *meetingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if line == "/quit" {
				return m, tea.Quit
			}
			if m.onSubmit != nil {
				m.onSubmit(line)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case Event:
		m.apply(msg)
		if msg.Kind == EventEnded {
			return m, tea.Quit
		}
		cmds = append(cmds, m.listenForEvents())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *meetingModel) resize() {
	chatWidth := max(20, m.width-sidebarWidth-1)
	m.viewport.Width = chatWidth
	m.viewport.Height = max(3, m.height-4)
	m.input.Width = max(10, m.width-4)
	m.refresh()
}

func (m *meetingModel) apply(ev Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	stamp := MutedStyle.Render(at.Format("15:04"))

	switch ev.Kind {
	case EventChat:
		m.log = append(m.log, fmt.Sprintf("%s %s %s", stamp, NameStyle.Render(ev.Name+":"), ev.Text))
	case EventNotice:
		m.log = append(m.log, fmt.Sprintf("%s %s", stamp, MutedStyle.Render(ev.Text)))
	case EventError, EventEnded:
		m.log = append(m.log, fmt.Sprintf("%s %s", stamp, ErrorStyle.Render(ev.Text)))
	case EventRoster:
		m.members = ev.Members
	case EventStatus:
		m.status = ev.Text
	}
	m.refresh()
}

func (m *meetingModel) refresh() {
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(strings.Join(m.log, "\n")))
	m.viewport.GotoBottom()
}

func (m *meetingModel) View() string {
	header := HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.title)) + " " + StatusStyle.Render(m.status)

	var roster strings.Builder
	roster.WriteString(TitleStyle.Render(fmt.Sprintf("%s People (%d)", IconPeer, len(m.members))))
	for _, p := range m.members {
		roster.WriteString("\n")
		name := truncate(p.Name, sidebarWidth-4)
		if p.ID == m.self {
			name = BoldStyle.Render(name)
		}
		roster.WriteString(name)
	}
	sidebar := SidebarStyle.Width(sidebarWidth).Height(m.viewport.Height).Render(roster.String())

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), sidebar)
	footer := FooterStyle.Render("enter send • /help commands • esc quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.input.View(), footer)
}

// MeetingUI runs the full-screen meeting view.
type MeetingUI struct {
	program *tea.Program
	model   *meetingModel
	events  chan Event
	once    sync.Once
}

// NewMeetingUI creates the meeting screen. onSubmit receives every line the
// user enters other than /quit.
func NewMeetingUI(title, self string, onSubmit func(line string)) *MeetingUI {
	events := make(chan Event, 128)
	model := newMeetingModel(title, self, events, onSubmit)
	return &MeetingUI{
		model:   model,
		events:  events,
		program: tea.NewProgram(model, tea.WithAltScreen()),
	}
}

// Run blocks until the user quits or the meeting ends.
func (ui *MeetingUI) Run() error {
	_, err := ui.program.Run()
	return err
}

// Push queues ev for display. Events are dropped if the screen falls behind.
func (ui *MeetingUI) Push(ev Event) {
	select {
	case ui.events <- ev:
	default:
	}
}

func (ui *MeetingUI) Chat(name, text string, at time.Time) {
	ui.Push(Event{Kind: EventChat, Name: name, Text: text, At: at})
}

func (ui *MeetingUI) Notice(format string, args ...any) {
	ui.Push(Event{Kind: EventNotice, Text: fmt.Sprintf(format, args...)})
}

func (ui *MeetingUI) Error(err error) {
	ui.Push(Event{Kind: EventError, Text: err.Error()})
}

func (ui *MeetingUI) Roster(members []protocol.MemberInfo) {
	ui.Push(Event{Kind: EventRoster, Members: members})
}

func (ui *MeetingUI) Status(text string) {
	ui.Push(Event{Kind: EventStatus, Text: text})
}

// End shows reason and closes the screen.
func (ui *MeetingUI) End(reason string) {
	ui.once.Do(func() {
		ui.program.Send(Event{Kind: EventEnded, Text: reason})
	})
}
