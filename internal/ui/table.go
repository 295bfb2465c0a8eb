package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/text"
	pretty "github.com/jedib0t/go-pretty/v6/table"

	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

// RosterView renders the room's members. self is marked as "you".
func RosterView(members []protocol.MemberInfo, self string) string {
	if len(members) == 0 {
		return MutedStyle.Render("Nobody here yet")
	}

	rows := make([][]string, 0, len(members))
	for i, m := range members {
		name := truncate(m.Name, 24)
		if m.ID == self {
			name += " (you)"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), name, since(m.JoinedAt)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Name", "Joined").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// MeetingBox is printed once a meeting has been joined.
func MeetingBox(info *protocol.MeetingInfo, link string, host bool) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	title := "Joined meeting"
	if host {
		title = "Meeting started"
	}

	lines := []string{
		fmt.Sprintf("%s %s", IconSuccess, BoldStyle.Render(title)),
		"",
		fmt.Sprintf("%s Code:  %s", IconCopy, BoldStyle.Foreground(Primary).Render(info.Code)),
		fmt.Sprintf("%s Link:  %s", IconLink, MutedStyle.Render(link)),
		fmt.Sprintf("%s Host:  %s", IconHost, info.HostName),
	}

	var flags []string
	if info.PasswordProtected {
		flags = append(flags, IconLock+" password")
	}
	if info.WaitingRoom {
		flags = append(flags, IconWaiting+" waiting room")
	}
	if !info.AllowChat {
		flags = append(flags, "chat off")
	}
	if info.IsRecording {
		flags = append(flags, IconRecord+" recording")
	}
	if len(flags) > 0 {
		lines = append(lines, MutedStyle.Render(strings.Join(flags, "  ")))
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

// Summary describes a finished session for the closing table.
type Summary struct {
	Code         string
	Status       string
	Duration     time.Duration
	Participants int
	Messages     int
	Peers        int
	FailedPeers  int
}

// SummaryView renders s with go-pretty.
func SummaryView(s Summary) string {
	t := pretty.NewWriter()
	t.SetTitle("Meeting Summary")
	t.AppendHeader(pretty.Row{"Metric", "Value"})
	t.AppendRows([]pretty.Row{
		{"Meeting", s.Code},
		{"Status", s.Status},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Participants seen", s.Participants},
		{"Chat messages", s.Messages},
		{"Peer connections", s.Peers},
		{"Failed connections", s.FailedPeers},
	})
	t.SetStyle(pretty.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Options.SeparateRows = false
	return t.Render()
}

// RenderSummary prints the summary table followed by how the meeting ended.
func RenderSummary(s Summary) {
	fmt.Println(SummaryView(s))
	if s.Status == "left" {
		PrintSuccess("You left the meeting")
	} else {
		PrintWarning("Meeting ended: " + s.Status)
	}
	if s.FailedPeers > 0 {
		PrintWarning(fmt.Sprintf("%d of %d peer connections failed", s.FailedPeers, s.FailedPeers+s.Peers))
	}
}

func since(ms int64) string {
	if ms == 0 {
		return "-"
	}
	d := time.Since(time.UnixMilli(ms)).Round(time.Second)
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm ago", int(d.Hours()), int(d.Minutes())%60)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
