package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/utkarsh2338/NexMeet/internal/client"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/ui"
)

var (
	flagName     string
	flagUserID   string
	flagPassword string
	flagNoMedia  bool

	flagWaitingRoom    bool
	flagCapacity       int
	flagAllowRecording bool
	flagNoChat         bool
	flagNoScreenShare  bool
)

var startCmd = &cobra.Command{
	Use:   "start [code]",
	Short: "Start a new meeting and host it",
	Long: `Start a meeting. Without a code the server picks one.

Examples:
  nexmeet start
  nexmeet start --password hunter2 --waiting-room
  nexmeet start team-sync --capacity 8 --allow-recording`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var code string
		if len(args) == 1 {
			code = args[0]
		}
		opts := &protocol.JoinOptions{
			Password:           flagPassword,
			WaitingRoom:        flagWaitingRoom,
			Capacity:           flagCapacity,
			AllowRecording:     flagAllowRecording,
			DisableChat:        flagNoChat,
			DisableScreenShare: flagNoScreenShare,
		}
		return runMeeting(cmd.Context(), code, opts)
	},
}

var joinCmd = &cobra.Command{
	Use:     "join <code>",
	Aliases: []string{"j"},
	Short:   "Join an existing meeting",
	Long: `Join a meeting by its code. If the meeting has ended or never existed,
joining it starts it again with you as host.

Examples:
  nexmeet join abc-defg-hij
  nexmeet join abc-defg-hij --name Sam --password hunter2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMeeting(cmd.Context(), args[0], nil)
	},
}

func init() {
	for _, c := range []*cobra.Command{startCmd, joinCmd} {
		f := c.Flags()
		f.StringVarP(&flagName, "name", "n", "", "display name (defaults to your login name)")
		f.StringVar(&flagUserID, "user-id", "", "account id; keeps host rights and bans across reconnects")
		f.StringVarP(&flagPassword, "password", "p", "", "meeting password")
		f.BoolVar(&flagNoMedia, "no-media", false, "chat only, do not negotiate peer connections")
	}

	f := startCmd.Flags()
	f.BoolVarP(&flagWaitingRoom, "waiting-room", "w", false, "hold joiners until you admit them")
	f.IntVarP(&flagCapacity, "capacity", "c", 0, "maximum participants (server default when 0)")
	f.BoolVar(&flagAllowRecording, "allow-recording", false, "allow the host to record")
	f.BoolVar(&flagNoChat, "no-chat", false, "disable chat")
	f.BoolVar(&flagNoScreenShare, "no-screen-share", false, "disable screen sharing")
}

func runMeeting(ctx context.Context, code string, opts *protocol.JoinOptions) error {
	cfg, codec, err := loadConfig()
	if err != nil {
		return err
	}

	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()

	policy := client.DefaultReconnectPolicy()
	policy.OnAttempt = func(attempt int, delay time.Duration, err error) {
		sp.SetMessage(fmt.Sprintf("Connecting to server... retry %d in %s", attempt, delay))
		slog.Debug("dial failed", "attempt", attempt, "error", err)
	}

	var c *client.Client
	err = policy.Run(ctx, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		var err error
		c, err = client.Dial(dialCtx, cfg.WebSocketURL, codec, slog.Default())
		return err
	})
	if err != nil {
		sp.Error("Could not reach " + cfg.Server)
		return err
	}
	sp.Stop()
	defer c.Close()

	s, err := newSession(ctx, c, cfg, !flagNoMedia)
	if err != nil {
		return err
	}
	defer s.close()

	err = s.run(client.JoinRequest{
		Code:     code,
		Name:     displayName(),
		UserID:   flagUserID,
		Password: flagPassword,
		Options:  opts,
	})
	if errors.Is(err, errLeft) {
		return nil
	}
	return err
}

func displayName() string {
	if flagName != "" {
		return flagName
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "guest"
}
