package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/utkarsh2338/NexMeet/internal/config"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/ui"
	"github.com/utkarsh2338/NexMeet/internal/version"
)

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagCodec    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nexmeet",
	Short: "Join peer-to-peer video meetings from the terminal",
	Long: `NexMeet connects to a NexMeet signaling server, joins or starts a meeting,
and negotiates a direct WebRTC connection with every other participant.
Chat, the waiting room and host controls are available from the meeting screen.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagServer, "server", "s", "", "signaling server host or URL (env NEXMEET_SERVER)")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "TURN server host or URL (env TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	pf.StringVar(&flagCodec, "codec", protocol.CodecJSON, "wire encoding: json or msgpack")

	rootCmd.AddCommand(startCmd, joinCmd, infoCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func loadConfig() (*config.Client, protocol.Codec, error) {
	cfg, err := config.LoadClient(config.ClientOptions{
		Server:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	codec, err := protocol.CodecFor(flagCodec)
	if err != nil {
		return nil, nil, err
	}
	return cfg, codec, nil
}
