package main

import (
	"log/slog"
	"os"

	"github.com/utkarsh2338/NexMeet/cmd/nexmeet/cmd"
	"github.com/utkarsh2338/NexMeet/internal/logging"
)

func main() {
	// The meeting screen owns the terminal, so only errors are logged by default.
	logging.Init(os.Getenv("LOG_LEVEL"), slog.LevelError)
	cmd.Execute()
}
