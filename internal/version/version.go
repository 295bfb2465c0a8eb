package version

// Version is the current version of the NexMeet binaries.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/utkarsh2338/NexMeet/internal/version.Version=v1.0.0'"
var Version = "dev"
