package signaling

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var codeAdjectives = []string{
	"amber", "brave", "bright", "calm", "cheery", "cozy", "crimson", "gentle", "golden", "jolly",
	"lucky", "merry", "quiet", "rapid", "silver", "sunny", "swift", "tidy", "vivid", "witty",
}

var codeNouns = []string{
	"otter", "falcon", "panda", "heron", "lynx", "koala", "badger", "dolphin", "robin", "walrus",
	"comet", "canyon", "harbor", "lantern", "meadow", "nebula", "orbit", "pebble", "ridge", "willow",
}

var codeVerbs = []string{
	"builds", "chats", "dances", "dreams", "glides", "hums", "jumps", "meets", "paints", "plans",
	"races", "reads", "sails", "shines", "sings", "talks", "thinks", "waves", "wins", "writes",
}

// generateRoomCode creates a memorable meeting code such as
// "swift-otter-sails" that is not currently in use.
func (h *Hub) generateRoomCode() string {
	for {
		code := fmt.Sprintf("%s-%s-%s",
			codeAdjectives[randomIndex(len(codeAdjectives))],
			codeNouns[randomIndex(len(codeNouns))],
			codeVerbs[randomIndex(len(codeVerbs))],
		)
		if h.lifecycle.Get(code) == nil && len(h.registry.Members(code)) == 0 {
			return code
		}
	}
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("failed to generate random index: %v", err))
	}
	return int(n.Int64())
}
