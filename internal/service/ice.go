package service

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEServers groups configured URLs into one STUN entry and one TURN entry.
// TURN credentials are only attached to turn: and turns: URLs.
func ICEServers(urls []string, username, credential string) []webrtc.ICEServer {
	var stun, turn []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		switch {
		case u == "":
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			turn = append(turn, u)
		default:
			stun = append(stun, u)
		}
	}

	servers := []webrtc.ICEServer{}
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if len(turn) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: credential,
		})
	}
	return servers
}
