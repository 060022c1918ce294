package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICEServers(t *testing.T) {
	t.Run("stun only", func(t *testing.T) {
		servers := ICEServers([]string{"stun:stun.l.google.com:19302"}, "", "")
		require.Len(t, servers, 1)
		assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, servers[0].URLs)
		assert.Empty(t, servers[0].Username)
	})

	t.Run("turn urls carry credentials", func(t *testing.T) {
		servers := ICEServers([]string{
			"stun:stun.example.com:3478",
			" turn:turn.example.com:3478?transport=udp",
			"turns:turn.example.com:5349",
			"",
		}, "user", "secret")
		require.Len(t, servers, 2)

		assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
		assert.Equal(t, []string{"turn:turn.example.com:3478?transport=udp", "turns:turn.example.com:5349"}, servers[1].URLs)
		assert.Equal(t, "user", servers[1].Username)
		assert.Equal(t, "secret", servers[1].Credential)
	})

	t.Run("empty config encodes as empty list", func(t *testing.T) {
		body, err := json.Marshal(ICEServers(nil, "", ""))
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(body))
	})
}
