package service

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	apperrors "github.com/openclaw/match-relay-go/internal/errors"
	"github.com/openclaw/match-relay-go/internal/model"
)

// expectedSDPType is the description each role publishes: the initiator
// offers, the responder answers.
func expectedSDPType(role model.Role) webrtc.SDPType {
	if role == model.RoleInitiator {
		return webrtc.SDPTypeOffer
	}
	return webrtc.SDPTypeAnswer
}

// ParseDescription validates a published session description and returns it
// decoded. The body must be {"type","sdp"} JSON no larger than maxBytes, the
// type must match the role, and the SDP must parse with at least one media
// section.
func ParseDescription(raw []byte, role model.Role, maxBytes int) (*webrtc.SessionDescription, error) {
	if len(raw) == 0 {
		return nil, apperrors.MissingRequired("description")
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, apperrors.TooLarge(int64(maxBytes))
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, apperrors.InvalidInput("description", "must be a JSON session description")
	}

	want := expectedSDPType(role)
	if desc.Type != want {
		return nil, apperrors.InvalidInput("type", fmt.Sprintf("%s must publish an %s", role, want))
	}
	if desc.SDP == "" {
		return nil, apperrors.MissingRequired("sdp")
	}

	parsed, err := desc.Unmarshal()
	if err != nil {
		return nil, apperrors.InvalidInput("sdp", "malformed session description").WithCause(err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, apperrors.InvalidInput("sdp", "no media sections")
	}
	return &desc, nil
}
