package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/util"
)

type EventType string

const (
	EventIdentityIssued   EventType = "identity_issued"
	EventInvalidIdentity  EventType = "invalid_identity"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventAdminAuthFailure EventType = "admin_auth_failure"
	EventAdminReset       EventType = "admin_reset"
	EventRoleMismatch     EventType = "role_mismatch"
	EventNotParticipant   EventType = "not_participant"
)

type Event struct {
	Type      EventType
	Identity  string
	PairingID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// Log writes a security audit line. Identities are logged as fingerprints.
func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("eventType", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Identity != "" {
		logger = logger.With().Str("identity", util.ShortHash(event.Identity)).Logger()
	}
	if event.PairingID != "" {
		logger = logger.With().Str("pairingId", event.PairingID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("userAgent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Time:
		return e.Time(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP returns the host part of RemoteAddr. Forwarded headers are
// resolved earlier by the RealIP middleware.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
