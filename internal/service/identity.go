package service

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/util"
)

const identityRawBytes = 32

var ErrInvalidIdentity = errors.New("invalid identity token")

// IdentityService issues and verifies anonymous identity tokens of the form
// "<raw>.<hmac>", where raw is 32 random bytes in unpadded base64url and hmac
// is the hex HMAC-SHA256 of raw under the server secret. Without a secret the
// service runs unsigned: tokens are the bare raw value and any well-formed raw
// value verifies.
type IdentityService struct {
	secret string
}

func NewIdentityService(secret string) *IdentityService {
	if secret == "" {
		log.Warn().Msg("IDENTITY_SECRET not configured: identity tokens are unsigned")
	}
	return &IdentityService{secret: secret}
}

// Signed reports whether tokens carry a signature.
func (s *IdentityService) Signed() bool {
	return s.secret != ""
}

// Issue returns a signed token and its raw identity. An existing token that
// verifies keeps its raw part so the identity survives re-issue; anything
// else gets a fresh identity.
func (s *IdentityService) Issue(existing string) (token, identity string, err error) {
	if existing != "" {
		if raw, err := s.Verify(existing); err == nil {
			return s.sign(raw), raw, nil
		}
	}

	raw, err := util.RandomToken(identityRawBytes)
	if err != nil {
		return "", "", err
	}
	return s.sign(raw), raw, nil
}

// Verify returns the raw identity carried by token.
func (s *IdentityService) Verify(token string) (string, error) {
	raw, sig, hasSig := strings.Cut(token, ".")
	if !wellFormedRaw(raw) {
		return "", ErrInvalidIdentity
	}

	if !s.Signed() {
		return raw, nil
	}

	if !hasSig || !util.ConstantTimeEqual(sig, util.HmacSHA256(s.secret, raw)) {
		return "", ErrInvalidIdentity
	}
	return raw, nil
}

func (s *IdentityService) sign(raw string) string {
	if !s.Signed() {
		return raw
	}
	return raw + "." + util.HmacSHA256(s.secret, raw)
}

func wellFormedRaw(raw string) bool {
	return util.DecodedLen(raw) == identityRawBytes
}
