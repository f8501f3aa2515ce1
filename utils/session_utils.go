package utils

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateSessionID returns a URL-safe random identifier for an auth or
// analytics session.
func GenerateSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Error().Err(err).Msg("Failed to read random bytes for session ID, using uuid")
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
