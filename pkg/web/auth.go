package web

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/gofiber/fiber/v3"
)

// APIKeyHeader carries the caller's key.
const APIKeyHeader = "X-API-Key"

// ownerLocal is the fiber.Locals key holding the authenticated owner identity.
const ownerLocal = "owner"

// OwnerID derives a stable owner identity from an API key. The raw key never
// lands in persistence or logs.
func OwnerID(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))

	return hex.EncodeToString(sum[:])[:16]
}

// APIKeyAuth returns a middleware that authenticates requests by X-API-Key
// against the configured key set and stores the derived owner identity.
func APIKeyAuth(apiKeys []string) fiber.Handler {
	return func(c fiber.Ctx) error {
		presented := c.Get(APIKeyHeader)
		if presented == "" {
			return unauthorized(c)
		}

		for _, key := range apiKeys {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
				c.Locals(ownerLocal, OwnerID(key))

				return c.Next()
			}
		}

		return unauthorized(c)
	}
}

func owner(c fiber.Ctx) string {
	value, _ := c.Locals(ownerLocal).(string)

	return value
}
