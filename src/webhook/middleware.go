package webhook

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/hendrywilliam/siren/src/structs"
)

// PingRequestMiddleware answers PING interactions with PONG.
func (server *Server) PingRequestMiddleware(c fiber.Ctx) error {
	var i struct {
		Type structs.InteractionType `json:"type"`
	}
	if err := json.Unmarshal(c.Body(), &i); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid interaction payload"})
	}
	if i.Type == structs.InteractionTypePing {
		return c.JSON(structs.InteractionResponse{
			Type: structs.InteractionResponseTypePong,
		})
	}
	return c.Next()
}

// VerifyKeyMiddleware rejects requests whose Ed25519 signature over
// timestamp+body does not match the application public key.
func (server *Server) VerifyKeyMiddleware(c fiber.Ctx) error {
	timestamp := c.Get("X-Signature-Timestamp")
	if timestamp == "" {
		return c.Status(http.StatusUnauthorized).SendString("invalid timestamp signature")
	}
	signature, err := hex.DecodeString(c.Get("X-Signature-Ed25519"))
	if err != nil || len(signature) != ed25519.SignatureSize {
		return c.Status(http.StatusUnauthorized).SendString("invalid ed25519 signature")
	}
	message := bytes.Join([][]byte{[]byte(timestamp), c.Body()}, []byte(""))
	if !ed25519.Verify(server.pubKey, message, signature) {
		server.log.Warn("rejected interaction with bad signature", "ip", c.IP())
		return c.Status(http.StatusUnauthorized).SendString("invalid request signature")
	}
	return c.Next()
}
