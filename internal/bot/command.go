package bot

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/H3nryK/Darely/internal/platform/errors"
)

// CommandSpec is the command payload carried inside a signed command token.
type CommandSpec struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// Arg returns the named argument or an empty string.
func (c CommandSpec) Arg(name string) string {
	return strings.TrimSpace(c.Args[name])
}

// commandClaims is the claims layout of a platform-signed command token.
type commandClaims struct {
	jwt.RegisteredClaims
	Initiator string      `json:"initiator"`
	Command   CommandSpec `json:"command"`
}

// verifyCommand parses and verifies an EdDSA-signed command token against
// the configured bot public key (standard base64, raw ed25519 key bytes).
func verifyCommand(token, publicKey string) (commandClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return commandClaims{}, apperrors.New(apperrors.CodeCommandTokenInvalid, "command token is required")
	}
	keyBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKey))
	if err != nil {
		return commandClaims{}, apperrors.Wrap(apperrors.CodeCommandTokenInvalid, "decode bot public key", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return commandClaims{}, apperrors.New(apperrors.CodeCommandTokenInvalid, "bot public key has the wrong size")
	}

	var claims commandClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return ed25519.PublicKey(keyBytes), nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
	)
	if err != nil {
		return commandClaims{}, apperrors.Wrap(apperrors.CodeCommandTokenInvalid, "command token rejected", err)
	}
	if claims.Command.Name == "" {
		return commandClaims{}, apperrors.New(apperrors.CodeCommandTokenInvalid, "command token carries no command")
	}
	if strings.TrimSpace(claims.Initiator) == "" {
		return commandClaims{}, apperrors.New(apperrors.CodeCommandTokenInvalid, "command token carries no initiator")
	}
	return claims, nil
}
