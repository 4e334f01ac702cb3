package obsws

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrPasswordRequired is returned when the server asks for authentication
	// and no password was configured.
	ErrPasswordRequired = errors.New("obs-websocket requires a password")

	// ErrAuthFailed is returned when the server rejects the password.
	ErrAuthFailed = errors.New("obs-websocket rejected authentication")
)

// authenticate runs GetAuthRequired and, when needed, Authenticate.
func (c *Client) authenticate(ctx context.Context) error {
	resp, err := c.request(ctx, "GetAuthRequired", nil)
	if err != nil {
		return fmt.Errorf("GetAuthRequired: %w", err)
	}

	var required bool
	if !Field(resp, "authRequired", &required) || !required {
		return nil
	}
	if c.password == "" {
		return ErrPasswordRequired
	}

	var challenge, salt string
	Field(resp, "challenge", &challenge)
	Field(resp, "salt", &salt)

	data := NewPayload()
	data.Set("auth", mustRaw(authResponse(c.password, salt, challenge)))

	resp, err = c.request(ctx, "Authenticate", data)
	if err != nil {
		return fmt.Errorf("Authenticate: %w", err)
	}
	if Status(resp) != "ok" {
		var reason string
		Field(resp, "error", &reason)
		return fmt.Errorf("%w: %s", ErrAuthFailed, reason)
	}
	return nil
}

// authResponse computes base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])

	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}
