package authn

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnauthorized = errors.New("unauthorized")

// Permission names checked by the moderation endpoints.
const (
	PermContribute = "contributions:create"
	PermModerate   = "contributions:moderate"
	PermAdmin      = "admin"
)

// Identity is an already-authenticated user, as seen by the handlers.
type Identity struct {
	UserID      uuid.UUID
	Username    string
	Permissions []string
}

// Config parameterizes session issuance. It is constructed once at startup
// and passed to IssueSession explicitly.
type Config struct {
	TokenPrefix string
	TTL         time.Duration
}

// AuthenticateBearer resolves an Authorization header into the session's
// user. Expired and revoked sessions are indistinguishable from missing
// ones.
func AuthenticateBearer(ctx context.Context, db *pgxpool.Pool, authorization string) (*Identity, error) {
	token, ok := parseBearerToken(authorization)
	if !ok {
		return nil, ErrUnauthorized
	}
	var out Identity
	err := db.QueryRow(ctx, `
SELECT u.id, u.username, u.permissions
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token_hash = $1
  AND s.revoked_at IS NULL
  AND s.expires_at > now()
`, HashToken(token)).Scan(&out.UserID, &out.Username, &out.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return &out, nil
}

// HasPermission checks one permission; admins hold every permission.
func HasPermission(perms []string, required string) bool {
	for _, p := range perms {
		if p == required || p == PermAdmin {
			return true
		}
	}
	return false
}

// IssueSession creates a bearer session for a user and returns the one-time
// visible token. Only its hash is stored.
func IssueSession(ctx context.Context, db *pgxpool.Pool, cfg Config, userID uuid.UUID) (string, error) {
	token := cfg.TokenPrefix + randomToken()
	_, err := db.Exec(ctx, `
INSERT INTO sessions(id, user_id, token_hash, expires_at)
VALUES($1, $2, $3, $4)
`, uuid.New(), userID, HashToken(token), time.Now().UTC().Add(cfg.TTL))
	if err != nil {
		return "", err
	}
	return token, nil
}

// RevokeSession invalidates one session by its visible token.
func RevokeSession(ctx context.Context, db *pgxpool.Pool, token string) error {
	_, err := db.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, HashToken(token))
	return err
}

func parseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
