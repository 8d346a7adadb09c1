package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "sapl-lexml"
	audience          = "lexml-registry"
	secretEnvVariable = "SAPL_LEXML_AUTH_SECRET"
	clockSkew         = 5 * time.Second
)

var (
	errMissingSecret = errors.New("auth secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// Claims are carried by registry tokens. Scope lists the registry
// permissions granted at issue time and never exceeds what Roles allow.
type Claims struct {
	Roles []string `json:"roles"`
	Scope []string `json:"scope"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 registry token for userID. Every role must
// be known; the token scope is the union of their permissions.
func GenerateToken(userID string, roles []string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	roles = normalizeRoles(roles)
	if len(roles) == 0 {
		return "", errors.New("at least one role is required")
	}
	for _, r := range roles {
		if _, ok := rolePermissions[r]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownRole, r)
		}
	}
	key, err := loadSecret()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		Roles: roles,
		Scope: PermissionsFor(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies signature, issuer, audience and lifetime, and
// that the scope is backed by the roles. Any failure is ErrInvalidToken.
func ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	key, err := loadSecret()
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	claims.Roles = normalizeRoles(claims.Roles)
	granted := make(map[string]struct{})
	for _, p := range PermissionsFor(claims.Roles) {
		granted[p] = struct{}{}
	}
	for _, p := range claims.Scope {
		if _, ok := granted[p]; !ok {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if !secret.ready {
		raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
		secret = cachedSecret{ready: true}
		if raw == "" {
			secret.err = errMissingSecret
		} else {
			secret.value = []byte(raw)
		}
	}
	return secret.value, secret.err
}

// ResetSecretForTests forgets the cached secret so the next call rereads
// the environment.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}
