package auth

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Validator validates Neon Auth JWTs against the issuer's JWKS.
// The JWKS is fetched lazily on first use and refreshed in the background by keyfunc.
type Validator struct {
	jwksURL string
	issuer  string

	once    sync.Once
	keyfunc jwt.Keyfunc
	initErr error
}

// NewValidator returns a Validator for the given Neon Auth base URL (e.g. from NEON_AUTH_BASE_URL).
func NewValidator(baseURL string) (*Validator, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("NEON_AUTH_BASE_URL is not set")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	return &Validator{
		jwksURL: strings.TrimRight(baseURL, "/") + "/.well-known/jwks.json",
		issuer:  u.Scheme + "://" + u.Host,
	}, nil
}

func (v *Validator) keys() (jwt.Keyfunc, error) {
	v.once.Do(func() {
		if v.keyfunc != nil {
			return
		}
		jwks, err := keyfunc.NewDefault([]string{v.jwksURL})
		if err != nil {
			v.initErr = fmt.Errorf("loading JWKS: %w", err)
			return
		}
		v.keyfunc = jwks.Keyfunc
	})
	return v.keyfunc, v.initErr
}

// Validate parses and verifies tokenString and returns its claims.
func (v *Validator) Validate(tokenString string) (jwt.MapClaims, error) {
	kf, err := v.keys()
	if err != nil {
		return nil, err
	}
	token, err := jwt.Parse(tokenString, kf,
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// PlayerID validates tokenString and returns the player identity it carries.
func (v *Validator) PlayerID(tokenString string) (string, error) {
	claims, err := v.Validate(tokenString)
	if err != nil {
		return "", err
	}
	id := PlayerIDFromClaims(claims)
	if id == "" {
		return "", fmt.Errorf("token has no player identity")
	}
	return id, nil
}

// PlayerIDFromClaims returns the player identity from claims: the wallet "address" if present,
// otherwise "sub" or "id". The identity is trimmed and lower-cased like every other player ID.
func PlayerIDFromClaims(claims jwt.MapClaims) string {
	if addr, ok := claims["address"].(string); ok && strings.TrimSpace(addr) != "" {
		return strings.ToLower(strings.TrimSpace(addr))
	}
	for _, key := range []string{"sub", "id"} {
		if v, ok := claims[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}
