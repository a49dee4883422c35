package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultJWKSCacheTTL = 15 * time.Minute

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// AuthConfig selects how tokens are verified. TestMode accepts HS256 tokens
// signed with TestSecret; otherwise RS256 tokens are checked against JWKS.
type AuthConfig struct {
	Audience    string
	Issuer      string
	TestMode    bool
	TestSecret  string
	KeyCacheTTL time.Duration
}

// Auth validates incoming JWT tokens.
type Auth struct {
	jwks       *keyfunc.JWKS
	audience   string
	issuer     string
	testMode   bool
	testSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, cfg AuthConfig) (*Auth, error) {
	a := &Auth{
		jwks:        jwks,
		audience:    cfg.Audience,
		issuer:      cfg.Issuer,
		keyCacheTTL: cfg.KeyCacheTTL,
		now:         time.Now,
	}
	if a.keyCacheTTL <= 0 {
		a.keyCacheTTL = defaultJWKSCacheTTL
	}
	if cfg.TestMode {
		if cfg.TestSecret == "" {
			return nil, errors.New("test mode requires a shared secret")
		}
		a.testMode = true
		a.testSecret = []byte(cfg.TestSecret)
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
		return a, nil
	}
	if jwks == nil {
		return nil, errors.New("jwks not configured")
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	return a, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerToken(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer verifies a raw bearer token and returns its subject.
func (a *Auth) UserIDFromBearer(token string) (string, error) {
	if token == "" {
		return "", errBadAuthorization
	}
	parsed, err := a.parser.Parse(token, a.keyFor)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := a.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return "", errors.New("token used before issued")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, false) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyFor(token *jwt.Token) (any, error) {
	if a.testMode {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.testSecret, nil
	}
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

// bearerToken strips the "Bearer " scheme and rejects anything that is not
// shaped like a compact JWS.
func bearerToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok {
		return "", errBadAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
