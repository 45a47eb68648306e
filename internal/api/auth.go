package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	errMissingToken   = errors.New("missing credentials")
	errMissingSubject = errors.New("token missing subject claim")
)

// AuthConfig selects how callers are identified.
type AuthConfig struct {
	Mode     string // noop, hmac or jwks
	Secret   string
	JWKSURL  string
	Issuer   string
	Audience string
}

// Verifier turns a bearer token into the caller's profile ID.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// NewVerifier builds the verifier for cfg.Mode.
func NewVerifier(cfg AuthConfig, logger *zap.Logger) (Verifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Mode {
	case "", "noop":
		return noopVerifier{}, nil
	case "hmac":
		if cfg.Secret == "" {
			return nil, errors.New("hmac auth requires a secret")
		}
		return &jwtVerifier{
			keyfunc: func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
			methods: []string{jwt.SigningMethodHS256.Alg()},
			issuer:  cfg.Issuer, audience: cfg.Audience,
		}, nil
	case "jwks":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				logger.Warn("jwks refresh failed", zap.Error(err))
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load JWKS: %w", err)
		}
		return &jwtVerifier{
			keyfunc: jwks.Keyfunc,
			jwks:    jwks,
			issuer:  cfg.Issuer, audience: cfg.Audience,
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// noopVerifier trusts the token as the profile ID. Local use only.
type noopVerifier struct{}

func (noopVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

type jwtVerifier struct {
	keyfunc  jwt.Keyfunc
	jwks     *keyfunc.JWKS
	methods  []string
	issuer   string
	audience string
}

func (v *jwtVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", errMissingToken
	}
	options := []jwt.ParserOption{jwt.WithLeeway(5 * time.Second), jwt.WithExpirationRequired()}
	if len(v.methods) > 0 {
		options = append(options, jwt.WithValidMethods(v.methods))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	t, err := jwt.Parse(token, v.keyfunc, options...)
	if err != nil {
		return "", fmt.Errorf("token verification failed: %w", err)
	}
	sub, err := t.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errMissingSubject
	}
	return sub, nil
}

// Close stops the JWKS background refresh, if any.
func (v *jwtVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// ─── Middleware ─────────────────────────────────────────────────────────────

type profileKey struct{}

// ProfileID returns the authenticated profile ID stored by the auth middleware.
func ProfileID(ctx context.Context) string {
	id, _ := ctx.Value(profileKey{}).(string)
	return id
}

// authMiddleware resolves the caller's profile from the Authorization header.
// In noop mode an X-User-ID header is accepted as well.
func authMiddleware(v Verifier) func(http.Handler) http.Handler {
	_, noop := v.(noopVerifier)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" && noop {
				token = r.Header.Get("X-User-ID")
			}
			profileID, err := v.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), profileKey{}, profileID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
