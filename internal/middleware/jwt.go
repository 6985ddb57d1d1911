// internal/middleware/jwt.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "recruit-inbox"

// Claims represents the JWT claims issued by the identity service
type Claims struct {
	ProfileID uuid.UUID `json:"profile_id"`
	jwt.RegisteredClaims
}

// UnprotectedRoutes defines routes that don't require JWT authentication
var UnprotectedRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// QueryTokenRoutes may carry the token as ?token= because browsers cannot
// set headers on a WebSocket upgrade.
var QueryTokenRoutes = map[string]bool{
	"/ws": true,
}

// Authenticator validates bearer tokens and resolves the calling profile.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	return &Authenticator{secret: []byte(cfg.JWTSecret), ttl: cfg.TokenTTL}
}

// GenerateToken creates a token for profileID. Tokens are normally issued by
// the identity service; this exists for tooling and tests.
func (a *Authenticator) GenerateToken(profileID uuid.UUID) (string, error) {
	now := time.Now()
	claims := &Claims{
		ProfileID: profileID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   profileID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates the provided JWT token
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Verify signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ProfileID == uuid.Nil {
		return nil, errors.New("token carries no profile")
	}
	return claims, nil
}

func (a *Authenticator) extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if QueryTokenRoutes[r.URL.Path] {
			if token := r.URL.Query().Get("token"); token != "" {
				return token, nil
			}
		}
		return "", utils.NewUnauthorizedError("authorization header required")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", utils.NewUnauthorizedError("invalid authorization format")
	}
	return strings.TrimPrefix(authHeader, "Bearer "), nil
}

// Middleware validates the caller's token and stores the profile id in the
// request context. It fits gorilla/mux's Router.Use.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UnprotectedRoutes[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := a.extractToken(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			slog.Debug("JWT validation failed", "path", r.URL.Path, "error", err)
			writeAuthError(w, utils.NewAppError(utils.ErrInvalidToken, "Invalid token", err))
			return
		}

		ctx := SetProfileIDInContext(r.Context(), claims.ProfileID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		appErr = utils.NewUnauthorizedError("invalid credentials")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

// Define a custom context key type to avoid collisions
type contextKey string

// ProfileIDKey is the key used to store the caller's profile id in the context
const ProfileIDKey contextKey = "profile_id"

// SetProfileIDInContext saves the profile id in the request context
func SetProfileIDInContext(ctx context.Context, profileID uuid.UUID) context.Context {
	return context.WithValue(ctx, ProfileIDKey, profileID)
}

// GetProfileIDFromContext retrieves the profile id from the context
func GetProfileIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	profileID, ok := ctx.Value(ProfileIDKey).(uuid.UUID)
	return profileID, ok
}
