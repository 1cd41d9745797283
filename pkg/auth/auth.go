package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/craftshop/pkg/models"
	"github.com/example/craftshop/pkg/repository"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type (
	UserSource interface {
		GetUser(ctx context.Context, id string) (*models.User, error)
	}

	UserCache interface {
		GetUserCache(ctx context.Context, userID string) (*repository.UserCache, error)
		CacheUser(ctx context.Context, user *repository.UserCache) error
	}
)

// Claims carries the user id. Tokens from the login flow put it in "id";
// "sub" is accepted as well.
type Claims struct {
	UID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// Authenticator turns a bearer token into an Identity.
type Authenticator struct {
	secret []byte
	users  UserSource
	cache  UserCache
	logger *zap.Logger
}

func NewAuthenticator(secret string, users UserSource, cache UserCache, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		users:  users,
		cache:  cache,
		logger: logger.Named("auth"),
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ParseToken verifies an HS256 token and returns the user id it names.
func (a *Authenticator) ParseToken(token string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}

	userID := claims.UserID()
	if userID == "" {
		return "", fmt.Errorf("%w: token has no user id", models.ErrUnauthenticated)
	}
	return userID, nil
}

// Authenticate resolves the Authorization header to the current user.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (models.Identity, error) {
	token, ok := BearerToken(header)
	if !ok {
		return models.Identity{}, fmt.Errorf("%w: no token, authorization denied", models.ErrUnauthenticated)
	}

	userID, err := a.ParseToken(token)
	if err != nil {
		return models.Identity{}, err
	}

	user, err := a.LookupUser(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return models.Identity{}, fmt.Errorf("%w: user not found", models.ErrUnauthenticated)
	}
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{ID: user.ID, IsAdmin: user.IsAdmin}, nil
}

// LookupUser returns the cached account for id, reading MySQL and filling
// the cache on a miss. Unknown ids give repository.ErrUserNotFound.
func (a *Authenticator) LookupUser(ctx context.Context, userID string) (*repository.UserCache, error) {
	// Try cache first
	if cached, err := a.cache.GetUserCache(ctx, userID); err == nil {
		return cached, nil
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		a.logger.Warn("User cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry := &repository.UserCache{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
	}
	if err := a.cache.CacheUser(ctx, entry); err != nil {
		a.logger.Warn("User cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return entry, nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity placed by the auth middleware.
func FromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}
