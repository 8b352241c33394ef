package handler

import (
	"crypto/subtle"
	"dealchat/backend/internal/config"
	"dealchat/backend/internal/models"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a relay token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a relay token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// RelayClaims pins a connection to one user.
type RelayClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueKeyHeader carries the shared key that authorizes GET /token.
const IssueKeyHeader = "X-Relay-Issue-Key"

// TokenIssuer signs and verifies HS256 relay tokens.
type TokenIssuer struct {
	// IssueKey must accompany GET /token requests. Empty disables the
	// endpoint; tokens are then minted elsewhere with the shared secret.
	IssueKey string

	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenIssuer returns nil when secret is empty, which leaves the relay
// open: connections are then bound by their first event.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, issuer: config.TokenIssuer, now: time.Now}
}

// Issue signs a token for userID and returns it with its expiry.
func (t *TokenIssuer) Issue(userID string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := RelayClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	return signed, exp, err
}

// Parse verifies raw and returns the normalized user id it carries.
func (t *TokenIssuer) Parse(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &RelayClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*RelayClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	user := models.NormalizeUserID(claims.UserID)
	if user == "" {
		return "", ErrInvalidToken
	}
	return user, nil
}

// bearerToken reads the token from the Authorization header or, for
// browsers that cannot set headers on a websocket, the token query param.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

// GetToken issues a relay token for ?user=<id> to a caller holding the
// issue key, normally the marketplace backend after its own login.
func (h *Handler) GetToken(c *gin.Context) {
	if h.Tokens == nil || h.Tokens.IssueKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Token issuing is disabled"})
		return
	}
	key := c.GetHeader(IssueKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.Tokens.IssueKey)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid issue key"})
		return
	}
	user := models.NormalizeUserID(c.Query("user"))
	if !models.ValidUserID(user) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A user id without '" + models.RoomSeparator + "' is required"})
		return
	}

	token, exp, err := h.Tokens.Issue(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": user, "expiresAt": exp.UTC()})
}

// RequireToken rejects requests without a valid bearer token when token
// issuing is enabled.
func (h *Handler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Tokens == nil {
			c.Next()
			return
		}
		user, err := h.Tokens.Parse(bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}
