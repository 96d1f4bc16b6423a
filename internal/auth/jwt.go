package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

const userKey = "auth_user"

// UserLookup loads the account a token refers to.
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// Verifier checks HS256 bearer tokens whose subject is a user id.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a token verifier.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for a user, used by tooling and tests.
func (v *Verifier) Issue(userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses a token and returns the user id in its subject.
func (v *Verifier) Verify(token string) (uint, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid token subject")
	}
	return uint(id), nil
}

// Middleware authenticates an optional bearer token. Requests without a token
// proceed anonymously; a bad token or unknown user is rejected with 401.
func Middleware(v *Verifier, users UserLookup, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abort(c, "Invalid authorization header")
			return
		}

		id, err := v.Verify(token)
		if err != nil {
			log.Debug().Err(err).Msg("Rejected bearer token")
			abort(c, "Invalid or expired token")
			return
		}

		user, err := users.GetByID(id)
		if err != nil {
			log.Warn().Err(err).Uint("user_id", id).Msg("Token for unknown user")
			abort(c, "Invalid or expired token")
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":     msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// SetUser stores the user on the request context.
func SetUser(c *gin.Context, user *models.User) {
	c.Set(userKey, user)
}
