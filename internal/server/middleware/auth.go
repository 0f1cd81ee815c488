package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/neilnvaidya/owlby-api/internal/pkg/response"
)

// ContextUserIDKey is the gin context key carrying the authenticated user id.
const ContextUserIDKey = "auth_user_id"

// AuthVerifier validates bearer tokens and caches verdicts so hot clients do
// not pay signature verification on every request.
type AuthVerifier struct {
	secret   []byte
	cache    *ristretto.Cache
	cacheTTL time.Duration
}

func NewAuthVerifier(secret string, cacheSize int, cacheTTL time.Duration) *AuthVerifier {
	v := &AuthVerifier{
		secret:   []byte(secret),
		cacheTTL: cacheTTL,
	}
	if cacheSize > 0 && cacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: int64(cacheSize) * 10,
			MaxCost:     int64(cacheSize),
			BufferItems: 64,
		})
		if err == nil {
			v.cache = cache
		}
	}
	return v
}

// Middleware authenticates the request and stores the user id in the context.
func (v *AuthVerifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			response.Unauthorized(c, "authorization token is required")
			c.Abort()
			return
		}

		userID, err := v.verify(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func (v *AuthVerifier) verify(token string) (string, error) {
	key := tokenCacheKey(token)
	if v.cache != nil {
		if cached, ok := v.cache.Get(key); ok {
			if userID, ok := cached.(string); ok {
				return userID, nil
			}
		}
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}

	if v.cache != nil {
		v.cache.SetWithTTL(key, sub, 1, v.cacheTTL)
	}
	return sub, nil
}

func tokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "tok:" + hex.EncodeToString(sum[:])
}

func extractBearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// UserID returns the authenticated user id set by the auth middleware.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
