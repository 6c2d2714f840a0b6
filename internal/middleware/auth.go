package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flicky/go-marketplace-backoffice/internal/model"
)

const actorKey = "actor"

// UserLookup is the slice of the user repository the gate needs.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Authenticate resolves the caller from a bearer token. Role and status come
// from the stored user, not the token, so a block takes effect immediately.
func Authenticate(secret string, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		token, err := jwt.Parse(header[7:], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			slog.Error("load caller", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		if user.Status == model.UserStatusBlocked {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account is blocked"})
			return
		}
		if !user.Role.Valid() {
			slog.Warn("caller has unknown role", "user_id", user.ID, "role", user.Role)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown role"})
			return
		}

		// Tokens without a session claim get one cart per user.
		sessionID, _ := claims["sid"].(string)
		if sessionID == "" {
			sessionID = user.ID.String()
		}

		c.Set(actorKey, model.Actor{
			UserID:    user.ID,
			Role:      user.Role,
			Status:    user.Status,
			SessionID: sessionID,
		})
		c.Next()
	}
}

func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// GetActor returns the zero Actor when the request was not authenticated.
func GetActor(c *gin.Context) model.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(model.Actor)
	return actor
}

func IssueToken(secret string, user *model.User, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"sid":  sessionID,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
