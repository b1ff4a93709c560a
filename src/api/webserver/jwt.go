package webserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTMiddleware requires a bearer token carrying the platform identity.
func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		uid, username, ok := parseToken(h[7:], secret)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("uid", uid)
		c.Set("username", username)
		c.Next()
	}
}

// OptionalJWTMiddleware attaches the identity when a valid token is
// present and lets anonymous requests through.
func OptionalJWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if strings.HasPrefix(h, "Bearer ") {
			if uid, username, ok := parseToken(h[7:], secret); ok {
				c.Set("uid", uid)
				c.Set("username", username)
			}
		}
		c.Next()
	}
}

func parseToken(raw string, secret []byte) (uint64, string, bool) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) { return secret, nil })
	if err != nil || !tok.Valid {
		return 0, "", false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", false
	}
	uid, ok := claims["uid"].(float64)
	if !ok {
		return 0, "", false
	}
	username, _ := claims["username"].(string)
	return uint64(uid), username, true
}

func issueJWT(uid uint64, username string, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":      uid,
		"username": username,
		"jti":      uuid.NewString(),
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	return token.SignedString(secret)
}

// userID returns the authenticated platform user id, 0 when anonymous.
func userID(c *gin.Context) uint64 {
	v, ok := c.Get("uid")
	if !ok {
		return 0
	}
	uid, _ := v.(uint64)
	return uid
}
