package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "pairchat"
	tokenTTL    = 72 * time.Hour
	claimFP     = "fp"
)

// generateJWT signs a token carrying fingerprint.
func generateJWT(fingerprint, secret string) (string, error) {
	claims := jwt.MapClaims{
		claimFP: fingerprint,
		"exp":   time.Now().Add(tokenTTL).Unix(),
		"iss":   tokenIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// parseJWT verifies tokenString and returns the fingerprint it carries.
func parseJWT(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}
	fp, _ := claims[claimFP].(string)
	if fp == "" {
		return "", fmt.Errorf("token has no %q claim", claimFP)
	}
	return fp, nil
}

// bearerToken returns the token from ?token= or the Authorization header.
func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// GetAnonID mints a fingerprint and returns it with a signed token.
func (h *Handler) GetAnonID(c *gin.Context) {
	fingerprint := uuid.New().String()

	token, err := generateJWT(fingerprint, h.cfg.JWTSecret)
	if err != nil {
		h.log.Error("failed to sign token", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "fingerprint": fingerprint})
}
