package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID, guildID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"guild_id": guildID,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/api/v1/market")
	group.Use(JWTAuth(testSecret), RateLimit())
	group.GET("/listings", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString("userID")})
	})
	return router
}

func get(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_KeysOnAuthenticatedUser(t *testing.T) {
	router := protectedRouter()
	alice := signToken(t, "ml-alice", "g1")
	bob := signToken(t, "ml-bob", "g1")

	// Burst of one: Alice's second immediate request is throttled.
	assert.Equal(t, http.StatusOK, get(router, "/api/v1/market/listings", alice).Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/market/listings", alice).Code)

	// Bob has his own bucket even though both requests share a client IP.
	assert.Equal(t, http.StatusOK, get(router, "/api/v1/market/listings", bob).Code)
}

func TestRateLimit_FallsBackToClientIPWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/api/v1/auth")
	group.Use(RateLimit())
	group.POST("/token", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusBadRequest, post(), "same IP shares one bucket")
}

func TestJWTAuth_RejectsBadTokens(t *testing.T) {
	router := protectedRouter()

	assert.Equal(t, http.StatusUnauthorized, get(router, "/api/v1/market/listings", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/api/v1/market/listings", "not-a-token").Code)

	// Missing guild_id claim is rejected even when the signature checks out.
	incomplete := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "ml-claims",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := incomplete.SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/api/v1/market/listings", signed).Code)
}
