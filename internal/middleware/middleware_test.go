package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(tokens *service.TokenService) *gin.Engine {
	r := gin.New()
	ok := func(c *gin.Context) { c.String(http.StatusOK, "%d", GetClaims(c).UserID) }
	r.GET("/student", Authenticate(tokens), RequireStudent(), ok)
	r.GET("/staff", Authenticate(tokens), RequireStaff(), ok)
	return r
}

func TestAuthenticateAndRoles(t *testing.T) {
	tokens := service.NewTokenService("secret", time.Hour)
	r := newAuthRouter(tokens)
	studentTok, err := tokens.Issue(5, model.RoleStudent, time.Now())
	require.NoError(t, err)
	teacherTok, err := tokens.Issue(9, model.RoleTeacher, time.Now())
	require.NoError(t, err)
	expiredTok, err := service.NewTokenService("secret", time.Second).Issue(5, model.RoleStudent, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		header   string
		query    string
		wantCode int
		wantBody string
	}{
		{"no token", "/student", "", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"garbage", "/student", "Bearer nope", "", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"expired", "/student", "Bearer " + expiredTok, "", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"student ok", "/student", "Bearer " + studentTok, "", http.StatusOK, "5"},
		{"query token", "/student", "", studentTok, http.StatusOK, "5"},
		{"teacher on student route", "/student", "Bearer " + teacherTok, "", http.StatusForbidden, "STUDENT_ACCESS_ONLY"},
		{"student on staff route", "/staff", "Bearer " + studentTok, "", http.StatusForbidden, "STAFF_ACCESS_ONLY"},
		{"teacher on staff route", "/staff", "Bearer " + teacherTok, "", http.StatusOK, "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.path
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/x", NoStore(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("proctor ", 512)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "tiny") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "tiny", w.Body.String())
}

func TestRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	rl := NewRateLimiter(rdb, 1, time.Minute, zerolog.Nop())
	r := gin.New()
	r.POST("/frames", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/frames", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.POST("/frames", BodyLimit(16), func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusCreated)
	})

	tests := []struct {
		name string
		body io.Reader
		want int
	}{
		{"within limit", strings.NewReader("0123456789abcdef"), http.StatusCreated},
		{"declared length over limit", strings.NewReader(strings.Repeat("x", 17)), http.StatusRequestEntityTooLarge},
		{"unknown length over limit", io.MultiReader(strings.NewReader(strings.Repeat("x", 64))), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/frames", tt.body))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestFrameBodyLimit(t *testing.T) {
	// 3 raw bytes encode to 4 base64 characters.
	assert.Equal(t, int64(4+4096), FrameBodyLimit(3))
	assert.Greater(t, FrameBodyLimit(512*1024), int64(512*1024*4/3))
}
