package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"n": 1}) })
	r.GET("/fail", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"content": "too long"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)

	var ok Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.Equal(t, "req-1", ok.Metadata.RequestID)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	assert.Nil(t, ok.Error)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	var fail Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fail))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, fail.Error)
	assert.Equal(t, ErrValidation, fail.Error.Code)
	assert.Equal(t, GetMessage(ErrValidation), fail.Error.Message)
	assert.Equal(t, "too long", fail.Error.Fields["content"])
	assert.NotEmpty(t, fail.Metadata.RequestID)
}

func TestGetMessage_Unknown(t *testing.T) {
	assert.Equal(t, "Terjadi kesalahan yang tidak terduga.", GetMessage("SOMETHING_ELSE"))
}
