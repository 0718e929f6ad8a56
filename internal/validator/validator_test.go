package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/proctorexam/internal/model"
)

func bindBody(t *testing.T, dst any, body string) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBind_FrameDataURI(t *testing.T) {
	Setup()

	var ok model.WebcamFrameRequest
	assert.Nil(t, bindBody(t, &ok, `{"image_data":"data:image/jpeg;base64,/9j/4AAQ"}`))

	var bad model.WebcamFrameRequest
	fields := bindBody(t, &bad, `{"image_data":"data:image/gif;base64,R0lGOD=="}`)
	require.NotNil(t, fields)
	assert.Equal(t, "image_data must be a base64 JPEG, PNG or WEBP data URL", fields["image_data"])
}

func TestBind_RequiredPointerBool(t *testing.T) {
	Setup()

	var req model.WebcamConsentRequest
	fields := bindBody(t, &req, `{}`)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "consent")

	var withdrawn model.WebcamConsentRequest
	assert.Nil(t, bindBody(t, &withdrawn, `{"consent":false}`))
	require.NotNil(t, withdrawn.Consent)
	assert.False(t, *withdrawn.Consent)
}

func TestBind_SyntaxError(t *testing.T) {
	Setup()

	var req model.SubmitAnswerRequest
	fields := bindBody(t, &req, `{"content":`)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "detail")
}
