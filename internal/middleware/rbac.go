package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/response"
)

// RequireStudent lets only student tokens through.
func RequireStudent() gin.HandlerFunc {
	return requireRole(response.ErrStudentAccessOnly, func(r model.Role) bool {
		return r == model.RoleStudent
	})
}

// RequireStaff lets teacher and admin tokens through.
func RequireStaff() gin.HandlerFunc {
	return requireRole(response.ErrStaffAccessOnly, model.Role.IsStaff)
}

func requireRole(code response.ErrCode, allowed func(model.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !allowed(claims.Role) {
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}
		c.Next()
	}
}
