package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newProtectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	validator := validatorStub{
		"applicant": {UserID: "A1", Role: models.RoleApplicant},
		"staff":     {UserID: "I1", Role: models.RoleInstructor},
	}
	r.GET("/applicants/:applicantId/assignments", JWT(validator), RBAC(string(models.RoleAdmin), string(models.RoleInstructor), "SELF"),
		func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/assignments", JWT(validator), RequireRoles(models.RoleAdmin, models.RoleInstructor),
		func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func serve(r *gin.Engine, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWTAndRBAC(t *testing.T) {
	r := newProtectedRouter()

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/applicants/A1/assignments", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/applicants/A1/assignments", "forged"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/applicants/A1/assignments", "applicant"))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/applicants/A2/assignments", "applicant"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/applicants/A2/assignments", "staff"))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/assignments", "applicant"))
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/assignments", "staff"))
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	r := newProtectedRouter()
	req := httptest.NewRequest(http.MethodGet, "/applicants/A1/assignments", nil)
	req.Header.Set("Authorization", "Token applicant")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
