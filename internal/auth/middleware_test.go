package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T, key, issuer string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	g := r.Group("/v1", Middleware(key, issuer))
	g.GET("/whoami", func(c *gin.Context) {
		p := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": p.Role})
	})
	g.POST("/manage", RequireManage(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestMiddleware(t *testing.T) {
	const key, issuer = "test-key", "classtrack"
	r := testRouter(t, key, issuer)

	teacher, err := Issue("t1", RoleTeacher, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)
	student, err := Issue("s1", RoleStudent, issuer, key, time.Minute, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := Issue("t1", RoleTeacher, "someone-else", key, time.Minute, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		authHeader string
		wantStatus int
	}{
		{name: "no token", method: http.MethodGet, path: "/v1/whoami", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", method: http.MethodGet, path: "/v1/whoami", authHeader: "Token abc", wantStatus: http.StatusUnauthorized},
		{name: "wrong issuer", method: http.MethodGet, path: "/v1/whoami", authHeader: "Bearer " + wrongIssuer.AccessToken, wantStatus: http.StatusUnauthorized},
		{name: "valid token", method: http.MethodGet, path: "/v1/whoami", authHeader: "Bearer " + teacher.AccessToken, wantStatus: http.StatusOK},
		{name: "teacher can manage", method: http.MethodPost, path: "/v1/manage", authHeader: "Bearer " + teacher.AccessToken, wantStatus: http.StatusOK},
		{name: "student cannot manage", method: http.MethodPost, path: "/v1/manage", authHeader: "Bearer " + student.AccessToken, wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestFromContextDefaultsEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, Principal{}, FromContext(c))
}
