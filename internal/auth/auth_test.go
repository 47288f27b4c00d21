package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/attendance"
	"campusattend/internal/store/memory"
)

const (
	key    = "secret"
	issuer = "campus-identity"
)

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	tok, exp, err := Issue("stu-1", attendance.RoleStudent, issuer, key, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	claims, err := Parse(tok, key, issuer)
	require.NoError(t, err)
	assert.Equal(t, attendance.Actor{ID: "stu-1", Role: attendance.RoleStudent}, claims.Actor())
}

func TestParseRejects(t *testing.T) {
	now := time.Now()
	valid, _, err := Issue("stu-1", attendance.RoleStudent, issuer, key, time.Hour, now)
	require.NoError(t, err)

	_, err = Parse(valid, "other-key", issuer)
	assert.Error(t, err, "wrong key")

	_, err = Parse(valid, key, "someone-else")
	assert.Error(t, err, "wrong issuer")

	expired, _, err := Issue("stu-1", attendance.RoleStudent, issuer, key, time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = Parse(expired, key, issuer)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noRole, _, err := Issue("stu-1", attendance.Role("janitor"), issuer, key, time.Hour, now)
	require.NoError(t, err)
	_, err = Parse(noRole, key, issuer)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "x", Issuer: issuer}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = Parse(unsigned, key, issuer)
	assert.Error(t, err, "alg none")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := memory.New()
	dir.AddUser("stu-1", attendance.RoleStudent, true)
	dir.AddUser("ins-1", attendance.RoleInstructor, true)
	dir.AddUser("stu-gone", attendance.RoleStudent, false)

	r := gin.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r.GET("/staff", Authenticate(key, issuer, dir, log), RequireRole(attendance.RoleInstructor), func(c *gin.Context) {
		c.String(http.StatusOK, ActorFrom(c).ID)
	})

	call := func(subject string, role attendance.Role) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/staff", nil)
		if subject != "" {
			tok, _, err := Issue(subject, role, issuer, key, time.Hour, time.Now())
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call("ins-1", attendance.RoleInstructor)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ins-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call("", "").Code)
	assert.Equal(t, http.StatusForbidden, call("stu-1", attendance.RoleStudent).Code)
	assert.Equal(t, http.StatusForbidden, call("stu-gone", attendance.RoleStudent).Code)
	assert.Equal(t, http.StatusForbidden, call("ghost", attendance.RoleInstructor).Code)
}
