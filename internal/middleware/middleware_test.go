package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
)

type stubAuthenticator struct {
	tokens map[string]*models.JWTClaims
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (*models.JWTClaims, error) {
	claims, ok := s.tokens[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

var testAuth = stubAuthenticator{tokens: map[string]*models.JWTClaims{
	"learner": {UserID: "u1", Role: models.RoleLearner},
	"admin":   {UserID: "a1", Role: models.RoleAdmin},
}}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		if claims := CurrentUser(c); claims != nil {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	router.POST("/items/:id", handlers...)
	return router
}

func perform(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresToken(t *testing.T) {
	router := newTestRouter(JWT(testAuth))

	w := perform(router, httptest.NewRequest(http.MethodPost, "/items/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/items/1", nil)
	req.Header.Set("Authorization", "Token learner")
	assert.Equal(t, http.StatusUnauthorized, perform(router, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/items/1", nil)
	req.Header.Set("Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, perform(router, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/items/1", nil)
	req.Header.Set("Authorization", "Bearer learner")
	w = perform(router, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestJWTReadsSessionCookie(t *testing.T) {
	router := newTestRouter(JWT(testAuth))
	req := httptest.NewRequest(http.MethodPost, "/items/1", nil)
	req.AddCookie(&http.Cookie{Name: JWTCookieName, Value: "admin"})

	w := perform(router, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a1", w.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	router := newTestRouter(OptionalJWT(testAuth))

	req := httptest.NewRequest(http.MethodPost, "/items/1", nil)
	req.Header.Set("Authorization", "Bearer forged")
	w := perform(router, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())
}

func TestRequireStaff(t *testing.T) {
	router := newTestRouter(JWT(testAuth), RequireStaff())

	req := httptest.NewRequest(http.MethodPost, "/items/1", nil)
	req.Header.Set("Authorization", "Bearer learner")
	assert.Equal(t, http.StatusForbidden, perform(router, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/items/1", nil)
	req.Header.Set("Authorization", "Bearer admin")
	assert.Equal(t, http.StatusOK, perform(router, req).Code)

	bare := newTestRouter(RequireStaff())
	assert.Equal(t, http.StatusUnauthorized, perform(bare, httptest.NewRequest(http.MethodPost, "/items/1", nil)).Code)
}

type countingLimiter struct {
	hits map[string]int
	err  error
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	if l.err != nil {
		return true, limit, l.err
	}
	l.hits[key]++
	if l.hits[key] > limit {
		return false, 0, nil
	}
	return true, limit - l.hits[key], nil
}

func TestRateLimitPerUser(t *testing.T) {
	limiter := &countingLimiter{hits: map[string]int{}}
	router := newTestRouter(JWT(testAuth), RateLimit(limiter, 2, time.Minute, nil))

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/items/1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return perform(router, req)
	}

	assert.Equal(t, http.StatusOK, call("learner").Code)
	w := call("learner")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = call("learner")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, call("admin").Code)
	assert.Contains(t, limiter.hits, "/items/:id:u1")
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	router := newTestRouter(RateLimit(limiter, 1, time.Minute, nil))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, perform(router, httptest.NewRequest(http.MethodPost, "/items/1", nil)).Code)
	}
}

type recordingAuditStore struct {
	logs []*models.AuditLog
}

func (s *recordingAuditStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	store := &recordingAuditStore{}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webinars/:id/cancel", JWT(testAuth), Audit(store, nil, models.AuditActionWebinarCancel, "webinar"), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusConflict)
			return
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/webinars/w1/cancel", nil)
	req.Header.Set("Authorization", "Bearer admin")
	require.Equal(t, http.StatusNoContent, perform(router, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/webinars/w1/cancel?fail=1", nil)
	req.Header.Set("Authorization", "Bearer admin")
	require.Equal(t, http.StatusConflict, perform(router, req).Code)

	require.Len(t, store.logs, 1)
	log := store.logs[0]
	assert.Equal(t, models.AuditActionWebinarCancel, log.Action)
	assert.Equal(t, "a1", *log.UserID)
	assert.Equal(t, "w1", *log.ResourceID)
	assert.Contains(t, string(log.NewValues), "/webinars/:id/cancel")
}
