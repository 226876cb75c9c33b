package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/middleware"
	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/internal/service"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
)

type applicationFlowMock struct {
	hubErr       error
	submitErr    error
	stepErr      error
	nextStep     string
	lastContact  models.ContactInformationRequest
	lastCover    models.CoverLetterRequest
	lastInterest models.BusinessLineInterestRequest
	resume       *storage.Upload
}

func (m *applicationFlowMock) Hub(ctx context.Context, actor *models.JWTClaims) (*service.HubView, error) {
	if m.hubErr != nil {
		return nil, m.hubErr
	}
	return &service.HubView{ObjectivesCompleted: 1}, nil
}

func (m *applicationFlowMock) Submit(ctx context.Context, actor *models.JWTClaims) error {
	return m.submitErr
}

func (m *applicationFlowMock) ContactInformation(ctx context.Context, actor *models.JWTClaims) (*service.ApplicationStepView, error) {
	return &service.ApplicationStepView{}, m.stepErr
}

func (m *applicationFlowMock) SaveContactInformation(ctx context.Context, actor *models.JWTClaims, req models.ContactInformationRequest, resume *storage.Upload) (string, error) {
	m.lastContact = req
	m.resume = resume
	return m.nextStep, m.stepErr
}

func (m *applicationFlowMock) EducationExperience(ctx context.Context, actor *models.JWTClaims) (*service.ApplicationStepView, error) {
	return nil, m.stepErr
}

func (m *applicationFlowMock) CompleteEducationExperience(ctx context.Context, actor *models.JWTClaims) (string, error) {
	return m.nextStep, m.stepErr
}

func (m *applicationFlowMock) CoverLetter(ctx context.Context, actor *models.JWTClaims) (*service.ApplicationStepView, error) {
	return nil, m.stepErr
}

func (m *applicationFlowMock) SaveCoverLetter(ctx context.Context, actor *models.JWTClaims, req models.CoverLetterRequest, file *storage.Upload) (string, error) {
	m.lastCover = req
	return m.nextStep, m.stepErr
}

func (m *applicationFlowMock) BusinessLineInterest(ctx context.Context, actor *models.JWTClaims) (*service.ApplicationStepView, error) {
	return nil, m.stepErr
}

func (m *applicationFlowMock) SetBusinessLineInterest(ctx context.Context, actor *models.JWTClaims, req models.BusinessLineInterestRequest) error {
	m.lastInterest = req
	return m.stepErr
}

func (m *applicationFlowMock) Success(ctx context.Context, actor *models.JWTClaims) (*service.SuccessView, error) {
	return &service.SuccessView{}, m.stepErr
}

var learnerClaims = models.JWTClaims{UserID: "u1", Username: "learner", Role: models.RoleLearner}

func learnerContext(w *httptest.ResponseRecorder, req *http.Request) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	claims := learnerClaims
	c.Set(middleware.ContextUserKey, &claims)
	return c
}

// serveAsLearner routes req through an engine so redirects and empty
// responses flush their status like they do in production.
func serveAsLearner(route string, h gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Handle(req.Method, route, func(c *gin.Context) {
		claims := learnerClaims
		c.Set(middleware.ContextUserKey, &claims)
		c.Next()
	}, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestApplicationHandlerHub(t *testing.T) {
	handler := NewApplicationHandler(&applicationFlowMock{})

	w := httptest.NewRecorder()
	handler.Hub(learnerContext(w, httptest.NewRequest(http.MethodGet, PathApplicationHub, nil)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"objectives_completed":1`)
}

func TestApplicationHandlerSubmitRedirectsToSuccess(t *testing.T) {
	handler := NewApplicationHandler(&applicationFlowMock{})

	w := serveAsLearner(PathApplicationHub, handler.Submit, httptest.NewRequest(http.MethodPost, PathApplicationHub, nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, PathApplicationSuccess, w.Header().Get("Location"))
}

func TestApplicationHandlerSubmitWithIncompletePrerequisites(t *testing.T) {
	handler := NewApplicationHandler(&applicationFlowMock{submitErr: appErrors.ErrPrereqsIncomplete})

	w := httptest.NewRecorder()
	handler.Submit(learnerContext(w, httptest.NewRequest(http.MethodPost, PathApplicationHub, nil)))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrPrereqsIncomplete.Code)
}

func TestApplicationHandlerSaveContactRedirectsToNextStep(t *testing.T) {
	mock := &applicationFlowMock{nextStep: service.StepEducationExperience}
	handler := NewApplicationHandler(mock)

	req := formRequest(http.MethodPost, PathApplicationContact, url.Values{
		"organization": {"Acme"},
		"linkedin_url": {"https://www.linkedin.com/in/learner"},
	})
	w := serveAsLearner(PathApplicationContact, handler.SaveContact, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, PathApplicationEducation, w.Header().Get("Location"))
	assert.Equal(t, "Acme", mock.lastContact.Organization)
	assert.Nil(t, mock.resume)
}

func TestApplicationHandlerSaveCoverLetterBackGoesToHub(t *testing.T) {
	mock := &applicationFlowMock{nextStep: service.StepHub}
	handler := NewApplicationHandler(mock)

	req := formRequest(http.MethodPost, PathApplicationCoverLetter, url.Values{
		"business_line": {"bl1"},
		"button_click":  {"back"},
	})
	w := serveAsLearner(PathApplicationCoverLetter, handler.SaveCoverLetter, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, PathApplicationHub, w.Header().Get("Location"))
	assert.Equal(t, "back", mock.lastCover.Action)
}

func TestApplicationHandlerStepPagesRedirect(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		location string
	}{
		{name: "submitted", err: appErrors.ErrAlreadySubmitted, location: PathApplicationSuccess},
		{name: "unavailable", err: appErrors.ErrStepUnavailable, location: PathApplicationHub},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewApplicationHandler(&applicationFlowMock{stepErr: tc.err})

			w := serveAsLearner(PathApplicationCoverLetter, handler.CoverLetter, httptest.NewRequest(http.MethodGet, PathApplicationCoverLetter, nil))

			require.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, tc.location, w.Header().Get("Location"))
		})
	}
}

func TestApplicationHandlerPostOnUnavailableStepIsBadRequest(t *testing.T) {
	handler := NewApplicationHandler(&applicationFlowMock{stepErr: appErrors.ErrStepUnavailable})

	w := httptest.NewRecorder()
	handler.CompleteEducation(learnerContext(w, httptest.NewRequest(http.MethodPost, PathApplicationEducation, nil)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplicationHandlerBusinessLineInterest(t *testing.T) {
	mock := &applicationFlowMock{}
	handler := NewApplicationHandler(mock)

	req := formRequest(http.MethodPost, PathApplicationBusinessLine, url.Values{"business_line": {"bl1"}})
	w := serveAsLearner(PathApplicationBusinessLine, handler.SetBusinessLineInterest, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, PathApplicationHub, w.Header().Get("Location"))
	assert.Equal(t, "bl1", mock.lastInterest.BusinessLineID)
}
