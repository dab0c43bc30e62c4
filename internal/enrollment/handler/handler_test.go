package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"praman/internal/enrollment/device"
	"praman/internal/enrollment/handler/mocks"
	"praman/internal/enrollment/models"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/httputil"
	"praman/pkg/requestcontext"
	"praman/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router      http.Handler
	ctrl        *gomock.Controller
	mockService *mocks.MockService
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(s.mockService, logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithClientMetadata(r.Context(), "203.0.113.7", r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent/1.0")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestStart() {
	s.mockService.EXPECT().Start(gomock.Any(), "user-1").
		Return(&models.CreationOptions{Challenge: "abc", User: models.User{ID: "user-1"}}, nil)

	rec := s.do("/enrollment/start", `{"userId":" user-1 "}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var opts models.CreationOptions
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &opts))
	s.Equal("abc", opts.Challenge)
	s.Equal("user-1", opts.User.ID)
}

func (s *HandlerSuite) TestStart_AnonymousAndInvalid() {
	s.mockService.EXPECT().Start(gomock.Any(), "").Return(&models.CreationOptions{}, nil)
	rec := s.do("/enrollment/start", `{}`)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do("/enrollment/start", `{"userId":"`+strings.Repeat("u", models.MaxUserIDLength+1)+`"}`)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do("/enrollment/start", `nope`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestVerify_Created() {
	s.mockService.EXPECT().
		Verify(gomock.Any(), models.VerifyCommand{
			UserID:         "handle-1",
			CredentialID:   "cred-1",
			ClientDataJSON: "cd",
			PublicKey:      "pk",
			ClientIP:       "203.0.113.7",
			UserAgent:      "test-agent/1.0",
		}).
		Return(&models.Result{
			DID:        testutil.TestDIDs.Subject,
			DeviceType: device.TypeDesktop,
			DeviceName: "Unknown Browser on Unknown OS",
			EnrolledAt: testutil.FixedTime,
		}, nil)

	rec := s.do("/enrollment/verify",
		`{"userId":"body-user","credential":{"id":"cred-1","response":{"clientDataJSON":"cd","publicKey":"pk","userHandle":"handle-1"}}}`)
	s.Require().Equal(http.StatusCreated, rec.Code)
	s.Contains(rec.Body.String(), `"did":"`+testutil.TestDIDs.Subject.String()+`"`)
	s.Contains(rec.Body.String(), `"deviceType":"desktop"`)
}

func (s *HandlerSuite) TestVerify_RequestValidation() {
	cases := map[string]string{
		"missing credential": `{"userId":"u"}`,
		"missing user":       `{"credential":{"id":"c","response":{}}}`,
		"missing id":         `{"userId":"u","credential":{"response":{}}}`,
	}
	for name, body := range cases {
		s.Run(name, func() {
			rec := s.do("/enrollment/verify", body)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestVerify_Duplicate() {
	s.mockService.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(nil, &models.DuplicateEnrollmentError{DID: testutil.TestDIDs.Subject})

	rec := s.do("/enrollment/verify", `{"userId":"u","credential":{"id":"c","response":{"clientDataJSON":"cd","publicKey":"pk"}}}`)
	s.Require().Equal(http.StatusConflict, rec.Code)

	var body DuplicateResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("DUPLICATE_ENROLLMENT", body.Code)
	s.Equal(testutil.TestDIDs.Subject.String(), body.DID)
}

func (s *HandlerSuite) TestVerify_ErrorMapping() {
	cases := map[string]struct {
		err    error
		status int
	}{
		"expired":   {dErrors.New(dErrors.CodeExpired, "enrollment challenge has expired"), http.StatusGone},
		"not found": {dErrors.New(dErrors.CodeNotFound, "no pending enrollment for user"), http.StatusNotFound},
		"bad key":   {dErrors.New(dErrors.CodeInvalidKeyFormat, "publicKey is not a SubjectPublicKeyInfo"), http.StatusBadRequest},
		"internal":  {dErrors.New(dErrors.CodeInternal, "failed to register did"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			s.mockService.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil, tc.err)
			rec := s.do("/enrollment/verify", `{"userId":"u","credential":{"id":"c","response":{}}}`)
			s.Equal(tc.status, rec.Code)

			var body httputil.ErrorResponse
			s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
			s.Equal(string(dErrors.CodeOf(tc.err)), body.Code)
		})
	}
}
