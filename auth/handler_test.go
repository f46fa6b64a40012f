package auth_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sectf/auth"
	"sectf/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, password string) (string, error) {
	args := m.Called(ctx, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) VerifyToken(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) GenerateToken(subject string) (string, error) {
	args := m.Called(subject)
	return args.String(0), args.Error(1)
}

func TestLoginHandler(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		description   string
		body          string
		setupMocks    func(m *MockAuthService)
		expectedCode  int
		expectedBody  string
		expectedToken string
	}{
		{
			description: "successful login",
			body:        `{"password":"hunter22"}`,
			setupMocks: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "hunter22").Return("operator-token", nil)
			},
			expectedCode:  http.StatusOK,
			expectedToken: "operator-token",
		},
		{
			description: "incorrect password",
			body:        `{"password":"wrong"}`,
			setupMocks: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "wrong").Return("", auth.ErrIncorrectPassword)
			},
			expectedCode: http.StatusUnauthorized,
			expectedBody: auth.ErrInvalidCredentialsStr,
		},
		{
			description:  "non json request",
			body:         `{`,
			setupMocks:   func(m *MockAuthService) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: auth.ErrInvalidRequestFormatStr,
		},
		{
			description: "timeout",
			body:        `{"password":"pass"}`,
			setupMocks: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "pass").Return("", context.DeadlineExceeded)
			},
			expectedCode: http.StatusGatewayTimeout,
			expectedBody: auth.ErrServerTimeoutStr,
		},
		{
			description: "hashing failure",
			body:        `{"password":"pass"}`,
			setupMocks: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "pass").Return("", errors.Join(domain.HashingError, errors.New("bad hash")))
			},
			expectedCode: http.StatusInternalServerError,
			expectedBody: auth.ErrUnknownStr,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()
			mockService := new(MockAuthService)
			tc.setupMocks(mockService)

			authHandler := auth.NewAuthHandler(mockService, 100*time.Second, zerolog.Nop())
			server := gin.New()
			server.POST("/login", authHandler.LoginHandler)

			req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			res := httptest.NewRecorder()
			server.ServeHTTP(res, req)

			token := ""
			if cookies := res.Result().Cookies(); len(cookies) > 0 {
				assert.Equal(t, "token", cookies[0].Name)
				assert.Equal(t, 100, cookies[0].MaxAge)
				token = cookies[0].Value
			}
			assert.Equal(t, tc.expectedCode, res.Code)
			assert.Equal(t, tc.expectedBody, res.Body.String())
			assert.Equal(t, tc.expectedToken, token)
			mockService.AssertExpectations(t)
		})
	}
}

func TestRequireAuthMiddleware(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	setupServer := func(m *MockAuthService) *gin.Engine {
		authHandler := auth.NewAuthHandler(m, 15*time.Second, zerolog.Nop())
		server := gin.New()
		server.Use(authHandler.RequireAuthMiddleware(time.Millisecond))
		server.GET("/status", func(ctx *gin.Context) {
			ctx.String(http.StatusOK, ctx.GetString("subject"))
		})
		return server
	}

	testCases := []struct {
		description  string
		cookie       string
		bearer       string
		verify       error
		expectedCode int
		expectedBody string
	}{
		{description: "missing token", expectedCode: http.StatusUnauthorized, expectedBody: auth.ErrMissingTokenStr},
		{description: "valid cookie", cookie: "good", expectedCode: http.StatusOK, expectedBody: auth.OperatorSubject},
		{description: "valid bearer", bearer: "good", expectedCode: http.StatusOK, expectedBody: auth.OperatorSubject},
		{description: "expired", cookie: "old", verify: domain.ErrExpiredToken, expectedCode: http.StatusUnauthorized, expectedBody: auth.ErrExpiredTokenStr},
		{description: "forged", cookie: "forged", verify: domain.ErrInvalidTokenSignature, expectedCode: http.StatusInternalServerError},
		{description: "other room", bearer: "elsewhere", verify: auth.ErrWrongRoom, expectedCode: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()
			m := new(MockAuthService)
			token := tc.cookie + tc.bearer
			if token != "" {
				subject := ""
				if tc.verify == nil {
					subject = auth.OperatorSubject
				}
				m.On("VerifyToken", token).Return(subject, tc.verify)
			}

			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tc.cookie})
			}
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}
			res := httptest.NewRecorder()
			setupServer(m).ServeHTTP(res, req)

			assert.Equal(t, tc.expectedCode, res.Code)
			assert.Equal(t, tc.expectedBody, res.Body.String())
			m.AssertExpectations(t)
		})
	}
}

func TestRefreshSessionHandler(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	m := new(MockAuthService)
	m.On("VerifyToken", "valid-token").Return(auth.OperatorSubject, nil)
	m.On("GenerateToken", auth.OperatorSubject).Return("fresh-token", nil)

	server := gin.New()
	server.GET("/refresh", auth.NewAuthHandler(m, time.Minute, zerolog.Nop()).RefreshSessionHandler)
	req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "valid-token"})
	res := httptest.NewRecorder()
	server.ServeHTTP(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "fresh-token", cookies[0].Value)
	m.AssertExpectations(t)
}

func TestLogoutHandler(t *testing.T) {
	t.Parallel()
	server := gin.New()
	server.POST("/logout", auth.NewAuthHandler(new(MockAuthService), time.Minute, zerolog.Nop()).LogoutHandler)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	res := httptest.NewRecorder()
	server.ServeHTTP(res, req)

	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "token", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
