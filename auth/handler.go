package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"sectf/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var (
	ErrMissingTokenStr         = "missing-token"
	ErrExpiredTokenStr         = "expired-token"
	ErrServerTimeoutStr        = "server-timeout"
	ErrInvalidRequestFormatStr = "bad-request-format"
	ErrInvalidCredentialsStr   = "invalid-credentials"
	ErrUnknownStr              = "unknown-error"
)

type authHandler struct {
	authService  AuthService
	cookieMaxAge time.Duration
	logger       zerolog.Logger
}

func NewAuthHandler(service AuthService, cookieMaxAge time.Duration, logger zerolog.Logger) *authHandler {
	return &authHandler{authService: service, cookieMaxAge: cookieMaxAge, logger: logger}
}

// readToken reads the session cookie, falling back to a bearer token for
// scripted clients.
func readToken(ctx *gin.Context) (string, bool) {
	if token, err := ctx.Cookie("token"); err == nil && token != "" {
		return token, true
	}
	header := ctx.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok && after != "" {
		return after, true
	}
	return "", false
}

func (ah *authHandler) RequireAuthMiddleware(trollTime time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, ok := readToken(ctx)
		if !ok {
			ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
			ctx.Abort()
			return
		}
		subject, err := ah.authService.VerifyToken(token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidSigningMethod), errors.Is(err, domain.ErrInvalidTokenSignature), errors.Is(err, domain.ErrCorruptedToken), errors.Is(err, ErrWrongRoom):
				ah.logger.Warn().Err(err).Str("ip", ctx.ClientIP()).Msg("forged token")
				time.Sleep(trollTime)
				ctx.Status(http.StatusInternalServerError)
			case errors.Is(err, domain.ErrExpiredToken):
				ctx.String(http.StatusUnauthorized, ErrExpiredTokenStr)
			default:
				ah.logger.Error().Err(err).Msg("token verification")
				ctx.String(http.StatusInternalServerError, ErrUnknownStr)
			}
			ctx.Abort()
			return
		}

		ctx.Set("subject", subject)
		ctx.Next()
	}
}

func (ah *authHandler) LoginHandler(ctx *gin.Context) {
	var credentials struct {
		Password string `json:"password"`
	}
	if err := ctx.ShouldBindJSON(&credentials); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		ctx.Abort()
		return
	}

	token, err := ah.authService.Login(ctx.Request.Context(), credentials.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrIncorrectPassword):
			ah.logger.Warn().Str("ip", ctx.ClientIP()).Msg("failed operator login")
			ctx.String(http.StatusUnauthorized, ErrInvalidCredentialsStr)
		case errors.Is(err, context.DeadlineExceeded):
			ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)
		case errors.Is(err, context.Canceled):
			ctx.Status(499)
		default:
			ah.logger.Error().Err(err).Msg("operator login")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ah.setToken(ctx, token)
	ctx.Status(http.StatusOK)
}

func (ah *authHandler) RefreshSessionHandler(ctx *gin.Context) {
	token, ok := readToken(ctx)
	if !ok {
		ctx.String(http.StatusUnauthorized, "unauthenticated")
		return
	}
	subject, err := ah.authService.VerifyToken(token)
	if err != nil {
		ctx.String(http.StatusUnauthorized, "bad-token")
		return
	}
	newToken, err := ah.authService.GenerateToken(subject)
	if err != nil {
		ah.logger.Error().Err(err).Msg("refresh token")
		ctx.Status(http.StatusInternalServerError)
		return
	}

	ah.setToken(ctx, newToken)
	ctx.Status(http.StatusOK)
}

func (ah *authHandler) LogoutHandler(ctx *gin.Context) {
	ctx.SetCookie("token", "", -1, "/", "", true, true)
}

func (ah *authHandler) setToken(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteNoneMode)
	ctx.SetCookie("token", token, int(ah.cookieMaxAge.Seconds()), "/", "", true, true)
}
