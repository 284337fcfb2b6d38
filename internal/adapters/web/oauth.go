package web

import (
	"bytes"
	"html/template"
	"modbot/internal/core/domain"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var messagePage = template.Must(template.New("message").Parse(
	`<html><head><title>{{.Title}}</title></head><body><h1>{{.Title}}</h1><p>{{.Message}}</p></body></html>`,
))

var successPage = template.Must(template.New("success").Parse(`<html>
<head><title>Bot Installation Successful</title></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; text-align: center;">
	<h1 style="color: #5865F2;">✅ Installation Successful!</h1>
	<p>Hello <strong>{{.Username}}</strong>! The bot has been successfully installed for your personal use.</p>
	<p style="margin-top: 30px; color: #666;">You can now close this window and start using the bot!</p>
</body>
</html>`))

const (
	titleAuthFailed  = "❌ Authorization Failed"
	titleConfigError = "⚠️ Configuration Error"
	titleError       = "❌ Error"
)

func (s *Server) handleOAuthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	logger := log.With().Str("component", "oauth").Str("state", c.QueryParam("state")).Logger()

	if code == "" {
		return renderMessage(c, http.StatusBadRequest, titleAuthFailed, "No authorization code received.")
	}

	if s.oauth == nil || !s.oauth.HasSecret() || s.store == nil {
		logger.Error().Msg("user installations are not configured")
		return renderMessage(c, http.StatusInternalServerError, titleConfigError, "Bot not properly configured for user installations.")
	}

	ctx := c.Request().Context()

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		logger.Warn().Err(err).Msg("code exchange failed")
		return renderMessage(c, http.StatusBadRequest, titleAuthFailed, "Failed to exchange authorization code for access token.")
	}

	user, err := s.oauth.User(ctx, token.AccessToken)
	if err != nil {
		logger.Warn().Err(err).Msg("user lookup failed")
		return renderMessage(c, http.StatusBadRequest, titleAuthFailed, "Failed to exchange authorization code for access token.")
	}

	userID, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		logger.Error().Err(err).Str("userId", user.ID).Msg("invalid user id")
		return renderMessage(c, http.StatusInternalServerError, titleError, "An error occurred during installation.")
	}

	installation := domain.Installation{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    s.now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}
	if err := s.store.UpsertInstallation(ctx, installation); err != nil {
		logger.Error().Err(err).Int64("userId", userID).Msg("failed to store installation")
		return renderMessage(c, http.StatusInternalServerError, titleError, "An error occurred during installation.")
	}

	logger.Info().Int64("userId", userID).Msg("user installation stored")

	return render(c, http.StatusOK, successPage, struct{ Username string }{user.Username})
}

func renderMessage(c echo.Context, status int, title, message string) error {
	return render(c, status, messagePage, struct{ Title, Message string }{title, message})
}

func render(c echo.Context, status int, page *template.Template, data any) error {
	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return err
	}

	return c.HTMLBlob(status, buf.Bytes())
}
