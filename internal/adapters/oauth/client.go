package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTokenURL = "https://discord.com/api/oauth2/token"
	DefaultUserURL  = "https://discord.com/api/users/@me"
)

var ErrExchangeFailed = errors.New("failed to exchange authorization code")

var ErrUserLookupFailed = errors.New("failed to look up user")

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	UserURL      string
}

type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Client exchanges authorization codes for user installations.
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(config Config) *Client {
	if config.TokenURL == "" {
		config.TokenURL = DefaultTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = DefaultUserURL
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledZerolog{log.With().Str("component", "oauth").Logger()})

	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second

	return &Client{config: config, http: client}
}

func (c *Client) HasSecret() bool {
	return c.config.ClientSecret != ""
}

func (c *Client) Exchange(ctx context.Context, code string) (Token, error) {
	form := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token Token
	if err := c.do(req, &token); err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}

	return token, nil
}

func (c *Client) User(ctx context.Context, accessToken string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.UserURL, nil)
	if err != nil {
		return User{}, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var user User
	if err := c.do(req, &user); err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrUserLookupFailed, err)
	}
	if _, err := strconv.ParseInt(user.ID, 10, 64); err != nil {
		return User{}, fmt.Errorf("%w: invalid user id %q", ErrUserLookupFailed, user.ID)
	}

	return user, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// leveledZerolog logs intermediate request failures at warn level since they are retried.
type leveledZerolog struct {
	logger zerolog.Logger
}

func (l leveledZerolog) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg(msg)
}
