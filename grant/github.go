package grant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ethauth"
)

const (
	defaultGitHubAuthURL   = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL  = "https://github.com/login/oauth/access_token"
	defaultGitHubUserURL   = "https://api.github.com/user"
	defaultGitHubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubConfig overrides the GitHub endpoints. Zero values select the
// public API.
type GitHubConfig struct {
	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// GitHubScopes returns the default GitHub scopes.
func GitHubScopes() []string {
	return []string{"user:email", "read:user"}
}

// GitHub implements Provider
type GitHub struct {
	config     GitHubConfig
	httpClient *http.Client
}

// NewGitHub creates a new GitHub provider.
func NewGitHub(cfg GitHubConfig) *GitHub {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultGitHubAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultGitHubTokenURL
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultGitHubUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultGitHubEmailsURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &GitHub{
		config:     cfg,
		httpClient: client,
	}
}

func (p *GitHub) Name() string {
	return "github"
}

func (p *GitHub) AuthCodeURL(settings ethauth.ProviderSettings, callback, state string) string {
	scopes := settings.Scope
	if len(scopes) == 0 {
		scopes = GitHubScopes()
	}

	params := url.Values{
		"client_id":    {settings.Key},
		"redirect_uri": {callback},
		"scope":        {strings.Join(scopes, " ")},
	}
	if state != "" {
		params.Set("state", state)
	}

	return p.config.AuthURL + "?" + params.Encode()
}

func (p *GitHub) Exchange(ctx context.Context, settings ethauth.ProviderSettings, code, callback string) (string, error) {
	data := url.Values{
		"client_id":     {settings.Key},
		"client_secret": {settings.Secret},
		"code":          {code},
	}
	if callback != "" {
		data.Set("redirect_uri", callback)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var tokenResp githubTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", githubError("exchange", resp.StatusCode, "invalid_response", "failed to decode token response", err)
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		return "", githubError("exchange", resp.StatusCode, tokenResp.Error, tokenResp.ErrorDesc, nil)
	}

	if tokenResp.AccessToken == "" {
		return "", githubError("exchange", resp.StatusCode, "missing_access_token", "missing access token", nil)
	}

	return tokenResp.AccessToken, nil
}

func (p *GitHub) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	var user githubUser
	if err := p.get(ctx, "user_info", p.config.UserURL, accessToken, &user); err != nil {
		return nil, err
	}

	profile := &Profile{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Username:       user.Login,
		Email:          user.Email,
	}

	var emails []githubEmail
	if err := p.get(ctx, "emails", p.config.EmailsURL, accessToken, &emails); err != nil {
		return profile, nil
	}

	if email, ok := primaryEmail(emails); ok {
		profile.Email = email.Email
		profile.EmailVerified = email.Verified
	}

	return profile, nil
}

func (p *GitHub) get(ctx context.Context, operation, target, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return githubError(operation, resp.StatusCode, "", apiErrorMessage(body), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return githubError(operation, resp.StatusCode, "invalid_response", "failed to decode response", err)
	}

	return nil
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type githubTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

type githubAPIError struct {
	Message string `json:"message"`
}

// primaryEmail picks the verified primary address, else any verified one.
// Unverified addresses are never returned.
func primaryEmail(emails []githubEmail) (githubEmail, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e, true
		}
	}

	for _, e := range emails {
		if e.Verified {
			return e, true
		}
	}

	return githubEmail{}, false
}

func apiErrorMessage(body []byte) string {
	var apiErr githubAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "github request failed"
	}

	return msg
}

func githubError(operation string, status int, code, description string, err error) *ProviderError {
	return &ProviderError{
		Provider:    "github",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}
