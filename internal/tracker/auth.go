package tracker

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthProvider yields a token usable against the issue tracker API.
type AuthProvider interface {
	Token(repo string) (string, error)
}

// TokenAuth is a personal access token. It never expires from our side.
type TokenAuth struct {
	AccessToken string
}

// Token returns the configured access token.
func (t *TokenAuth) Token(string) (string, error) {
	if t.AccessToken == "" {
		return "", fmt.Errorf("access token is empty")
	}
	return t.AccessToken, nil
}

// AppAuth authenticates as a GitHub App: a short-lived JWT signed with
// the App private key is exchanged for an installation access token
// scoped to the target repository.
type AppAuth struct {
	AppID      string
	PrivateKey string

	// APIBase overrides the GitHub API root (tests).
	APIBase string

	httpClient *http.Client

	cachedToken   string
	cachedExpires time.Time
}

// NewAppAuth creates an App authenticator.
func NewAppAuth(appID, privateKey string) *AppAuth {
	return &AppAuth{
		AppID:      appID,
		PrivateKey: privateKey,
		APIBase:    "https://api.github.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns a cached installation token, minting a fresh one when
// the cached token is within a minute of expiry.
func (a *AppAuth) Token(repo string) (string, error) {
	if a.cachedToken != "" && time.Until(a.cachedExpires) > time.Minute {
		return a.cachedToken, nil
	}

	jwtToken, err := a.generateJWT()
	if err != nil {
		return "", err
	}

	installationID, err := a.installationID(jwtToken, repo)
	if err != nil {
		return "", err
	}

	token, expires, err := a.installationToken(jwtToken, installationID)
	if err != nil {
		return "", err
	}

	a.cachedToken = token
	a.cachedExpires = expires
	return token, nil
}

// generateJWT creates the App-level JWT. GitHub rejects tokens valid for
// more than 10 minutes.
func (a *AppAuth) generateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

func (a *AppAuth) installationID(jwtToken, repo string) (int64, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/installation", a.APIBase, owner, name)
	var result struct {
		ID int64 `json:"id"`
	}
	if err := a.getJSON(url, jwtToken, &result); err != nil {
		return 0, fmt.Errorf("failed to get installation: %w", err)
	}
	return result.ID, nil
}

func (a *AppAuth) installationToken(jwtToken string, installationID int64) (string, time.Time, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.APIBase, installationID)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create request: %w", err)
	}
	setAPIHeaders(req, jwtToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Token, result.ExpiresAt, nil
}

func (a *AppAuth) getJSON(url, jwtToken string, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	setAPIHeaders(req, jwtToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func setAPIHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}
	return parts[0], parts[1], nil
}
