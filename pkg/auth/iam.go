package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/blueberrycongee/wxai/internal/httputil"
	"github.com/blueberrycongee/wxai/pkg/cache"
	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

const (
	// DefaultIAMURL is the IBM Cloud IAM token endpoint.
	DefaultIAMURL = "https://iam.cloud.ibm.com/identity/token"

	// APIKeyGrantType is the grant used to exchange an API key for a token.
	APIKeyGrantType = "urn:ibm:params:oauth:grant-type:apikey"

	// DefaultRefreshMargin is how long before expiry a token is replaced.
	DefaultRefreshMargin = 5 * time.Minute

	defaultIAMTimeout = 30 * time.Second
)

// ErrMissingAPIKey is returned when IAMConfig has no API key.
var ErrMissingAPIKey = errors.New("auth: IAM api key is required")

// IAMConfig configures an IAMAuthenticator.
type IAMConfig struct {
	APIKey string

	// URL overrides DefaultIAMURL, for private endpoints and tests.
	URL string

	HTTPClient *http.Client

	// Timeout bounds a single token exchange. Defaults to 30s.
	Timeout time.Duration

	// RefreshMargin defaults to DefaultRefreshMargin.
	RefreshMargin time.Duration

	// Cache, when set, shares tokens with other processes using the same
	// key. Entries are keyed by a digest of the API key, never the key
	// itself.
	Cache cache.Cache

	Logger *slog.Logger
}

// IAMAuthenticator exchanges an IBM Cloud API key for short-lived bearer
// tokens and reuses them until shortly before they expire.
type IAMAuthenticator struct {
	src oauth2.TokenSource
}

// NewIAMAuthenticator validates cfg and returns an authenticator. No token
// is fetched until the first request.
func NewIAMAuthenticator(cfg IAMConfig) (*IAMAuthenticator, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.URL == "" {
		cfg.URL = DefaultIAMURL
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("auth: invalid IAM url: %w", err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultIAMTimeout
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	src := &iamTokenSource{cfg: cfg, cacheKey: tokenCacheKey(cfg.APIKey)}
	return &IAMAuthenticator{
		src: oauth2.ReuseTokenSourceWithExpiry(nil, src, cfg.RefreshMargin),
	}, nil
}

// Token returns a valid IAM token, fetching one if needed. It satisfies
// oauth2.TokenSource.
func (a *IAMAuthenticator) Token() (*oauth2.Token, error) {
	return a.src.Token()
}

// Authenticate sets the Authorization header from a valid token.
func (a *IAMAuthenticator) Authenticate(ctx context.Context, req *http.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tok, err := a.src.Token()
	if err != nil {
		return fmt.Errorf("get iam token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

func tokenCacheKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "iam:token:" + hex.EncodeToString(sum[:16])
}

// iamTokenSource performs the actual exchange. It is wrapped in a reuse
// source so it only runs when the held token is near expiry.
type iamTokenSource struct {
	cfg      IAMConfig
	cacheKey string
}

type iamTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Expiration   int64  `json:"expiration"`
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

func (s *iamTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if tok := s.fromSharedCache(ctx); tok != nil {
		return tok, nil
	}

	tok, err := s.exchange(ctx)
	if err != nil {
		return nil, err
	}
	s.toSharedCache(ctx, tok)
	return tok, nil
}

func (s *iamTokenSource) fromSharedCache(ctx context.Context) *oauth2.Token {
	if s.cfg.Cache == nil {
		return nil
	}
	var ct cachedToken
	found, err := cache.GetJSON(ctx, s.cfg.Cache, s.cacheKey, &ct)
	if err != nil {
		s.cfg.Logger.Warn("iam token cache read failed", "error", err)
		return nil
	}
	if !found || ct.AccessToken == "" || time.Until(ct.Expiry) <= s.cfg.RefreshMargin {
		return nil
	}
	s.cfg.Logger.Debug("iam token reused from shared cache", "expires_at", ct.Expiry)
	return &oauth2.Token{AccessToken: ct.AccessToken, TokenType: ct.TokenType, Expiry: ct.Expiry}
}

func (s *iamTokenSource) toSharedCache(ctx context.Context, tok *oauth2.Token) {
	if s.cfg.Cache == nil || tok.Expiry.IsZero() {
		return
	}
	ttl := time.Until(tok.Expiry) - s.cfg.RefreshMargin
	if ttl <= 0 {
		return
	}
	ct := cachedToken{AccessToken: tok.AccessToken, TokenType: tok.TokenType, Expiry: tok.Expiry}
	if err := cache.SetJSON(ctx, s.cfg.Cache, s.cacheKey, ct, ttl); err != nil {
		s.cfg.Logger.Warn("iam token cache write failed", "error", err)
	}
}

func (s *iamTokenSource) exchange(ctx context.Context) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", APIKeyGrantType)
	form.Set("apikey", s.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create iam request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("iam request: %w", err)
	}
	defer func() { _ = httputil.DrainAndClose(resp.Body) }()

	if resp.StatusCode != http.StatusOK {
		apiErr := llmerrors.FromResponse(resp.StatusCode, httputil.ReadErrorBody(resp.Body))
		apiErr.Type = llmerrors.TypeAuthentication
		return nil, apiErr
	}

	body, err := httputil.ReadLimitedBody(resp.Body, httputil.MaxErrorBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read iam response: %w", err)
	}
	var tr iamTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode iam response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, llmerrors.NewAuthenticationError("", "iam response has no access_token")
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Expiry:       tokenExpiry(tr, start),
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	s.cfg.Logger.Debug("iam token issued", "expires_at", tok.Expiry, "latency", time.Since(start))
	return tok, nil
}

// tokenExpiry prefers the absolute expiration, then expires_in relative to
// the request start, then the exp claim of the token itself. A zero time
// means the token never expires as far as reuse is concerned.
func tokenExpiry(tr iamTokenResponse, start time.Time) time.Time {
	switch {
	case tr.Expiration > 0:
		return time.Unix(tr.Expiration, 0)
	case tr.ExpiresIn > 0:
		return start.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return jwtExpiry(tr.AccessToken)
}

// jwtExpiry reads the exp claim without verifying the signature. The token
// came straight from IAM over TLS; only its lifetime is of interest here.
func jwtExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
