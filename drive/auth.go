package drive

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

const tokenLifetime = time.Hour

// serviceAccount is the subset of a Google service-account key file we need.
type serviceAccount struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
}

// TokenProvider exchanges a signed service-account assertion for a bearer
// token using the OAuth2 JWT-bearer grant. Tokens are never cached.
type TokenProvider struct {
	credentialsPath string
	tokenURL        string
	scope           string
	httpClient      *http.Client
}

// NewTokenProvider creates a TokenProvider. httpClient carries the request
// timeout; nil falls back to http.DefaultClient.
func NewTokenProvider(credentialsPath, tokenURL, scope string, httpClient *http.Client) *TokenProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenProvider{
		credentialsPath: credentialsPath,
		tokenURL:        tokenURL,
		scope:           scope,
		httpClient:      httpClient,
	}
}

// Token returns a fresh bearer token valid for about an hour.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	conf, err := p.jwtConfig()
	if err != nil {
		return "", err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := conf.TokenSource(ctx).Token()
	if err != nil {
		authErr := &AuthError{Err: err}
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && retrieve.Response != nil {
			authErr.StatusCode = retrieve.Response.StatusCode
		}
		return "", authErr
	}
	if tok.AccessToken == "" {
		return "", &AuthError{StatusCode: http.StatusOK, Err: errors.New("response has no access_token")}
	}
	return tok.AccessToken, nil
}

// jwtConfig loads and checks the credential file. Every failure here is a
// CredentialError so that no request is sent with a broken key.
func (p *TokenProvider) jwtConfig() (*jwt.Config, error) {
	if strings.TrimSpace(p.credentialsPath) == "" {
		return nil, &CredentialError{Reason: "path not configured"}
	}

	data, err := os.ReadFile(p.credentialsPath)
	if err != nil {
		return nil, &CredentialError{Path: p.credentialsPath, Reason: "unreadable", Err: err}
	}

	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, &CredentialError{Path: p.credentialsPath, Reason: "malformed JSON", Err: err}
	}
	if strings.TrimSpace(sa.ClientEmail) == "" {
		return nil, &CredentialError{Path: p.credentialsPath, Reason: "client_email missing"}
	}
	if strings.TrimSpace(sa.PrivateKey) == "" {
		return nil, &CredentialError{Path: p.credentialsPath, Reason: "private_key missing"}
	}
	if err := checkPrivateKey([]byte(sa.PrivateKey)); err != nil {
		return nil, &CredentialError{Path: p.credentialsPath, Reason: "private_key unusable", Err: err}
	}

	return &jwt.Config{
		Email:        sa.ClientEmail,
		PrivateKey:   []byte(sa.PrivateKey),
		PrivateKeyID: sa.PrivateKeyID,
		Scopes:       []string{p.scope},
		TokenURL:     p.tokenURL,
		Expires:      tokenLifetime,
	}, nil
}

func checkPrivateKey(key []byte) error {
	block, _ := pem.Decode(key)
	if block == nil {
		return errors.New("not PEM encoded")
	}
	if _, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return nil
	}
	if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
		return errors.New("neither PKCS#8 nor PKCS#1 RSA key")
	}
	return nil
}
