package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"deepsafe/internal/config"
	"deepsafe/internal/pkg/result"
)

// OAuth errors.
var (
	ErrUnknownProvider = result.New(result.KindNotFound, "oauth provider not configured")
	ErrOAuthFailed     = result.New(result.KindUnauthorized, "oauth sign-in failed")
)

// googleIssuers are the issuers Google puts in id tokens.
var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// Identity is the provider-side account returned by a completed flow.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// IDTokenVerifier validates OpenID Connect id tokens against a JWKS.
type IDTokenVerifier struct {
	jwks     *keyfunc.JWKS
	audience string
	issuers  []string
}

// NewIDTokenVerifier fetches the key set and keeps it refreshed in the
// background.
func NewIDTokenVerifier(jwksURL, audience string, issuers []string) (*IDTokenVerifier, error) {
	options := keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Warn().Err(err).Str("jwks_url", jwksURL).Msg("Failed to refresh JWKS")
		},
	}
	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS: %w", err)
	}
	return &IDTokenVerifier{jwks: jwks, audience: audience, issuers: issuers}, nil
}

// Close stops the background refresh.
func (v *IDTokenVerifier) Close() {
	v.jwks.EndBackground()
}

// Verify checks signature, audience, issuer and expiry and returns the
// identity carried by the token.
func (v *IDTokenVerifier) Verify(token string) (Identity, error) {
	options := []jwt.ParserOption{jwt.WithLeeway(5 * time.Second), jwt.WithExpirationRequired()}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	t, err := jwt.Parse(token, v.jwks.Keyfunc, options...)
	if err != nil {
		return Identity{}, fmt.Errorf("id token verification failed: %w", err)
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("unexpected claims type")
	}
	return identityFromClaims(claims, v.issuers)
}

func identityFromClaims(claims jwt.MapClaims, issuers []string) (Identity, error) {
	if len(issuers) > 0 {
		iss, _ := claims["iss"].(string)
		found := false
		for _, want := range issuers {
			if iss == want {
				found = true
				break
			}
		}
		if !found {
			return Identity{}, fmt.Errorf("unexpected issuer %q", iss)
		}
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, errors.New("token missing subject claim")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return Identity{Subject: sub, Email: email, Name: name}, nil
}

// Provider is one configured OAuth sign-in provider.
type Provider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
	verifier    *IDTokenVerifier
}

// NewProviders builds the providers from configuration. redirectBase is the
// public server URL; callbacks land on /v1/auth/oauth/{provider}/callback.
// A provider named "google" with a JWKS URL verifies id tokens; the rest read
// the userinfo endpoint.
func NewProviders(cfg map[string]config.OAuthProvider, redirectBase string) (map[string]*Provider, error) {
	providers := make(map[string]*Provider, len(cfg))
	for name, pc := range cfg {
		p := &Provider{
			Name: name,
			Config: &oauth2.Config{
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
				Endpoint:     oauth2.Endpoint{AuthURL: pc.AuthURL, TokenURL: pc.TokenURL},
				RedirectURL:  fmt.Sprintf("%s/v1/auth/oauth/%s/callback", redirectBase, name),
				Scopes:       pc.Scopes,
			},
			UserInfoURL: pc.UserInfoURL,
		}
		if name == "google" && pc.JWKSURL != "" {
			v, err := NewIDTokenVerifier(pc.JWKSURL, pc.ClientID, googleIssuers)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			p.verifier = v
		}
		if p.verifier == nil && p.UserInfoURL == "" {
			return nil, fmt.Errorf("provider %s: needs jwks_url or userinfo_url", name)
		}
		providers[name] = p
	}
	return providers, nil
}

// Close releases the provider's key refresh, if any.
func (p *Provider) Close() {
	if p.verifier != nil {
		p.verifier.Close()
	}
}

// AuthCodeURL returns the provider consent URL for state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the caller's identity.
func (p *Provider) Exchange(ctx context.Context, code string) (Identity, error) {
	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("provider", p.Name).Msg("OAuth code exchange failed")
		return Identity{}, ErrOAuthFailed
	}

	var id Identity
	if raw, ok := token.Extra("id_token").(string); ok && p.verifier != nil {
		id, err = p.verifier.Verify(raw)
	} else {
		id, err = p.fetchUserInfo(ctx, token)
	}
	if err != nil {
		log.Warn().Err(err).Str("provider", p.Name).Msg("OAuth identity lookup failed")
		return Identity{}, ErrOAuthFailed
	}
	id.Provider = p.Name
	return id, nil
}

func (p *Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (Identity, error) {
	if p.UserInfoURL == "" {
		return Identity{}, errors.New("provider returned no id token and has no userinfo endpoint")
	}
	client := p.Config.Client(ctx, token)
	resp, err := client.Get(p.UserInfoURL)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("user info returned status %d", resp.StatusCode)
	}

	var payload struct {
		Sub   string `json:"sub"`
		ID    any    `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Login string `json:"login"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Identity{}, fmt.Errorf("failed to decode user info: %w", err)
	}

	subject := payload.Sub
	if subject == "" && payload.ID != nil {
		subject = fmt.Sprint(payload.ID)
	}
	if subject == "" {
		return Identity{}, errors.New("user info missing subject")
	}
	name := payload.Name
	if name == "" {
		name = payload.Login
	}
	return Identity{Subject: subject, Email: payload.Email, Name: name}, nil
}
