package auth

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

const (
	// Strava OAuth endpoints
	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"
)

// ActivityScope grants access to private activities and their streams
const ActivityScope = "activity:read_all"

// Scopes requested from Strava. Strava separates scopes with commas, not
// spaces, so they travel as a single value.
var Scopes = []string{
	"read," + ActivityScope,
}

// Config holds the OAuth client credentials
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackPort int // local port receiving the redirect

	// Endpoint overrides the Strava endpoints when set
	Endpoint *oauth2.Endpoint
}

// RedirectURL returns the local callback URL registered with Strava
func (c Config) RedirectURL() string {
	port := c.CallbackPort
	if port == 0 {
		port = CallbackPort
	}
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// NewOAuthConfig creates an oauth2.Config from our Config
func NewOAuthConfig(cfg Config) *oauth2.Config {
	endpoint := oauth2.Endpoint{
		AuthURL:  AuthURL,
		TokenURL: TokenURL,
		// Strava expects the credentials in the form body
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       Scopes,
	}
}

// AuthResult contains the token and athlete info from successful auth
type AuthResult struct {
	Token     *oauth2.Token
	AthleteID int64
	Scope     string // granted scopes, comma separated
}

// HasScope reports whether want is among the comma separated granted
// scopes. Athletes can untick scopes on the consent page.
func HasScope(granted, want string) bool {
	for _, s := range strings.Split(granted, ",") {
		if strings.TrimSpace(s) == want {
			return true
		}
	}
	return false
}

// ExtractAthleteID extracts the athlete ID from the token extras
// Strava includes athlete info in the token response
func ExtractAthleteID(token *oauth2.Token) int64 {
	if athlete, ok := token.Extra("athlete").(map[string]any); ok {
		if id, ok := athlete["id"].(float64); ok {
			return int64(id)
		}
	}
	return 0
}
