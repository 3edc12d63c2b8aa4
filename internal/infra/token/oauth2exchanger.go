package token

import (
	"context"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// OAuth2Exchanger implements Exchanger against the Catalog's OAuth
// token endpoint, for the per-user access tokens the Token Manager
// refreshes (distinct from the Catalog client's own service-account
// credentials). Per spec §1's Non-goals, it never performs the
// authorization-code grant — only a refresh-token exchange.
type OAuth2Exchanger struct {
	config *oauth2.Config
}

// NewOAuth2Exchanger builds an OAuth2Exchanger for the Catalog's
// OAuth app credentials.
func NewOAuth2Exchanger(clientID, clientSecret string) *OAuth2Exchanger {
	return &OAuth2Exchanger{config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}}
}

// Refresh implements Exchanger.
func (e *OAuth2Exchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}
