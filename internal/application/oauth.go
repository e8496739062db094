package application

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauthapi "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// OAuthUserInfo is the provider-neutral identity extracted from an OAuth flow.
type OAuthUserInfo struct {
	Provider   string
	ProviderID string
	Email      string
	FirstName  string
	LastName   string
	Picture    string
}

// GoogleOAuth exchanges authorization codes for Google identities.
type GoogleOAuth struct {
	cfg *oauth2.Config
}

func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *GoogleOAuth {
	return &GoogleOAuth{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{oauthapi.UserinfoEmailScope, oauthapi.UserinfoProfileScope},
	}}
}

// AuthURL returns the Google consent page URL for the given CSRF state.
func (g *GoogleOAuth) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// UserInfo exchanges the code and fetches the user's Google profile.
func (g *GoogleOAuth) UserInfo(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	svc, err := oauthapi.NewService(ctx, option.WithTokenSource(g.cfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	return &OAuthUserInfo{
		Provider:   "google",
		ProviderID: info.Id,
		Email:      info.Email,
		FirstName:  info.GivenName,
		LastName:   info.FamilyName,
		Picture:    info.Picture,
	}, nil
}
