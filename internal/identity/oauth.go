package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/osokin-dev/gatehouse/internal/apperr"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Profile is the provider-side view of the account: the stable provider id
// plus the email used for the merge cascade.
type Profile struct {
	ProviderID string
	Email      string
}

// Provider exchanges an authorization code for the provider profile.
type Provider interface {
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// GoogleProvider implements Provider against Google's OAuth endpoints.
type GoogleProvider struct {
	cfg         *oauth2.Config
	userinfoURL string
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "profile", "email"},
		},
		userinfoURL: googleUserinfoURL,
	}
}

// AuthCodeURL builds the consent-page URL the gateway redirects to.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange swaps the authorization code for an access token and fetches the
// provider profile. Any failure surfaces as an OAuthExchange error; the
// gateway turns that into a login-page redirect, not a JSON error.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Newf(apperr.KindOAuthExchange, "code exchange failed: %v", err)
	}

	resp, err := p.cfg.Client(ctx, tok).Get(p.userinfoURL)
	if err != nil {
		return nil, apperr.Newf(apperr.KindOAuthExchange, "userinfo fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.KindOAuthExchange, "userinfo fetch failed: %s", resp.Status)
	}

	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, apperr.Newf(apperr.KindOAuthExchange, "userinfo decode failed: %v", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, apperr.New(apperr.KindOAuthExchange, "userinfo missing id or email")
	}

	return &Profile{ProviderID: fmt.Sprintf("google:%s", info.ID), Email: info.Email}, nil
}
