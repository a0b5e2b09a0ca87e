package oauth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"taskhub/internal/config"
	"taskhub/internal/models"
)

var (
	ErrEmailUnavailable = errors.New("google profile has no email")
	ErrEmailUnverified  = errors.New("google profile email is not verified")
)

type Profile struct {
	Provider   models.Provider
	ProviderID string
	Email      string
	Name       string
	Picture    string
}

type Google struct {
	config     *oauth2.Config
	states     *StateStore
	apiOptions []option.ClientOption
}

func NewGoogle(cfg config.GoogleConfig, states *StateStore, apiOptions ...option.ClientOption) *Google {
	return &Google{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		states:     states,
		apiOptions: apiOptions,
	}
}

// WithEndpoint points the token exchange at a different authorization server.
func (g *Google) WithEndpoint(endpoint oauth2.Endpoint) *Google {
	cfg := *g.config
	cfg.Endpoint = endpoint
	return &Google{config: &cfg, states: g.states, apiOptions: g.apiOptions}
}

func (g *Google) Enabled() bool {
	return g.config.ClientID != "" && g.config.ClientSecret != ""
}

// AuthURL issues a single-use state and returns the consent page URL.
func (g *Google) AuthURL(ctx context.Context) (string, error) {
	state, err := g.states.Issue(ctx)
	if err != nil {
		return "", err
	}
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange validates state, trades code for a token and loads the profile.
func (g *Google) Exchange(ctx context.Context, state, code string) (Profile, error) {
	if err := g.states.Consume(ctx, state); err != nil {
		return Profile{}, err
	}

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("google exchange: %w", err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(g.config.Client(ctx, token))}, g.apiOptions...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return Profile{}, fmt.Errorf("google oauth2 service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Profile{}, fmt.Errorf("google userinfo: %w", err)
	}
	if info.Email == "" {
		return Profile{}, ErrEmailUnavailable
	}
	// Accounts are matched and linked by email, so only a verified address may stand for one.
	if info.VerifiedEmail == nil || !*info.VerifiedEmail {
		return Profile{}, ErrEmailUnverified
	}

	return Profile{
		Provider:   models.ProviderGoogle,
		ProviderID: info.Id,
		Email:      info.Email,
		Name:       info.Name,
		Picture:    info.Picture,
	}, nil
}
