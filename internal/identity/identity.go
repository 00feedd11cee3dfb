package identity

import (
	"context"
	"net/http"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/models"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	googleOauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Identity is a verified external account
type Identity struct {
	ExternalID    string
	Email         string
	EmailVerified bool
	DisplayName   string
	PictureURL    string
	Provider      models.AuthProvider
}

// Verifier turns a bearer token into a verified identity
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// GoogleVerifier checks Google access tokens with the OAuth2 v2 API
type GoogleVerifier struct {
	audience string
	base     *http.Client
	endpoint string
}

// NewGoogleVerifier creates a verifier against the public Google endpoints
func NewGoogleVerifier(cfg config.IdentityConfig) *GoogleVerifier {
	return &GoogleVerifier{audience: cfg.Audience, base: http.DefaultClient}
}

// NewGoogleVerifierWith uses a custom transport and API endpoint
func NewGoogleVerifierWith(cfg config.IdentityConfig, base *http.Client, endpoint string) *GoogleVerifier {
	return &GoogleVerifier{audience: cfg.Audience, base: base, endpoint: endpoint}
}

// Verify validates token and loads the account profile
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperrors.Unauthenticated(errors.New("missing bearer token"))
	}

	clientCtx := context.WithValue(ctx, oauth2.HTTPClient, v.base)
	client := oauth2.NewClient(clientCtx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if v.endpoint != "" {
		opts = append(opts, option.WithEndpoint(v.endpoint))
	}

	svc, err := googleOauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create oauth2 service")
	}

	info, err := svc.Tokeninfo().AccessToken(token).Context(ctx).Do()
	if err != nil {
		return nil, apperrors.Unauthenticated(errors.Wrap(err, "token rejected"))
	}
	if v.audience != "" && info.Audience != v.audience && info.IssuedTo != v.audience {
		return nil, apperrors.Unauthenticated(errors.Errorf("token issued for %q", info.Audience))
	}

	user, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, apperrors.Unauthenticated(errors.Wrap(err, "failed to load user info"))
	}

	id := &Identity{
		ExternalID:    user.Id,
		Email:         user.Email,
		EmailVerified: info.VerifiedEmail,
		DisplayName:   user.Name,
		PictureURL:    user.Picture,
		Provider:      models.AuthProviderGoogle,
	}
	if id.ExternalID == "" {
		id.ExternalID = info.UserId
	}
	if user.VerifiedEmail != nil {
		id.EmailVerified = *user.VerifiedEmail
	}
	return id, nil
}
