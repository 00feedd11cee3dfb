package services

import (
	"context"
	"strings"
	"time"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/geocoding"
	"example.com/backstage/services/partyup/internal/identity"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/storage"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SignInInput carries the optional client state sent at sign in
type SignInInput struct {
	PushToken string
	Username  string
}

// SignIn registers a verified identity on first use and refreshes it afterwards.
// The boolean reports whether the account was created by this call.
func (s *Service) SignIn(ctx context.Context, tx repositories.Session, id *identity.Identity, in SignInInput) (*models.User, bool, error) {
	defer s.segment(ctx, "sign-in")()

	u, err := tx.Users().FindOne(ctx, repositories.UserExternalUID.Eq(id.ExternalID))
	if err != nil {
		return nil, false, err
	}
	if u == nil && id.Email != "" {
		if u, err = tx.Users().FindOne(ctx, repositories.UserEmail.Eq(id.Email)); err != nil {
			return nil, false, err
		}
	}

	if u != nil {
		if !u.IsActive {
			return nil, false, apperrors.Forbidden("account %s is deactivated", u.GUID)
		}
		if err := s.refreshAccount(ctx, tx, u, id, in); err != nil {
			return nil, false, err
		}
		return u, false, nil
	}

	u, err = s.register(ctx, tx, id, in)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *Service) refreshAccount(ctx context.Context, tx repositories.Session, u *models.User, id *identity.Identity, in SignInInput) error {
	u.ExternalUID = id.ExternalID
	u.AuthProvider = id.Provider
	u.EmailVerified = u.EmailVerified || id.EmailVerified
	if u.ProfileImage == "" {
		u.ProfileImage = id.PictureURL
	}
	if in.PushToken != "" {
		token := in.PushToken
		u.FCMToken = &token
	}
	u.RefreshInfoStatus()
	u.UpdatedAt = s.now()
	if err := tx.Users().Update(ctx, u); err != nil {
		return err
	}

	doc, err := search.FindOne[models.UserDocument](ctx, s.index, search.IndexUsers, byGUID(u.GUID))
	if err != nil {
		s.mirrored(ctx, "sign_in", search.IndexUsers, err)
		return nil
	}
	if doc == nil {
		s.addDoc(ctx, "sign_in", search.IndexUsers, u.Document())
		return nil
	}
	s.updateDocFrom(ctx, "sign_in", search.IndexUsers, doc.ID, u.Document())
	return nil
}

func (s *Service) register(ctx context.Context, tx repositories.Session, id *identity.Identity, in SignInInput) (*models.User, error) {
	taken := []repositories.Clause[models.User]{repositories.UserEmail.Eq(id.Email)}
	if in.Username != "" {
		taken = append(taken, repositories.UserUsername.Eq(in.Username))
	}
	n, err := tx.Users().Count(ctx, repositories.AnyOf(taken...))
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, apperrors.Conflict("email or username already registered")
	}

	first, last := splitName(id.DisplayName)
	now := s.now()
	u := &models.User{
		GUID:          uuid.New(),
		CreatedAt:     now,
		UpdatedAt:     now,
		AuthProvider:  id.Provider,
		ExternalUID:   id.ExternalID,
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
		FirstName:     first,
		LastName:      last,
		FullName:      strings.TrimSpace(id.DisplayName),
		ProfileImage:  id.PictureURL,
		Tags:          pq.StringArray{},
		IsActive:      true,
	}
	if in.Username != "" {
		name := in.Username
		u.Username = &name
	}
	if in.PushToken != "" {
		token := in.PushToken
		u.FCMToken = &token
	}
	u.RefreshInfoStatus()

	if err := tx.Users().Add(ctx, u); err != nil {
		return nil, err
	}
	s.addDoc(ctx, "sign_up", search.IndexUsers, u.Document())

	log.Info().
		Str("user_guid", u.GUID.String()).
		Str("provider", string(u.AuthProvider)).
		Msg("User registered")
	return u, nil
}

func splitName(display string) (string, string) {
	parts := strings.Fields(display)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// Principal resolves the active account behind a verified identity
func (s *Service) Principal(ctx context.Context, tx repositories.Session, id *identity.Identity) (*models.User, error) {
	u, err := tx.Users().FindOne(ctx, repositories.UserExternalUID.Eq(id.ExternalID))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperrors.Unauthenticated(errors.New("account not registered"))
	}
	if !u.IsActive {
		return nil, apperrors.Unauthenticated(errors.New("account deactivated"))
	}
	return u, nil
}

// ProfileInput is a partial profile update; nil fields are left untouched
type ProfileInput struct {
	Username     *string
	FirstName    *string
	LastName     *string
	Bio          *string
	DateOfBirth  *string
	Location     *models.GeoPoint
	LocationName *string
	Tags         []string
}

// UpdateProfile merges in into principal's profile in both stores
func (s *Service) UpdateProfile(ctx context.Context, tx repositories.Session, principal *models.User, in ProfileInput) (*models.User, error) {
	defer s.segment(ctx, "update-profile")()

	if in.Username == nil && principal.Username == nil {
		return nil, apperrors.Validation("username is required")
	}
	if in.Username != nil && *in.Username != principal.UsernameValue() {
		n, err := tx.Users().Count(ctx, repositories.AllOf(
			repositories.UserUsername.Eq(*in.Username),
			repositories.UserGUID.Ne(principal.GUID),
		))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperrors.Conflict("username %s already taken", *in.Username)
		}
	}

	doc, err := s.userDoc(ctx, principal.GUID)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		name := *in.Username
		principal.Username = &name
	}
	if in.FirstName != nil {
		principal.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		principal.LastName = *in.LastName
	}
	if in.Bio != nil {
		principal.Bio = *in.Bio
	}
	if in.DateOfBirth != nil {
		principal.DateOfBirth = *in.DateOfBirth
	}
	if in.Location != nil {
		principal.SetLocation(in.Location)
	}
	if in.LocationName != nil {
		principal.LocationName = *in.LocationName
	}
	if in.Tags != nil {
		principal.Tags = pq.StringArray(in.Tags)
	}
	principal.FullName = strings.TrimSpace(principal.FirstName + " " + principal.LastName)
	principal.RefreshInfoStatus()
	principal.UpdatedAt = s.now()

	if err := tx.Users().Update(ctx, principal); err != nil {
		return nil, err
	}
	s.updateDocFrom(ctx, "update_profile", search.IndexUsers, doc.ID, principal.Document())
	return principal, nil
}

// UpdateProfileImage replaces principal's profile picture
func (s *Service) UpdateProfileImage(ctx context.Context, tx repositories.Session, principal *models.User, upload Upload) (*models.User, error) {
	doc, err := s.userDoc(ctx, principal.GUID)
	if err != nil {
		return nil, err
	}

	url, key, err := s.blobs.Upload(ctx, upload.Data, upload.ContentType, storage.PathUserProfiles)
	if err != nil {
		return nil, err
	}

	principal.ProfileImage = url
	principal.UpdatedAt = s.now()
	if err := tx.Users().Update(ctx, principal); err != nil {
		s.discardBlob(ctx, key)
		return nil, err
	}
	s.updateDoc(ctx, "update_profile_image", search.IndexUsers, doc.ID, map[string]interface{}{
		"profile_image": principal.ProfileImage,
		"updated_at":    principal.UpdatedAt,
	})
	return principal, nil
}

// Deactivate disables principal's account and releases its username
func (s *Service) Deactivate(ctx context.Context, tx repositories.Session, principal *models.User) error {
	doc, err := s.userDoc(ctx, principal.GUID)
	if err != nil {
		return err
	}

	now := s.now()
	logout := now.Truncate(time.Second)
	principal.IsActive = false
	principal.Username = nil
	principal.FCMToken = nil
	principal.LogoutTimestamp = &logout
	principal.UpdatedAt = now
	if err := tx.Users().Update(ctx, principal); err != nil {
		return err
	}

	s.updateDoc(ctx, "deactivate", search.IndexUsers, doc.ID, map[string]interface{}{
		"username":   nil,
		"is_active":  false,
		"updated_at": now,
	})
	log.Info().Str("user_guid", principal.GUID.String()).Msg("Account deactivated")
	return nil
}

// Logout forgets principal's push token
func (s *Service) Logout(ctx context.Context, tx repositories.Session, principal *models.User) error {
	logout := s.now().Truncate(time.Second)
	principal.FCMToken = nil
	principal.LogoutTimestamp = &logout
	return tx.Users().Update(ctx, principal)
}

// RefreshPushToken registers a new push token for principal
func (s *Service) RefreshPushToken(ctx context.Context, tx repositories.Session, principal *models.User, token string) error {
	if token == "" {
		return apperrors.Validation("push token is required")
	}
	principal.FCMToken = &token
	return tx.Users().Update(ctx, principal)
}

// SearchLocation resolves free text into places
func (s *Service) SearchLocation(ctx context.Context, text string, limit int) ([]geocoding.Place, error) {
	if s.geocoder == nil {
		return []geocoding.Place{}, nil
	}
	places, err := s.geocoder.Search(ctx, text, limit)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return places, nil
}
