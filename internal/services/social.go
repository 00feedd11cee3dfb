package services

import (
	"context"
	"fmt"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/geocoding"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/notify"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/search/queries"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Follow makes principal follow another user
func (s *Service) Follow(ctx context.Context, tx repositories.Session, principal *models.User, followedGUID uuid.UUID) (*models.UserFollower, error) {
	defer s.segment(ctx, "follow")()

	if followedGUID == principal.GUID {
		return nil, apperrors.Forbidden("users cannot follow themselves")
	}
	followed, err := user(ctx, tx, followedGUID)
	if err != nil {
		return nil, err
	}

	already, err := follows(ctx, tx, principal.GUID, followedGUID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, apperrors.Conflict("user %s already follows %s", principal.GUID, followedGUID)
	}

	edge := &models.UserFollower{
		GUID:         uuid.New(),
		CreatedAt:    s.now(),
		FollowerGUID: principal.GUID,
		UserGUID:     followedGUID,
	}
	if err := tx.Followers().Add(ctx, edge); err != nil {
		return nil, err
	}

	principal.FollowingCount++
	followed.FollowersCount++
	if err := tx.Users().Update(ctx, principal); err != nil {
		return nil, err
	}
	if err := tx.Users().Update(ctx, followed); err != nil {
		return nil, err
	}

	followedDoc, err := s.userDoc(ctx, followedGUID)
	if err != nil {
		return nil, err
	}
	followerDoc, err := s.userDoc(ctx, principal.GUID)
	if err != nil {
		return nil, err
	}

	s.addDoc(ctx, "follow", search.IndexUserFollowers, edge.Document())
	// Clients read follow activity from the hiver request feed
	s.addDoc(ctx, "follow", search.IndexHiverRequests, edge.Document())
	s.updateDoc(ctx, "follow", search.IndexUsers, followedDoc.ID, map[string]interface{}{"followers_count": followed.FollowersCount})
	s.updateDoc(ctx, "follow", search.IndexUsers, followerDoc.ID, map[string]interface{}{"following_count": principal.FollowingCount})

	s.notify(ctx, followed, notify.Notification{
		Title:    "You have a new follower",
		Body:     fmt.Sprintf("%s just started to follow you", principal.UsernameValue()),
		ImageURL: principal.ProfileImage,
	})
	return edge, nil
}

// Unfollow removes principal's follow edge towards another user
func (s *Service) Unfollow(ctx context.Context, tx repositories.Session, principal *models.User, followedGUID uuid.UUID) error {
	defer s.segment(ctx, "unfollow")()

	edge, err := tx.Followers().FindOne(ctx,
		repositories.FollowerFollower.Eq(principal.GUID),
		repositories.FollowerFollowed.Eq(followedGUID),
	)
	if err != nil {
		return err
	}
	if edge == nil {
		return apperrors.NotFound(apperrors.BackendRecordStore, "user %s does not follow %s", principal.GUID, followedGUID)
	}
	followed, err := user(ctx, tx, followedGUID)
	if err != nil {
		return err
	}

	edgeDoc, err := search.FindOne[models.FollowerDocument](ctx, s.index, search.IndexUserFollowers, byGUID(edge.GUID))
	if err != nil {
		return err
	}
	if edgeDoc == nil {
		return apperrors.NotFound(apperrors.BackendSearchIndex, "follow %s not found in search index", edge.GUID)
	}
	followedDoc, err := s.userDoc(ctx, followedGUID)
	if err != nil {
		return err
	}
	followerDoc, err := s.userDoc(ctx, principal.GUID)
	if err != nil {
		return err
	}

	followed.FollowersCount = max(followed.FollowersCount-1, 0)
	principal.FollowingCount = max(principal.FollowingCount-1, 0)
	if err := tx.Users().Update(ctx, followed); err != nil {
		return err
	}
	if err := tx.Users().Update(ctx, principal); err != nil {
		return err
	}
	if err := tx.Followers().Delete(ctx, edge); err != nil {
		return err
	}

	s.updateDoc(ctx, "unfollow", search.IndexUsers, followedDoc.ID, map[string]interface{}{"followers_count": followed.FollowersCount})
	s.updateDoc(ctx, "unfollow", search.IndexUsers, followerDoc.ID, map[string]interface{}{"following_count": principal.FollowingCount})
	s.deleteDoc(ctx, "unfollow", search.IndexUserFollowers, edgeDoc.ID)
	return nil
}

// UserPage is one page of listed accounts
type UserPage struct {
	Users []models.ListedUser `json:"listed_users"`
	Paging
}

// AccountSearchInput drives the public account search. A missing point is
// resolved by geocoding principal's location name.
type AccountSearchInput struct {
	Input    string
	Lat      *float64
	Lon      *float64
	RadiusKm int
	Page     queries.Page
}

// SearchAccounts ranks accounts principal is not yet linked to
func (s *Service) SearchAccounts(ctx context.Context, principal *models.User, in AccountSearchInput) (*UserPage, error) {
	defer s.segment(ctx, "search-accounts")()

	lat, lon := s.searchOrigin(ctx, principal, in.Lat, in.Lon)

	hivers, following, err := s.linkedUserGUIDs(ctx, principal.GUID)
	if err != nil {
		return nil, err
	}

	page := in.Page
	page.Source = models.ListedUserFields
	users, err := search.Find[models.ListedUser](ctx, s.index, search.IndexUsers, queries.FindPublicUsers(queries.PublicUsersParams{
		UserGUID:       principal.GUID.String(),
		Username:       principal.UsernameValue(),
		FullName:       principal.FullName,
		UserInput:      in.Input,
		Bio:            principal.Bio,
		Lat:            lat,
		Lon:            lon,
		RadiusKm:       in.RadiusKm,
		HiversGUIDs:    hivers,
		FollowingGUIDs: following,
		Page:           page,
	}))
	if err != nil {
		return nil, err
	}
	return &UserPage{Users: users, Paging: paging(len(users), in.Page)}, nil
}

func (s *Service) searchOrigin(ctx context.Context, principal *models.User, lat, lon *float64) (float64, float64) {
	if lat != nil && lon != nil {
		return *lat, *lon
	}
	if s.geocoder != nil && principal.LocationName != "" {
		place, err := geocoding.First(ctx, s.geocoder, principal.LocationName)
		if err != nil {
			log.Warn().Err(err).Str("location_name", principal.LocationName).Msg("Geocoding failed, falling back to stored location")
		} else if place != nil {
			return place.Lat, place.Lon
		}
	}
	if loc := principal.Location(); loc != nil {
		return loc.Lat, loc.Lon
	}
	return 0, 0
}

// linkedUserGUIDs returns the users in principal's hive and the users principal follows, in one round trip
func (s *Service) linkedUserGUIDs(ctx context.Context, guid uuid.UUID) ([]string, []string, error) {
	left, right := queries.LinkedUsersQueries(guid.String(), "hiver_guid", "follower_guid",
		queries.Page{Limit: linkedHiversLimit, Source: []string{"user_guid"}})

	results, err := s.index.MultiSearch(ctx, []search.MultiRequest{
		{Index: search.IndexUserHivers, Query: left},
		{Index: search.IndexUserFollowers, Query: right},
	})
	if err != nil {
		return nil, nil, err
	}
	if len(results) != 2 {
		return nil, nil, apperrors.Storage(apperrors.BackendSearchIndex, errors.Errorf("expected 2 multi search responses, got %d", len(results)))
	}

	hiverLinks, err := search.DecodeAll[models.UserHiverDocument](results[0])
	if err != nil {
		return nil, nil, err
	}
	followEdges, err := search.DecodeAll[models.FollowerDocument](results[1])
	if err != nil {
		return nil, nil, err
	}

	hivers := make([]string, 0, len(hiverLinks))
	seen := map[uuid.UUID]bool{}
	for _, h := range hiverLinks {
		if !seen[h.UserGUID] {
			seen[h.UserGUID] = true
			hivers = append(hivers, h.UserGUID.String())
		}
	}
	following := make([]string, 0, len(followEdges))
	seen = map[uuid.UUID]bool{}
	for _, f := range followEdges {
		if !seen[f.UserGUID] {
			seen[f.UserGUID] = true
			following = append(following, f.UserGUID.String())
		}
	}
	return hivers, following, nil
}

// GetProfile fetches a user document by its search document id
func (s *Service) GetProfile(ctx context.Context, docID string) (*models.UserDocument, error) {
	return search.Get[models.UserDocument](ctx, s.index, search.IndexUsers, docID)
}
