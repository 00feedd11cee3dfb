package services

import (
	"context"
	"fmt"
	"strings"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/notify"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/search/queries"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SendHiverRequest asks another user to join principal's hive
func (s *Service) SendHiverRequest(ctx context.Context, tx repositories.Session, principal *models.User, receiverGUID uuid.UUID) (*models.HiverRequest, error) {
	receiver, err := user(ctx, tx, receiverGUID)
	if err != nil {
		return nil, err
	}
	if receiverGUID == principal.GUID {
		return nil, apperrors.Forbidden("users cannot send a hiver request to themselves")
	}

	active, err := tx.HiverRequests().Count(ctx, repositories.AllOf(
		repositories.HiverRequestSender.Eq(principal.GUID),
		repositories.HiverRequestReceiver.Eq(receiverGUID),
		repositories.HiverRequestStatus.In(models.HiverRequestPending, models.HiverRequestAccepted),
	))
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, apperrors.Conflict("a hiver request to user %s has already been sent", receiverGUID)
	}

	req := &models.HiverRequest{
		GUID:         uuid.New(),
		CreatedAt:    s.now(),
		SenderGUID:   principal.GUID,
		ReceiverGUID: receiverGUID,
		Status:       models.HiverRequestPending,
	}
	if err := tx.HiverRequests().Add(ctx, req); err != nil {
		return nil, err
	}

	s.addDoc(ctx, "send_hiver_request", search.IndexHiverRequests, req.Document())

	s.notify(ctx, receiver, notify.Notification{
		Title:    "You have a new hiver request",
		Body:     fmt.Sprintf("%s wants to join your hive", principal.UsernameValue()),
		ImageURL: principal.ProfileImage,
	})
	return req, nil
}

// RespondHiverRequest accepts or declines a pending request addressed to principal
func (s *Service) RespondHiverRequest(ctx context.Context, tx repositories.Session, principal *models.User, requestGUID uuid.UUID, accept bool) (*models.HiverRequest, error) {
	defer s.segment(ctx, "respond-hiver-request")()

	req, err := tx.HiverRequests().FindOneForUpdate(ctx, repositories.HiverRequestGUID.Eq(requestGUID))
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.NotFound(apperrors.BackendRecordStore, "hiver request %s not found", requestGUID)
	}
	if req.ReceiverGUID != principal.GUID {
		return nil, apperrors.Forbidden("only the receiver can answer hiver request %s", requestGUID)
	}
	if req.Status != models.HiverRequestPending {
		return nil, apperrors.InvalidState("hiver request already processed, status %s", req.Status)
	}

	sender, err := user(ctx, tx, req.SenderGUID)
	if err != nil {
		return nil, err
	}
	reqDoc, err := search.FindOne[models.HiverRequestDocument](ctx, s.index, search.IndexHiverRequests, byGUID(requestGUID))
	if err != nil {
		return nil, err
	}
	if reqDoc == nil {
		return nil, apperrors.NotFound(apperrors.BackendSearchIndex, "hiver request %s not found in search index", requestGUID)
	}

	req.Status = models.HiverRequestDeclined
	if accept {
		req.Status = models.HiverRequestAccepted
	}
	if err := tx.HiverRequests().Update(ctx, req); err != nil {
		return nil, err
	}

	if accept {
		if err := s.linkHivers(ctx, tx, principal, sender); err != nil {
			return nil, err
		}
	}

	s.updateDoc(ctx, "respond_hiver_request", search.IndexHiverRequests, reqDoc.ID, map[string]interface{}{"status": req.Status})

	s.notify(ctx, sender, notify.Notification{
		Title: "Hiver request update",
		Body:  fmt.Sprintf("Your hiver request to %s has been %s", principal.UsernameValue(), strings.ToLower(string(req.Status))),
	})
	return req, nil
}

// linkHivers records the accepted link between receiver and sender in both stores
func (s *Service) linkHivers(ctx context.Context, tx repositories.Session, receiver, sender *models.User) error {
	senderDoc, err := s.userDoc(ctx, sender.GUID)
	if err != nil {
		return err
	}
	receiverDoc, err := s.userDoc(ctx, receiver.GUID)
	if err != nil {
		return err
	}

	receiver.HiversCount++
	sender.HiversCount++
	if err := tx.Users().Update(ctx, receiver); err != nil {
		return err
	}
	if err := tx.Users().Update(ctx, sender); err != nil {
		return err
	}

	link := &models.UserHiver{
		GUID:      uuid.New(),
		CreatedAt: s.now(),
		HiverGUID: receiver.GUID,
		UserGUID:  sender.GUID,
	}
	if err := tx.UserHivers().Add(ctx, link); err != nil {
		return err
	}

	s.addDoc(ctx, "respond_hiver_request", search.IndexUserHivers, link.Document())
	s.updateDoc(ctx, "respond_hiver_request", search.IndexUsers, senderDoc.ID, map[string]interface{}{"hivers_count": sender.HiversCount})
	s.updateDoc(ctx, "respond_hiver_request", search.IndexUsers, receiverDoc.ID, map[string]interface{}{"hivers_count": receiver.HiversCount})

	log.Info().
		Str("hiver_guid", receiver.GUID.String()).
		Str("user_guid", sender.GUID.String()).
		Msg("Hivers linked")
	return nil
}

// ListHiverRequests lists requests principal sent or received in the given status
func (s *Service) ListHiverRequests(ctx context.Context, principal *models.User, status models.HiverRequestStatus, mode queries.RequestMode, page queries.Page) ([]models.HiverRequestDocument, error) {
	return search.Find[models.HiverRequestDocument](ctx, s.index, search.IndexHiverRequests,
		queries.FindUserHiverRequests(principal.GUID.String(), status, mode, page))
}

// LinkedHivers lists the users in principal's hive. fields projects the
// returned user documents; nil selects the listing fields.
func (s *Service) LinkedHivers(ctx context.Context, principal *models.User, page queries.Page, fields []string) (*UserPage, error) {
	relPage := page
	relPage.Source = []string{"hiver_guid", "user_guid"}
	links, err := search.Find[models.UserHiverDocument](ctx, s.index, search.IndexUserHivers,
		queries.FindUserHivers(principal.GUID.String(), nil, relPage))
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]bool{principal.GUID: true}
	var guids []string
	for _, l := range links {
		for _, g := range []uuid.UUID{l.HiverGUID, l.UserGUID} {
			if !seen[g] {
				seen[g] = true
				guids = append(guids, g.String())
			}
		}
	}
	if len(guids) == 0 {
		return &UserPage{Users: []models.ListedUser{}, Paging: paging(0, page)}, nil
	}

	if fields == nil {
		fields = models.ListedUserFields
	}
	users, err := search.Find[models.ListedUser](ctx, s.index, search.IndexUsers,
		queries.FindUsers(guids, queries.Page{Limit: page.Limit, Source: fields}))
	if err != nil {
		return nil, err
	}
	return &UserPage{Users: users, Paging: paging(len(users), page)}, nil
}
