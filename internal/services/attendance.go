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

// linkedHiversLimit bounds the hive read when checking invitation targets
const linkedHiversLimit = 10000

func attendeeCounters(e *models.Event) map[string]interface{} {
	return map[string]interface{}{
		"total_attendees_count":     e.TotalAttendeesCount,
		"followers_attendees_count": e.FollowersAttendeesCount,
		"public_attendees_count":    e.PublicAttendeesCount,
	}
}

// follows reports whether follower currently follows followed
func follows(ctx context.Context, tx repositories.Session, follower, followed uuid.UUID) (bool, error) {
	n, err := tx.Followers().Count(ctx, repositories.AllOf(
		repositories.FollowerFollower.Eq(follower),
		repositories.FollowerFollowed.Eq(followed),
	))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// upcomingEvent loads and locks an event that must still be UPCOMING
func upcomingEvent(ctx context.Context, tx repositories.Session, guid uuid.UUID) (*models.Event, error) {
	event, err := tx.Events().FindOneForUpdate(ctx, repositories.EventGUID.Eq(guid))
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperrors.NotFound(apperrors.BackendRecordStore, "event %s not found", guid)
	}
	if event.Status != models.EventUpcoming {
		return nil, apperrors.InvalidState("event %s is %s, not UPCOMING", guid, event.Status)
	}
	return event, nil
}

// JoinEvent confirms principal as a PUBLIC or FOLLOWER attendee of an UPCOMING event
func (s *Service) JoinEvent(ctx context.Context, tx repositories.Session, principal *models.User, eventGUID uuid.UUID) (*models.EventAttendee, error) {
	defer s.segment(ctx, "join-event")()

	event, err := upcomingEvent(ctx, tx, eventGUID)
	if err != nil {
		return nil, err
	}
	if event.TotalAttendeesCount >= event.MaxAttendees {
		return nil, apperrors.CapacityExceeded("event %s has reached the maximum number of attendees", eventGUID)
	}

	doc, err := s.eventDoc(ctx, eventGUID)
	if err != nil {
		return nil, err
	}

	existing, err := tx.Attendees().FindOne(ctx,
		repositories.AttendeeEvent.Eq(eventGUID),
		repositories.AttendeeUser.Eq(principal.GUID),
	)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Conflict("user %s is already an attendee of event %s", principal.GUID, eventGUID)
	}

	isFollower, err := follows(ctx, tx, principal.GUID, event.CreatorGUID)
	if err != nil {
		return nil, err
	}
	kind := models.AttendeePublic
	event.TotalAttendeesCount++
	if isFollower {
		kind = models.AttendeeFollower
		event.FollowersAttendeesCount++
	} else {
		event.PublicAttendeesCount++
	}
	event.UpdatedAt = s.now()
	if err := tx.Events().Update(ctx, event); err != nil {
		return nil, err
	}

	attendee := &models.EventAttendee{
		EventGUID:    eventGUID,
		UserGUID:     principal.GUID,
		GUID:         uuid.New(),
		CreatedAt:    s.now(),
		AttendeeType: kind,
		Status:       models.AttendeeConfirmed,
	}
	if err := tx.Attendees().Add(ctx, attendee); err != nil {
		return nil, err
	}

	creator, err := user(ctx, tx, event.CreatorGUID)
	if err != nil {
		return nil, err
	}

	s.addDoc(ctx, "join_event", search.IndexEventAttendees, attendee.Document())
	s.updateDoc(ctx, "join_event", search.IndexEvents, doc.ID, attendeeCounters(event))
	s.joinStream(ctx, eventGUID, principal.GUID)

	s.notify(ctx, creator, notify.Notification{
		Title:    "New event joiner!",
		Body:     fmt.Sprintf("%s will join your event", principal.UsernameValue()),
		ImageURL: event.CoverImageURL,
	})

	log.Info().
		Str("event_guid", eventGUID.String()).
		Str("user_guid", principal.GUID.String()).
		Str("attendee_type", string(kind)).
		Int("total_attendees", event.TotalAttendeesCount).
		Msg("User joined event")

	return attendee, nil
}

// RevokeJoin withdraws principal from an UPCOMING event
func (s *Service) RevokeJoin(ctx context.Context, tx repositories.Session, principal *models.User, eventGUID uuid.UUID) error {
	defer s.segment(ctx, "revoke-join")()

	event, err := upcomingEvent(ctx, tx, eventGUID)
	if err != nil {
		return err
	}
	doc, err := s.eventDoc(ctx, eventGUID)
	if err != nil {
		return err
	}

	attendee, err := tx.Attendees().FindOne(ctx,
		repositories.AttendeeEvent.Eq(eventGUID),
		repositories.AttendeeUser.Eq(principal.GUID),
	)
	if err != nil {
		return err
	}
	if attendee == nil {
		return apperrors.NotFound(apperrors.BackendRecordStore, "user %s is not an attendee of event %s", principal.GUID, eventGUID)
	}

	attendeeDoc, err := search.FindOne[models.AttendeeDocument](ctx, s.index, search.IndexEventAttendees, byGUID(attendee.GUID))
	if err != nil {
		return err
	}
	if attendeeDoc == nil {
		return apperrors.NotFound(apperrors.BackendSearchIndex, "attendee %s not found in search index", attendee.GUID)
	}

	creator, err := user(ctx, tx, event.CreatorGUID)
	if err != nil {
		return err
	}

	// Invited hivers were never counted in the attendee totals
	if attendee.AttendeeType != models.AttendeeHiver {
		isFollower, err := follows(ctx, tx, principal.GUID, event.CreatorGUID)
		if err != nil {
			return err
		}
		releaseSeat(event, isFollower)
		event.UpdatedAt = s.now()
		if err := tx.Events().Update(ctx, event); err != nil {
			return err
		}
	}

	if err := tx.Attendees().Delete(ctx, attendee); err != nil {
		return err
	}

	s.deleteDoc(ctx, "revoke_join", search.IndexEventAttendees, attendeeDoc.ID)
	s.updateDoc(ctx, "revoke_join", search.IndexEvents, doc.ID, attendeeCounters(event))
	s.leaveStream(ctx, eventGUID, principal.GUID)

	s.notify(ctx, creator, notify.Notification{
		Title:    "Event participation update",
		Body:     fmt.Sprintf("%s will not be able to join your event", principal.UsernameValue()),
		ImageURL: event.CoverImageURL,
	})
	return nil
}

// releaseSeat decrements the total and the sub-counter matching the follow
// relationship as it is now. A guest who joined as PUBLIC and followed the
// creator afterwards is taken off the followers count, which can go negative.
func releaseSeat(e *models.Event, isFollower bool) {
	e.TotalAttendeesCount--
	if isFollower {
		e.FollowersAttendeesCount--
	} else {
		e.PublicAttendeesCount--
	}
}

// RSVP accepts or declines principal's pending invitation to an UPCOMING event
func (s *Service) RSVP(ctx context.Context, tx repositories.Session, principal *models.User, eventGUID uuid.UUID, accept bool) (*models.EventAttendee, error) {
	event, err := tx.Events().FindOne(ctx, repositories.EventGUID.Eq(eventGUID))
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperrors.NotFound(apperrors.BackendRecordStore, "event %s not found", eventGUID)
	}
	if event.Status != models.EventUpcoming {
		return nil, apperrors.InvalidState("RSVP is only possible for an UPCOMING event")
	}
	if _, err := s.eventDoc(ctx, eventGUID); err != nil {
		return nil, err
	}

	attendee, err := tx.Attendees().FindOne(ctx,
		repositories.AttendeeEvent.Eq(eventGUID),
		repositories.AttendeeUser.Eq(principal.GUID),
	)
	if err != nil {
		return nil, err
	}
	if attendee == nil {
		return nil, apperrors.NotInvited()
	}
	if attendee.Status == models.AttendeeConfirmed || attendee.Status == models.AttendeeDeclined {
		return nil, apperrors.InvalidState("user already answered the invitation (%s)", attendee.Status)
	}

	attendee.Status = models.AttendeeDeclined
	if accept {
		attendee.Status = models.AttendeeConfirmed
	}
	now := s.now()
	attendee.RSVPDate = &now
	if err := tx.Attendees().Update(ctx, attendee); err != nil {
		return nil, err
	}

	attendeeDoc, err := search.FindOne[models.AttendeeDocument](ctx, s.index, search.IndexEventAttendees, byGUID(attendee.GUID))
	switch {
	case err != nil:
		s.mirrored(ctx, "rsvp", search.IndexEventAttendees, err)
	case attendeeDoc != nil:
		s.updateDoc(ctx, "rsvp", search.IndexEventAttendees, attendeeDoc.ID, map[string]interface{}{
			"status":    attendee.Status,
			"rsvp_date": attendee.RSVPDate,
		})
	}

	if accept {
		s.joinStream(ctx, eventGUID, principal.GUID)
	}

	creator, err := tx.Users().FindOne(ctx, repositories.UserGUID.Eq(event.CreatorGUID))
	if err != nil {
		return nil, err
	}
	s.notify(ctx, creator, notify.Notification{
		Title: "RSVP update",
		Body:  fmt.Sprintf("%s just %s the invitation to your event", principal.UsernameValue(), strings.ToLower(string(attendee.Status))),
	})
	return attendee, nil
}

// SendInvitations invites some of principal's hivers to one of principal's UPCOMING events
func (s *Service) SendInvitations(ctx context.Context, tx repositories.Session, principal *models.User, eventGUID uuid.UUID, hiverGUIDs []uuid.UUID) ([]models.EventAttendee, error) {
	defer s.segment(ctx, "send-invitations")()

	event, _, err := s.userEvent(ctx, tx, principal, eventGUID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventUpcoming {
		return nil, apperrors.InvalidState("invitations can only be sent for an UPCOMING event")
	}

	targets := uniqueGUIDs(hiverGUIDs)
	if len(targets) == 0 {
		return nil, apperrors.Validation("at least one hiver is required")
	}

	linked, err := s.LinkedHivers(ctx, principal, queries.Page{Limit: linkedHiversLimit}, []string{"guid"})
	if err != nil {
		return nil, err
	}
	hive := make(map[uuid.UUID]bool, len(linked.Users))
	for _, u := range linked.Users {
		hive[u.GUID] = true
	}
	for _, t := range targets {
		if !hive[t] {
			return nil, apperrors.Forbidden("only linked hivers can be invited, %s is not one", t)
		}
	}

	if len(targets) > event.HiversReservedSlots {
		return nil, apperrors.CapacityExceeded("%d hivers exceed the %d reserved slots", len(targets), event.HiversReservedSlots)
	}

	for _, t := range targets {
		existing, err := tx.Attendees().FindOne(ctx,
			repositories.AttendeeEvent.Eq(eventGUID),
			repositories.AttendeeUser.Eq(t),
		)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperrors.Conflict("hiver %s has already been invited to the event", t)
		}
	}

	invited := make([]models.EventAttendee, 0, len(targets))
	for _, t := range targets {
		sentAt := s.now()
		attendee := &models.EventAttendee{
			EventGUID:        eventGUID,
			UserGUID:         t,
			GUID:             uuid.New(),
			CreatedAt:        sentAt,
			AttendeeType:     models.AttendeeHiver,
			Status:           models.AttendeePending,
			InvitationSentAt: &sentAt,
		}
		if err := tx.Attendees().Add(ctx, attendee); err != nil {
			return nil, err
		}
		s.addDoc(ctx, "send_invitations", search.IndexEventAttendees, attendee.Document())
		invited = append(invited, *attendee)

		hiver, err := tx.Users().FindOne(ctx, repositories.UserGUID.Eq(t))
		if err != nil {
			return nil, err
		}
		s.notify(ctx, hiver, notify.Notification{
			Title: "Event invitation",
			Body:  fmt.Sprintf("You have been invited to join %s by %s", event.Title, principal.UsernameValue()),
		})
	}
	return invited, nil
}

func uniqueGUIDs(in []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(in))
	out := make([]uuid.UUID, 0, len(in))
	for _, g := range in {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}
