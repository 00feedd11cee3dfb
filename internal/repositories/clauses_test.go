package repositories

import (
	"testing"
	"time"

	"example.com/backstage/services/partyup/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConditionSQL(t *testing.T) {
	follower, creator := uuid.New(), uuid.New()

	expr, args := AllOf(FollowerFollower.Eq(follower), FollowerFollowed.Eq(creator)).SQL()
	require.Equal(t, "(follower_guid = ? AND user_guid = ?)", expr)
	require.Equal(t, []interface{}{follower, creator}, args)

	expr, args = AnyOf(UserUsername.Eq("mario"), UserEmail.Eq("mario@example.com")).SQL()
	require.Equal(t, "(username = ? OR email = ?)", expr)
	require.Equal(t, []interface{}{"mario", "mario@example.com"}, args)

	statuses := []models.HiverRequestStatus{models.HiverRequestPending, models.HiverRequestAccepted}
	expr, args = AllOf(HiverRequestStatus.In(statuses...)).SQL()
	require.Equal(t, "(status IN ?)", expr)
	require.Equal(t, []interface{}{statuses}, args)

	expr, args = AllOf[models.User]().SQL()
	require.Empty(t, expr)
	require.Nil(t, args)
}

func TestConditionMatches(t *testing.T) {
	username := "mario"
	user := &models.User{GUID: uuid.New(), Username: &username, Email: "mario@example.com"}

	require.True(t, AnyOf(UserUsername.Eq("luigi"), UserEmail.Eq("mario@example.com")).Matches(user))
	require.False(t, AllOf(UserUsername.Eq("luigi"), UserEmail.Eq("mario@example.com")).Matches(user))
	require.True(t, AllOf(UserUsername.Eq("mario"), UserGUID.Ne(uuid.New())).Matches(user))
	require.True(t, AnyOf[models.User]().Matches(user))
}

func TestTimeClauses(t *testing.T) {
	now := time.Now()
	event := &models.Event{StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}

	require.True(t, EventStart.Before(now).Matches(event))
	require.False(t, EventEnd.Before(now).Matches(event))
	require.True(t, EventEnd.After(now).Matches(event))

	expr, args := EventStart.Before(now).SQL()
	require.Equal(t, "start_date <= ?", expr)
	require.Equal(t, []interface{}{now}, args)
}
