// Package queries builds Elasticsearch query bodies. Every builder is pure:
// the same input always yields the same tree.
package queries

import (
	"fmt"
	"strings"

	"example.com/backstage/services/partyup/internal/models"
)

// Q is a query tree node
type Q = map[string]interface{}

// Page is the pagination and projection shared by all builders
type Page struct {
	Limit  int
	Offset int
	Source []string
}

func (p Page) apply(q Q) Q {
	if p.Limit > 0 {
		q["size"] = p.Limit
	}
	if p.Offset > 0 {
		q["from"] = p.Offset
	}
	if len(p.Source) > 0 {
		q["_source"] = p.Source
	}
	return q
}

func term(field string, value interface{}) Q {
	return Q{"term": Q{field: value}}
}

func terms(field string, values interface{}) Q {
	return Q{"terms": Q{field: values}}
}

func sortDesc(fields ...string) []Q {
	out := make([]Q, 0, len(fields))
	for _, f := range fields {
		out = append(out, Q{f: "desc"})
	}
	return out
}

func eventMultiMatch(query string, fields []string) Q {
	return Q{"multi_match": Q{
		"query":     query,
		"fields":    fields,
		"type":      "best_fields",
		"fuzziness": "AUTO",
	}}
}

func popularityFactor(field string, factor float64) Q {
	return Q{"field_value_factor": Q{
		"field":    field,
		"factor":   factor,
		"modifier": "sqrt",
		"missing":  1,
	}}
}

// LeaderboardParams drives the ranked event feed
type LeaderboardParams struct {
	UserGUID string
	Bio      string
	Status   models.EventStatus
	Lat      float64
	Lon      float64
	RadiusKm int
	Page
}

// Leaderboard ranks events near the user, boosted by bio relevance and creator popularity
func Leaderboard(p LeaderboardParams) Q {
	radius := fmt.Sprintf("%dkm", p.RadiusKm)
	offset := fmt.Sprintf("%gkm", float64(p.RadiusKm)/4)

	q := Q{
		"query": Q{"function_score": Q{
			"query": Q{"bool": Q{
				"must":     []Q{term("status", p.Status)},
				"must_not": []Q{term("creator_guid", p.UserGUID)},
				"should": []Q{eventMultiMatch(p.Bio, []string{
					"title^3", "description^2", "tags^2",
				})},
				"minimum_should_match": 0,
			}},
			"functions": []Q{
				{"gauss": Q{"location": Q{
					"origin": fmt.Sprintf("%g,%g", p.Lat, p.Lon),
					"scale":  radius,
					"offset": offset,
					"decay":  0.5,
				}}},
				popularityFactor("creator_popularity_score", 1.2),
			},
			"score_mode": "sum",
			"boost_mode": "sum",
		}},
		"sort": sortDesc("_score", "creator_popularity_score"),
	}
	return p.Page.apply(q)
}

// EventSearchParams drives free-text event search
type EventSearchParams struct {
	UserGUID     string
	UserInput    string
	Bio          string
	LocationName string
	Status       models.EventStatus
	Lat          float64
	Lon          float64
	RadiusKm     int
	Page
}

// SearchEvents matches user input against events near the user or whose location name matches
func SearchEvents(p EventSearchParams) Q {
	radius := fmt.Sprintf("%dkm", p.RadiusKm)
	location := Q{"lat": p.Lat, "lon": p.Lon}

	q := Q{
		"query": Q{"bool": Q{
			"must": []Q{
				eventMultiMatch(p.UserInput, []string{
					"title^3", "description^2", "tags^2", "location_name",
				}),
				term("status", p.Status),
			},
			"must_not": []Q{term("creator_guid", p.UserGUID)},
			"should": []Q{
				{"function_score": Q{
					"query": Q{"match": Q{"bio": p.Bio}},
					"boost": 3,
				}},
				{"function_score": Q{
					"gauss": Q{"location": Q{"origin": location, "scale": radius}},
					"boost": 2,
				}},
				{"function_score": Q{
					"field_value_factor": Q{
						"field":    "creator_popularity_score",
						"factor":   1.2,
						"modifier": "sqrt",
						"missing":  1,
					},
					"boost": 1,
				}},
			},
			"minimum_should_match": 1,
			"filter": []Q{{"bool": Q{"should": []Q{
				{"bool": Q{"must": []Q{{"match": Q{"location_name": p.LocationName}}}}},
				{"bool": Q{"must": []Q{{"geo_distance": Q{"distance": radius, "location": location}}}}},
			}}}},
		}},
		"sort": sortDesc("_score", "creator_popularity_score"),
	}
	return p.Page.apply(q)
}

// PublicUsersParams drives account search
type PublicUsersParams struct {
	UserGUID       string
	Username       string
	FullName       string
	UserInput      string
	Bio            string
	Lat            float64
	Lon            float64
	RadiusKm       int
	HiversGUIDs    []string
	FollowingGUIDs []string
	Page
}

const nameBoostScript = "double username_boost = params.username_match ? 3 : 1; " +
	"double full_name_boost = params.fullname_match ? 2.5 : 1; " +
	"return _score * username_boost * full_name_boost;"

// FindPublicUsers ranks accounts matching the input that the user is not already linked to
func FindPublicUsers(p PublicUsersParams) Q {
	hivers := nonNil(p.HiversGUIDs)
	following := nonNil(p.FollowingGUIDs)

	q := Q{
		"query": Q{"function_score": Q{
			"query": Q{"bool": Q{
				"should": []Q{
					{"multi_match": Q{
						"query":     p.UserInput,
						"fields":    []string{"username^10", "full_name^7"},
						"type":      "best_fields",
						"fuzziness": "AUTO",
					}},
					{"prefix": Q{"username": Q{"value": p.UserInput, "boost": 15}}},
					{"prefix": Q{"full_name": Q{"value": p.UserInput, "boost": 10}}},
					{"match": Q{"bio": Q{"query": p.Bio, "boost": 2}}},
					{"terms": Q{"user_guid": hivers, "boost": 3}},
					{"terms": Q{"user_guid": following, "boost": 2}},
				},
				"minimum_should_match": 1,
				"must_not": []Q{
					terms("user_guid", hivers),
					terms("user_guid", following),
					term("guid", p.UserGUID),
				},
			}},
			"functions": []Q{
				popularityFactor("popularity_score", 2),
				{"gauss": Q{"updated_at": Q{
					"origin": "now",
					"scale":  "30d",
					"offset": "7d",
					"decay":  0.5,
				}}},
				{"gauss": Q{"location": Q{
					"origin": Q{"lat": p.Lat, "lon": p.Lon},
					"scale":  fmt.Sprintf("%dkm", p.RadiusKm),
				}}},
				{"script_score": Q{"script": Q{
					"source": nameBoostScript,
					"params": Q{
						"username_match": p.Username != "" && strings.Contains(p.Username, p.UserInput),
						"fullname_match": p.FullName != "" && strings.Contains(p.FullName, p.UserInput),
					},
				}}},
			},
			"score_mode": "sum",
			"boost_mode": "sum",
		}},
		"sort": sortDesc("_score", "popularity_score"),
	}
	return p.Page.apply(q)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// FindUsers fetches user documents by guid, most popular first
func FindUsers(guids []string, page Page) Q {
	q := Q{
		"query": Q{"terms": Q{"guid": nonNil(guids)}},
		"sort":  []Q{{"popularity_score": Q{"order": "desc"}}},
	}
	return page.apply(q)
}

// FindUserEvents lists events created by a user, newest first
func FindUserEvents(creatorGUID string, status models.EventStatus, page Page) Q {
	must := []Q{term("creator_guid", creatorGUID)}
	if status != "" {
		must = append(must, term("status", status))
	}
	q := Q{
		"query": Q{"bool": Q{"must": must}},
		"sort":  sortDesc("created_at"),
	}
	return page.apply(q)
}

// RequestMode selects sent or received hiver requests
type RequestMode string

const (
	RequestsSent     RequestMode = "sent"
	RequestsReceived RequestMode = "received"
)

// FindUserHiverRequests lists a user's hiver requests in the given status
func FindUserHiverRequests(userGUID string, status models.HiverRequestStatus, mode RequestMode, page Page) Q {
	field := "receiver_guid"
	if mode == RequestsSent {
		field = "sender_guid"
	}
	q := Q{
		"query": Q{"bool": Q{"must": []Q{
			{"bool": Q{
				"should":               []Q{term(field, userGUID)},
				"minimum_should_match": 1,
			}},
			term("status", status),
		}}},
		"sort": sortDesc("created_at"),
	}
	return page.apply(q)
}

// FindUserHivers lists hive links touching a user. searchAfter continues a previous page.
func FindUserHivers(userGUID string, searchAfter []interface{}, page Page) Q {
	q := Q{
		"query": Q{"bool": Q{
			"should": []Q{
				term("user_guid", userGUID),
				term("hiver_guid", userGUID),
			},
			"minimum_should_match": 1,
		}},
		"sort": sortDesc("created_at"),
	}
	if len(searchAfter) > 0 {
		q["search_after"] = searchAfter
	}
	return page.apply(q)
}

// FindEventAttendees looks up attendee documents of an event for the given users
func FindEventAttendees(eventGUID string, userGUIDs []string, page Page) Q {
	should := make([]Q, 0, len(userGUIDs))
	for _, u := range userGUIDs {
		should = append(should, term("user_guid", u))
	}
	boolQ := Q{"must": []Q{term("event_guid", eventGUID)}}
	if len(should) > 0 {
		boolQ["should"] = should
		boolQ["minimum_should_match"] = 1
	}
	return page.apply(Q{"query": Q{"bool": boolQ}})
}

// FindEventMedia lists media of an event, newest first
func FindEventMedia(eventGUID string, page Page) Q {
	q := Q{
		"query": Q{"bool": Q{"must": []Q{term("event_guid", eventGUID)}}},
		"sort":  sortDesc("created_at"),
	}
	return page.apply(q)
}

// Attr is one exact-match attribute
type Attr struct {
	Field string
	Value interface{}
}

// FindByAttr matches the single document having every attribute
func FindByAttr(attrs ...Attr) Q {
	must := make([]Q, 0, len(attrs))
	for _, a := range attrs {
		must = append(must, term(a.Field, a.Value))
	}
	return Q{
		"query": Q{"bool": Q{"must": must}},
		"size":  1,
	}
}

// LinkedUsersQueries builds the two term queries of a linked-users multi search:
// leftIndex filtered by leftField and rightIndex filtered by rightField, both equal to userGUID.
func LinkedUsersQueries(userGUID, leftField, rightField string, page Page) (Q, Q) {
	left := page.apply(Q{"query": term(leftField, userGUID)})
	right := page.apply(Q{"query": term(rightField, userGUID)})
	return left, right
}
