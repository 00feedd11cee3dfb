package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type props map[string]interface{}

var (
	keyword     = props{"type": "keyword"}
	text        = props{"type": "text"}
	date        = props{"type": "date"}
	integer     = props{"type": "integer"}
	float       = props{"type": "float"}
	boolean     = props{"type": "boolean"}
	geoPoint    = props{"type": "geo_point"}
	scaledFloat = props{"type": "scaled_float", "scaling_factor": 100}
)

// Mappings holds the explicit mapping of every index
var Mappings = map[string]props{
	IndexUsers: {
		"guid":                keyword,
		"created_at":          date,
		"updated_at":          date,
		"auth_provider":       keyword,
		"email":               keyword,
		"email_verified":      boolean,
		"username":            keyword,
		"first_name":          text,
		"last_name":           text,
		"full_name":           text,
		"bio":                 text,
		"date_of_birth":       keyword,
		"location":            geoPoint,
		"location_name":       text,
		"profile_image":       keyword,
		"tags":                keyword,
		"followers_count":     integer,
		"following_count":     integer,
		"hivers_count":        integer,
		"posts_count":         integer,
		"event_participation": integer,
		"popularity_score":    float,
		"user_info_status":    keyword,
		"is_active":           boolean,
	},
	IndexEvents: {
		"guid":                      keyword,
		"created_at":                date,
		"updated_at":                date,
		"creator_guid":              keyword,
		"title":                     text,
		"description":               text,
		"location":                  geoPoint,
		"location_name":             text,
		"start_date":                date,
		"end_date":                  date,
		"status":                    keyword,
		"max_attendees":             integer,
		"min_donation":              scaledFloat,
		"currency":                  keyword,
		"total_donations":           scaledFloat,
		"cover_image_url":           keyword,
		"creator_popularity_score":  float,
		"tags":                      keyword,
		"is_private":                boolean,
		"is_last_minute":            boolean,
		"ponr":                      date,
		"total_attendees_count":     integer,
		"followers_attendees_count": integer,
		"public_attendees_count":    integer,
		"hivers_count":              integer,
		"hivers_reserved_slots":     integer,
	},
	IndexEventAttendees: {
		"guid":               keyword,
		"event_guid":         keyword,
		"user_guid":          keyword,
		"created_at":         date,
		"attendee_type":      keyword,
		"status":             keyword,
		"invitation_sent_at": date,
		"rsvp_date":          date,
	},
	IndexUserFollowers: {
		"guid":          keyword,
		"created_at":    date,
		"follower_guid": keyword,
		"user_guid":     keyword,
	},
	IndexUserHivers: {
		"guid":       keyword,
		"created_at": date,
		"hiver_guid": keyword,
		"user_guid":  keyword,
	},
	IndexHiverRequests: {
		"guid":          keyword,
		"created_at":    date,
		"sender_guid":   keyword,
		"receiver_guid": keyword,
		"status":        keyword,
		// followed edges are mirrored here as well
		"follower_guid": keyword,
		"user_guid":     keyword,
	},
	IndexMedia: {
		"guid":       keyword,
		"created_at": date,
		"event_guid": keyword,
		"user_guid":  keyword,
		"file_url":   keyword,
		"media_type": keyword,
	},
}

// EnsureIndices creates every missing index with its mapping
func (c *ElasticClient) EnsureIndices(ctx context.Context) error {
	for index, properties := range Mappings {
		name := c.indexName(index)

		exists := esapi.IndicesExistsRequest{Index: []string{name}}
		res, err := exists.Do(ctx, c.client)
		if err != nil {
			return errors.Wrapf(err, "failed to check index %s", name)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			log.Info().Str("index", name).Msg("Index already exists")
			continue
		}

		body, err := json.Marshal(map[string]interface{}{
			"mappings": map[string]interface{}{"properties": properties},
		})
		if err != nil {
			return errors.Wrap(err, "failed to marshal index mapping")
		}

		create := esapi.IndicesCreateRequest{Index: name, Body: bytes.NewReader(body)}
		res, err = create.Do(ctx, c.client)
		if err != nil {
			return errors.Wrapf(err, "failed to create index %s", name)
		}
		if res.IsError() {
			err := responseError(res, "create index")
			res.Body.Close()
			return err
		}
		res.Body.Close()
		log.Info().Str("index", name).Msg("Index created")
	}
	return nil
}
