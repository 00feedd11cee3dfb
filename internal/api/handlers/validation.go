package handlers

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/search/queries"
	"example.com/backstage/services/partyup/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DateOfBirthLayout is the DD/MM/YYYY layout of User.DateOfBirth
const DateOfBirthLayout = "02/01/2006"

const maxPageLimit = 100

var registerOnce sync.Once

// RegisterCustomValidations adds the dob and guid rules to gin's validator
func RegisterCustomValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterValidation("dob", func(fl validator.FieldLevel) bool {
			dob, err := time.Parse(DateOfBirthLayout, fl.Field().String())
			return err == nil && dob.Before(time.Now())
		})
		v.RegisterValidation("guid", func(fl validator.FieldLevel) bool {
			_, err := uuid.Parse(fl.Field().String())
			return err == nil
		})
	})
}

// bind decodes the request body or form into req. Failures are Validation errors.
func bind(c *gin.Context, req interface{}) error {
	if err := c.ShouldBind(req); err != nil {
		return apperrors.Validation("invalid request: %s", err.Error())
	}
	return nil
}

func bindQuery(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return apperrors.Validation("invalid query: %s", err.Error())
	}
	return nil
}

// pathGUID parses a uuid path parameter
func pathGUID(c *gin.Context, name string) (uuid.UUID, error) {
	guid, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("%s must be a valid uuid", name)
	}
	return guid, nil
}

func parseGUIDs(values []string) ([]uuid.UUID, error) {
	guids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		guid, err := uuid.Parse(v)
		if err != nil {
			return nil, apperrors.Validation("%q is not a valid uuid", v)
		}
		guids = append(guids, guid)
	}
	return guids, nil
}

// PageQuery is the limit/offset pair accepted by list endpoints
type PageQuery struct {
	Limit  *int `form:"limit" binding:"omitempty,min=1"`
	Offset int  `form:"offset" binding:"omitempty,min=0"`
}

// Page applies the endpoint default limit and the global cap
func (q PageQuery) Page(defaultLimit int) queries.Page {
	limit := defaultLimit
	if q.Limit != nil {
		limit = *q.Limit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return queries.Page{Limit: limit, Offset: q.Offset}
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == binding.MIMEMultipartPOSTForm
}

// readUpload loads a multipart file. A missing part returns nil without error.
func readUpload(c *gin.Context, field string) (*services.Upload, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperrors.Validation("invalid %s upload: %s", field, err.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.Validation("unreadable %s upload", field)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.Validation("unreadable %s upload", field)
	}
	if len(data) == 0 {
		return nil, apperrors.Validation("%s upload is empty", field)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &services.Upload{Data: data, ContentType: contentType}, nil
}

// requireUpload is readUpload for endpoints where the file is mandatory
func requireUpload(c *gin.Context, field string) (*services.Upload, error) {
	upload, err := readUpload(c, field)
	if err != nil {
		return nil, err
	}
	if upload == nil {
		return nil, apperrors.Validation("multipart field %s is required", field)
	}
	return upload, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.Validation("%s must be a non-negative integer", name)
	}
	return v, nil
}
