package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/newthinker/equicurve/internal/core"
)

const maxJSONBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.WithMessage(core.ErrInvalidRequest, "request body is empty")
		}
		return core.WrapError(core.ErrInvalidRequest, err)
	}
	return validateStruct(dst)
}

// validateStruct runs struct tag validation and lists failing fields.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return core.WrapError(core.ErrInvalidRequest, err)
	}
	fields := make(map[string]string, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return core.WithMessage(core.ErrInvalidRequest, strings.Join(msgs, "; ")).
		WithDetails(map[string]any{"fields": fields})
}

type formFile struct {
	Name string
	Data []byte
}

// readFiles parses a multipart form and returns the files under field.
func readFiles(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) ([]formFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.WithMessage(core.ErrInvalidUpload,
				fmt.Sprintf("upload exceeds %d bytes", maxBytes))
		}
		return nil, core.WrapError(core.ErrInvalidUpload, err)
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, core.WithMessage(core.ErrInvalidUpload, "no files provided")
	}

	files := make([]formFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidUpload, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidUpload, err)
		}
		files = append(files, formFile{Name: fh.Filename, Data: data})
	}
	return files, nil
}
