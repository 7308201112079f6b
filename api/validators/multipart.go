package validators

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
)

// multipartOverhead leaves room for boundaries and text fields on top of the
// file bytes.
const multipartOverhead = 1 << 20

// ParseMultipartForm caps the request body at maxFiles*maxFileBytes and
// parses it. Callers should defer r.MultipartForm.RemoveAll().
func ParseMultipartForm(w http.ResponseWriter, r *http.Request, maxFileBytes int64, maxFiles int) error {
	if maxFiles < 1 {
		maxFiles = 1
	}
	limit := maxFileBytes*int64(maxFiles) + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxFileBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return pkgerrors.New(pkgerrors.CodeValidation, "upload too large").WithDetails(map[string]any{"max_bytes": limit})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return nil
}

// FormFiles returns the files posted under field, enforcing count and size.
func FormFiles(r *http.Request, field string, maxFileBytes int64, maxFiles int) ([]*multipart.FileHeader, error) {
	if r.MultipartForm == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "multipart form required")
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s file is required", field))
	}
	if maxFiles > 0 && len(files) > maxFiles {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many files").WithDetails(map[string]any{"field": field, "max": maxFiles})
	}
	for _, fh := range files {
		if fh.Size > maxFileBytes {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "file too large").WithDetails(map[string]any{
				"field":     field,
				"file":      fh.Filename,
				"max_bytes": maxFileBytes,
			})
		}
	}
	return files, nil
}
