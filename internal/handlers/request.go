package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"exam-dashboard/internal/errors"
	"exam-dashboard/internal/models"
	"exam-dashboard/internal/services"
)

const uploadField = "file"

// readUpload extracts the uploaded file from a multipart request, refusing
// bodies larger than maxBytes.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (string, []byte, error) {
	if r.ContentLength > maxBytes {
		return "", nil, errors.TooLarge(fmt.Sprintf("upload exceeds %d bytes", maxBytes))
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return "", nil, errors.TooLarge(fmt.Sprintf("upload exceeds %d bytes", maxBytes))
		}
		return "", nil, errors.BadRequestWrap(err, "expected a multipart form with a file field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return "", nil, errors.TooLarge(fmt.Sprintf("upload exceeds %d bytes", maxBytes))
		}
		return "", nil, errors.BadRequestWrap(err, "could not read uploaded file")
	}
	return header.Filename, data, nil
}

// loadError converts a loader failure into the error reported to the user.
func loadError(err error) *errors.AppError {
	switch {
	case stderrors.Is(err, services.ErrFormat):
		return errors.FormatWrap(err, "Unsupported file type: upload a .csv or Excel file")
	case stderrors.Is(err, services.ErrParse):
		return errors.ParseWrap(err, "The file could not be read: "+err.Error())
	default:
		return errors.InternalWrap(err, "The file could not be loaded")
	}
}

func currentSession(r *http.Request) (*services.Session, error) {
	session, ok := services.SessionFrom(r.Context())
	if !ok {
		return nil, errors.Internal("no session attached to request")
	}
	return session, nil
}

// parseSelection reads filters from query parameters: start and end as
// YYYY-MM-DD, repeated location and code values.
func parseSelection(q url.Values) (models.Selection, error) {
	var sel models.Selection

	from, err := parseDay(q.Get("start"))
	if err != nil {
		return sel, errors.ValidationWrap(err, "start must be a YYYY-MM-DD date")
	}
	to, err := parseDay(q.Get("end"))
	if err != nil {
		return sel, errors.ValidationWrap(err, "end must be a YYYY-MM-DD date")
	}

	sel.From = from
	sel.To = to
	sel.Locations = nonEmpty(q["location"])
	sel.Codes = nonEmpty(q["code"])
	return sel, nil
}

func parseDay(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
