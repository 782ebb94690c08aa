package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shiftsuite/shiftboard/internal/apperr"
	"github.com/shiftsuite/shiftboard/pkg/archive"
	"github.com/shiftsuite/shiftboard/pkg/dataset"
	"github.com/shiftsuite/shiftboard/pkg/scenario"
	"github.com/shiftsuite/shiftboard/pkg/session"
	"github.com/shiftsuite/shiftboard/pkg/upload"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto stable API error codes. Anything
// unmapped is logged and reported as an internal error without leaking the
// underlying message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		appErr.WriteJSON(w)
		return
	}

	code := errorCode(err)
	if code == "" {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"code":    "E500",
			"message": "internal error",
		})
		return
	}
	apperr.New(code).Wrap(err).WriteJSON(w)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, upload.ErrEmpty):
		return apperr.CodeUploadEmpty
	case errors.Is(err, upload.ErrTooLarge):
		return apperr.CodeUploadTooLarge
	case errors.Is(err, upload.ErrBadEncoding):
		return apperr.CodeUploadBadEncode
	case errors.Is(err, upload.ErrNotFound):
		return apperr.CodeUploadEmpty
	case errors.Is(err, archive.ErrNotZip):
		return apperr.CodeUploadNotZip
	case errors.Is(err, archive.ErrTraversal):
		return apperr.CodeArchiveTraversal
	case errors.Is(err, archive.ErrTooManyMembers):
		return apperr.CodeArchiveTooMany
	case errors.Is(err, archive.ErrTooLarge):
		return apperr.CodeArchiveTooBig
	case errors.Is(err, archive.ErrRatio):
		return apperr.CodeArchiveRatio
	case errors.Is(err, archive.ErrNoData):
		return apperr.CodeArchiveNoData
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionGone):
		return apperr.CodeSessionNotFound
	case errors.Is(err, session.ErrTooManySessionsFromIP):
		return apperr.CodeIPLimit
	case errors.Is(err, scenario.ErrUnknownScenario):
		return apperr.CodeScenarioNotFound
	default:
		return ""
	}
}

// tableJSON is the wire shape of a dataset table: a column list, the row
// index, and row-major string cells. Numeric parsing is the client's call.
type tableJSON struct {
	Columns []string   `json:"columns"`
	Index   []string   `json:"index"`
	Rows    [][]string `json:"rows"`
}

func toTableJSON(t *dataset.Table) tableJSON {
	out := tableJSON{
		Columns: t.Columns(),
		Index:   t.Index(),
		Rows:    make([][]string, t.NumRows()),
	}
	for row := 0; row < t.NumRows(); row++ {
		cells := make([]string, t.NumCols())
		for col := 0; col < t.NumCols(); col++ {
			cells[col] = t.Cell(row, col)
		}
		out.Rows[row] = cells
	}
	return out
}
