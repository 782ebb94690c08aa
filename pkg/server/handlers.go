package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftsuite/shiftboard/internal/apperr"
	"github.com/shiftsuite/shiftboard/pkg/archive"
	"github.com/shiftsuite/shiftboard/pkg/dataset"
	"github.com/shiftsuite/shiftboard/pkg/middleware"
	"github.com/shiftsuite/shiftboard/pkg/scenario"
	"github.com/shiftsuite/shiftboard/pkg/session"
	"github.com/shiftsuite/shiftboard/pkg/slotinfo"
	"github.com/shiftsuite/shiftboard/pkg/upload"
)

// scenarioRef is one entry in a session's scenario list.
type scenarioRef struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// sessionJSON is the API shape of a session.
type sessionJSON struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	LastAccess time.Time     `json:"last_access"`
	SourceFile string        `json:"source_file"`
	Scenarios  []scenarioRef `json:"scenarios"`
	Slot       slotinfo.Info `json:"slot"`
}

func toSessionJSON(sess *session.Session) sessionJSON {
	names := sess.Scenarios.Names()
	refs := make([]scenarioRef, len(names))
	for i, name := range names {
		refs[i] = scenarioRef{Name: name, DisplayName: archive.DisplayName(name)}
	}
	return sessionJSON{
		ID:         sess.ID,
		CreatedAt:  sess.CreatedAt,
		LastAccess: sess.LastAccess,
		SourceFile: sess.SourceFile,
		Scenarios:  refs,
		Slot:       sess.Slot,
	}
}

// handleHealth reports liveness plus session registry occupancy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.sessions.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": stats,
	})
}

// handleStageUpload stages a ZIP without creating a session. The returned
// upload_id can be redeemed once via POST /api/sessions.
func (s *Server) handleStageUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	part, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, intakeError(err))
		return
	}
	defer part.Close()

	uploadID, err := s.uploads.Save(r.Context(), header.Filename,
		header.Header.Get("Content-Type"), header.Size, part)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"upload_id": uploadID,
		"filename":  header.Filename,
		"size":      header.Size,
	})
}

// createSessionRequest is the JSON intake form. Exactly one of UploadID and
// Content must be set.
type createSessionRequest struct {
	// UploadID redeems a previously staged upload.
	UploadID string `json:"upload_id"`

	// Content is a base64 data URL carrying the archive inline, the form
	// the original dashboard client posts.
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// handleCreateSession accepts an archive (multipart file, staged upload_id,
// or inline base64), extracts it with bomb defenses, and registers a
// session over the result.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ip := s.clientIP(r)
	if err := s.sessions.CheckIPLimit(ip); err != nil {
		s.writeError(w, r, err)
		return
	}

	file, err := s.intakeArchive(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer file.Close()

	zipPath, cleanup, err := s.materialize(file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cleanup()

	dest, err := os.MkdirTemp(s.config.DataDir, "session-")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := archive.Extract(zipPath, dest, s.config.Archive)
	if err != nil {
		os.RemoveAll(dest)
		s.writeError(w, r, err)
		return
	}

	sess, err := s.sessions.Create(r.Context(), ip, dest, file.Filename, result.Bytes, result.Scenarios)
	if err != nil {
		os.RemoveAll(dest)
		s.writeError(w, r, err)
		return
	}

	middleware.RecordUploadBytes(result.Bytes)
	s.events.Broadcast(Event{Type: EventSessionCreated, SessionID: sess.ID})

	writeJSON(w, http.StatusCreated, toSessionJSON(sess))
}

// intakeArchive resolves the archive from whichever intake form the request
// uses and returns it as a claimed upload.
func (s *Server) intakeArchive(w http.ResponseWriter, r *http.Request) (*upload.File, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
		part, header, err := r.FormFile("file")
		if err != nil {
			return nil, intakeError(err)
		}
		defer part.Close()

		uploadID, err := s.uploads.Save(r.Context(), header.Filename,
			header.Header.Get("Content-Type"), header.Size, part)
		if err != nil {
			return nil, err
		}
		return s.uploads.Claim(r.Context(), uploadID)
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes*4/3+4096)
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, intakeError(err)
	}

	if req.UploadID != "" {
		return s.uploads.Claim(r.Context(), req.UploadID)
	}

	data, err := upload.DecodeDataURL(req.Content)
	if err != nil {
		return nil, err
	}
	filename := req.Filename
	if filename == "" {
		filename = "upload.zip"
	}
	uploadID, err := s.uploads.Save(r.Context(), filename, "application/zip",
		int64(len(data)), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return s.uploads.Claim(r.Context(), uploadID)
}

// intakeError normalizes body-parsing failures, folding the MaxBytesReader
// cutoff into the upload size error.
func intakeError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return upload.ErrTooLarge
	}
	if errors.Is(err, http.ErrMissingFile) {
		return upload.ErrEmpty
	}
	return apperr.New(apperr.CodeUploadBadEncode).Wrap(err)
}

// materialize returns a path on the local disk for the claimed archive,
// spilling store reads to a temp file when the store is remote.
func (s *Server) materialize(file *upload.File) (string, func(), error) {
	if file.Path != "" {
		return file.Path, func() {}, nil
	}

	tmp, err := os.CreateTemp(s.config.DataDir, "intake-*.zip")
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, file.Reader); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

// lookupSession finds a live session, falling back to the manifest store so
// sessions survive a server restart when their directories are intact.
func (s *Server) lookupSession(r *http.Request) (*session.Session, error) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.Get(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		return s.sessions.Resume(r.Context(), id)
	}
	return sess, err
}

func (s *Server) lookupScenario(r *http.Request) (*session.Session, *scenario.Scenario, error) {
	sess, err := s.lookupSession(r)
	if err != nil {
		return nil, nil, err
	}
	sc, err := sess.Scenarios.Get(chi.URLParam(r, "scenario"))
	if err != nil {
		return nil, nil, err
	}
	return sess, sc, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookupSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionJSON(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Remove(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookupSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	names := sess.Scenarios.Names()
	refs := make([]scenarioRef, len(names))
	for i, name := range names {
		refs[i] = scenarioRef{Name: name, DisplayName: archive.DisplayName(name)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": refs})
}

func (s *Server) handleScenarioMetadata(w http.ResponseWriter, r *http.Request) {
	_, sc, err := s.lookupScenario(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc.Metadata(r.Context()))
}

// handleDataset serves one dataset as a column/index/rows frame. Unknown
// kinds 404; known kinds with no file on disk come back as empty frames.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	_, sc, err := s.lookupScenario(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	kind, ok := dataset.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		s.writeError(w, r, apperr.New(apperr.CodeDatasetNotFound).
			WithDetail("unknown dataset kind %q", chi.URLParam(r, "kind")))
		return
	}

	table, err := sc.Table(r.Context(), kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	delta := sc.CacheDelta()
	middleware.RecordCacheAccess(delta.Hits, delta.Misses, delta.Evictions)

	writeJSON(w, http.StatusOK, map[string]any{
		"kind":  kind,
		"table": toTableJSON(table),
	})
}

// handleHeatmap returns the staffing heatmap views: raw staff counts, the
// staff/need ratio frame, and the color scale derived from positive cells.
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	sess, sc, err := s.lookupScenario(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := slotinfo.With(r.Context(), sess.Slot)

	staff, err := sc.HeatStaff(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ratio, err := sc.RatioFrame(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	scale, err := sc.HeatmapScale(ctx, dataset.KindHeatAll)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"staff": toTableJSON(staff),
		"ratio": toTableJSON(ratio),
		"scale": scale,
		"slot":  sc.Slot(ctx),
	})
}

// handleShortage returns the shortage tab: per-slot and per-role shortage
// tables plus the dates that had any shortage at all.
func (s *Server) handleShortage(w http.ResponseWriter, r *http.Request) {
	sess, sc, err := s.lookupScenario(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := slotinfo.With(r.Context(), sess.Slot)

	byTime, err := sc.Table(ctx, dataset.KindShortageTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	byRatio, err := sc.Table(ctx, dataset.KindShortageRatio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	byRole, err := sc.Table(ctx, dataset.KindShortageRole)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	timeDates, err := sc.ShortageTimeDates(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ratioDates, err := sc.ShortageRatioDates(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lackDates, err := sc.ShortageDates(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lack, err := sc.LackHours(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	slotLack, err := sc.SlotLackHours(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"by_time":         toTableJSON(byTime),
		"by_ratio":        toTableJSON(byRatio),
		"by_role":         toTableJSON(byRole),
		"time_dates":      timeDates,
		"ratio_dates":     ratioDates,
		"dates":           lackDates,
		"lack_hours":      lack,
		"lack_slot_hours": slotLack,
	})
}

// handleOverview returns the page-shaped summary the dashboard landing tab
// renders: scenario metadata, headline KPIs, and the heatmap scale.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	sess, sc, err := s.lookupScenario(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := slotinfo.With(r.Context(), sess.Slot)

	kpi, err := sc.KPI(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	scale, err := sc.HeatmapScale(ctx, dataset.KindHeatAll)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body := map[string]any{
		"scenario": sc.Metadata(ctx),
		"kpi":      kpi,
		"scale":    scale,
	}
	if forecast, err := sc.ForecastSummary(ctx); err == nil && len(forecast) > 0 {
		body["forecast"] = forecast
	}
	if cost, err := sc.CostSummary(ctx); err == nil && len(cost) > 0 {
		body["cost"] = cost
	}
	writeJSON(w, http.StatusOK, body)
}
