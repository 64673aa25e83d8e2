package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mazeforge/mazeforge/internal/artifact"
	"github.com/mazeforge/mazeforge/internal/batch"
	"github.com/mazeforge/mazeforge/internal/catalog"
	"github.com/mazeforge/mazeforge/internal/engine"
	"github.com/mazeforge/mazeforge/internal/logger"
	"github.com/mazeforge/mazeforge/internal/store"
)

// maxRequestBytes caps the batch request body.
const maxRequestBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type catalogResponse struct {
	Shapes      []catalog.Shape      `json:"shapes"`
	Algorithms  []catalog.Algorithm  `json:"algorithms"`
	ExitConfigs []catalog.ExitConfig `json:"exitConfigs"`
	Presets     map[string]string    `json:"presets"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		Shapes:      s.catalog.Shapes(),
		Algorithms:  s.catalog.Algorithms(),
		ExitConfigs: s.catalog.ExitConfigs(),
		Presets:     s.catalog.Presets(),
	})
}

type settingsResponse struct {
	Shape      string             `json:"shape"`
	Sizes      []engine.SizeValue `json:"sizes"`
	Algorithm  string             `json:"algorithm"`
	ExitConfig string             `json:"exitConfig"`
	Kinds      []artifact.Kind    `json:"kinds"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "no saved settings")
		return
	}

	settings, err := s.store.LastSettings()
	if errors.Is(err, store.ErrNoSettings) {
		writeError(w, http.StatusNotFound, "no saved settings")
		return
	}
	if err != nil {
		logger.Error("Failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		Shape:      settings.Shape,
		Sizes:      settings.Sizes,
		Algorithm:  settings.Algorithm,
		ExitConfig: settings.ExitConfig,
		Kinds:      settings.Kinds,
		UpdatedAt:  settings.UpdatedAt,
	})
}

type daemonStatusResponse struct {
	State     string `json:"state"`
	Uptime    string `json:"uptime"`
	Started   string `json:"started"`
	WSClients int    `json:"wsClients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, daemonStatusResponse{
		State:     s.runner.State().String(),
		Uptime:    time.Since(s.StartTime).Round(time.Second).String(),
		Started:   humanize.Time(s.StartTime),
		WSClients: s.hub.count(),
	})
}

// seedRequest selects one of the four seed input modes. Values feeds
// list mode as a comma blob; start/end/step and count stay raw text so
// their parsing rules live in one place.
type seedRequest struct {
	Mode   string `json:"mode"`
	Values string `json:"values,omitempty"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	Step   string `json:"step,omitempty"`
	Count  string `json:"count,omitempty"`
	Preset string `json:"preset,omitempty"`
}

type batchRequest struct {
	Shape      string         `json:"shape"`
	Sizes      map[string]int `json:"sizes"`
	Algorithm  string         `json:"algorithm"`
	ExitConfig string         `json:"exitConfig"`
	Kinds      []string       `json:"kinds"`
	Seeds      seedRequest    `json:"seeds"`
}

type batchStartResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleBatchStart(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	entry, err := s.prepareRun(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.registerRun(entry)
	started, errc := s.launchRun(entry)

	select {
	case <-started:
		writeJSON(w, http.StatusAccepted, batchStartResponse{ID: entry.id})
	case err := <-errc:
		if err != nil {
			s.dropRun(entry.id)
			if errors.Is(err, batch.ErrRunInProgress) {
				writeError(w, http.StatusConflict, "a generation run is already in progress")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, batchStartResponse{ID: entry.id})
	}
}

// prepareRun validates a batch request against the catalog and resolves
// its seeds. Everything that can be rejected is rejected here, before
// the runner ever sees the request.
func (s *Server) prepareRun(req batchRequest) (*runEntry, error) {
	sizes, err := s.catalog.SizeValues(req.Shape, req.Sizes)
	if err != nil {
		return nil, err
	}
	algo, err := s.catalog.ResolveAlgorithm(req.Shape, req.Algorithm)
	if err != nil {
		return nil, err
	}

	exitConfig := req.ExitConfig
	if exitConfig == "" {
		exitConfig = "farthest"
	}
	if _, ok := s.catalog.ExitConfig(exitConfig); !ok {
		return nil, fmt.Errorf("unknown exit configuration %q", exitConfig)
	}

	kinds := make([]artifact.Kind, 0, len(req.Kinds))
	for _, raw := range req.Kinds {
		kind, err := artifact.ParseKind(raw)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}

	spec, err := buildSeedSpec(s.catalog, req.Seeds)
	if err != nil {
		return nil, err
	}
	seeds, err := batch.Resolve(spec, nil)
	if err != nil {
		return nil, err
	}

	cfg := batch.Config{
		Shape:      req.Shape,
		Sizes:      sizes,
		Algorithm:  algo.ID,
		ExitConfig: exitConfig,
		Kinds:      kinds,
	}
	return newRunEntry(cfg, algo, seeds), nil
}

func buildSeedSpec(cat *catalog.Catalog, req seedRequest) (batch.SeedSpec, error) {
	switch req.Mode {
	case "list", "":
		return batch.SeedList{Tokens: strings.Split(req.Values, ",")}, nil
	case "range":
		return batch.SeedRange{Start: req.Start, End: req.End, Step: req.Step}, nil
	case "random":
		return batch.SeedRandom{Count: req.Count}, nil
	case "preset":
		blob, ok := cat.Preset(req.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown seed preset %q", req.Preset)
		}
		return batch.SeedPreset{Values: blob}, nil
	default:
		return nil, fmt.Errorf("unknown seed mode %q", req.Mode)
	}
}

type statusResponse struct {
	ID            string         `json:"id"`
	Phase         string         `json:"phase"`
	StartedAt     time.Time      `json:"startedAt"`
	SeedCount     int            `json:"seedCount"`
	Progress      batch.Progress `json:"progress"`
	Fraction      float64        `json:"fraction"`
	ArtifactCount int            `json:"artifactCount"`
	ErrorCount    int            `json:"errorCount"`
	Files         []string       `json:"files,omitempty"`
	Errors        []batch.Error  `json:"errors,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	ArchiveName   string         `json:"archiveName,omitempty"`
}

func (e *runEntry) status() statusResponse {
	e.mu.RLock()
	defer e.mu.RUnlock()

	resp := statusResponse{
		ID:        e.id,
		Phase:     "running",
		StartedAt: e.startedAt,
		SeedCount: len(e.seeds),
		Progress:  e.progress,
		Fraction:  e.progress.Fraction(),
	}
	if e.result != nil {
		resp.Phase = "completed"
		resp.ArtifactCount = len(e.result.Artifacts)
		resp.ErrorCount = len(e.result.Errors)
		resp.Summary = e.result.Summary()
		resp.ArchiveName = e.archiveName
		resp.Errors = e.result.Errors
		for _, a := range e.result.Artifacts {
			resp.Files = append(resp.Files, a.Name)
		}
	}
	return resp
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.runByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	writeJSON(w, http.StatusOK, entry.status())
}

type fileListResponse struct {
	Files []string `json:"files"`
}

func (s *Server) handleBatchArchive(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.runByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	if !entry.finished() {
		writeError(w, http.StatusConflict, "run still in progress")
		return
	}

	downloads, err := entry.buildArchive(s.packager)
	if err != nil {
		logger.Error("Packaging failed", "run", entry.id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.packager.Disabled {
		// Fallback mode: no aggregate archive, hand back the file list
		// so each artifact can be fetched individually.
		names := make([]string, len(downloads))
		for i, d := range downloads {
			names[i] = d.Name
		}
		writeJSON(w, http.StatusOK, fileListResponse{Files: names})
		return
	}

	d := downloads[0]
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Name))
	if _, err := w.Write(d.Content); err != nil {
		logger.Error("Failed to write archive response", "run", entry.id, "error", err)
	}
}

func (s *Server) handleBatchFile(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.runByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	if !entry.finished() {
		writeError(w, http.StatusConflict, "run still in progress")
		return
	}

	art, ok := entry.artifactByName(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown artifact")
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	if _, err := io.WriteString(w, art.Content); err != nil {
		logger.Error("Failed to write artifact response", "run", entry.id, "error", err)
	}
}

type runSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Shape         string    `json:"shape"`
	Algorithm     string    `json:"algorithm"`
	SeedCount     int       `json:"seedCount"`
	ArtifactCount int       `json:"artifactCount"`
	ErrorCount    int       `json:"errorCount"`
	ArchiveName   string    `json:"archiveName,omitempty"`
}

type runsResponse struct {
	Runs []runSummary `json:"runs"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	summaries := []runSummary{}
	if s.store != nil {
		runs, err := s.store.RecentRuns(limit)
		if err != nil {
			logger.Error("Failed to load run history", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load run history")
			return
		}
		for _, run := range runs {
			summaries = append(summaries, runSummary{
				ID:            run.ID,
				CreatedAt:     run.CreatedAt,
				Shape:         run.Shape,
				Algorithm:     run.Algorithm,
				SeedCount:     run.SeedCount,
				ArtifactCount: run.ArtifactCount,
				ErrorCount:    run.ErrorCount,
				ArchiveName:   run.ArchiveName,
			})
		}
	} else {
		for _, e := range s.recentEntries(limit) {
			st := e.status()
			summaries = append(summaries, runSummary{
				ID:            st.ID,
				CreatedAt:     st.StartedAt,
				Shape:         e.config.Shape,
				Algorithm:     e.config.Algorithm,
				SeedCount:     st.SeedCount,
				ArtifactCount: st.ArtifactCount,
				ErrorCount:    st.ErrorCount,
				ArchiveName:   st.ArchiveName,
			})
		}
	}

	writeJSON(w, http.StatusOK, runsResponse{Runs: summaries})
}
