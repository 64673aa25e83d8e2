package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mazeforge/mazeforge/internal/artifact"
	"github.com/mazeforge/mazeforge/internal/batch"
	"github.com/mazeforge/mazeforge/internal/catalog"
	"github.com/mazeforge/mazeforge/internal/config"
	"github.com/mazeforge/mazeforge/internal/engine"
	"github.com/mazeforge/mazeforge/internal/mazegen"
	"github.com/mazeforge/mazeforge/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(":0", catalog.Default(), mazegen.New())
	srv.SetServerConfig(config.DefaultConfig())
	t.Cleanup(srv.Shutdown)
	return srv
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// startRun posts a batch request and waits for the background run to
// finish, returning the run ID.
func startRun(t *testing.T, srv *Server, h http.Handler, body string) string {
	t.Helper()

	rec := doRequest(t, h, http.MethodPost, "/api/batch", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/batch = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp batchStartResponse
	decodeBody(t, rec, &resp)
	if resp.ID == "" {
		t.Fatal("expected a run ID")
	}

	entry, ok := srv.runByID(resp.ID)
	if !ok {
		t.Fatalf("run %s not registered", resp.ID)
	}
	select {
	case <-entry.done:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}
	return resp.ID
}

// TestServer_Shutdown_CalledTwice tests that calling Shutdown() twice doesn't panic
func TestServer_Shutdown_CalledTwice(t *testing.T) {
	s := NewServer(":0", catalog.Default(), mazegen.New())

	// First shutdown should work
	s.Shutdown()

	// Second shutdown should not panic (protected by sync.Once)
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Second Shutdown() call panicked: %v", r)
		}
	}()

	s.Shutdown()
}

// TestServer_Shutdown_Concurrent tests that concurrent Shutdown() calls are safe
func TestServer_Shutdown_Concurrent(t *testing.T) {
	s := NewServer(":0", catalog.Default(), mazegen.New())

	var wg sync.WaitGroup
	panicCount := 0
	var mu sync.Mutex

	// Try to shutdown from multiple goroutines simultaneously
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					panicCount++
					mu.Unlock()
				}
			}()
			s.Shutdown()
		}()
	}

	wg.Wait()

	if panicCount > 0 {
		t.Errorf("Concurrent Shutdown() calls caused %d panics", panicCount)
	}
}

func TestHandleCatalog(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/catalog", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/catalog = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp catalogResponse
	decodeBody(t, rec, &resp)

	shapes := make(map[string]bool)
	for _, s := range resp.Shapes {
		shapes[s.ID] = true
	}
	for _, want := range []string{"rectangle", "square", "cross", "diamond"} {
		if !shapes[want] {
			t.Errorf("catalog missing shape %q", want)
		}
	}

	algos := make(map[string]bool)
	for _, a := range resp.Algorithms {
		algos[a.ID] = true
	}
	if !algos["backtracker"] {
		t.Error("catalog missing algorithm backtracker")
	}

	if len(resp.ExitConfigs) != 3 {
		t.Errorf("expected 3 exit configurations, got %d", len(resp.ExitConfigs))
	}
	if _, ok := resp.Presets["sample"]; !ok {
		t.Error("catalog missing preset sample")
	}
}

func TestHandleSettings_NoStore(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/settings", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/settings without store = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleSettings_Saved(t *testing.T) {
	srv := newTestServer(t)
	st := openTestStore(t)
	srv.SetStore(st)

	// Nothing saved yet
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /api/settings before save = %d, want %d", rec.Code, http.StatusNotFound)
	}

	err := st.SaveSettings(store.Settings{
		Shape:      "cross",
		Sizes:      []engine.SizeValue{{Name: "size", Value: 21}},
		Algorithm:  "huntandkill",
		ExitConfig: "corners",
		Kinds:      []artifact.Kind{artifact.KindMaze, artifact.KindDistance},
	})
	if err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/settings = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp settingsResponse
	decodeBody(t, rec, &resp)
	if resp.Shape != "cross" || resp.Algorithm != "huntandkill" {
		t.Errorf("unexpected settings: %+v", resp)
	}
	if len(resp.Kinds) != 2 || resp.Kinds[0] != artifact.KindMaze {
		t.Errorf("unexpected kinds: %v", resp.Kinds)
	}
	if resp.UpdatedAt.IsZero() {
		t.Error("expected a non-zero updatedAt")
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/status", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp daemonStatusResponse
	decodeBody(t, rec, &resp)
	if resp.State != "idle" {
		t.Errorf("state = %q, want idle", resp.State)
	}
	if resp.WSClients != 0 {
		t.Errorf("wsClients = %d, want 0", resp.WSClients)
	}
	if resp.Started == "" || resp.Uptime == "" {
		t.Errorf("expected started and uptime to be set: %+v", resp)
	}
}

func TestHandleBatchStart_Validation(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{
			name: "malformed JSON",
			body: `{"shape":`,
		},
		{
			name: "unknown shape",
			body: `{"shape":"hexagon","kinds":["maze"],"seeds":{"mode":"list","values":"1"}}`,
		},
		{
			name: "size out of range",
			body: `{"shape":"rectangle","sizes":{"width":1000,"height":5},"kinds":["maze"],"seeds":{"mode":"list","values":"1"}}`,
		},
		{
			name: "algorithm unsupported for shape",
			body: `{"shape":"cross","algorithm":"sidewinder","kinds":["maze"],"seeds":{"mode":"list","values":"1"}}`,
		},
		{
			name: "unknown exit configuration",
			body: `{"shape":"rectangle","exitConfig":"spiral","kinds":["maze"],"seeds":{"mode":"list","values":"1"}}`,
		},
		{
			name: "unknown artifact kind",
			body: `{"shape":"rectangle","kinds":["hologram"],"seeds":{"mode":"list","values":"1"}}`,
		},
		{
			name: "no artifact kinds",
			body: `{"shape":"rectangle","kinds":[],"seeds":{"mode":"list","values":"1"}}`,
		},
		{
			name: "bad seed token",
			body: `{"shape":"rectangle","kinds":["maze"],"seeds":{"mode":"list","values":"1,banana,3"}}`,
		},
		{
			name: "non-positive range step",
			body: `{"shape":"rectangle","kinds":["maze"],"seeds":{"mode":"range","start":"1","end":"10","step":"0"}}`,
		},
		{
			name: "random count out of range",
			body: `{"shape":"rectangle","kinds":["maze"],"seeds":{"mode":"random","count":"500"}}`,
		},
		{
			name: "unknown preset",
			body: `{"shape":"rectangle","kinds":["maze"],"seeds":{"mode":"preset","preset":"fibonacci-forever"}}`,
		},
		{
			name: "unknown seed mode",
			body: `{"shape":"rectangle","kinds":["maze"],"seeds":{"mode":"telepathy"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/batch", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("POST /api/batch = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			var resp errorResponse
			decodeBody(t, rec, &resp)
			if resp.Error == "" {
				t.Error("expected an error message")
			}
		})
	}

	// No run should linger in the registry after rejected requests.
	srv.mu.RLock()
	registered := len(srv.runs)
	srv.mu.RUnlock()
	if registered != 0 {
		t.Errorf("registry holds %d runs after rejected requests, want 0", registered)
	}
}

func TestBatchRun_EndToEnd(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	id := startRun(t, srv, h,
		`{"shape":"rectangle","sizes":{"width":6,"height":5},"kinds":["solution","maze"],"seeds":{"mode":"list","values":"1,2"}}`)

	rec := doRequest(t, h, http.MethodGet, "/api/batch/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/batch/%s = %d, want %d", id, rec.Code, http.StatusOK)
	}

	var status statusResponse
	decodeBody(t, rec, &status)
	if status.Phase != "completed" {
		t.Fatalf("phase = %q, want completed", status.Phase)
	}
	if status.ErrorCount != 0 {
		t.Fatalf("errorCount = %d, want 0 (errors %v)", status.ErrorCount, status.Errors)
	}
	if status.ArtifactCount != 4 {
		t.Errorf("artifactCount = %d, want 4", status.ArtifactCount)
	}
	if status.Fraction != 1.0 {
		t.Errorf("fraction = %v, want 1.0", status.Fraction)
	}
	// Kinds run in fixed order per seed regardless of request order.
	wantFiles := []string{
		"Map_maze_rectangle_6_5_1.svg",
		"Sol_maze_rectangle_6_5_1.svg",
		"Map_maze_rectangle_6_5_2.svg",
		"Sol_maze_rectangle_6_5_2.svg",
	}
	if len(status.Files) != len(wantFiles) {
		t.Fatalf("files = %v, want %v", status.Files, wantFiles)
	}
	for i, want := range wantFiles {
		if status.Files[i] != want {
			t.Errorf("files[%d] = %q, want %q", i, status.Files[i], want)
		}
	}
	if !strings.HasSuffix(status.ArchiveName, ".zip") {
		t.Errorf("archiveName = %q, want a .zip name", status.ArchiveName)
	}
	if !strings.HasPrefix(status.ArchiveName, "Recursive Backtracker Rectangle 6x5 ") {
		t.Errorf("archiveName = %q, want algorithm, shape and sizes prefix", status.ArchiveName)
	}

	// The archive download is a zip holding the manifest plus every
	// artifact.
	rec = doRequest(t, h, http.MethodGet, "/api/batch/"+id+"/archive", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET archive = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("archive Content-Type = %q, want application/zip", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, status.ArchiveName) {
		t.Errorf("Content-Disposition = %q, want it to carry %q", cd, status.ArchiveName)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("archive is not a readable zip: %v", err)
	}
	zipNames := make(map[string]bool)
	for _, f := range zr.File {
		zipNames[f.Name] = true
	}
	if !zipNames["manifest.yaml"] {
		t.Error("archive missing manifest.yaml")
	}
	for _, want := range wantFiles {
		if !zipNames[want] {
			t.Errorf("archive missing %q", want)
		}
	}

	// Individual artifacts come back as SVG.
	rec = doRequest(t, h, http.MethodGet, "/api/batch/"+id+"/files/"+wantFiles[0], "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET file = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("file Content-Type = %q, want image/svg+xml", ct)
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("file response does not look like SVG")
	}

	rec = doRequest(t, h, http.MethodGet, "/api/batch/"+id+"/files/nope.svg", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown file = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestBatchRun_SeedFailureIsolation(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	// Without exits the solution kind fails per seed; the maze kind
	// still renders and the run completes.
	id := startRun(t, srv, h,
		`{"shape":"rectangle","sizes":{"width":5,"height":5},"exitConfig":"none","kinds":["maze","solution"],"seeds":{"mode":"list","values":"7"}}`)

	rec := doRequest(t, h, http.MethodGet, "/api/batch/"+id, "")
	var status statusResponse
	decodeBody(t, rec, &status)

	if status.Phase != "completed" {
		t.Fatalf("phase = %q, want completed", status.Phase)
	}
	if status.ArtifactCount != 1 {
		t.Errorf("artifactCount = %d, want 1", status.ArtifactCount)
	}
	if status.ErrorCount != 1 {
		t.Fatalf("errorCount = %d, want 1", status.ErrorCount)
	}
	if status.Errors[0].Seed != 7 {
		t.Errorf("failed seed = %d, want 7", status.Errors[0].Seed)
	}
	if status.Fraction != 1.0 {
		t.Errorf("fraction = %v, want 1.0 even with a failed seed", status.Fraction)
	}
	if !strings.Contains(status.Summary, "1 errors") {
		t.Errorf("summary = %q, want the error count in it", status.Summary)
	}
}

func TestHandleBatchStart_Conflict(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	// Occupy the runner directly and hold it on its first progress
	// event so the next request hits the in-progress guard.
	gate := make(chan struct{})
	firstStep := make(chan struct{})
	runDone := make(chan struct{})
	var once sync.Once

	cfg := batch.Config{
		Shape:      "rectangle",
		Sizes:      []engine.SizeValue{{Name: "width", Value: 5}, {Name: "height", Value: 5}},
		Algorithm:  "backtracker",
		ExitConfig: "farthest",
		Kinds:      []artifact.Kind{artifact.KindMaze},
	}
	go func() {
		defer close(runDone)
		_, err := srv.runner.Run(cfg, []int64{1}, func(batch.Progress) {
			once.Do(func() { close(firstStep) })
			<-gate
		})
		if err != nil {
			t.Errorf("occupying run failed: %v", err)
		}
	}()

	select {
	case <-firstStep:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for the occupying run to start")
	}

	rec := doRequest(t, h, http.MethodPost, "/api/batch",
		`{"shape":"rectangle","kinds":["maze"],"seeds":{"mode":"list","values":"1"}}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("POST during run = %d, want %d (body %s)", rec.Code, http.StatusConflict, rec.Body.String())
	}

	// The rejected run must not linger in the registry.
	srv.mu.RLock()
	registered := len(srv.runs)
	srv.mu.RUnlock()
	if registered != 0 {
		t.Errorf("registry holds %d runs after conflict, want 0", registered)
	}

	close(gate)
	select {
	case <-runDone:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for the occupying run to finish")
	}
}

func TestHandleBatchStatus_UnknownRun(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/batch/no-such-run", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown run = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleBatchArchive_RunInProgress(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	algo, _ := srv.catalog.Algorithm("backtracker")
	entry := newRunEntry(batch.Config{Shape: "rectangle"}, algo, []int64{1})
	srv.registerRun(entry)

	rec := doRequest(t, h, http.MethodGet, "/api/batch/"+entry.id+"/archive", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("GET archive of running batch = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/batch/"+entry.id+"/files/x.svg", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("GET file of running batch = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestHandleBatchArchive_FallbackMode(t *testing.T) {
	srv := newTestServer(t)
	cfg := config.DefaultConfig()
	cfg.Archive.Disabled = true
	srv.SetServerConfig(cfg)
	h := srv.Handler()

	id := startRun(t, srv, h,
		`{"shape":"square","sizes":{"size":5},"kinds":["maze"],"seeds":{"mode":"list","values":"3"}}`)

	rec := doRequest(t, h, http.MethodGet, "/api/batch/"+id+"/archive", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET archive = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("fallback Content-Type = %q, want application/json", ct)
	}

	var resp fileListResponse
	decodeBody(t, rec, &resp)
	if len(resp.Files) != 1 || resp.Files[0] != "Map_maze_square_5_3.svg" {
		t.Errorf("fallback files = %v, want [Map_maze_square_5_3.svg]", resp.Files)
	}

	// Each listed file is individually downloadable.
	rec = doRequest(t, h, http.MethodGet, "/api/batch/"+id+"/files/"+resp.Files[0], "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET fallback file = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleRuns_RegistryBacked(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	// Empty history is an empty list, not an error.
	rec := doRequest(t, h, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runs = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp runsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Runs) != 0 {
		t.Errorf("expected no runs, got %v", resp.Runs)
	}

	id := startRun(t, srv, h,
		`{"shape":"rectangle","sizes":{"width":5,"height":5},"kinds":["maze"],"seeds":{"mode":"list","values":"1"}}`)

	rec = doRequest(t, h, http.MethodGet, "/api/runs", "")
	decodeBody(t, rec, &resp)
	if len(resp.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(resp.Runs))
	}
	run := resp.Runs[0]
	if run.ID != id || run.Shape != "rectangle" || run.SeedCount != 1 || run.ArtifactCount != 1 {
		t.Errorf("unexpected run summary: %+v", run)
	}
}

func TestHandleRuns_StoreBacked(t *testing.T) {
	srv := newTestServer(t)
	st := openTestStore(t)
	srv.SetStore(st)
	h := srv.Handler()

	id := startRun(t, srv, h,
		`{"shape":"diamond","sizes":{"size":9},"kinds":["maze","distance"],"seeds":{"mode":"preset","preset":"sample"}}`)

	// History now comes from the store, which outlives the registry.
	rec := doRequest(t, h, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runs = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp runsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(resp.Runs))
	}
	run := resp.Runs[0]
	if run.ID != id {
		t.Errorf("run ID = %q, want %q", run.ID, id)
	}
	if run.Shape != "diamond" || run.Algorithm != "prim" {
		t.Errorf("unexpected run summary: %+v", run)
	}
	// The sample preset carries six seeds, two kinds each.
	if run.SeedCount != 6 || run.ArtifactCount != 12 {
		t.Errorf("seedCount/artifactCount = %d/%d, want 6/12", run.SeedCount, run.ArtifactCount)
	}

	// Finishing a run also records its settings as last-used.
	rec = doRequest(t, h, http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/settings = %d, want %d", rec.Code, http.StatusOK)
	}
	var settings settingsResponse
	decodeBody(t, rec, &settings)
	if settings.Shape != "diamond" || settings.Algorithm != "prim" {
		t.Errorf("unexpected saved settings: %+v", settings)
	}
}

func TestRegisterRun_EvictsOldestFinished(t *testing.T) {
	srv := newTestServer(t)

	algo, _ := srv.catalog.Algorithm("backtracker")
	var first *runEntry
	for i := 0; i < maxRunEntries; i++ {
		entry := newRunEntry(batch.Config{Shape: "rectangle"}, algo, []int64{1})
		entry.startedAt = entry.startedAt.Add(time.Duration(i) * time.Second)
		close(entry.done)
		if first == nil {
			first = entry
		}
		srv.registerRun(entry)
	}

	extra := newRunEntry(batch.Config{Shape: "rectangle"}, algo, []int64{1})
	srv.registerRun(extra)

	srv.mu.RLock()
	_, oldestAlive := srv.runs[first.id]
	_, extraAlive := srv.runs[extra.id]
	total := len(srv.runs)
	srv.mu.RUnlock()

	if oldestAlive {
		t.Error("oldest finished run should have been evicted")
	}
	if !extraAlive {
		t.Error("new run should be registered")
	}
	if total != maxRunEntries {
		t.Errorf("registry size = %d, want %d", total, maxRunEntries)
	}
}
