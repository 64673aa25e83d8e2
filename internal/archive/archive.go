// Package archive bundles generated artifacts into a single zip
// download, with a per-file fallback when zip packaging is disabled.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/mazeforge/mazeforge/internal/artifact"
	"github.com/mazeforge/mazeforge/internal/logger"
)

// ErrPackaging reports a failed packaging attempt. The artifacts that
// fed it stay valid, so packaging can be retried without regenerating.
var ErrPackaging = errors.New("archive: packaging failed")

// ZipExt is the extension ArchiveName appends for zip downloads.
const ZipExt = "zip"

// Download is one named blob ready to hand to the user.
type Download struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// Manifest describes a packaged run. It is stored as manifest.yaml
// inside the archive.
type Manifest struct {
	GeneratedAt string   `yaml:"generated_at"`
	Shape       string   `yaml:"shape"`
	Sizes       []int    `yaml:"sizes,flow"`
	Algorithm   string   `yaml:"algorithm"`
	ExitConfig  string   `yaml:"exit_config"`
	SeedCount   int      `yaml:"seed_count"`
	Artifacts   []string `yaml:"artifacts"`
	Errors      []string `yaml:"errors,omitempty"`
}

// Packager turns run artifacts into downloads. With Disabled set it
// skips the archive and emits one download per artifact.
type Packager struct {
	Disabled bool
}

// Package bundles every artifact verbatim into one zip under name,
// or into individual downloads when the packager is disabled. A nil
// manifest is simply omitted from the archive.
func (p *Packager) Package(name string, artifacts []artifact.Artifact, manifest *Manifest) ([]Download, error) {
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("%w: no artifacts to package", ErrPackaging)
	}

	if p.Disabled {
		downloads := make([]Download, len(artifacts))
		for i, a := range artifacts {
			downloads[i] = Download{Name: a.Name, Content: []byte(a.Content)}
		}
		logger.Infof("Packaging disabled, emitting %d individual files", len(downloads))
		return downloads, nil
	}

	data, err := buildZip(artifacts, manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackaging, err)
	}
	logger.Infof("Packaged %d artifacts into %s (%s)", len(artifacts), name, humanize.Bytes(uint64(len(data))))
	return []Download{{Name: name, Content: data}}, nil
}

func buildZip(artifacts []artifact.Artifact, manifest *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if manifest != nil {
		data, err := yaml.Marshal(manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal manifest: %w", err)
		}
		w, err := zw.Create("manifest.yaml")
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
	}

	for _, a := range artifacts {
		w, err := zw.Create(a.Name)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, a.Content); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ArchiveName derives the composite download name: algorithm display
// name, capitalized shape, sizes joined by "x", and the timestamp in
// RFC 3339 with ":" flattened to "-".
func ArchiveName(algorithmDisplay, shape string, sizes []int, ts time.Time, ext string) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s)
	}
	stamp := strings.ReplaceAll(ts.Format(time.RFC3339), ":", "-")
	return fmt.Sprintf("%s %s %s %s.%s", algorithmDisplay, capitalize(shape), strings.Join(parts, "x"), stamp, ext)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// WriteDownloads writes every download into dir, creating it as
// needed. Each file lands under a temp name first and is renamed into
// place once fully written.
func WriteDownloads(dir string, downloads []Download) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrPackaging, err)
	}
	for _, d := range downloads {
		if err := writeFile(dir, d); err != nil {
			return fmt.Errorf("%w: %v", ErrPackaging, err)
		}
	}
	return nil
}

func writeFile(dir string, d Download) error {
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(d.Content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, d.Name))
}
