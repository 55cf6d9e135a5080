// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/estate360/positioner/pkg/core"
)

// ExportVersion is bumped whenever the export layout changes.
const ExportVersion = 1

// PlacementExport is the root JSON structure
type PlacementExport struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exportedAt"`
	Panorama   *core.PanoramaResource `json:"panorama,omitempty"`
	Placements []PlacementJSON        `json:"placements"`
	History    []HistoryEntry         `json:"history"`
}

// PlacementJSON is a placement as the listing platform stores it
type PlacementJSON struct {
	PropertyID  string    `json:"propertyId"`
	PanoramaID  string    `json:"panoramaId"`
	MarkerYaw   float64   `json:"markerYaw"`
	MarkerPitch float64   `json:"markerPitch"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (b *Backend) buildExport() PlacementExport {
	out := PlacementExport{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Panorama:   b.panorama,
		Placements: make([]PlacementJSON, 0, len(b.placements)),
		History:    b.history,
	}
	for _, p := range b.placements {
		out.Placements = append(out.Placements, PlacementJSON{
			PropertyID:  p.PropertyID,
			PanoramaID:  p.PanoramaID,
			MarkerYaw:   p.Position.Yaw,
			MarkerPitch: p.Position.Pitch,
			UpdatedAt:   p.UpdatedAt,
		})
	}
	sort.Slice(out.Placements, func(i, j int) bool {
		return out.Placements[i].PropertyID < out.Placements[j].PropertyID
	})
	return out
}

// exportFileName builds a file-system safe name for the export.
func (b *Backend) exportFileName() string {
	name := "placements"
	if b.panorama != nil && b.panorama.ID != "" {
		r := strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_")
		name = name + "_" + r.Replace(b.panorama.ID)
	}
	start := b.startTime
	if start.IsZero() {
		start = time.Now()
	}
	name = name + "_" + start.Format("20060102_150405") + ".json"
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return name
}

// exportJSON writes the placements to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, b.exportFileName())
	data := b.buildExport()

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, data)
	} else {
		err = writeJSON(outputPath, data)
	}
	if err != nil {
		return err
	}

	b.exportedPath = outputPath
	return nil
}

func writeJSON(path string, data PlacementExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data PlacementExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}
