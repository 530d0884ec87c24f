package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCAP2/smoothsync/internal/geo"
	"github.com/OCAP2/smoothsync/pkg/core"
)

// TraceExport is the root JSON structure
type TraceExport struct {
	StartedAt time.Time      `json:"startedAt"`
	Objects   []ObjectExport `json:"objects"`
}

// ObjectExport is one object's records plus a summary of its paths.
// AppliedPath is the displayed path as WKT, empty when too short.
type ObjectExport struct {
	ObjectID      string                `json:"objectId"`
	SentCount     int                   `json:"sentCount"`
	ReceivedCount int                   `json:"receivedCount"`
	AppliedCount  int                   `json:"appliedCount"`
	SentBytes     int                   `json:"sentBytes"`
	SentLength    float64               `json:"sentLength"`
	AppliedLength float64               `json:"appliedLength"`
	AppliedPath   string                `json:"appliedPath,omitempty"`
	Sent          []core.SentRecord     `json:"sent"`
	Received      []core.ReceivedRecord `json:"received"`
	Applied       []core.AppliedRecord  `json:"applied"`
}

// exportJSON writes the trace to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := b.startedAt.UTC().Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("trace_%s.json.gz", timestamp)
	} else {
		filename = fmt.Sprintf("trace_%s.json", timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() TraceExport {
	export := TraceExport{
		StartedAt: b.startedAt,
		Objects:   make([]ObjectExport, 0, len(b.objects)),
	}

	for _, rec := range b.objects {
		obj := ObjectExport{
			ObjectID:      rec.ObjectID,
			SentCount:     len(rec.Sent),
			ReceivedCount: len(rec.Received),
			AppliedCount:  len(rec.Applied),
			Sent:          rec.Sent,
			Received:      rec.Received,
			Applied:       rec.Applied,
		}
		for _, s := range rec.Sent {
			obj.SentBytes += s.Bytes
		}

		sent := make([]mgl64.Vec3, 0, len(rec.Sent))
		for _, s := range rec.Sent {
			sent = append(sent, s.State.Position)
		}
		if track, err := geo.Track(sent); err == nil {
			obj.SentLength = track.Length()
		}

		applied := make([]mgl64.Vec3, 0, len(rec.Applied))
		for _, a := range rec.Applied {
			applied = append(applied, a.Position)
		}
		if track, err := geo.Track(applied); err == nil {
			obj.AppliedLength = track.Length()
			obj.AppliedPath = track.AsText()
		}

		export.Objects = append(export.Objects, obj)
	}

	sort.Slice(export.Objects, func(i, j int) bool {
		return export.Objects[i].ObjectID < export.Objects[j].ObjectID
	})
	return export
}

func writeJSON(path string, data TraceExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data TraceExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
