// Package maintenance implements the C11 Maintenance & Integrity sweeps:
// orphan text-index entries, orphan memory embeddings, dangling
// knowledge-graph edges, embedding dimension validation, snapshot/restore,
// and compact — grounded on spec.md §4.11 and on the teacher's
// internal/config/backup.go (timestamped os.ReadFile/os.WriteFile backups,
// here generalized from a single config file to a data directory tree).
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"memorized/internal/docpipeline"
	"memorized/internal/kg"
	"memorized/internal/memory"
	"memorized/internal/textindex"
)

// Clock supplies the current time in epoch milliseconds.
type Clock func() int64

// Service bundles the collaborators an integrity sweep or snapshot reads
// and writes.
type Service struct {
	text    *textindex.Index
	graph   *kg.Graph
	mem     *memory.Store
	docs    *docpipeline.Pipeline
	dataDir string
	now     Clock
}

// New wires a Service from its collaborators. dataDir is the root directory
// snapshots are taken from and restored into (spec.md §6 on-disk layout).
func New(text *textindex.Index, graph *kg.Graph, mem *memory.Store, docs *docpipeline.Pipeline, dataDir string, now Clock) *Service {
	if now == nil {
		now = defaultClock
	}
	return &Service{text: text, graph: graph, mem: mem, docs: docs, dataDir: dataDir, now: now}
}

// SweepOrphanText removes every text_index entry whose document id has no
// remaining chunk, and reports how many were removed.
func (s *Service) SweepOrphanText() (int, error) {
	orphans, err := s.text.OrphanChunkKeys(s.docs.HasAnyChunk)
	if err != nil {
		return 0, err
	}
	for _, key := range orphans {
		if err := s.text.Remove(key); err != nil {
			return 0, err
		}
	}
	return len(orphans), nil
}

// SweepOrphanEmbeddings removes mem_embeddings entries whose memory no
// longer exists.
func (s *Service) SweepOrphanEmbeddings() (int, error) {
	ids, err := s.mem.Vectors().IDs()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		rec, err := s.mem.Get(id)
		if err != nil {
			return 0, err
		}
		if rec != nil {
			continue
		}
		if err := s.mem.Vectors().Remove(id); err != nil {
			return 0, err
		}
		removed++
	}
	return removed, nil
}

// SweepDanglingEdges removes knowledge-graph edges whose src or dst node no
// longer exists.
func (s *Service) SweepDanglingEdges() (int, error) {
	return s.graph.RemoveDanglingEdges()
}

// ValidateDimensions reports the total and invalid-dimension count across
// memory embeddings (spec.md §4.11 dimension validation).
func (s *Service) ValidateDimensions() (total, invalid int, err error) {
	return s.mem.Vectors().ValidateDims()
}

// SweepReport summarizes one full integrity pass across every sweep.
type SweepReport struct {
	OrphanTextRemoved    int `json:"orphanTextRemoved"`
	OrphanVectorRemoved  int `json:"orphanVectorRemoved"`
	DanglingEdgesRemoved int `json:"danglingEdgesRemoved"`
	EmbeddingsTotal      int `json:"embeddingsTotal"`
	EmbeddingsInvalid    int `json:"embeddingsInvalid"`
}

// RunSweeps runs every sweep in turn and returns a combined report (the
// "validate" admin operation, spec.md §6 GET /system/validate).
func (s *Service) RunSweeps() (*SweepReport, error) {
	report := &SweepReport{}
	var err error
	if report.OrphanTextRemoved, err = s.SweepOrphanText(); err != nil {
		return nil, err
	}
	if report.OrphanVectorRemoved, err = s.SweepOrphanEmbeddings(); err != nil {
		return nil, err
	}
	if report.DanglingEdgesRemoved, err = s.SweepDanglingEdges(); err != nil {
		return nil, err
	}
	if report.EmbeddingsTotal, report.EmbeddingsInvalid, err = s.ValidateDimensions(); err != nil {
		return nil, err
	}
	return report, nil
}

// Manifest describes one snapshot (spec.md §4.11 snapshot/restore).
type Manifest struct {
	CreatedAt      int64              `json:"createdAt"`
	IncludeIndices bool               `json:"includeIndices"`
	SizesMB        map[string]float64 `json:"sizesMb"`
}

const manifestFile = "manifest.json"

// SnapshotOptions configures Snapshot.
type SnapshotOptions struct {
	// IncludeIndices also copies the external text index directory
	// alongside warm/cold data.
	IncludeIndices bool
	IndexDir       string
}

// Snapshot copies the warm and cold data directories (and, optionally, the
// external text index directory) into a new timestamped folder under
// backupDir, writing a JSON manifest. A file lock on the snapshot directory
// guards against a concurrent snapshot racing the same destination name.
func (s *Service) Snapshot(backupDir string, opts SnapshotOptions) (string, *Manifest, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create backup dir: %w", err)
	}
	stamp := time.UnixMilli(s.now()).UTC().Format("20060102-150405")
	dest := filepath.Join(backupDir, "snapshot-"+stamp)

	lock := flock.New(filepath.Join(backupDir, ".snapshot.lock"))
	if err := lock.Lock(); err != nil {
		return "", nil, fmt.Errorf("acquire snapshot lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	sizes := map[string]float64{}
	for _, sub := range []string{"warm", "cold"} {
		src := filepath.Join(s.dataDir, sub)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		n, err := copyTree(src, filepath.Join(dest, sub))
		if err != nil {
			return "", nil, fmt.Errorf("copy %s: %w", sub, err)
		}
		sizes[sub] = bytesToMB(n)
	}
	if opts.IncludeIndices && opts.IndexDir != "" {
		if _, err := os.Stat(opts.IndexDir); err == nil {
			n, err := copyTree(opts.IndexDir, filepath.Join(dest, "index"))
			if err != nil {
				return "", nil, fmt.Errorf("copy index: %w", err)
			}
			sizes["index"] = bytesToMB(n)
		}
	}

	manifest := &Manifest{CreatedAt: s.now(), IncludeIndices: opts.IncludeIndices, SizesMB: sizes}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", nil, err
	}
	if err := os.WriteFile(filepath.Join(dest, manifestFile), raw, 0o644); err != nil {
		return "", nil, fmt.Errorf("write manifest: %w", err)
	}
	return dest, manifest, nil
}

// Restore copies a snapshot's warm/cold (and, if present, index) directories
// back over dataDir, returning the snapshot's manifest.
func (s *Service) Restore(snapshotDir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(snapshotDir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, err
	}
	for _, sub := range []string{"warm", "cold", "index"} {
		src := filepath.Join(snapshotDir, sub)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if _, err := copyTree(src, filepath.Join(s.dataDir, sub)); err != nil {
			return nil, fmt.Errorf("restore %s: %w", sub, err)
		}
	}
	return &manifest, nil
}

// CompactReport summarizes one compact pass.
type CompactReport struct {
	NeighborGraphRebuilt bool `json:"neighborGraphRebuilt"`
	MemoriesReindexed    int  `json:"memoriesReindexed"`
}

// Compact flushes the KV store, rebuilds the memory neighbor graph, and
// re-writes every memory's text into the external text index to trigger a
// segment merge (spec.md §4.11 compact).
func (s *Service) Compact(ctx context.Context, flush func() error, concurrency int) (*CompactReport, error) {
	if err := flush(); err != nil {
		return nil, err
	}
	if err := s.mem.Vectors().RebuildNeighborGraph(ctx, concurrency); err != nil {
		return nil, err
	}
	entries, err := s.mem.Tree().Iterate()
	if err != nil {
		return nil, err
	}
	report := &CompactReport{NeighborGraphRebuilt: true}
	for _, e := range entries {
		var rec memory.Record
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue // CorruptionTolerable: skip malformed records
		}
		if err := s.text.IndexMemory(rec.ID, rec.Content, s.now()); err != nil {
			return nil, err
		}
		report.MemoriesReindexed++
	}
	return report, nil
}

// copyTree recursively copies src into dst, returning the total bytes
// copied. Directory copy has no counterpart in the examples' dependency
// surface (see DESIGN.md) — it is rendered directly on os/io/filepath.
func copyTree(src, dst string) (int64, error) {
	var total int64
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		n, err := copyFile(path, target, info.Mode())
		total += n
		return err
	})
	return total, err
}

func copyFile(src, dst string, mode os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	return io.Copy(out, in)
}

func bytesToMB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

func defaultClock() int64 {
	return time.Now().UnixMilli()
}
