package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ArchiveFile describes one parquet file uploaded by the chain writer.
type ArchiveFile struct {
	Path        string    `json:"path"`
	FileSize    int64     `json:"file_size_in_bytes"`
	RecordCount int64     `json:"record_count"`
	Underlying  string    `json:"underlying"`
	Expiry      string    `json:"expiry"`
	Date        string    `json:"date"`
	WrittenAt   time.Time `json:"written_at"`
}

// manifest is the on-disk listing for one archive batch.
type manifest struct {
	ManifestID string        `json:"manifest_id"`
	Files      []ArchiveFile `json:"files"`
}

// TableIndex is the top level archive index. Query tooling reads it to find
// which parquet files cover a given underlying and date.
type TableIndex struct {
	IndexUUID     string     `json:"index-uuid"`
	TableName     string     `json:"table-name"`
	Location      string     `json:"location"`
	LatestWriteMs int64      `json:"latest-write-ms"`
	Manifests     []string   `json:"manifests"`
	Partitions    partitions `json:"partitions"`
}

type partitions struct {
	Underlyings []string `json:"underlyings"`
	Dates       []string `json:"dates"`
}

// Generator incrementally maintains the archive index for one table. Safe
// for concurrent use.
type Generator struct {
	mu        sync.Mutex
	basePath  string
	tableName string
	location  string
	indexUUID string
	manifests []string
	latest    time.Time
	seenU     map[string]struct{}
	seenD     map[string]struct{}
}

// NewGenerator returns an index generator writing under basePath. location
// is the remote root the indexed files live at (e.g. s3://bucket/prefix).
func NewGenerator(basePath, location, tableName string) *Generator {
	return &Generator{
		basePath:  basePath,
		tableName: tableName,
		location:  location,
		indexUUID: uuid.NewString(),
		seenU:     make(map[string]struct{}),
		seenD:     make(map[string]struct{}),
	}
}

// AddFile records a newly uploaded parquet file and rewrites the index.
func (g *Generator) AddFile(af ArchiveFile) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	manifestFile := fmt.Sprintf("manifest-%d.json", af.WrittenAt.UnixNano())
	manifestPath := filepath.Join(g.basePath, "metadata", manifestFile)
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return err
	}

	b, err := json.Marshal(manifest{ManifestID: manifestFile, Files: []ArchiveFile{af}})
	if err != nil {
		return err
	}
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return err
	}

	g.manifests = append(g.manifests, manifestFile)
	if af.WrittenAt.After(g.latest) {
		g.latest = af.WrittenAt
	}
	if af.Underlying != "" {
		g.seenU[af.Underlying] = struct{}{}
	}
	if af.Date != "" {
		g.seenD[af.Date] = struct{}{}
	}

	return g.writeIndex()
}

func (g *Generator) writeIndex() error {
	idx := TableIndex{
		IndexUUID:     g.indexUUID,
		TableName:     g.tableName,
		Location:      g.location,
		LatestWriteMs: g.latest.UnixMilli(),
		Manifests:     g.manifests,
		Partitions: partitions{
			Underlyings: sortedKeys(g.seenU),
			Dates:       sortedKeys(g.seenD),
		},
	}

	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(g.basePath, "metadata", "index.json"), b, 0o644)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
