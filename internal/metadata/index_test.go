package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGeneratorCreatesIndex(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "s3://bucket/chains", "option_chains")

	af := ArchiveFile{
		Path:        "s3://bucket/chains/underlying=BTC/expiry=2026-09-04/date=2026-08-31/file.parquet",
		FileSize:    100,
		RecordCount: 10,
		Underlying:  "BTC",
		Expiry:      "2026-09-04",
		Date:        "2026-08-31",
		WrittenAt:   time.Unix(100, 0),
	}
	if err := gen.AddFile(af); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	indexPath := filepath.Join(dir, "metadata", "index.json")
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("index not written: %v", err)
	}

	var idx TableIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		t.Fatalf("decode index: %v", err)
	}
	if idx.TableName != "option_chains" {
		t.Errorf("TableName = %q, want option_chains", idx.TableName)
	}
	if len(idx.Manifests) != 1 {
		t.Fatalf("manifests = %d, want 1", len(idx.Manifests))
	}
	if _, err := os.Stat(filepath.Join(dir, "metadata", idx.Manifests[0])); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if len(idx.Partitions.Underlyings) != 1 || idx.Partitions.Underlyings[0] != "BTC" {
		t.Errorf("underlyings = %v, want [BTC]", idx.Partitions.Underlyings)
	}
}

func TestGeneratorAccumulatesPartitions(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "s3://bucket/chains", "option_chains")

	for i, u := range []string{"BTC", "ETH", "BTC"} {
		af := ArchiveFile{
			Path:       "file.parquet",
			Underlying: u,
			Date:       "2026-08-31",
			WrittenAt:  time.Unix(int64(100+i), 0),
		}
		if err := gen.AddFile(af); err != nil {
			t.Fatalf("AddFile: %v", err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, "metadata", "index.json"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	var idx TableIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		t.Fatalf("decode index: %v", err)
	}

	if len(idx.Manifests) != 3 {
		t.Errorf("manifests = %d, want 3", len(idx.Manifests))
	}
	if len(idx.Partitions.Underlyings) != 2 {
		t.Errorf("underlyings = %v, want two distinct", idx.Partitions.Underlyings)
	}
	if idx.LatestWriteMs != time.Unix(102, 0).UnixMilli() {
		t.Errorf("LatestWriteMs = %d, want %d", idx.LatestWriteMs, time.Unix(102, 0).UnixMilli())
	}
}
