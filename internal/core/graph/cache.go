package graph

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/agenthands/roundup/internal/core/common"
)

var ErrCacheMissing = errors.New("neighbor cache missing")

// CacheKey is the meta line of the neighbor cache. A cached neighbor list
// is only reused when all four fields match.
type CacheKey struct {
	Type                 string  `json:"type"`
	ModelVersion         string  `json:"model_version"`
	TopK                 int     `json:"top_k"`
	MinThreshold         float64 `json:"min_threshold"`
	IndexFreshnessMarker string  `json:"index_freshness_marker"`
}

func NewCacheKey(modelVersion string, topK int, minThreshold float64, marker string) CacheKey {
	return CacheKey{
		Type:                 "meta",
		ModelVersion:         modelVersion,
		TopK:                 topK,
		MinThreshold:         minThreshold,
		IndexFreshnessMarker: marker,
	}
}

func (k CacheKey) Matches(other CacheKey) bool {
	return k.ModelVersion == other.ModelVersion &&
		k.TopK == other.TopK &&
		k.MinThreshold == other.MinThreshold &&
		k.IndexFreshnessMarker == other.IndexFreshnessMarker
}

// NeighborRecord is a raw, pre-threshold neighbor as stored in the cache.
type NeighborRecord struct {
	Src         string  `json:"src"`
	Dst         string  `json:"dst"`
	EmbedScore  float64 `json:"embed_score"`
	SrcCategory string  `json:"src_category"`
	DstCategory string  `json:"dst_category"`
}

// NeighborCache is the line-delimited raw neighbor list on disk.
type NeighborCache struct {
	Path string
}

func NewNeighborCache(path string) *NeighborCache {
	return &NeighborCache{Path: path}
}

// Load reads the meta line and every record. ErrCacheMissing is returned
// when the file does not exist.
func (c *NeighborCache) Load() (CacheKey, []NeighborRecord, error) {
	var key CacheKey

	f, err := os.Open(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return key, nil, ErrCacheMissing
		}
		return key, nil, fmt.Errorf("failed to open neighbor cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var records []NeighborRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if line == 1 {
			if err := json.Unmarshal(raw, &key); err != nil {
				return key, nil, fmt.Errorf("failed to parse cache meta: %w", err)
			}
			if key.Type != "meta" {
				return key, nil, fmt.Errorf("neighbor cache %s has no meta line", c.Path)
			}
			continue
		}
		var rec NeighborRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return key, nil, fmt.Errorf("failed to parse cache line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return key, nil, fmt.Errorf("failed to read neighbor cache: %w", err)
	}
	if line == 0 {
		return key, nil, fmt.Errorf("neighbor cache %s is empty", c.Path)
	}
	return key, records, nil
}

// Write replaces the cache with key followed by records.
func (c *NeighborCache) Write(key CacheKey, records []NeighborRecord) error {
	key.Type = "meta"

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(key); err != nil {
		return fmt.Errorf("failed to encode cache meta: %w", err)
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode neighbor %s->%s: %w", r.Src, r.Dst, err)
		}
	}
	return common.WriteFileAtomic(c.Path, buf.Bytes(), 0o644)
}
