package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"
)

const (
	ManifestFile    = "manifest.json"
	manifestVersion = 1
)

// SegmentInfo describes a segment named by the manifest.
type SegmentInfo struct {
	ID        uint64    `json:"id"`
	File      string    `json:"file"`
	DocCount  int       `json:"doc_count"`
	TermCount int       `json:"term_count"`
	Size      int64     `json:"size"`
	MinDoc    uint64    `json:"min_doc"`
	MaxDoc    uint64    `json:"max_doc"`
	CreatedAt time.Time `json:"created_at"`
}

// Manifest is the single source of truth for which segments are live. It is
// replaced as a whole on every commit and merge; a segment not named here
// does not exist as far as readers are concerned.
type Manifest struct {
	Version       int                   `json:"version"`
	IndexID       string                `json:"index_id"`
	Generation    uint64                `json:"generation"`
	Segments      []SegmentInfo         `json:"segments"`
	NextSegmentID uint64                `json:"next_segment_id"`
	NextDocID     uint64                `json:"next_doc_id"`
	Tombstones    []byte                `json:"tombstones,omitempty"`
	Analyzer      config.AnalyzerConfig `json:"analyzer"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

type envelope struct {
	Checksum uint32          `json:"checksum"`
	Data     json.RawMessage `json:"data"`
}

// NewManifest returns the manifest of an empty index.
func NewManifest(analyzer config.AnalyzerConfig) *Manifest {
	return &Manifest{
		Version:       manifestVersion,
		IndexID:       uuid.NewString(),
		NextSegmentID: 1,
		NextDocID:     1,
		Analyzer:      analyzer,
		UpdatedAt:     time.Now().UTC(),
	}
}

// ReadManifest loads dir's manifest. A missing manifest yields an error
// wrapping ErrNotFound.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "no index manifest in %s", dir)
		}
		return nil, apperrors.IO("reading manifest", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIOFailure, "parsing manifest: %v", err)
	}
	if crc32.Checksum(env.Data, castagnoli) != env.Checksum {
		return nil, apperrors.New(apperrors.ErrIOFailure, "manifest checksum mismatch")
	}
	var m Manifest
	if err := json.Unmarshal(env.Data, &m); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIOFailure, "parsing manifest data: %v", err)
	}
	if m.Version != manifestVersion {
		return nil, apperrors.Newf(apperrors.ErrIOFailure, "unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// WriteManifest atomically replaces dir's manifest with m.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	out, err := json.Marshal(envelope{
		Checksum: crc32.Checksum(data, castagnoli),
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("marshaling manifest envelope: %w", err)
	}
	return writeFileAtomic(dir, ManifestFile, out)
}

func writeFileAtomic(dir, name string, data []byte) error {
	finalPath := filepath.Join(dir, name)
	tmpPath := finalPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return apperrors.IO("creating "+name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return apperrors.IO("writing "+name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return apperrors.IO("syncing "+name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.IO("closing "+name, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return apperrors.IO("renaming "+name, err)
	}
	if err := syncDir(dir); err != nil {
		return apperrors.IO("syncing index directory", err)
	}
	return nil
}

// TombstoneSet decodes the tombstone bitmap.
func (m *Manifest) TombstoneSet() (*roaring64.Bitmap, error) {
	b := roaring64.New()
	if len(m.Tombstones) == 0 {
		return b, nil
	}
	if err := b.UnmarshalBinary(m.Tombstones); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIOFailure, "decoding tombstones: %v", err)
	}
	return b, nil
}

func (m *Manifest) SetTombstones(b *roaring64.Bitmap) error {
	if b == nil || b.IsEmpty() {
		m.Tombstones = nil
		return nil
	}
	data, err := b.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding tombstones: %w", err)
	}
	m.Tombstones = data
	return nil
}

// SegmentIDs returns the IDs of the segments the manifest names.
func (m *Manifest) SegmentIDs() []uint64 {
	ids := make([]uint64, len(m.Segments))
	for i, s := range m.Segments {
		ids[i] = s.ID
	}
	return ids
}

func (m *Manifest) clone() *Manifest {
	c := *m
	c.Segments = slices.Clone(m.Segments)
	c.Tombstones = slices.Clone(m.Tombstones)
	c.Analyzer.StopWords = slices.Clone(m.Analyzer.StopWords)
	return &c
}
