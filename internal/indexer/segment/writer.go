package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// FileName returns the file name used for segment id.
func FileName(id uint64) string {
	return fmt.Sprintf("seg_%06d.seg", id)
}

// Builder streams term entries into a new segment file. Entries must be added
// in (field, term) order. Nothing is visible under the final name until
// Finish returns.
type Builder struct {
	id        uint64
	dir       string
	tmpPath   string
	finalPath string
	file      *os.File
	buf       *bufio.Writer
	crc       hash.Hash32
	out       io.Writer
	written   int64
	dict      []DictEntry
	last      *index.TermKey
	scratch   []byte
	renamed   bool
	finished  bool
}

// NewBuilder creates the temporary file for segment id in dir.
func NewBuilder(dir string, id uint64) (*Builder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.IO("creating segment directory", err)
	}
	finalPath := filepath.Join(dir, FileName(id))
	tmpPath := finalPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, apperrors.IO("creating temp segment file", err)
	}
	// Placeholder header, rewritten by Finish once sizes are known.
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, apperrors.IO("writing segment header", err)
	}
	b := &Builder{
		id:        id,
		dir:       dir,
		tmpPath:   tmpPath,
		finalPath: finalPath,
		file:      f,
		buf:       bufio.NewWriterSize(f, 64*1024),
		crc:       crc32.New(castagnoli),
	}
	b.out = io.MultiWriter(b.buf, b.crc)
	return b, nil
}

// Add appends one term's postings.
func (b *Builder) Add(e index.TermEntry) error {
	if b.finished {
		return fmt.Errorf("segment %d already finished", b.id)
	}
	if len(e.Postings) == 0 {
		return nil
	}
	if b.last != nil && !b.last.Less(e.TermKey) {
		return fmt.Errorf("term %s:%s added out of order after %s:%s", e.Field, e.Term, b.last.Field, b.last.Term)
	}
	data, err := appendPostings(b.scratch[:0], e.Postings)
	if err != nil {
		return fmt.Errorf("encoding postings for %s:%s: %w", e.Field, e.Term, err)
	}
	b.scratch = data
	if _, err := b.out.Write(data); err != nil {
		return apperrors.IO("writing postings", err)
	}
	b.dict = append(b.dict, DictEntry{
		Field:      e.Field,
		Term:       e.Term,
		PostOffset: b.written,
		PostLen:    len(data),
		DocFreq:    len(e.Postings),
	})
	b.written += int64(len(data))
	key := e.TermKey
	b.last = &key
	return nil
}

// Finish writes the dictionary, the doc table and the footer, makes the file
// durable and renames it into place.
func (b *Builder) Finish(docs []index.DocEntry) (SegmentInfo, error) {
	if b.finished {
		return SegmentInfo{}, fmt.Errorf("segment %d already finished", b.id)
	}
	info, err := b.finish(docs)
	if err != nil {
		b.Abort()
		return SegmentInfo{}, err
	}
	b.finished = true
	return info, nil
}

func (b *Builder) finish(docs []index.DocEntry) (SegmentInfo, error) {
	sorted := make([]index.DocEntry, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID == sorted[i-1].ID {
			return SegmentInfo{}, fmt.Errorf("document %d appears twice in segment %d", sorted[i].ID, b.id)
		}
	}

	dictData, err := json.Marshal(b.dict)
	if err != nil {
		return SegmentInfo{}, fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := b.out.Write(dictData); err != nil {
		return SegmentInfo{}, apperrors.IO("writing dictionary", err)
	}
	docsData, err := json.Marshal(sorted)
	if err != nil {
		return SegmentInfo{}, fmt.Errorf("marshaling doc table: %w", err)
	}
	if _, err := b.out.Write(docsData); err != nil {
		return SegmentInfo{}, apperrors.IO("writing doc table", err)
	}

	now := time.Now().UTC()
	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(b.dict)),
		DocCount:   uint32(len(sorted)),
		CreatedAt:  now.Unix(),
		PostSize:   b.written,
		DictOffset: int64(HeaderSize) + b.written,
		DictSize:   int64(len(dictData)),
		DocsSize:   int64(len(docsData)),
		SegmentID:  b.id,
	}
	headerBytes := header.encode()
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], b.crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], crc32.Checksum(headerBytes, castagnoli))
	binary.LittleEndian.PutUint32(footer[8:12], MagicBytes)
	if _, err := b.buf.Write(footer); err != nil {
		return SegmentInfo{}, apperrors.IO("writing footer", err)
	}
	if err := b.buf.Flush(); err != nil {
		return SegmentInfo{}, apperrors.IO("flushing segment", err)
	}
	if _, err := b.file.WriteAt(headerBytes, 0); err != nil {
		return SegmentInfo{}, apperrors.IO("updating header", err)
	}
	if err := b.file.Sync(); err != nil {
		return SegmentInfo{}, apperrors.IO("syncing segment file", err)
	}
	size := header.DictOffset + header.DictSize + header.DocsSize + int64(FooterSize)
	if err := b.file.Close(); err != nil {
		return SegmentInfo{}, apperrors.IO("closing segment file", err)
	}
	b.file = nil
	if err := os.Rename(b.tmpPath, b.finalPath); err != nil {
		return SegmentInfo{}, apperrors.IO("renaming segment file", err)
	}
	b.renamed = true
	if err := syncDir(b.dir); err != nil {
		return SegmentInfo{}, apperrors.IO("syncing segment directory", err)
	}

	info := SegmentInfo{
		ID:        b.id,
		File:      FileName(b.id),
		DocCount:  len(sorted),
		TermCount: len(b.dict),
		Size:      size,
		CreatedAt: now,
	}
	if len(sorted) > 0 {
		info.MinDoc = uint64(sorted[0].ID)
		info.MaxDoc = uint64(sorted[len(sorted)-1].ID)
	}
	return info, nil
}

// Abort discards the segment. It is safe to call after a failed Finish and
// is a no-op after a successful one.
func (b *Builder) Abort() {
	if b.finished {
		return
	}
	b.finished = true
	if b.file != nil {
		b.file.Close()
		b.file = nil
	}
	if b.renamed {
		// The directory sync failed after the rename. The manifest never
		// named the file, so it is an orphan either way.
		os.Remove(b.finalPath)
		return
	}
	os.Remove(b.tmpPath)
}
