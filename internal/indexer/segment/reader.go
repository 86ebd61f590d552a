package segment

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// FieldStats aggregates the token counts of one field over a segment's
// documents.
type FieldStats struct {
	Docs        int
	TotalLength int64
}

// Reader gives random access to one segment file. The dictionary and the doc
// table are held in memory; postings are read on demand. A Reader is safe for
// concurrent use.
type Reader struct {
	file     *os.File
	filePath string
	size     int64
	header   Header
	dict     []DictEntry
	docs     []index.DocEntry
	docSet   *roaring64.Bitmap
	fields   map[string]FieldStats
}

// OpenReader opens and fully verifies the segment at path. A checksum or
// structure mismatch yields an error wrapping ErrCorruptSegment; a missing
// file keeps os.ErrNotExist reachable.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.IO("opening segment file", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	name := filepath.Base(path)
	st, err := f.Stat()
	if err != nil {
		return nil, apperrors.IO("stat segment file", err)
	}
	size := st.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: file too short (%d bytes)", name, size)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, apperrors.IO("reading segment header", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, size-int64(FooterSize)); err != nil {
		return nil, apperrors.IO("reading segment footer", err)
	}
	if binary.LittleEndian.Uint32(footer[8:12]) != MagicBytes {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: bad footer magic", name)
	}
	if crc32.Checksum(headerBytes, castagnoli) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: header checksum mismatch", name)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: bad magic bytes %x", name, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: unsupported format version %d", name, header.Version)
	}
	bodySize := size - int64(HeaderSize+FooterSize)
	if header.PostSize+header.DictSize+header.DocsSize != bodySize ||
		header.DictOffset != int64(HeaderSize)+header.PostSize {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: section sizes do not match file size", name)
	}

	crc := crc32.New(castagnoli)
	if _, err := io.Copy(crc, io.NewSectionReader(f, int64(HeaderSize), bodySize)); err != nil {
		return nil, apperrors.IO("checksumming segment", err)
	}
	if crc.Sum32() != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: checksum mismatch", name)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, apperrors.IO("reading dictionary", err)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: parsing dictionary: %v", name, err)
	}
	docsBytes := make([]byte, header.DocsSize)
	if _, err := f.ReadAt(docsBytes, header.DictOffset+header.DictSize); err != nil {
		return nil, apperrors.IO("reading doc table", err)
	}
	var docs []index.DocEntry
	if err := json.Unmarshal(docsBytes, &docs); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: parsing doc table: %v", name, err)
	}

	docSet := roaring64.New()
	fields := make(map[string]FieldStats)
	for _, d := range docs {
		docSet.Add(uint64(d.ID))
		for field, n := range d.FieldLengths {
			fs := fields[field]
			fs.Docs++
			fs.TotalLength += int64(n)
			fields[field] = fs
		}
	}
	return &Reader{
		file:     f,
		filePath: path,
		size:     size,
		header:   header,
		dict:     dict,
		docs:     docs,
		docSet:   docSet,
		fields:   fields,
	}, nil
}

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	key := index.TermKey{Field: field, Term: term}
	i := sort.Search(len(r.dict), func(i int) bool {
		return !r.dict[i].key().Less(key)
	})
	if i >= len(r.dict) || r.dict[i].Field != field || r.dict[i].Term != term {
		return DictEntry{}, false
	}
	return r.dict[i], true
}

// Postings returns the postings list for (field, term), or nil if the
// segment does not contain it.
func (r *Reader) Postings(field, term string) (index.PostingList, error) {
	entry, ok := r.lookup(field, term)
	if !ok {
		return nil, nil
	}
	return r.readPostings(entry)
}

func (r *Reader) readPostings(entry DictEntry) (index.PostingList, error) {
	buf := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(buf, int64(HeaderSize)+entry.PostOffset); err != nil {
		return nil, apperrors.IO("reading postings", err)
	}
	list, err := decodePostings(buf, entry.DocFreq)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: %s:%s: %v",
			filepath.Base(r.filePath), entry.Field, entry.Term, err)
	}
	return list, nil
}

// DocFreq returns the number of documents in this segment containing the
// term, deleted ones included.
func (r *Reader) DocFreq(field, term string) int {
	entry, ok := r.lookup(field, term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// Docs returns the set of document IDs stored in the segment. The bitmap is
// shared and must not be modified.
func (r *Reader) Docs() *roaring64.Bitmap {
	return r.docSet
}

func (r *Reader) DocCount() int {
	return len(r.docs)
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) FieldStats(field string) FieldStats {
	return r.fields[field]
}

// Document returns the doc table entry for id.
func (r *Reader) Document(id document.ID) (index.DocEntry, bool) {
	i := sort.Search(len(r.docs), func(i int) bool { return r.docs[i].ID >= id })
	if i >= len(r.docs) || r.docs[i].ID != id {
		return index.DocEntry{}, false
	}
	return r.docs[i], true
}

// FieldLength returns the token count of field in document id.
func (r *Reader) FieldLength(id document.ID, field string) int {
	d, ok := r.Document(id)
	if !ok {
		return 0
	}
	return d.FieldLengths[field]
}

// DocEntries returns the doc table in ID order. The slice is shared.
func (r *Reader) DocEntries() []index.DocEntry {
	return r.docs
}

func (r *Reader) Header() Header {
	return r.header
}

// Size returns the file size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// TermIterator walks a segment's dictionary in (field, term) order.
type TermIterator struct {
	r *Reader
	i int
}

func (r *Reader) Iterator() *TermIterator {
	return &TermIterator{r: r, i: -1}
}

// Next advances to the next term and reports whether there is one.
func (it *TermIterator) Next() bool {
	it.i++
	return it.i < len(it.r.dict)
}

func (it *TermIterator) Key() index.TermKey {
	return it.r.dict[it.i].key()
}

func (it *TermIterator) Postings() (index.PostingList, error) {
	return it.r.readPostings(it.r.dict[it.i])
}
