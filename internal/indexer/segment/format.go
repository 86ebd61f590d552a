// Package segment stores flushed postings in immutable files and tracks which
// of them are live through an atomically replaced manifest.
//
// A segment file is laid out as
//
//	header   64 bytes, fixed
//	postings varint-encoded postings lists, one after another
//	dict     JSON array of DictEntry sorted by (field, term)
//	docs     JSON array of index.DocEntry sorted by ID
//	footer   16 bytes: CRC32-C of the body, CRC32-C of the header, magic
//
// All integers are little endian.
package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x53434753 // "SGCS"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 16
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Header is the fixed-size block at the start of every segment file. The
// postings blob always starts right after it and the doc table right after
// the dictionary.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CreatedAt  int64
	PostSize   int64
	DictOffset int64
	DictSize   int64
	DocsSize   int64
	SegmentID  uint64
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DocsSize))
	binary.LittleEndian.PutUint64(b[56:64], h.SegmentID)
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[16:24])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[24:32])),
		DictOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		DocsSize:   int64(binary.LittleEndian.Uint64(b[48:56])),
		SegmentID:  binary.LittleEndian.Uint64(b[56:64]),
	}
}

// DictEntry maps a (field, term) pair to its postings in the blob.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

func (e DictEntry) key() index.TermKey {
	return index.TermKey{Field: e.Field, Term: e.Term}
}

// appendPostings encodes list as, per posting: uvarint doc ID delta,
// uvarint frequency, then frequency uvarint position deltas.
func appendPostings(buf []byte, list index.PostingList) ([]byte, error) {
	var prev uint64
	for i, p := range list {
		id := uint64(p.DocID)
		if i > 0 && id <= prev {
			return nil, fmt.Errorf("postings not strictly increasing: %d after %d", id, prev)
		}
		if p.Frequency != len(p.Positions) || p.Frequency == 0 {
			return nil, fmt.Errorf("doc %d: frequency %d with %d positions", id, p.Frequency, len(p.Positions))
		}
		buf = binary.AppendUvarint(buf, id-prev)
		prev = id
		buf = binary.AppendUvarint(buf, uint64(p.Frequency))
		last := 0
		for _, pos := range p.Positions {
			if pos < last {
				return nil, fmt.Errorf("doc %d: positions not sorted", id)
			}
			buf = binary.AppendUvarint(buf, uint64(pos-last))
			last = pos
		}
	}
	return buf, nil
}

func decodePostings(data []byte, n int) (index.PostingList, error) {
	list := make(index.PostingList, 0, n)
	var prev uint64
	read := func() (uint64, error) {
		v, k := binary.Uvarint(data)
		if k <= 0 {
			return 0, fmt.Errorf("truncated postings")
		}
		data = data[k:]
		return v, nil
	}
	for i := 0; i < n; i++ {
		delta, err := read()
		if err != nil {
			return nil, err
		}
		freq, err := read()
		if err != nil {
			return nil, err
		}
		if freq > uint64(len(data)) {
			return nil, fmt.Errorf("frequency %d exceeds remaining postings", freq)
		}
		prev += delta
		p := index.Posting{
			DocID:     document.ID(prev),
			Frequency: int(freq),
			Positions: make([]int, freq),
		}
		last := 0
		for j := range p.Positions {
			d, err := read()
			if err != nil {
				return nil, err
			}
			last += int(d)
			p.Positions[j] = last
		}
		list = append(list, p)
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after postings", len(data))
	}
	return list, nil
}
