// Package executor evaluates parsed queries against a segment snapshot and
// ranks the matches.
package executor

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the per-leaf segment reads in flight.
const DefaultConcurrency = 8

type Hit struct {
	DocID  document.ID       `json:"doc_id"`
	Score  float64           `json:"score"`
	Fields map[string]string `json:"fields,omitempty"`
}

type SearchResult struct {
	Query     string   `json:"query"`
	TotalHits int      `json:"total_hits"`
	Results   []Hit    `json:"results"`
	Warnings  []string `json:"warnings,omitempty"`
}

type Executor struct {
	scorer      ranker.Scorer
	concurrency int
	logger      *slog.Logger
}

type Option func(*Executor)

func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l.With("component", "query-executor")
	}
}

// New returns an executor ranking with scorer, or BM25 when scorer is nil.
func New(scorer ranker.Scorer, opts ...Option) *Executor {
	if scorer == nil {
		scorer = ranker.BM25{}
	}
	e := &Executor{
		scorer:      scorer,
		concurrency: DefaultConcurrency,
		logger:      slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Scorer() ranker.Scorer {
	return e.scorer
}

// Search runs expr against snap and returns at most topK hits, best first,
// equal scores ordered by ascending ID. A nil expr or a topK of 0 yields an
// empty result. The caller keeps ownership of snap.
func (e *Executor) Search(ctx context.Context, snap *segment.Snapshot, expr parser.Expr, topK int) (*SearchResult, error) {
	if topK < 0 {
		return nil, apperrors.Newf(apperrors.ErrValidation, "topK must not be negative, got %d", topK)
	}
	result := &SearchResult{
		Query:    parser.Describe(expr),
		Results:  []Hit{},
		Warnings: snap.Warnings,
	}
	if expr == nil || topK == 0 || len(snap.Segments) == 0 {
		return result, nil
	}

	ev := &evaluation{
		ctx:         ctx,
		snap:        snap,
		scorer:      e.scorer,
		concurrency: e.concurrency,
		totalDocs:   totalDocs(snap),
	}
	matches, err := ev.eval(expr)
	if err != nil {
		return nil, err
	}

	top := merger.New(topK)
	for _, m := range matches {
		top.Push(merger.ScoredDoc{DocID: m.doc, Score: m.score})
	}
	for _, d := range top.Results() {
		hit := Hit{DocID: document.ID(d.DocID), Score: d.Score}
		if entry, ok := snap.Document(hit.DocID); ok && len(entry.Stored) > 0 {
			hit.Fields = entry.Stored
		}
		result.Results = append(result.Results, hit)
	}
	result.TotalHits = len(matches)

	e.logger.Debug("query executed",
		"query", result.Query,
		"generation", snap.Generation,
		"segments", len(snap.Segments),
		"candidates", len(matches),
		"results", len(result.Results),
	)
	return result, nil
}

// totalDocs counts every document held by the snapshot's segments,
// deleted ones included, to match the document frequencies.
func totalDocs(snap *segment.Snapshot) int64 {
	var n int64
	for _, h := range snap.Segments {
		n += int64(h.Reader().DocCount())
	}
	return n
}

// match is a candidate document with its accumulated score. Lists of
// matches are kept sorted by doc.
type match struct {
	doc   uint64
	score float64
}

type evaluation struct {
	ctx         context.Context
	snap        *segment.Snapshot
	scorer      ranker.Scorer
	concurrency int
	totalDocs   int64
}

func (ev *evaluation) eval(expr parser.Expr) ([]match, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, err
	}
	switch x := expr.(type) {
	case *parser.Term:
		return ev.term(x)
	case *parser.Phrase:
		return ev.phrase(x)
	case *parser.And:
		return ev.and(x)
	case *parser.Or:
		var acc []match
		for _, c := range x.Clauses {
			m, err := ev.eval(c)
			if err != nil {
				return nil, err
			}
			acc = union(acc, m)
		}
		return acc, nil
	case *parser.Not:
		excluded, err := ev.eval(x.Clause)
		if err != nil {
			return nil, err
		}
		return ev.liveExcept(excluded), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported expression %T", expr)
}

// and intersects the positive clauses and subtracts the negated ones, so
// "a NOT b" never materialises every live document.
func (ev *evaluation) and(x *parser.And) ([]match, error) {
	var (
		acc      []match
		started  bool
		excluded []match
	)
	for _, c := range x.Clauses {
		if n, ok := c.(*parser.Not); ok {
			m, err := ev.eval(n.Clause)
			if err != nil {
				return nil, err
			}
			excluded = union(excluded, m)
			continue
		}
		m, err := ev.eval(c)
		if err != nil {
			return nil, err
		}
		if !started {
			acc, started = m, true
		} else {
			acc = intersect(acc, m)
		}
		if len(acc) == 0 {
			return nil, nil
		}
	}
	if !started {
		return ev.liveExcept(excluded), nil
	}
	return difference(acc, excluded), nil
}

func (ev *evaluation) liveExcept(excluded []match) []match {
	out := make([]match, 0, ev.snap.Live.GetCardinality())
	it := ev.snap.Live.Iterator()
	i := 0
	for it.HasNext() {
		id := it.Next()
		for i < len(excluded) && excluded[i].doc < id {
			i++
		}
		if i < len(excluded) && excluded[i].doc == id {
			continue
		}
		out = append(out, match{doc: id})
	}
	return out
}

// segmentPostings is one segment's live postings for a single term.
type segmentPostings struct {
	reader *segment.Reader
	list   index.PostingList
}

// readTerm loads the postings of (field, term) from every segment in
// parallel, with deleted documents removed.
func (ev *evaluation) readTerm(field, term string) ([]segmentPostings, error) {
	segs := ev.snap.Segments
	out := make([]segmentPostings, len(segs))
	g, _ := errgroup.WithContext(ev.ctx)
	g.SetLimit(ev.concurrency)
	for i, h := range segs {
		g.Go(func() error {
			r := h.Reader()
			list, err := r.Postings(field, term)
			if err != nil {
				return fmt.Errorf("reading %s:%s from segment %d: %w", field, term, h.ID(), err)
			}
			live := list[:0:0]
			for _, p := range list {
				if ev.snap.Live.Contains(uint64(p.DocID)) {
					live = append(live, p)
				}
			}
			out[i] = segmentPostings{reader: r, list: live}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ev *evaluation) stats(field, term string) ranker.TermStats {
	fs := ev.snap.FieldStats(field)
	var avg float64
	if fs.Docs > 0 {
		avg = float64(fs.TotalLength) / float64(fs.Docs)
	}
	return ranker.TermStats{
		Term:           term,
		DocFreq:        int64(ev.snap.DocFreq(field, term)),
		TotalDocs:      ev.totalDocs,
		AvgFieldLength: avg,
	}
}

func (ev *evaluation) term(t *parser.Term) ([]match, error) {
	segs, err := ev.readTerm(t.Field, t.Text)
	if err != nil {
		return nil, err
	}
	base := ev.stats(t.Field, t.Text)
	var out []match
	for _, sp := range segs {
		for _, p := range sp.list {
			st := base
			st.DocID = uint64(p.DocID)
			st.TermFreq = p.Frequency
			st.FieldLength = sp.reader.FieldLength(p.DocID, t.Field)
			out = append(out, match{doc: uint64(p.DocID), score: ev.scorer.Score(st)})
		}
	}
	sortMatches(out)
	return out, nil
}

// phrase matches documents where every term sits at its relative position.
// Each term is scored with the number of phrase occurrences as its
// frequency.
func (ev *evaluation) phrase(ph *parser.Phrase) ([]match, error) {
	perTerm := make([][]segmentPostings, len(ph.Terms))
	stats := make([]ranker.TermStats, len(ph.Terms))
	for i, term := range ph.Terms {
		segs, err := ev.readTerm(ph.Field, term)
		if err != nil {
			return nil, err
		}
		perTerm[i] = segs
		stats[i] = ev.stats(ph.Field, term)
	}

	var out []match
	for s := range ev.snap.Segments {
		lists := make([]index.PostingList, len(ph.Terms))
		for i := range ph.Terms {
			lists[i] = perTerm[i][s].list
		}
		reader := perTerm[0][s].reader
		for _, group := range alignPostings(lists) {
			freq := phraseFreq(group, ph.Positions)
			if freq == 0 {
				continue
			}
			id := group[0].DocID
			length := reader.FieldLength(id, ph.Field)
			var score float64
			for i := range ph.Terms {
				st := stats[i]
				st.DocID = uint64(id)
				st.TermFreq = freq
				st.FieldLength = length
				score += ev.scorer.Score(st)
			}
			out = append(out, match{doc: uint64(id), score: score})
		}
	}
	sortMatches(out)
	return out, nil
}

// alignPostings returns, for every document present in all lists, the
// posting of each list.
func alignPostings(lists []index.PostingList) [][]index.Posting {
	for _, l := range lists {
		if len(l) == 0 {
			return nil
		}
	}
	idx := make([]int, len(lists))
	var out [][]index.Posting
	for {
		target := lists[0][idx[0]].DocID
		aligned := true
		for i, l := range lists {
			for idx[i] < len(l) && l[idx[i]].DocID < target {
				idx[i]++
			}
			if idx[i] == len(l) {
				return out
			}
			if l[idx[i]].DocID != target {
				target = l[idx[i]].DocID
				aligned = false
			}
		}
		if !aligned {
			// Advance the first list to the new target and retry.
			for idx[0] < len(lists[0]) && lists[0][idx[0]].DocID < target {
				idx[0]++
			}
			if idx[0] == len(lists[0]) {
				return out
			}
			continue
		}
		group := make([]index.Posting, len(lists))
		for i, l := range lists {
			group[i] = l[idx[i]]
		}
		out = append(out, group)
		idx[0]++
		if idx[0] == len(lists[0]) {
			return out
		}
	}
}

// phraseFreq counts the start positions p for which term i occurs at
// p + rel[i] for every i.
func phraseFreq(group []index.Posting, rel []int) int {
	n := 0
	for _, start := range group[0].Positions {
		ok := true
		for i := 1; i < len(group); i++ {
			if _, found := slices.BinarySearch(group[i].Positions, start+rel[i]-rel[0]); !found {
				ok = false
				break
			}
		}
		if ok {
			n++
		}
	}
	return n
}

func sortMatches(m []match) {
	slices.SortFunc(m, func(a, b match) int { return cmp.Compare(a.doc, b.doc) })
}

func intersect(a, b []match) []match {
	out := make([]match, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].doc < b[j].doc:
			i++
		case a[i].doc > b[j].doc:
			j++
		default:
			out = append(out, match{doc: a[i].doc, score: a[i].score + b[j].score})
			i++
			j++
		}
	}
	return out
}

func union(a, b []match) []match {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]match, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].doc < b[j].doc):
			out = append(out, a[i])
			i++
		case i == len(a) || a[i].doc > b[j].doc:
			out = append(out, b[j])
			j++
		default:
			out = append(out, match{doc: a[i].doc, score: a[i].score + b[j].score})
			i++
			j++
		}
	}
	return out
}

func difference(a, b []match) []match {
	if len(b) == 0 {
		return a
	}
	out := make([]match, 0, len(a))
	j := 0
	for _, m := range a {
		for j < len(b) && b[j].doc < m.doc {
			j++
		}
		if j < len(b) && b[j].doc == m.doc {
			continue
		}
		out = append(out, m)
	}
	return out
}
