// Package index provides full-text search over stored task results.
package index

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/berth-dev/todoagent/internal/session"
)

// DefaultLimit caps the number of hits when no limit is given.
const DefaultLimit = 10

// Source lists stored sessions.
type Source interface {
	ListSessions(ctx context.Context, limit int) ([]session.Summary, error)
	FindSession(ctx context.Context, id string) (*session.Session, error)
}

// TaskDocument is the indexed form of one task.
type TaskDocument struct {
	SessionID  string `json:"session_id"`
	Objective  string `json:"objective"`
	Sequence   int    `json:"sequence"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Status     string `json:"status"`
	Result     string `json:"result"`
	Reflection string `json:"reflection"`
}

// Hit is one search match.
type Hit struct {
	SessionID string
	Objective string
	Sequence  int
	Title     string
	Status    string
	Result    string
	Score     float64
}

// Index is an in-memory Bleve index over task documents.
type Index struct {
	index bleve.Index
}

func buildMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	keyword := bleve.NewKeywordFieldMapping()

	doc.AddFieldMappingsAt("objective", text)
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("result", text)
	doc.AddFieldMappingsAt("reflection", text)
	doc.AddFieldMappingsAt("session_id", keyword)
	doc.AddFieldMappingsAt("status", keyword)
	doc.AddFieldMappingsAt("sequence", bleve.NewNumericFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// New returns an empty index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

// Build indexes every task of every session in src.
func Build(ctx context.Context, src Source) (*Index, error) {
	idx, err := New()
	if err != nil {
		return nil, err
	}
	summaries, err := src.ListSessions(ctx, 0)
	if err != nil {
		idx.Close()
		return nil, err
	}
	for _, sum := range summaries {
		sess, err := src.FindSession(ctx, sum.ID)
		if err != nil {
			idx.Close()
			return nil, err
		}
		if sess == nil {
			continue
		}
		if err := idx.AddSession(sess); err != nil {
			idx.Close()
			return nil, err
		}
	}
	return idx, nil
}

// AddSession indexes the tasks of sess, replacing earlier versions.
func (i *Index) AddSession(sess *session.Session) error {
	batch := i.index.NewBatch()
	for _, t := range sess.Tasks {
		doc := TaskDocument{
			SessionID:  sess.ID,
			Objective:  sess.Objective,
			Sequence:   t.SequenceID,
			Title:      t.Title,
			Content:    t.Content,
			Status:     string(t.Status),
			Result:     t.Result,
			Reflection: t.Reflection,
		}
		if err := batch.Index(docID(sess.ID, t.SequenceID), doc); err != nil {
			return fmt.Errorf("index task %d of %s: %w", t.SequenceID, sess.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("index session %s: %w", sess.ID, err)
	}
	return nil
}

// Search runs a query string query (e.g. "lisbon status:completed") and
// returns up to limit hits, best first.
func (i *Index) Search(queryText string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	req := bleve.NewSearchRequest(bleve.NewQueryStringQuery(queryText))
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		hit.SessionID, _ = h.Fields["session_id"].(string)
		hit.Objective, _ = h.Fields["objective"].(string)
		hit.Title, _ = h.Fields["title"].(string)
		hit.Status, _ = h.Fields["status"].(string)
		hit.Result, _ = h.Fields["result"].(string)
		if seq, ok := h.Fields["sequence"].(float64); ok {
			hit.Sequence = int(seq)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}

func docID(sessionID string, seq int) string {
	return sessionID + "#" + strconv.Itoa(seq)
}
