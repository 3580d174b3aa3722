// File path: internal/knowledge/knowledge_test.go
package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"

	"github.com/nicodishanthj/vitaplan/internal/cache"
	"github.com/nicodishanthj/vitaplan/internal/records"
	"github.com/nicodishanthj/vitaplan/internal/vector"
)

func TestGuidelinesLoadWithFrontMatter(t *testing.T) {
	guidelines, err := Guidelines()
	require.NoError(t, err)
	require.Len(t, guidelines, 6)
	for _, g := range guidelines {
		assert.NotEmpty(t, g.Source, g.Name)
		assert.NotEmpty(t, g.Topic, g.Name)
		assert.NotContains(t, g.Body, "---\n", g.Name)
	}
}

func TestChunkAssignsSequenceAndRespectsSize(t *testing.T) {
	docs, err := GuidelineDocuments()
	require.NoError(t, err)
	require.Greater(t, len(docs), 6, "long guidelines are split")
	for i, doc := range docs {
		assert.Equal(t, i, doc.Metadata[MetaSeq])
		assert.Equal(t, KindGuideline, doc.Metadata[MetaKind])
		assert.LessOrEqual(t, utf8.RuneCountInString(doc.PageContent), DefaultChunkSize)
	}
}

func TestParseGuidelineWithoutFrontMatter(t *testing.T) {
	g, err := parseGuideline([]byte("plain body\n"))
	require.NoError(t, err)
	assert.Equal(t, "plain body", g.Body)

	_, err = parseGuideline([]byte("---\nsource: x\n"))
	assert.Error(t, err)
}

func TestRecordText(t *testing.T) {
	rec := records.PatientRecord{SourceID: "NFHS_7", Age: 34, HeightCM: 158, WeightKG: 73.4, BMI: 29.4,
		Category: "Obese", State: "Punjab", Residence: "Urban", Wealth: "Middle"}
	text := RecordText(rec)
	assert.Contains(t, text, "34 year old from urban Punjab, BMI 29.4 (Obese), middle wealth index.")
	assert.Contains(t, text, "weight loss advised")

	doc := RecordDocument(rec, 3)
	assert.Equal(t, "NFHS_7", doc.Metadata[MetaSource])
	assert.Equal(t, 3, doc.Metadata[MetaSeq])
	assert.Equal(t, KindRecord, doc.Metadata[MetaKind])
}

func TestLexicalSearcherFindsMedicationGuidance(t *testing.T) {
	docs, err := GuidelineDocuments()
	require.NoError(t, err)
	s := NewLexicalSearcher(docs)
	passages, err := s.SimilaritySearch(context.Background(), "orlistat metformin semaglutide cost", 3)
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	assert.Equal(t, "Drug Database", passages[0].Source())
	for i := 1; i < len(passages); i++ {
		assert.GreaterOrEqual(t, passages[i-1].Score, passages[i].Score)
	}
}

func TestLexicalSearcherHonoursCancellation(t *testing.T) {
	s := NewLexicalSearcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SimilaritySearch(ctx, "x", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRankBreaksTiesByInsertion(t *testing.T) {
	passages := []Passage{{ID: "c", Score: 0.5, Seq: 2}, {ID: "a", Score: 0.9, Seq: 5}, {ID: "b", Score: 0.5, Seq: 1}}
	Rank(passages)
	assert.Equal(t, []string{"a", "b", "c"}, []string{passages[0].ID, passages[1].ID, passages[2].ID})
}

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, input []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{float32(len(input[i])), 1}
	}
	return out, nil
}

type fakeStore struct {
	mu        sync.Mutex
	available bool
	results   []vector.SearchResult
	upserts   [][]vector.Record
	err       error
}

func (f *fakeStore) Available() bool    { return f.available }
func (f *fakeStore) Collection() string { return "fake" }
func (f *fakeStore) EnsureCollection(context.Context) error {
	if !f.available {
		return vector.ErrUnavailable
	}
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, recs []vector.Record, vecs [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(recs) != len(vecs) {
		return errors.New("mismatch")
	}
	f.upserts = append(f.upserts, recs)
	return nil
}

func (f *fakeStore) Search(context.Context, []float32, int) ([]vector.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestVectorSearcherCachesQueryEmbeddings(t *testing.T) {
	store := &fakeStore{available: true, results: []vector.SearchResult{
		{ID: "b", Score: 0.5, Content: "second", Payload: map[string]interface{}{MetaSeq: float64(4)}},
		{ID: "a", Score: 0.5, Content: "first", Payload: map[string]interface{}{MetaSeq: float64(1)}},
		{ID: "top", Score: 0.8, Content: "best", Payload: map[string]interface{}{MetaSource: "WHO Guidelines"}},
	}}
	emb := &countingEmbedder{}
	s := NewVectorSearcher(store, emb, WithEmbeddingCache(cache.NewMemoryEmbeddings(8), "test-model"))
	ctx := context.Background()

	passages, err := s.SimilaritySearch(ctx, "obesity guidance", 3)
	require.NoError(t, err)
	require.Len(t, passages, 3)
	assert.Equal(t, []string{"top", "a", "b"}, []string{passages[0].ID, passages[1].ID, passages[2].ID})
	assert.Equal(t, "WHO Guidelines", passages[0].Source())

	_, err = s.SimilaritySearch(ctx, "obesity guidance", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
}

func TestVectorSearcherReportsUnavailableStore(t *testing.T) {
	store := &fakeStore{err: vector.ErrUnavailable}
	s := NewVectorSearcher(store, &countingEmbedder{})
	_, err := s.SimilaritySearch(context.Background(), "q", 3)
	assert.ErrorIs(t, err, vector.ErrUnavailable)

	_, err = NewVectorSearcher(nil, &countingEmbedder{}).SimilaritySearch(context.Background(), "q", 3)
	assert.ErrorIs(t, err, vector.ErrUnavailable)

	boom := errors.New("embed down")
	_, err = NewVectorSearcher(&fakeStore{available: true}, &countingEmbedder{err: boom}).SimilaritySearch(context.Background(), "q", 3)
	assert.ErrorIs(t, err, boom)
}

func TestIndexerBatches(t *testing.T) {
	store := &fakeStore{available: true}
	docs := make([]schema.Document, 5)
	for i := range docs {
		docs[i] = RecordDocument(records.PatientRecord{SourceID: "NFHS_" + string(rune('a'+i)), Category: "Normal"}, i)
	}
	n, err := NewIndexer(&countingEmbedder{}, 2).Index(context.Background(), store, docs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, store.upserts, 3)
	assert.Equal(t, "NFHS_a", store.upserts[0][0].ID)

	_, err = NewIndexer(&countingEmbedder{}, 2).Index(context.Background(), &fakeStore{}, docs)
	assert.ErrorIs(t, err, vector.ErrUnavailable)
}
