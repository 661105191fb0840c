package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

type objectStorageFake struct {
	files map[string]string
}

func (s *objectStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if s.files == nil {
		s.files = make(map[string]string)
	}
	s.files[key] = string(raw)
	return nil
}

func (s *objectStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := s.files[key]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type ingestQueueFake struct {
	published []string
	err       error
}

func (q *ingestQueueFake) PublishCorpusIngest(_ context.Context, path string) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, path)
	return nil
}

func (q *ingestQueueFake) SubscribeCorpusIngest(context.Context, func(context.Context, string) error) error {
	return nil
}

type chunkerFake struct {
	size int
}

func (c *chunkerFake) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	size := c.size
	if size <= 0 {
		size = 10
	}
	var chunks []string
	for len(text) > size {
		chunks = append(chunks, text[:size])
		text = text[size:]
	}
	return append(chunks, text)
}

type embedderFake struct {
	err     error
	batches [][]string
	short   bool
}

func (e *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.batches = append(e.batches, texts)
	n := len(texts)
	if e.short && n > 0 {
		n--
	}
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

func (e *embedderFake) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1}, nil
}

type vectorStoreFake struct {
	indexed []domain.RetrievedDocument
	err     error
}

func (v *vectorStoreFake) IndexDocuments(_ context.Context, docs []domain.RetrievedDocument, vectors [][]float32) error {
	if v.err != nil {
		return v.err
	}
	if len(docs) != len(vectors) {
		return errors.New("length mismatch")
	}
	v.indexed = append(v.indexed, docs...)
	return nil
}

func (v *vectorStoreFake) Search(context.Context, []float32, int, domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	return nil, nil
}

const corpusJSON = `[
  {"title": "Arctic Amplification", "year": 2021, "abstract": "Warming is amplified at the poles.", "content": "The Arctic warms roughly four times faster than the global mean."},
  {"title": "Ocean Heat Uptake", "year": 2022, "abstract": "Oceans absorb most excess heat.", "content": ""},
  {"title": "", "year": 2020, "abstract": "orphan abstract", "content": "orphan body"}
]`

func newIngestFixture(t *testing.T, corpus string) (*CorpusIngestUseCase, *vectorStoreFake, *vectorStoreFake, *ingestQueueFake) {
	t.Helper()
	storage := &objectStorageFake{}
	if err := storage.Save(context.Background(), "corpus.json", strings.NewReader(corpus)); err != nil {
		t.Fatalf("seed storage: %v", err)
	}
	queue := &ingestQueueFake{}
	abstract := &vectorStoreFake{}
	content := &vectorStoreFake{}
	uc := NewCorpusIngestUseCase(storage, queue, &chunkerFake{size: 30}, &embedderFake{}, abstract, content)
	return uc, abstract, content, queue
}

func TestEnqueuePublishesPath(t *testing.T) {
	uc, _, _, queue := newIngestFixture(t, corpusJSON)

	if err := uc.Enqueue(context.Background(), "corpus.json"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(queue.published) != 1 || queue.published[0] != "corpus.json" {
		t.Fatalf("unexpected published paths: %v", queue.published)
	}
}

func TestEnqueueRejectsBlankPath(t *testing.T) {
	uc, _, _, _ := newIngestFixture(t, corpusJSON)

	if err := uc.Enqueue(context.Background(), "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestProcessCorpusIndexesBothCollections(t *testing.T) {
	uc, abstract, content, _ := newIngestFixture(t, corpusJSON)

	stats, err := uc.ProcessCorpus(context.Background(), "corpus.json")
	if err != nil {
		t.Fatalf("ProcessCorpus() error = %v", err)
	}

	if stats.Theses != 3 {
		t.Fatalf("Theses = %d, want 3", stats.Theses)
	}
	if stats.SkippedEntries != 1 {
		t.Fatalf("SkippedEntries = %d, want 1 (untitled entry)", stats.SkippedEntries)
	}
	if stats.AbstractDocs != 2 || len(abstract.indexed) != 2 {
		t.Fatalf("AbstractDocs = %d, indexed = %d, want 2", stats.AbstractDocs, len(abstract.indexed))
	}
	// One 63-char body at chunk size 30 yields 3 chunks; empty body yields none.
	if stats.ContentChunks != len(content.indexed) || stats.ContentChunks == 0 {
		t.Fatalf("ContentChunks = %d, indexed = %d", stats.ContentChunks, len(content.indexed))
	}

	for _, doc := range content.indexed {
		if doc.Metadata.Title != "Arctic Amplification" || doc.Metadata.Year != 2021 {
			t.Fatalf("chunk lost its thesis metadata: %+v", doc.Metadata)
		}
	}
}

func TestProcessCorpusMissingFile(t *testing.T) {
	uc, _, _, _ := newIngestFixture(t, corpusJSON)

	if _, err := uc.ProcessCorpus(context.Background(), "absent.json"); err == nil {
		t.Fatalf("expected error for missing corpus file")
	}
}

func TestProcessCorpusMalformedJSON(t *testing.T) {
	uc, _, _, _ := newIngestFixture(t, `{"not": "an array"`)

	if _, err := uc.ProcessCorpus(context.Background(), "corpus.json"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestProcessCorpusEmbedderMismatch(t *testing.T) {
	storage := &objectStorageFake{}
	if err := storage.Save(context.Background(), "corpus.json", strings.NewReader(corpusJSON)); err != nil {
		t.Fatalf("seed storage: %v", err)
	}
	uc := NewCorpusIngestUseCase(storage, &ingestQueueFake{}, &chunkerFake{size: 30}, &embedderFake{short: true}, &vectorStoreFake{}, &vectorStoreFake{})

	if _, err := uc.ProcessCorpus(context.Background(), "corpus.json"); err == nil {
		t.Fatalf("expected vector count mismatch error")
	}
}
