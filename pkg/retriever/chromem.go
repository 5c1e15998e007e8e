package retriever

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

const ChromemName = "chromem"

const defaultTopK = 5

func init() {
	Register(ChromemName, func(cfg Config) (Retriever, error) {
		return NewChromem(cfg)
	})
}

// Chromem retrieves from a chromem-go collection that was indexed
// beforehand. Ingestion is not this tool's job; an empty or missing
// collection simply yields no chunks.
type Chromem struct {
	collection *chromem.Collection
	topK       int
}

func NewChromem(cfg Config) (*Chromem, error) {
	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("retriever: opening chromem db at %q: %w", cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	var embed chromem.EmbeddingFunc
	if cfg.Embedding.Model != "" {
		embed = chromem.NewEmbeddingFuncOpenAICompat(
			cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, nil)
	} else {
		embed = chromem.NewEmbeddingFuncDefault()
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("retriever: opening collection %q: %w", cfg.Collection, err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Chromem{collection: collection, topK: topK}, nil
}

func (r *Chromem) Name() string { return ChromemName }

// Retrieve queries the collection with the question text and maps the
// top results to chunks carrying display_name and page_number meta.
func (r *Chromem) Retrieve(ctx context.Context, qa *expe.QA) error {
	n := r.topK
	if count := r.collection.Count(); n > count {
		n = count
	}
	if n == 0 {
		qa.Chunks.Items = nil
		return nil
	}

	results, err := r.collection.Query(ctx, qa.Question.Text, n, nil, nil)
	if err != nil {
		return fmt.Errorf("retriever: querying %q: %w", qa.Question.Text, err)
	}

	chunks := make([]*expe.Chunk, 0, len(results))
	for _, res := range results {
		meta := expe.Meta{
			expe.MetaDisplayName: res.Metadata[expe.MetaDisplayName],
			"similarity":         float64(res.Similarity),
		}
		if page, err := strconv.Atoi(res.Metadata[expe.MetaPageNumber]); err == nil {
			meta[expe.MetaPageNumber] = page
		} else {
			meta[expe.MetaPageNumber] = res.Metadata[expe.MetaPageNumber]
		}
		chunks = append(chunks, &expe.Chunk{Text: res.Content, Meta: meta})
	}
	qa.Chunks.Items = chunks
	return nil
}
