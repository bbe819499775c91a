package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/extract"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
)

// ErrEmptyContent reports that uploaded files produced no extractable text.
// An empty upload must never result in a silently empty index.
var ErrEmptyContent = errors.New("no extractable text in uploaded documents")

// BuildResult holds the artifacts of one successful processing run.
type BuildResult struct {
	Chunks  []models.Chunk
	Index   *vector.Index
	Keyword *keyword.ChunkIndex
}

// Processor runs the document pipeline: extract, chunk, embed, build the
// vector and lexical indexes. Every stage fails fast; a failed run commits
// nothing.
type Processor struct {
	extractor *extract.Extractor
	embedder  embedding.Embedder
	chunker   *Chunker
	logger    *zap.Logger // optional
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a processor with the given dependencies.
func NewProcessor(embedder embedding.Embedder, cfg *config.ChatConfig, opts ...ProcessorOption) *Processor {
	p := &Processor{
		extractor: extract.NewExtractor(),
		embedder:  embedder,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separator),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts text from files, chunks it, and builds both indexes.
// Returns ErrEmptyContent when the files hold no text, a *extract.FileError
// naming the offending file on extraction failure, and a wrapped embedding
// error when the collaborator rejects the build.
func (p *Processor) Process(ctx context.Context, files []models.DocumentFile) (*BuildResult, error) {
	if len(files) == 0 {
		return nil, ErrEmptyContent
	}
	text, err := p.extractor.ExtractAll(files)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	runID := uuid.New().String()[:8]
	chunks := p.chunker.Chunk(runID, text)
	if len(chunks) == 0 {
		return nil, ErrEmptyContent
	}
	if p.logger != nil {
		p.logger.Debug("documents chunked",
			zap.Int("files", len(files)),
			zap.Int("chunks", len(chunks)),
		)
	}

	ix, err := vector.Build(ctx, p.embedder, chunks)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	kw, err := keyword.BuildChunkIndex(chunks)
	if err != nil {
		return nil, fmt.Errorf("build keyword index: %w", err)
	}
	if p.logger != nil {
		p.logger.Debug("indexes built", zap.Int("vectors", ix.Size()))
	}
	return &BuildResult{Chunks: chunks, Index: ix, Keyword: kw}, nil
}
