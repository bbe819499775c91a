// Package models defines core data structures for documents, chat turns, and projects.
package models

// DocumentFile is an uploaded file: a name and the raw bytes.
type DocumentFile struct {
	Name    string `json:"name"`
	Content []byte `json:"-"`
}

// Chunk is a bounded slice of extracted document text, the unit of retrieval.
// Chunks are immutable once produced by the chunker.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Index      int    `json:"index"`
}
