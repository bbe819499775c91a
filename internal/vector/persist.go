package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
)

// Save writes the index to path. Format: dimensions (4), count (4), then per
// chunk: id, document id, and text as length-prefixed strings, chunk index
// (4), and the vector (dimensions*4 bytes), all little-endian.
func (ix *Index) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, uint32(ix.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ix.chunks))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, ch := range ix.chunks {
		for _, s := range []string{ch.ID, ch.DocumentID, ch.Text} {
			if err := writeString(w, s); err != nil {
				return fmt.Errorf("write chunk %d: %w", i, err)
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(ch.Index)); err != nil {
			return fmt.Errorf("write chunk %d index: %w", i, err)
		}
		for _, v := range ix.vectors[i] {
			if err := binary.Write(w, binary.LittleEndian, math.Float32bits(v)); err != nil {
				return fmt.Errorf("write chunk %d vector: %w", i, err)
			}
		}
	}
	return w.Flush()
}

// Load reads an index snapshot from path. The embedder is attached for query
// embedding and must be the one the snapshot was built with.
func Load(path string, embedder embedding.Embedder) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dims, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	ix := &Index{
		embedder:   embedder,
		dimensions: int(dims),
		chunks:     make([]models.Chunk, 0, count),
		vectors:    make([][]float32, 0, count),
	}
	for i := uint32(0); i < count; i++ {
		var ch models.Chunk
		var fields [3]string
		for j := range fields {
			s, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("read chunk %d: %w", i, err)
			}
			fields[j] = s
		}
		ch.ID, ch.DocumentID, ch.Text = fields[0], fields[1], fields[2]
		var idx uint32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return nil, fmt.Errorf("read chunk %d index: %w", i, err)
		}
		ch.Index = int(idx)
		vec := make([]float32, dims)
		for j := range vec {
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return nil, fmt.Errorf("read chunk %d vector: %w", i, err)
			}
			vec[j] = math.Float32frombits(bits)
		}
		ix.chunks = append(ix.chunks, ch)
		ix.vectors = append(ix.vectors, vec)
	}
	return ix, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
