// Package knowledge indexes a directory of notes and answers similarity
// queries over it using hashed bag-of-words vectors.
package knowledge

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/m2tx/gemini_chat/internal/logger"
)

const (
	dimensions   = 512
	maxChunkSize = 800
)

// Passage is an indexed slice of a document.
type Passage struct {
	Filename string  `json:"filename"`
	Text     string  `json:"content"`
	Score    float32 `json:"score"`

	vector []float32
}

// Index holds the passages of every supported file in a directory.
type Index struct {
	mu       sync.RWMutex
	passages []Passage
}

func NewIndex() *Index {
	return &Index{}
}

// Open builds an index from dir. An empty dir means no knowledge base is
// configured and yields a nil index.
func Open(dir string) (*Index, error) {
	if dir == "" {
		return nil, nil
	}

	ix := NewIndex()
	if err := ix.Load(dir); err != nil {
		return nil, err
	}
	return ix, nil
}

// Load reads .txt, .md and .pdf files from dir, replacing the current contents.
// A missing directory leaves the index empty.
func (ix *Index) Load(dir string) error {
	if dir == "" {
		ix.replace(nil)
		return nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logger.L.Warn("knowledge directory not found", "dir", dir)
		ix.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("knowledge: read dir %q: %w", dir, err)
	}

	var passages []Passage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		text, ok, err := readDocument(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("knowledge: %s: %w", entry.Name(), err)
		}
		if !ok {
			continue
		}

		for _, chunk := range Split(text, maxChunkSize) {
			passages = append(passages, Passage{
				Filename: entry.Name(),
				Text:     chunk,
				vector:   vectorize(chunk),
			})
		}
	}

	ix.replace(passages)
	logger.L.Info("knowledge index loaded", "dir", dir, "passages", len(passages))
	return nil
}

// Add indexes text under a synthetic filename.
func (ix *Index) Add(filename, text string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, chunk := range Split(text, maxChunkSize) {
		ix.passages = append(ix.passages, Passage{Filename: filename, Text: chunk, vector: vectorize(chunk)})
	}
}

func (ix *Index) replace(passages []Passage) {
	ix.mu.Lock()
	ix.passages = passages
	ix.mu.Unlock()
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.passages)
}

// Search returns up to k passages ordered by descending similarity to query.
// Passages sharing no terms with the query are omitted.
func (ix *Index) Search(query string, k int) []Passage {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k <= 0 || len(ix.passages) == 0 {
		return nil
	}

	q := vectorize(query)
	scored := make([]Passage, 0, len(ix.passages))
	for _, p := range ix.passages {
		score := dot(q, p.vector)
		if score <= 0 {
			continue
		}
		p.Score = score
		scored = append(scored, p)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Split breaks text into paragraph-aligned chunks of at most maxLen bytes.
// A single paragraph longer than maxLen becomes its own chunk.
func Split(text string, maxLen int) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var (
		chunks []string
		buf    strings.Builder
	)
	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+2+len(p) > maxLen {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	flush()

	return chunks
}

func readDocument(path string) (string, bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	case ".pdf":
		text, err := readPDF(path)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	default:
		return "", false, nil
	}
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// vectorize hashes lower-cased terms into a unit-length vector.
func vectorize(text string) []float32 {
	vec := make([]float32, dimensions)
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, term := range terms {
		h := fnv.New32a()
		h.Write([]byte(term))
		vec[h.Sum32()%dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// dot is the cosine similarity of two unit vectors.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
