// File path: internal/knowledge/corpus.go
package knowledge

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"gopkg.in/yaml.v3"
)

//go:embed corpus/*.md
var corpusFS embed.FS

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// Metadata keys shared by guideline chunks and record documents.
	MetaSource = "source"
	MetaTopic  = "topic"
	MetaDoc    = "doc"
	MetaSeq    = "seq"
	MetaKind   = "kind"

	KindGuideline = "guideline"
	KindRecord    = "patient_record"
)

// Guideline is one embedded reference document.
type Guideline struct {
	Name   string `yaml:"-"`
	Source string `yaml:"source"`
	Topic  string `yaml:"topic"`
	Body   string `yaml:"-"`
}

// Guidelines returns the embedded corpus ordered by file name.
func Guidelines() ([]Guideline, error) {
	entries, err := fs.Glob(corpusFS, "corpus/*.md")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	out := make([]Guideline, 0, len(entries))
	for _, name := range entries {
		data, err := corpusFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		g, err := parseGuideline(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		g.Name = strings.TrimSuffix(path.Base(name), ".md")
		out = append(out, g)
	}
	return out, nil
}

func parseGuideline(data []byte) (Guideline, error) {
	const fence = "---\n"
	var g Guideline
	if !bytes.HasPrefix(data, []byte(fence)) {
		g.Body = strings.TrimSpace(string(data))
		return g, nil
	}
	rest := data[len(fence):]
	end := bytes.Index(rest, []byte("\n"+fence))
	if end < 0 {
		return g, fmt.Errorf("unterminated front matter")
	}
	if err := yaml.Unmarshal(rest[:end], &g); err != nil {
		return g, err
	}
	g.Body = strings.TrimSpace(string(rest[end+len(fence)+1:]))
	return g, nil
}

// Chunk splits guidelines into overlapping documents. Every chunk carries the
// guideline source, topic and name plus a corpus-wide sequence number.
func Chunk(guidelines []Guideline, size, overlap int) ([]schema.Document, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	var docs []schema.Document
	for _, g := range guidelines {
		parts, err := splitter.SplitText(g.Body)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", g.Name, err)
		}
		for i, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			docs = append(docs, schema.Document{
				PageContent: part,
				Metadata: map[string]any{
					MetaSource: g.Source,
					MetaTopic:  g.Topic,
					MetaDoc:    fmt.Sprintf("%s#%d", g.Name, i),
					MetaSeq:    len(docs),
					MetaKind:   KindGuideline,
				},
			})
		}
	}
	return docs, nil
}

// GuidelineDocuments loads and chunks the embedded corpus with default sizes.
func GuidelineDocuments() ([]schema.Document, error) {
	guidelines, err := Guidelines()
	if err != nil {
		return nil, err
	}
	return Chunk(guidelines, DefaultChunkSize, DefaultChunkOverlap)
}
