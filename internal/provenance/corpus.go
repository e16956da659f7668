package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/concord/internal/analyze"
)

// ManifestName is the optional document manifest inside a corpus directory
const ManifestName = "documents.yaml"

// Document is one policy document available for provenance lookup
type Document struct {
	Title       string `yaml:"title"`
	Type        string `yaml:"type,omitempty"`
	Version     string `yaml:"version,omitempty"`
	LastUpdated string `yaml:"last_updated,omitempty"`
	Path        string `yaml:"file"`
	Content     string `yaml:"-"`
}

type manifest struct {
	Documents []Document `yaml:"documents"`
}

// Corpus holds policy documents keyed by title
type Corpus struct {
	docs     map[string]Document
	titles   []string
	Warnings []string
}

// NewCorpus builds a corpus from documents already in memory
func NewCorpus(docs ...Document) *Corpus {
	c := &Corpus{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		c.add(d)
	}
	return c
}

func (c *Corpus) add(d Document) {
	if _, exists := c.docs[d.Title]; !exists {
		c.titles = append(c.titles, d.Title)
		sort.Strings(c.titles)
	}
	c.docs[d.Title] = d
}

// Get returns the document with the given title
func (c *Corpus) Get(title string) (Document, bool) {
	if c == nil {
		return Document{}, false
	}
	d, ok := c.docs[title]
	return d, ok
}

// Titles returns document titles, sorted
func (c *Corpus) Titles() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.titles))
	copy(out, c.titles)
	return out
}

// Len returns the number of documents
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.docs)
}

// Digest returns a sha256 over every document's title and content in
// title order. It changes whenever a document is added, removed or edited.
func (c *Corpus) Digest() string {
	h := sha256.New()
	for _, title := range c.Titles() {
		doc := c.docs[title]
		fmt.Fprintf(h, "%d:%s%d:%s", len(doc.Title), doc.Title, len(doc.Content), doc.Content)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// LoadCorpus loads policy documents from a directory. With a documents.yaml
// manifest only the listed files are read; otherwise every .md, .txt, .html
// and .htm file is loaded and titled after its file name. Listed files that
// cannot be read become warnings.
func LoadCorpus(dir string) (*Corpus, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat documents dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents path is not a directory: %s", dir)
	}

	manifestPath := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(manifestPath)
	switch {
	case err == nil:
		return loadFromManifest(dir, data)
	case errors.Is(err, fs.ErrNotExist):
		return loadFromDirectory(dir)
	default:
		return nil, fmt.Errorf("read manifest: %w", err)
	}
}

func loadFromManifest(dir string, data []byte) (*Corpus, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	c := NewCorpus()
	for _, d := range m.Documents {
		if d.Path == "" {
			c.Warnings = append(c.Warnings, fmt.Sprintf("manifest entry %q has no file", d.Title))
			continue
		}
		if d.Title == "" {
			d.Title = TitleFromFilename(d.Path)
		}
		path := d.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		content, err := readDocument(path)
		if err != nil {
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s: %v", d.Title, err))
			continue
		}
		d.Content = content
		c.add(d)
	}
	return c, nil
}

func loadFromDirectory(dir string) (*Corpus, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents dir: %w", err)
	}

	c := NewCorpus()
	for _, e := range entries {
		if e.IsDir() || !isDocumentFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		content, err := readDocument(path)
		if err != nil {
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s: %v", e.Name(), err))
			continue
		}
		c.add(Document{
			Title:   TitleFromFilename(e.Name()),
			Path:    path,
			Content: content,
		})
	}
	return c, nil
}

func isDocumentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".txt", ".html", ".htm":
		return true
	}
	return false
}

func readDocument(path string) (string, error) {
	// #nosec G304 -- path comes from operator-configured documents directory.
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		doc, err := html.Parse(strings.NewReader(string(data)))
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		return VisibleText(doc), nil
	default:
		return string(data), nil
	}
}

// TitleFromFilename turns "access_management_policy.md" into "Access Management Policy"
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return analyze.FieldLabel(base)
}

// VisibleText extracts text nodes from HTML, skipping scripts and styles
func VisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return strings.TrimSpace(buf.String())
}
