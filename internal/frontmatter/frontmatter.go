// Package frontmatter splits Markdown posts into an ordered YAML attribute
// block and a body, and renders them back without disturbing keys the caller
// never touched.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// ErrMalformed is returned when a file opens a front-matter block that is not
// a valid YAML mapping. Rewriting such a file would destroy author content.
var ErrMalformed = errors.New("frontmatter: malformed block")

// Document is a parsed post: attributes in source order plus the body.
type Document struct {
	attrs *yaml.Node
	Body  string
}

// Parse separates YAML front matter (between leading --- delimiters) from the
// Markdown body. A file without front matter yields an empty attribute set.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return &Document{attrs: newMapping(), Body: string(data)}, nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter: everything is body.
		return &Document{attrs: newMapping(), Body: string(data)}, nil
	}

	block := rest[:idx]
	// Only the line break closing the delimiter line belongs to the block.
	body := string(rest[idx+1+len(delim):])
	body = strings.TrimPrefix(strings.TrimPrefix(body, "\r"), "\n")

	var root yaml.Node
	if err := yaml.Unmarshal(block, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	attrs := newMapping()
	if len(root.Content) > 0 {
		attrs = root.Content[0]
		if attrs.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: top level is not a mapping", ErrMalformed)
		}
	}
	return &Document{attrs: attrs, Body: body}, nil
}

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

// Keys returns attribute keys in source order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.attrs.Content)/2)
	for i := 0; i+1 < len(d.attrs.Content); i += 2 {
		keys = append(keys, d.attrs.Content[i].Value)
	}
	return keys
}

func (d *Document) index(key string) int {
	for i := 0; i+1 < len(d.attrs.Content); i += 2 {
		if d.attrs.Content[i].Value == key {
			return i
		}
	}
	return -1
}

// Has reports whether key is present, even with a null value.
func (d *Document) Has(key string) bool {
	return d.index(key) >= 0
}

// Get decodes the value under key into a loosely-typed Go value. Values that
// fail to decode are reported as absent.
func (d *Document) Get(key string) (any, bool) {
	i := d.index(key)
	if i < 0 {
		return nil, false
	}
	var v any
	if err := d.attrs.Content[i+1].Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// String returns the value under key when it is a non-empty scalar.
func (d *Document) String(key string) string {
	v, ok := d.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return s.String()
	case []any, map[string]any:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// Set replaces the value under key, appending the key if it is new.
func (d *Document) Set(key string, value any) error {
	var n yaml.Node
	if err := n.Encode(value); err != nil {
		return fmt.Errorf("frontmatter: encode %s: %w", key, err)
	}
	if i := d.index(key); i >= 0 {
		d.attrs.Content[i+1] = &n
		return nil
	}
	d.attrs.Content = append(d.attrs.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&n,
	)
	return nil
}

// Delete removes key if present.
func (d *Document) Delete(key string) {
	if i := d.index(key); i >= 0 {
		d.attrs.Content = append(d.attrs.Content[:i], d.attrs.Content[i+2:]...)
	}
}

// Clone returns a deep copy so callers can mutate attributes speculatively.
func (d *Document) Clone() *Document {
	return &Document{attrs: cloneNode(d.attrs), Body: d.Body}
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		c.Content[i] = cloneNode(child)
	}
	c.Alias = cloneNode(n.Alias)
	return &c
}

// Render serialises the document as "---\n<yaml>---\n<body>".
func (d *Document) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	if len(d.attrs.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d.attrs); err != nil {
			return nil, fmt.Errorf("frontmatter: render: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("frontmatter: render: %w", err)
		}
	}
	buf.WriteString(delim + "\n")
	buf.WriteString(d.Body)
	return buf.Bytes(), nil
}
