package bot

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessages []byte

var catalogFuncs = template.FuncMap{
	// amount renders a policy constant without trailing zeros: 100, 0.5.
	"amount": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
	// balance renders a balance with one decimal place.
	"balance": func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
}

// Catalog renders reply texts by key.
type Catalog struct {
	templates map[string]*template.Template
}

// LoadCatalog parses a YAML map of key → template.
func LoadCatalog(data []byte) (*Catalog, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}

	c := &Catalog{templates: make(map[string]*template.Template, len(raw))}
	for key, text := range raw {
		tmpl, err := template.New(key).Funcs(catalogFuncs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse message %q: %w", key, err)
		}
		c.templates[key] = tmpl
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultMessages)
	if err != nil {
		panic(err)
	}
	return c
}

// Has reports whether key exists.
func (c *Catalog) Has(key string) bool {
	_, ok := c.templates[key]
	return ok
}

// Render executes the template for key. A missing key or render failure
// yields the key itself so the user still gets a reply.
func (c *Catalog) Render(key string, data any) string {
	tmpl, ok := c.templates[key]
	if !ok {
		return key
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return key
	}
	return buf.String()
}
