package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

// page is the data available to the markup template.
type page struct {
	Mode        string
	Stylesheets []string
	Preloads    []string
	Scripts     []string
}

// renderHTML renders the markup template and injects the stylesheet,
// preload and script tags of every entry. Templates that already reference
// the entry scripts through {{range .Scripts}} are left as rendered.
func (c *compilation) renderHTML(cfg *plugins.HTMLConfig) error {
	src := filepath.Join(c.config.Context, cfg.Template)
	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	tmpl, err := template.New(cfg.Template).Funcs(template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
	}).Parse(string(raw))
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	data := c.page()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	out := buf.String()
	if !referencesAny(out, data.Scripts) {
		out = inject(out, data)
	}

	if cfg.CollapseWhitespace {
		if out, err = collapseWhitespace(out); err != nil {
			return fmt.Errorf("failed to minify %s: %w", cfg.Filename, err)
		}
	}

	c.files[filepath.ToSlash(cfg.Filename)] = []byte(out)
	return nil
}

func (c *compilation) page() page {
	publicPath := c.config.Output.PublicPath
	data := page{Mode: c.config.Mode.String()}

	seen := make(map[string]bool)
	for _, e := range c.entries {
		if e.Stylesheet != "" {
			data.Stylesheets = append(data.Stylesheets, publicPath+c.stylesheetName(e))
		}

		for _, dep := range c.metadata.Scripts(e.Script, false)[1:] {
			if !seen[dep] {
				seen[dep] = true
				data.Preloads = append(data.Preloads, publicPath+dep)
			}
		}

		data.Scripts = append(data.Scripts, publicPath+e.Script)
	}
	return data
}

func inject(doc string, data page) string {
	var head strings.Builder
	for _, href := range data.Stylesheets {
		fmt.Fprintf(&head, "<link rel=\"stylesheet\" href=\"%s\">\n", template.HTMLEscapeString(href))
	}
	for _, href := range data.Preloads {
		fmt.Fprintf(&head, "<link rel=\"modulepreload\" href=\"%s\">\n", template.HTMLEscapeString(href))
	}

	var body strings.Builder
	for _, src := range data.Scripts {
		fmt.Fprintf(&body, "<script type=\"module\" src=\"%s\"></script>\n", template.HTMLEscapeString(src))
	}

	doc = insertBefore(doc, "</head>", head.String())
	return insertBefore(doc, "</body>", body.String())
}

// insertBefore inserts s before the first case-insensitive match of tag, or
// appends it when the tag is missing.
func insertBefore(doc, tag, s string) string {
	i := strings.Index(strings.ToLower(doc), tag)
	if i < 0 {
		return doc + s
	}
	return doc[:i] + s + doc[i:]
}

func referencesAny(doc string, paths []string) bool {
	for _, p := range paths {
		if strings.Contains(doc, p) {
			return true
		}
	}
	return false
}

func collapseWhitespace(doc string) (string, error) {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})
	return m.String("text/html", doc)
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("template data can only be json serializable"))
	}

	return buf.String()
}
