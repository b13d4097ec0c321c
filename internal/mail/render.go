// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"

	"golang.org/x/net/html"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer executes named email templates against a context map.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded email templates.
func NewRenderer() (*Renderer, error) {
	return NewRendererFS(templateFS, "templates/*.html")
}

// NewRendererFS parses templates matching pattern from fsys.
// Missing context keys fail the render instead of printing "<no value>".
func NewRendererFS(fsys fs.FS, pattern string) (*Renderer, error) {
	tmpl, err := template.New("email").Option("missingkey=error").ParseFS(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("parsing email templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the template called name.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return "", &RenderError{Template: name, Err: fmt.Errorf("template %q not found", name)}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", &RenderError{Template: name, Err: err}
	}
	return buf.String(), nil
}

// blockTags end a line in the plain-text rendering.
var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "tr": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// StripMarkup converts rendered HTML to readable plain text.
// Link targets follow the link text when they differ.
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))

	var (
		b      strings.Builder
		skip   int
		href   string
		anchor strings.Builder
		inA    bool
	)

	write := func(text string) {
		if inA {
			anchor.WriteString(text)
			return
		}
		b.WriteString(text)
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return strings.TrimSpace(s)
			}
			return tidy(b.String())
		case html.TextToken:
			if skip == 0 {
				write(string(z.Text()))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch {
			case tag == "style" || tag == "script" || tag == "title" || tag == "head":
				if tt == html.StartTagToken {
					skip++
				}
			case tag == "a":
				inA, href = true, ""
				anchor.Reset()
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "href" {
						href = string(val)
					}
				}
			case tag == "br":
				write("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "style" || tag == "script" || tag == "title" || tag == "head":
				if skip > 0 {
					skip--
				}
			case tag == "a" && inA:
				inA = false
				text := strings.TrimSpace(anchor.String())
				target := strings.TrimPrefix(href, "mailto:")
				b.WriteString(text)
				if target != "" && target != text {
					b.WriteString(" (" + target + ")")
				}
			case blockTags[tag]:
				write("\n")
			}
		}
	}
}

// tidy trims every line and collapses runs of blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
