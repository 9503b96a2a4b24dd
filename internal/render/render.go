// Package render turns analysis markdown into page HTML, a speakable script,
// and download names.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	MarkdownContentType = "text/markdown; charset=utf-8"
	AudioContentType    = "audio/mpeg"

	filePrefix = "sage-creek-analysis"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML renders markdown with raw HTML disabled, so model output cannot inject markup.
func HTML(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Script flattens markdown into plain sentences for text-to-speech. Code blocks,
// images and raw HTML are dropped; link text is kept without the URL.
// maxChars <= 0 disables truncation.
func Script(markdown string, maxChars int) string {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	var (
		sentences []string
		cur       strings.Builder
	)
	flush := func() {
		s := strings.Join(strings.Fields(cur.String()), " ")
		cur.Reset()
		if s == "" {
			return
		}
		if !endsSentence(s) {
			s += "."
		}
		sentences = append(sentences, s)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.Image, *ast.AutoLink:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		}
		if !entering && n.Type() == ast.TypeBlock {
			flush()
		}
		return ast.WalkContinue, nil
	})
	flush()

	return truncate(strings.Join(sentences, " "), maxChars)
}

func endsSentence(s string) bool {
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}

func truncate(s string, maxChars int) string {
	r := []rune(s)
	if maxChars <= 0 || len(r) <= maxChars {
		return s
	}
	r = r[:maxChars]

	for i := len(r) - 1; i > 0; i-- {
		if (r[i-1] == '.' || r[i-1] == '!' || r[i-1] == '?') && unicode.IsSpace(r[i]) {
			return string(r[:i])
		}
	}
	if i := strings.LastIndexFunc(string(r), unicode.IsSpace); i > 0 {
		return strings.TrimSpace(string(r)[:i])
	}
	return string(r)
}

func MarkdownFileName(t time.Time) string {
	return fmt.Sprintf("%s-%s.md", filePrefix, t.UTC().Format("20060102-150405"))
}

func AudioFileName(t time.Time) string {
	return fmt.Sprintf("%s-%s.mp3", filePrefix, t.UTC().Format("20060102-150405"))
}
