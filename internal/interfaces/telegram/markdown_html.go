package telegram

import (
	"bytes"
	"html"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// MarkdownToHTML converts markdown from a slave channel into the HTML subset
// Telegram accepts: b, i, s, code, pre, a and blockquote. Raw HTML in the
// source is escaped, never passed through.
func MarkdownToHTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return html.EscapeString(markdown)
	}
	src := []byte(markdown)
	doc := markdownParser.Parser().Parse(text.NewReader(src))

	w := &htmlWriter{src: src}
	_ = ast.Walk(doc, w.visit)
	return strings.TrimSpace(w.buf.String())
}

type htmlWriter struct {
	src []byte
	buf bytes.Buffer
	// 有序列表计数栈, 无序列表为 -1
	counters []int
}

func (w *htmlWriter) visit(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Paragraph:
		if !entering {
			w.endBlock(n)
		}

	case *ast.Heading:
		if entering {
			w.buf.WriteString("<b>")
		} else {
			w.buf.WriteString("</b>")
			w.endBlock(n)
		}

	case *ast.ThematicBreak:
		if entering {
			w.buf.WriteString("———")
			w.endBlock(n)
		}

	case *ast.Blockquote:
		if entering {
			w.buf.WriteString("<blockquote>")
		} else {
			trimTrailingNewlines(&w.buf)
			w.buf.WriteString("</blockquote>")
			w.endBlock(n)
		}

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(w.src)); lang != "" {
			w.buf.WriteString(`<pre><code class="language-` + html.EscapeString(lang) + `">`)
		} else {
			w.buf.WriteString("<pre><code>")
		}
		w.writeLines(n.Lines())
		w.buf.WriteString("</code></pre>")
		w.endBlock(n)
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		w.buf.WriteString("<pre><code>")
		w.writeLines(n.Lines())
		w.buf.WriteString("</code></pre>")
		w.endBlock(n)
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		w.writeLines(n.Lines())
		if n.HasClosure() {
			w.buf.WriteString(html.EscapeString(string(n.ClosureLine.Value(w.src))))
		}
		w.endBlock(n)
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			if _, nested := n.Parent().(*ast.ListItem); nested {
				w.buf.WriteString("\n")
			}
			counter := -1
			if n.IsOrdered() {
				counter = n.Start
			}
			w.counters = append(w.counters, counter)
		} else {
			w.counters = w.counters[:len(w.counters)-1]
			if _, nested := n.Parent().(*ast.ListItem); !nested {
				w.buf.WriteString("\n")
			}
		}

	case *ast.ListItem:
		if entering {
			depth := len(w.counters)
			w.buf.WriteString(strings.Repeat("  ", depth-1))
			if c := w.counters[depth-1]; c >= 0 {
				w.buf.WriteString(strconv.Itoa(c) + ". ")
				w.counters[depth-1]++
			} else {
				w.buf.WriteString("• ")
			}
		} else {
			trimTrailingNewlines(&w.buf)
			w.buf.WriteString("\n")
		}

	case *ast.Text:
		if entering {
			w.buf.WriteString(html.EscapeString(string(n.Segment.Value(w.src))))
			if n.SoftLineBreak() || n.HardLineBreak() {
				w.buf.WriteString("\n")
			}
		}

	case *ast.String:
		if entering {
			w.buf.WriteString(html.EscapeString(string(n.Value)))
		}

	case *ast.CodeSpan:
		w.buf.WriteString("<code>")
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				w.buf.WriteString(html.EscapeString(string(t.Segment.Value(w.src))))
			}
		}
		w.buf.WriteString("</code>")
		return ast.WalkSkipChildren, nil

	case *ast.Emphasis:
		tag := "i"
		if n.Level == 2 {
			tag = "b"
		}
		w.tag(tag, entering)

	case *extast.Strikethrough:
		w.tag("s", entering)

	case *ast.Link:
		if entering {
			w.buf.WriteString(`<a href="` + html.EscapeString(string(n.Destination)) + `">`)
		} else {
			w.buf.WriteString("</a>")
		}

	case *ast.AutoLink:
		url := html.EscapeString(string(n.URL(w.src)))
		w.buf.WriteString(`<a href="` + url + `">` + url + `</a>`)
		return ast.WalkSkipChildren, nil

	case *ast.Image:
		// 图片无法内联, 输出为链接
		dest := html.EscapeString(string(n.Destination))
		w.buf.WriteString(`<a href="` + dest + `">` + dest + `</a>`)
		return ast.WalkSkipChildren, nil

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			w.buf.WriteString(html.EscapeString(string(seg.Value(w.src))))
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (w *htmlWriter) tag(name string, open bool) {
	if open {
		w.buf.WriteString("<" + name + ">")
	} else {
		w.buf.WriteString("</" + name + ">")
	}
}

func (w *htmlWriter) writeLines(lines *text.Segments) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		w.buf.WriteString(html.EscapeString(string(seg.Value(w.src))))
	}
}

// endBlock separates block nodes; list items and quotes keep their lines tight.
func (w *htmlWriter) endBlock(n ast.Node) {
	switch n.Parent().(type) {
	case *ast.ListItem:
	case *ast.Blockquote:
		w.buf.WriteString("\n")
	default:
		w.buf.WriteString("\n\n")
	}
}

func trimTrailingNewlines(buf *bytes.Buffer) {
	b := buf.Bytes()
	n := len(b)
	for n > 0 && b[n-1] == '\n' {
		n--
	}
	buf.Truncate(n)
}
