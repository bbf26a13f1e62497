package infoleg

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the readable content of an HTML page
type Page struct {
	Title string
	Text  string
}

// skipped elements never contribute visible text
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
}

// block elements start a new line
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Tr: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Table: true, atom.Blockquote: true, atom.Center: true, atom.Hr: true,
}

// ExtractText returns the title and visible text of an HTML document.
// Whitespace is collapsed within lines and blank lines are dropped.
func ExtractText(r io.Reader) (Page, error) {
	z := html.NewTokenizer(r)

	var (
		page    Page
		text    strings.Builder
		title   strings.Builder
		depth   int
		inTitle bool
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return Page{}, err
			}
			page.Title = collapse(title.String())
			page.Text = normalizeLines(text.String())
			return page, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch {
			case tok.DataAtom == atom.Title:
				inTitle = true
			case tok.DataAtom == atom.Body:
				// old pages often leave head unclosed
				depth = 0
			case skipped[tok.DataAtom] && tok.Type == html.StartTagToken:
				depth++
			case block[tok.DataAtom]:
				text.WriteByte('\n')
			}

		case html.EndTagToken:
			tok := z.Token()
			switch {
			case tok.DataAtom == atom.Title:
				inTitle = false
			case skipped[tok.DataAtom] && depth > 0:
				depth--
			case block[tok.DataAtom]:
				text.WriteByte('\n')
			}

		case html.TextToken:
			data := string(z.Text())
			if inTitle {
				title.WriteString(data)
				continue
			}
			if depth > 0 {
				continue
			}
			text.WriteString(data)
		}
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapse(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
