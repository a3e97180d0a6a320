package scrape

import (
	"strings"

	"golang.org/x/net/html"
)

// Page is the structured reading of one fetched body.
type Page struct {
	Title    string
	Text     string
	Features []string // Column or field names sniffed from the content
}

// ExtractPage turns a fetched body into visible text plus any column
// names it can sniff. Non-HTML bodies are treated as delimited text.
func ExtractPage(body, contentType string) Page {
	if !strings.Contains(strings.ToLower(contentType), "html") {
		text := strings.TrimSpace(body)
		return Page{
			Text:     text,
			Features: sniffColumns(firstLine(text)),
		}
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		// Salvage whatever text we were given
		return Page{Text: strings.TrimSpace(body)}
	}

	page := Page{}
	var text strings.Builder
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			case "title":
				if page.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					page.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "th":
				// Table headers are the column-name signal for HTML
				if name := nodeText(n); name != "" && !seen[name] {
					seen[name] = true
					page.Features = append(page.Features, name)
				}
			}
		}

		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				text.WriteString(t)
				text.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	page.Text = strings.TrimSpace(text.String())

	return page
}

// nodeText collects the text beneath one node.
func nodeText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return strings.TrimSpace(buf.String())
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// sniffColumns reads a header-looking line as column names. Lines with
// fewer than two short delimited tokens are not headers.
func sniffColumns(line string) []string {
	if line == "" {
		return nil
	}

	sep := ""
	for _, candidate := range []string{",", "\t", ";"} {
		if strings.Contains(line, candidate) {
			sep = candidate
			break
		}
	}
	if sep == "" {
		return nil
	}

	var columns []string
	for _, token := range strings.Split(line, sep) {
		token = strings.TrimSpace(strings.Trim(strings.TrimSpace(token), `"`))
		if token == "" || len(token) > 40 {
			return nil
		}
		columns = append(columns, token)
	}
	if len(columns) < 2 {
		return nil
	}
	return columns
}
