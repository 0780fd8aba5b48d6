package crawler

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/ubuygold/puzzlebox/internal/corpus"
)

const tipMarker = "小贴士"

var (
	// 谜面：<question> 谜底：<answer>
	labelledPattern = regexp.MustCompile(`(?s)谜面：(.+?)[\s\p{Z}]+谜底：(.+?)(?:[\s\p{Z}]+|$)`)
	// <question>（打一动物）<answer>
	hintPattern = regexp.MustCompile(`([^\n]+?)[\s\p{Z}]*（打[一二三四五六七八九十][\p{L}\p{N}_]+）[\s\p{Z}]*([^\n]+?)(?:[\s\p{Z}]+|$)`)
)

// blockElements end a line in the extracted page text.
var blockElements = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Li: true,
	atom.Tr: true, atom.Td: true, atom.Dd: true, atom.Dt: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Ul: true, atom.Table: true,
}

// Decode converts a page body to text. Bodies that are not valid UTF-8 are
// decoded as GB18030; when that produces replacement characters the raw
// bytes are kept.
func Decode(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), simplifiedchinese.GB18030.NewDecoder()))
	if err != nil || strings.ContainsRune(string(decoded), utf8.RuneError) {
		return strings.ToValidUTF8(string(body), string(utf8.RuneError))
	}
	return string(decoded)
}

// PageText returns the visible text of an HTML document, one line per
// block element.
func PageText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			sb.WriteByte('\n')
		}
	}
	walk(root)
	return sb.String(), nil
}

// Links returns the href of every anchor in an HTML document.
func Links(doc string) ([]string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return links, nil
}

// Extract finds riddle pairs in page text. Both the labelled form and the
// "(打一X)" hint form are recognised; tips trailing an answer are dropped.
func Extract(text string) []corpus.Pair {
	var pairs []corpus.Pair
	for _, m := range labelledPattern.FindAllStringSubmatch(text, -1) {
		question := strings.TrimSpace(m[1])
		answer := strings.TrimSpace(m[2])
		if before, _, ok := strings.Cut(answer, tipMarker); ok {
			answer = strings.TrimSpace(before)
		}
		if question != "" && answer != "" {
			pairs = append(pairs, corpus.Pair{Question: question, Answer: answer})
		}
	}
	for _, m := range hintPattern.FindAllStringSubmatch(text, -1) {
		question := strings.TrimSpace(m[1])
		answer := strings.TrimSpace(m[2])
		if question != "" && answer != "" {
			pairs = append(pairs, corpus.Pair{Question: question, Answer: answer})
		}
	}
	return pairs
}
