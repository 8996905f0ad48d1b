// Package parser supplies tree-sitter backed extract.Parser implementations.
// The underlying tree-sitter parsers wrap C-allocated state and are pooled
// per language: Parse checks one out for the duration of a single parse, so
// Parser values are cheap to construct and safe for concurrent use.
package parser

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/quarrylabs/quarry/internal/extract"
	"github.com/quarrylabs/quarry/internal/lang"
)

// ErrUnsupported is returned by New for languages without a parser.
var ErrUnsupported = fmt.Errorf("no parser for language")

var (
	languagesOnce sync.Once
	parserPools   map[lang.Language]*sync.Pool
)

func initPools() {
	languagesOnce.Do(func() {
		languages := map[lang.Language]*tree_sitter.Language{
			lang.Python:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			lang.Go:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
			lang.JavaScript: tree_sitter.NewLanguage(tree_sitter_javascript.Language()),
		}
		parserPools = make(map[lang.Language]*sync.Pool, len(languages))
		for l, tsLang := range languages {
			parserPools[l] = &sync.Pool{
				New: func() any {
					p := tree_sitter.NewParser()
					if err := p.SetLanguage(tsLang); err != nil {
						panic(fmt.Sprintf("set language: %v", err))
					}
					return p
				},
			}
		}
	})
}

// New builds a Parser for the given language. It satisfies extract.Factory.
func New(l lang.Language) (extract.Parser, error) {
	var fn extractFunc
	switch l {
	case lang.Python:
		fn = extractPython
	case lang.Go:
		fn = extractGo
	case lang.JavaScript:
		fn = extractJavaScript
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, l)
	}
	initPools()
	return &tsParser{pool: parserPools[l], extract: fn}, nil
}

// extractFunc walks a parsed tree and fills the result.
type extractFunc func(root *tree_sitter.Node, source []byte, path string, r *extract.FileResult)

// tsParser pairs a language's parser pool with its extractor.
type tsParser struct {
	pool    *sync.Pool
	extract extractFunc
}

// Parse implements extract.Parser. The pooled parser is held only while the
// tree is built; extraction runs on the tree alone.
func (p *tsParser) Parse(path string, content []byte) (*extract.FileResult, error) {
	tsp := p.pool.Get().(*tree_sitter.Parser)
	tree := tsp.Parse(content, nil)
	p.pool.Put(tsp)
	if tree == nil {
		return nil, fmt.Errorf("parse failed: %s", path)
	}
	defer tree.Close()

	r := &extract.FileResult{}
	p.extract(tree.RootNode(), content, path, r)
	return r, nil
}

// walk traverses the AST depth-first; fn returning false skips children.
func walk(node *tree_sitter.Node, fn func(*tree_sitter.Node) bool) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil {
			walk(child, fn)
		}
	}
}

// text returns a node's source text.
func text(node *tree_sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// line converts a zero-based tree-sitter row to a one-based line number.
func line(row uint) int {
	return int(row) + 1
}

// countBranches counts branching nodes under node for the complexity score.
func countBranches(node *tree_sitter.Node, kinds map[string]bool) int {
	count := 0
	walk(node, func(n *tree_sitter.Node) bool {
		if kinds[n.Kind()] {
			count++
		}
		return true
	})
	return count
}
