// Package extract drives parsing: it fans file parsing out across a worker
// pool and fans the results back into a single consistent transaction.
package extract

import (
	"github.com/quarrylabs/quarry/internal/lang"
	"github.com/quarrylabs/quarry/internal/store"
)

// FileResult bundles everything a parser extracted from one file. It is an
// owned value: nothing in it is shared with the parser after Parse returns,
// so results can cross goroutines freely.
type FileResult struct {
	Symbols []store.Symbol
	Calls   []store.CallEdge
	Imports []store.ImportRecord
}

// Parser turns one file's content into symbols, calls and imports. Calls are
// only reported for function/method symbols. Implementations are supplied
// per language and must be safe for concurrent use: the driver resolves one
// instance per language and shares it across its workers.
type Parser interface {
	Parse(path string, content []byte) (*FileResult, error)
}

// Factory constructs a Parser for a language. It returns ErrUnsupported
// (wrapped or direct) for languages without a parser.
type Factory func(l lang.Language) (Parser, error)

// Counts reports how many rows a refresh inserted.
type Counts struct {
	Symbols int
	Calls   int
	Imports int
}

func (c *Counts) add(r *FileResult) {
	c.Symbols += len(r.Symbols)
	c.Calls += len(r.Calls)
	c.Imports += len(r.Imports)
}
