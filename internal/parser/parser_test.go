package parser

import (
	"errors"
	"sync"
	"testing"

	"github.com/quarrylabs/quarry/internal/extract"
	"github.com/quarrylabs/quarry/internal/lang"
	"github.com/quarrylabs/quarry/internal/store"
)

func parseSource(t *testing.T, l lang.Language, name, src string) *extract.FileResult {
	t.Helper()
	p, err := New(l)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	r, err := p.Parse(name, []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return r
}

func findSymbol(r *extract.FileResult, name string) *store.Symbol {
	for i := range r.Symbols {
		if r.Symbols[i].Name == name {
			return &r.Symbols[i]
		}
	}
	return nil
}

func hasCall(r *extract.FileResult, caller, callee, qualifier string) bool {
	for _, c := range r.Calls {
		if c.CallerSymbol == caller && c.CalleeName == callee && c.CalleeQualif == qualifier {
			return true
		}
	}
	return false
}

func findImport(r *extract.FileResult, name string) *store.ImportRecord {
	for i := range r.Imports {
		if r.Imports[i].Name == name {
			return &r.Imports[i]
		}
	}
	return nil
}

func TestParserSharedAcrossGoroutines(t *testing.T) {
	p, err := New(lang.Python)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				r, err := p.Parse("w.py", []byte("def f():\n    pass\n"))
				if err != nil {
					t.Errorf("parse: %v", err)
					return
				}
				if len(r.Symbols) != 1 || r.Symbols[0].Name != "f" {
					t.Errorf("symbols: %+v", r.Symbols)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNewUnsupportedLanguage(t *testing.T) {
	if _, err := New(lang.Rust); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := New(lang.C); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
