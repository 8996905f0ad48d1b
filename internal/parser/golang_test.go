package parser

import (
	"testing"

	"github.com/quarrylabs/quarry/internal/lang"
	"github.com/quarrylabs/quarry/internal/store"
)

const goSource = `package server

import (
	"fmt"
	renamed "strings"
	. "math"
	_ "embed"
)

type Server struct {
	name string
}

type Handler interface {
	Handle() error
}

type Port int

func Run(n int) {
	if n > 0 {
		fmt.Println(n)
	}
	process()
}

func (s *Server) Start() {
	s.init()
}

func (s *Server) init() {}

func process() {}
`

func TestGoSymbols(t *testing.T) {
	r := parseSource(t, lang.Go, "server.go", goSource)

	if s := findSymbol(r, "Server"); s == nil || s.Kind != store.KindStruct {
		t.Errorf("Server: %+v", s)
	}
	if s := findSymbol(r, "Handler"); s == nil || s.Kind != store.KindInterface {
		t.Errorf("Handler: %+v", s)
	}
	if s := findSymbol(r, "Port"); s == nil || s.Kind != store.KindType {
		t.Errorf("Port: %+v", s)
	}

	run := findSymbol(r, "Run")
	if run == nil || run.Kind != store.KindFunction || run.Parent != "" {
		t.Fatalf("Run: %+v", run)
	}
	if run.Complexity != 1 {
		t.Errorf("Run complexity: %d", run.Complexity)
	}

	// Pointer receivers resolve to the bare type name.
	start := findSymbol(r, "Start")
	if start == nil || start.Kind != store.KindMethod || start.Parent != "Server" {
		t.Errorf("Start: %+v", start)
	}
}

func TestGoCalls(t *testing.T) {
	r := parseSource(t, lang.Go, "server.go", goSource)

	if !hasCall(r, "Run", "Println", "fmt") {
		t.Error("fmt.Println missing")
	}
	if !hasCall(r, "Run", "process", "") {
		t.Error("bare call process() missing")
	}
	if !hasCall(r, "Start", "init", "s") {
		t.Error("receiver call s.init() missing")
	}
}

func TestGoImports(t *testing.T) {
	r := parseSource(t, lang.Go, "server.go", goSource)

	// Plain imports bind their last path segment.
	if imp := findImport(r, "fmt"); imp == nil || imp.Alias != "fmt" || imp.Module != "" {
		t.Errorf("fmt: %+v", imp)
	}
	if imp := findImport(r, "strings"); imp == nil || imp.Alias != "renamed" {
		t.Errorf("renamed import: %+v", imp)
	}
	// Dot imports are wildcards: their names land unqualified in the file.
	if imp := findImport(r, store.WildcardName); imp == nil || imp.Module != "math" {
		t.Errorf("dot import: %+v", imp)
	}
	if imp := findImport(r, "embed"); imp == nil || imp.Alias != "_" {
		t.Errorf("blank import: %+v", imp)
	}
}

func TestGoImportPathBinding(t *testing.T) {
	src := `package app

import "github.com/spf13/cobra"

func run() {
	cobra.CheckErr(nil)
}
`
	r := parseSource(t, lang.Go, "app.go", src)

	imp := findImport(r, "github.com/spf13/cobra")
	if imp == nil || imp.Alias != "cobra" {
		t.Fatalf("path import: %+v", imp)
	}
	if !hasCall(r, "run", "CheckErr", "cobra") {
		t.Error("qualified call through implicit binding missing")
	}
}
