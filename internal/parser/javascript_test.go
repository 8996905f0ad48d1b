package parser

import (
	"testing"

	"github.com/quarrylabs/quarry/internal/lang"
	"github.com/quarrylabs/quarry/internal/store"
)

const jsSource = `import { parse, stringify as str } from './codec.js';
import Client from 'lib';
import * as util from 'node:util';
import 'polyfill';
const fs = require('fs');
const { readFile, writeFile: wf } = require('fs/promises');

export function handler(req) {
  if (req.ok) {
    parse(req.body);
  }
  util.format("x");
}

class Service {
  start() {
    this.stop();
  }

  stop() {}
}

const arrow = () => {
  handler(null);
};
`

func TestJavaScriptSymbols(t *testing.T) {
	r := parseSource(t, lang.JavaScript, "app.js", jsSource)

	h := findSymbol(r, "handler")
	if h == nil || h.Kind != store.KindFunction {
		t.Fatalf("handler: %+v", h)
	}
	if h.Complexity != 1 {
		t.Errorf("handler complexity: %d", h.Complexity)
	}

	if s := findSymbol(r, "Service"); s == nil || s.Kind != store.KindClass {
		t.Errorf("Service: %+v", s)
	}
	if s := findSymbol(r, "start"); s == nil || s.Kind != store.KindMethod || s.Parent != "Service" {
		t.Errorf("start: %+v", s)
	}
	if s := findSymbol(r, "arrow"); s == nil || s.Kind != store.KindFunction {
		t.Errorf("arrow: %+v", s)
	}
}

func TestJavaScriptCalls(t *testing.T) {
	r := parseSource(t, lang.JavaScript, "app.js", jsSource)

	if !hasCall(r, "handler", "parse", "") {
		t.Error("parse() missing")
	}
	if !hasCall(r, "handler", "format", "util") {
		t.Error("util.format() missing")
	}
	if !hasCall(r, "start", "stop", "this") {
		t.Error("this.stop() missing")
	}
	if !hasCall(r, "arrow", "handler", "") {
		t.Error("call inside arrow function missing")
	}
	// require() is an import, not a call edge.
	for _, c := range r.Calls {
		if c.CalleeName == "require" {
			t.Errorf("require recorded as call: %+v", c)
		}
	}
}

func TestJavaScriptImports(t *testing.T) {
	r := parseSource(t, lang.JavaScript, "app.js", jsSource)

	if imp := findImport(r, "parse"); imp == nil || imp.Module != "./codec.js" {
		t.Errorf("named import: %+v", imp)
	}
	if imp := findImport(r, "stringify"); imp == nil || imp.Alias != "str" {
		t.Errorf("aliased import: %+v", imp)
	}
	if imp := findImport(r, "default"); imp == nil || imp.Module != "lib" || imp.Alias != "Client" {
		t.Errorf("default import: %+v", imp)
	}
	// Namespace imports bind the whole module, like a bare import.
	if imp := findImport(r, "node:util"); imp == nil || imp.Alias != "util" || imp.Module != "" {
		t.Errorf("namespace import: %+v", imp)
	}
	if imp := findImport(r, "polyfill"); imp == nil {
		t.Error("side-effect import missing")
	}
	if imp := findImport(r, "fs"); imp == nil || imp.Alias != "fs" || imp.Module != "" {
		t.Errorf("require binding: %+v", imp)
	}
	if imp := findImport(r, "readFile"); imp == nil || imp.Module != "fs/promises" {
		t.Errorf("destructured require: %+v", imp)
	}
	if imp := findImport(r, "writeFile"); imp == nil || imp.Alias != "wf" {
		t.Errorf("renamed destructured require: %+v", imp)
	}
}
