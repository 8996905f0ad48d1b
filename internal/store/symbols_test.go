package store

import "testing"

func TestSearchSymbolsExact(t *testing.T) {
	s := openTestStore(t)
	mustInsertSymbols(t, s, []Symbol{
		{File: "a.py", Name: "process", Kind: KindFunction, StartLine: 1},
		{File: "b.py", Name: "process", Kind: KindMethod, Parent: "Worker", StartLine: 5},
		{File: "a.py", Name: "processor", Kind: KindFunction, StartLine: 10},
	})

	syms, err := s.SearchSymbols("process", false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(syms) != 2 {
		t.Fatalf("expected 2 exact matches, got %+v", syms)
	}
	for _, sym := range syms {
		if sym.Name != "process" {
			t.Errorf("exact search returned %q", sym.Name)
		}
	}
}

func TestSearchSymbolsFuzzy(t *testing.T) {
	s := openTestStore(t)
	mustInsertSymbols(t, s, []Symbol{
		{File: "a.py", Name: "process", Kind: KindFunction},
		{File: "a.py", Name: "preprocess", Kind: KindFunction},
		{File: "a.py", Name: "unrelated", Kind: KindFunction},
	})

	syms, err := s.SearchSymbols("process", true)
	if err != nil {
		t.Fatalf("search fuzzy: %v", err)
	}
	if len(syms) != 2 {
		t.Errorf("expected 2 substring matches, got %+v", syms)
	}
}

func TestSearchSymbolsFuzzyEscapesUnderscore(t *testing.T) {
	s := openTestStore(t)
	mustInsertSymbols(t, s, []Symbol{
		{File: "a.py", Name: "my_func", Kind: KindFunction},
		{File: "a.py", Name: "myxfunc", Kind: KindFunction},
	})

	syms, err := s.SearchSymbols("my_func", true)
	if err != nil {
		t.Fatalf("search fuzzy: %v", err)
	}
	if len(syms) != 1 || syms[0].Name != "my_func" {
		t.Errorf("underscore treated as wildcard: %+v", syms)
	}
}

func TestTopLevelSymbol(t *testing.T) {
	s := openTestStore(t)
	mustInsertSymbols(t, s, []Symbol{
		{File: "pkg/a.py", Name: "Foo", Kind: KindClass},
		{File: "pkg/a.py", Name: "run", Kind: KindMethod, Parent: "Foo"},
	})

	if ok, err := s.TopLevelSymbol("pkg/a.py", "Foo"); err != nil || !ok {
		t.Errorf("Foo should be top level: %v, %v", ok, err)
	}
	if ok, err := s.TopLevelSymbol("pkg/a.py", "run"); err != nil || ok {
		t.Errorf("run is a method, not top level: %v, %v", ok, err)
	}
	if ok, err := s.TopLevelSymbol("pkg/b.py", "Foo"); err != nil || ok {
		t.Errorf("wrong file should not match: %v, %v", ok, err)
	}
}

func TestDeleteFileDerived(t *testing.T) {
	s := openTestStore(t)
	mustInsertSymbols(t, s, []Symbol{
		{File: "a.py", Name: "foo", Kind: KindFunction},
		{File: "b.py", Name: "bar", Kind: KindFunction},
	})
	mustInsertCalls(t, s, []CallEdge{
		{CallerFile: "a.py", CallerSymbol: "foo", CalleeName: "x"},
		{CallerFile: "b.py", CallerSymbol: "bar", CalleeName: "y"},
	})
	mustInsertImports(t, s, []ImportRecord{
		{File: "a.py", Name: "os"},
		{File: "b.py", Name: "sys"},
	})

	if err := s.DeleteFileDerived("a.py"); err != nil {
		t.Fatalf("delete derived: %v", err)
	}

	syms, err := s.SymbolsInFile("a.py")
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}
	if len(syms) != 0 {
		t.Errorf("symbols survived delete: %+v", syms)
	}
	if edges, _ := s.FindCallees("a.py", "foo"); len(edges) != 0 {
		t.Errorf("calls survived delete: %+v", edges)
	}
	if imps, _ := s.ImportsInFile("a.py"); len(imps) != 0 {
		t.Errorf("imports survived delete: %+v", imps)
	}

	// The other file is untouched.
	if syms, _ := s.SymbolsInFile("b.py"); len(syms) != 1 {
		t.Errorf("unrelated file lost rows: %+v", syms)
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertFile(File{Path: "a.py", Mtime: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	mustInsertSymbols(t, s, []Symbol{
		{File: "a.py", Name: "foo", Kind: KindFunction},
		{File: "a.py", Name: "Bar", Kind: KindClass},
	})
	mustInsertCalls(t, s, []CallEdge{
		{CallerFile: "a.py", CallerSymbol: "foo", CalleeName: "print"},
		{CallerFile: "a.py", CallerSymbol: "foo", CalleeName: "print"},
		{CallerFile: "a.py", CallerSymbol: "foo", CalleeName: "len"},
	})

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Files != 1 || st.Symbols != 2 || st.Calls != 3 {
		t.Errorf("counts: %+v", st)
	}
	if st.ByKind[KindFunction] != 1 || st.ByKind[KindClass] != 1 {
		t.Errorf("by kind: %+v", st.ByKind)
	}
	if len(st.TopCallees) == 0 || st.TopCallees[0].Name != "print" || st.TopCallees[0].Count != 2 {
		t.Errorf("top callees: %+v", st.TopCallees)
	}
}
