package store

import (
	"fmt"
	"strings"
)

// Symbol is one definition extracted from a source file. Parent names the
// enclosing symbol (the class for a method) and is empty for top-level
// definitions.
type Symbol struct {
	ID         int64
	File       string
	Name       string
	Kind       string
	StartLine  int
	EndLine    int
	Parent     string
	Complexity int
}

// Symbol kinds emitted by parsers. Calls are only recorded for KindFunction
// and KindMethod symbols.
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindClass     = "class"
	KindStruct    = "struct"
	KindInterface = "interface"
	KindType      = "type"
)

const numSymbolCols = 7
const symbolsBatchSize = 999 / numSymbolCols

// InsertSymbolBatch inserts symbol rows in chunked multi-row INSERTs.
func (s *Store) InsertSymbolBatch(symbols []Symbol) error {
	for i := 0; i < len(symbols); i += symbolsBatchSize {
		end := min(i+symbolsBatchSize, len(symbols))
		if err := s.insertSymbolChunk(symbols[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertSymbolChunk(batch []Symbol) error {
	if len(batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO symbols (file, name, kind, start_line, end_line, parent, complexity) VALUES ")
	args := make([]any, 0, len(batch)*numSymbolCols)
	for i, sym := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?,?)")
		args = append(args, sym.File, sym.Name, sym.Kind, sym.StartLine, sym.EndLine, sym.Parent, sym.Complexity)
	}
	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("insert symbols: %w", err)
	}
	return nil
}

// ClearDerived empties the symbol, call and import tables. Used by a full
// call-graph refresh before reinsertion.
func (s *Store) ClearDerived() error {
	for _, table := range []string{"symbols", "calls", "imports"} {
		if _, err := s.q.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// DeleteFileDerived removes a single file's rows from symbols, calls and
// imports together, preserving the invariant that a file contributes to all
// three tables or none.
func (s *Store) DeleteFileDerived(path string) error {
	if _, err := s.q.Exec("DELETE FROM symbols WHERE file=?", path); err != nil {
		return fmt.Errorf("delete symbols: %w", err)
	}
	if _, err := s.q.Exec("DELETE FROM calls WHERE caller_file=?", path); err != nil {
		return fmt.Errorf("delete calls: %w", err)
	}
	if _, err := s.q.Exec("DELETE FROM imports WHERE file=?", path); err != nil {
		return fmt.Errorf("delete imports: %w", err)
	}
	return nil
}

const symbolCols = "id, file, name, kind, start_line, end_line, parent, complexity"

// SymbolsInFile returns every symbol defined in a file, ordered by position.
func (s *Store) SymbolsInFile(path string) ([]Symbol, error) {
	rows, err := s.q.Query("SELECT "+symbolCols+" FROM symbols WHERE file=? ORDER BY start_line", path)
	if err != nil {
		return nil, fmt.Errorf("symbols in file: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// SearchSymbols finds symbols by exact name, or by substring when fuzzy is
// set. Fuzzy results are capped to keep pathological queries cheap.
func (s *Store) SearchSymbols(name string, fuzzy bool) ([]Symbol, error) {
	var (
		query = "SELECT " + symbolCols + " FROM symbols WHERE name=? ORDER BY file, start_line"
		arg   = name
	)
	if fuzzy {
		query = "SELECT " + symbolCols + ` FROM symbols WHERE name LIKE ? ESCAPE '\' ORDER BY file, start_line LIMIT 200`
		arg = "%" + escapeLike(name) + "%"
	}
	rows, err := s.q.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// TopLevelSymbol reports whether file defines name at the top level
// (no enclosing symbol). Wildcard-import verification hangs off this.
func (s *Store) TopLevelSymbol(file, name string) (bool, error) {
	var count int
	err := s.q.QueryRow(
		"SELECT COUNT(*) FROM symbols WHERE file=? AND name=? AND parent=''",
		file, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("top-level symbol: %w", err)
	}
	return count > 0, nil
}

// AllSymbolNames returns the distinct symbol names in the index, sorted.
func (s *Store) AllSymbolNames() ([]string, error) {
	rows, err := s.q.Query("SELECT DISTINCT name FROM symbols ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("all symbol names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CountSymbols returns the number of indexed symbols.
func (s *Store) CountSymbols() (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM symbols").Scan(&count)
	return count, err
}

func scanSymbols(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]Symbol, error) {
	var result []Symbol
	for rows.Next() {
		var sym Symbol
		if err := rows.Scan(&sym.ID, &sym.File, &sym.Name, &sym.Kind,
			&sym.StartLine, &sym.EndLine, &sym.Parent, &sym.Complexity); err != nil {
			return nil, err
		}
		result = append(result, sym)
	}
	return result, rows.Err()
}

// escapeLike escapes LIKE metacharacters in user input; queries using it
// must carry ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
