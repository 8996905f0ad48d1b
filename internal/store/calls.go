package store

import (
	"fmt"
	"strings"
)

// CallEdge records that caller_symbol's body in caller_file contains a call
// naming callee_name. Qualifier holds the receiver or module prefix of a
// qualified call (foo in foo.bar()) and is empty for bare calls.
type CallEdge struct {
	ID           int64
	CallerFile   string
	CallerSymbol string
	CalleeName   string
	CalleeQualif string
	Line         int
}

const numCallCols = 5
const callsBatchSize = 999 / numCallCols

// InsertCallBatch inserts call edges in chunked multi-row INSERTs.
func (s *Store) InsertCallBatch(calls []CallEdge) error {
	for i := 0; i < len(calls); i += callsBatchSize {
		end := min(i+callsBatchSize, len(calls))
		if err := s.insertCallChunk(calls[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertCallChunk(batch []CallEdge) error {
	if len(batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO calls (caller_file, caller_symbol, callee_name, callee_qualifier, line) VALUES ")
	args := make([]any, 0, len(batch)*numCallCols)
	for i, c := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?)")
		args = append(args, c.CallerFile, c.CallerSymbol, c.CalleeName, c.CalleeQualif, c.Line)
	}
	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("insert calls: %w", err)
	}
	return nil
}

// FindCallees returns the calls made from one symbol, keyed exactly by
// (caller_file, caller_symbol). No fallback tiers: the caller's identity is
// exact.
func (s *Store) FindCallees(file, symbol string) ([]CallEdge, error) {
	rows, err := s.q.Query(`SELECT id, caller_file, caller_symbol, callee_name, callee_qualifier, line
		FROM calls WHERE caller_file=? AND caller_symbol=? ORDER BY line`, file, symbol)
	if err != nil {
		return nil, fmt.Errorf("find callees: %w", err)
	}
	defer rows.Close()
	var result []CallEdge
	for rows.Next() {
		var c CallEdge
		if err := rows.Scan(&c.ID, &c.CallerFile, &c.CallerSymbol, &c.CalleeName, &c.CalleeQualif, &c.Line); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// CountCalls returns the number of indexed call edges.
func (s *Store) CountCalls() (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM calls").Scan(&count)
	return count, err
}

// CalleeCount pairs a callee name with how often it is called.
type CalleeCount struct {
	Name  string
	Count int
}

// GraphStats summarizes the call-graph tables.
type GraphStats struct {
	Files      int
	Symbols    int
	Calls      int
	Imports    int
	CrossRefs  int
	ByKind     map[string]int
	TopCallees []CalleeCount
}

// Stats computes call-graph statistics across the index.
func (s *Store) Stats() (*GraphStats, error) {
	st := &GraphStats{ByKind: make(map[string]int)}
	var err error
	if st.Files, err = s.CountFiles(); err != nil {
		return nil, err
	}
	if st.Symbols, err = s.CountSymbols(); err != nil {
		return nil, err
	}
	if st.Calls, err = s.CountCalls(); err != nil {
		return nil, err
	}
	if err = s.q.QueryRow("SELECT COUNT(*) FROM imports").Scan(&st.Imports); err != nil {
		return nil, err
	}
	if err = s.q.QueryRow("SELECT COUNT(*) FROM cross_refs").Scan(&st.CrossRefs); err != nil {
		return nil, err
	}

	rows, err := s.q.Query("SELECT kind, COUNT(*) FROM symbols GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("stats by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		st.ByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	topRows, err := s.q.Query(`SELECT callee_name, COUNT(*) AS cnt FROM calls
		GROUP BY callee_name ORDER BY cnt DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("stats top callees: %w", err)
	}
	defer topRows.Close()
	for topRows.Next() {
		var cc CalleeCount
		if err := topRows.Scan(&cc.Name, &cc.Count); err != nil {
			return nil, err
		}
		st.TopCallees = append(st.TopCallees, cc)
	}
	return st, topRows.Err()
}
