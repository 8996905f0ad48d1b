package store

import (
	"fmt"
	"strings"
)

// selfMarkers are the qualifiers that mean "a call on the receiver of the
// enclosing method": Python's self, JS/Java-style this.
const selfMarkersSQL = "('self', 'this')"

// CallerHit is one resolved call site.
type CallerHit struct {
	File   string
	Symbol string
	Line   int
}

// FindCallers resolves call sites that name the given symbol. Resolution is
// layered: each tier is strictly looser than the previous one, and the first
// non-empty tier wins. The caller cannot tell which tier answered; precision
// is traded for recall once strict resolution fails.
//
// Tiers:
//  1. Class.method queries: self-qualified calls inside methods whose parent
//     is Class (most specific; returned immediately when non-empty).
//  2. A union of direct-name, import-alias, qualified-module and
//     method-via-self matches against the bare name.
//  3. Case-insensitive exact match.
//  4. Substring match, capped at 100 rows.
func (s *Store) FindCallers(name string) ([]CallerHit, error) {
	if class, method, ok := splitClassMethod(name); ok {
		hits, err := s.scopedMethodCallers(class, method)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
		name = method
	}

	hits, err := s.unionCallers(name)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		return hits, nil
	}

	hits, err = s.queryCallers(
		"SELECT caller_file, caller_symbol, line FROM calls WHERE callee_name=? COLLATE NOCASE", name)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		return hits, nil
	}

	return s.queryCallers(
		`SELECT caller_file, caller_symbol, line FROM calls WHERE callee_name LIKE ? ESCAPE '\' LIMIT 100`,
		"%"+escapeLike(name)+"%")
}

// splitClassMethod recognizes Class.method query shapes. Names with more
// than one dot are not treated as scoped queries.
func splitClassMethod(name string) (class, method string, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// scopedMethodCallers resolves intra-class self.method() call sites to the
// owning class's method: the call must be self-qualified and the enclosing
// caller symbol must belong to class.
func (s *Store) scopedMethodCallers(class, method string) ([]CallerHit, error) {
	return s.queryCallers(`
		SELECT c.caller_file, c.caller_symbol, c.line
		FROM calls c
		JOIN symbols s ON s.file = c.caller_file AND s.name = c.caller_symbol
		WHERE c.callee_name = ?
		  AND c.callee_qualifier IN `+selfMarkersSQL+`
		  AND s.parent = ?`, method, class)
}

// unionCallers runs the four strict resolution strategies as one UNION:
//
//	a) direct:   callee_name matches outright
//	b) alias:    the call names an import's local binding whose imported
//	             name is the queried one (import real as local; local())
//	c) module:   the call is qualified by a bare import's local binding
//	             (import foo; foo.bar() resolves bar)
//	d) via-self: self-qualified calls inside any class's method
func (s *Store) unionCallers(name string) ([]CallerHit, error) {
	query := `
		SELECT caller_file, caller_symbol, line FROM calls WHERE callee_name = ?
		UNION
		SELECT c.caller_file, c.caller_symbol, c.line
		FROM calls c
		JOIN imports i ON i.file = c.caller_file
			AND c.callee_name = CASE WHEN i.alias != '' THEN i.alias ELSE i.name END
		WHERE i.name = ?
		UNION
		SELECT c.caller_file, c.caller_symbol, c.line
		FROM calls c
		JOIN imports i ON i.file = c.caller_file
			AND i.module = ''
			AND c.callee_qualifier = CASE WHEN i.alias != '' THEN i.alias ELSE i.name END
		WHERE c.callee_name = ?
		UNION
		SELECT c.caller_file, c.caller_symbol, c.line
		FROM calls c
		JOIN symbols s ON s.file = c.caller_file AND s.name = c.caller_symbol AND s.parent != ''
		WHERE c.callee_qualifier IN ` + selfMarkersSQL + ` AND c.callee_name = ?`
	return s.queryCallers(query, name, name, name, name)
}

func (s *Store) queryCallers(query string, args ...any) ([]CallerHit, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find callers: %w", err)
	}
	defer rows.Close()
	var hits []CallerHit
	for rows.Next() {
		var h CallerHit
		if err := rows.Scan(&h.File, &h.Symbol, &h.Line); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
