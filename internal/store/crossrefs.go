package store

import (
	"fmt"
	"strings"
)

// CrossRef records a foreign-function-interface relationship between a
// source file in one language and a module built in another.
type CrossRef struct {
	ID           int64
	SourceFile   string
	SourceLang   string
	TargetModule string
	TargetLang   string
	RefType      string
	Line         int
}

const numCrossRefCols = 6
const crossRefsBatchSize = 999 / numCrossRefCols

// ReplaceCrossRefs wipes and reinserts the cross_refs table. Detection runs
// as a whole-table replacement; there is no incremental cross-ref refresh.
func (s *Store) ReplaceCrossRefs(refs []CrossRef) error {
	if _, err := s.q.Exec("DELETE FROM cross_refs"); err != nil {
		return fmt.Errorf("clear cross_refs: %w", err)
	}
	for i := 0; i < len(refs); i += crossRefsBatchSize {
		end := min(i+crossRefsBatchSize, len(refs))
		if err := s.insertCrossRefChunk(refs[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertCrossRefChunk(batch []CrossRef) error {
	if len(batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO cross_refs (source_file, source_lang, target_module, target_lang, ref_type, line) VALUES ")
	args := make([]any, 0, len(batch)*numCrossRefCols)
	for i, r := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?)")
		args = append(args, r.SourceFile, r.SourceLang, r.TargetModule, r.TargetLang, r.RefType, r.Line)
	}
	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("insert cross_refs: %w", err)
	}
	return nil
}

// CrossRefs returns recorded FFI references, optionally filtered by target
// module ("" returns everything).
func (s *Store) CrossRefs(targetModule string) ([]CrossRef, error) {
	query := "SELECT id, source_file, source_lang, target_module, target_lang, ref_type, line FROM cross_refs"
	var args []any
	if targetModule != "" {
		query += " WHERE target_module=?"
		args = append(args, targetModule)
	}
	query += " ORDER BY source_file, line"
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("cross refs: %w", err)
	}
	defer rows.Close()
	var result []CrossRef
	for rows.Next() {
		var r CrossRef
		if err := rows.Scan(&r.ID, &r.SourceFile, &r.SourceLang, &r.TargetModule, &r.TargetLang, &r.RefType, &r.Line); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
