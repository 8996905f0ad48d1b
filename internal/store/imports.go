package store

import (
	"fmt"
	"strings"
)

// WildcardName is the marker stored in an ImportRecord's name for star
// imports (from pkg import *, Go dot imports).
const WildcardName = "*"

// ImportRecord is one import statement binding. Module is empty for bare
// imports (import X: the module and the name coincide). Alias holds a local
// rebinding when present.
type ImportRecord struct {
	ID     int64
	File   string
	Module string
	Name   string
	Alias  string
	Line   int
}

// LocalName returns the identifier the import binds in its file.
func (r ImportRecord) LocalName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

const numImportCols = 5
const importsBatchSize = 999 / numImportCols

// InsertImportBatch inserts import rows in chunked multi-row INSERTs.
func (s *Store) InsertImportBatch(imports []ImportRecord) error {
	for i := 0; i < len(imports); i += importsBatchSize {
		end := min(i+importsBatchSize, len(imports))
		if err := s.insertImportChunk(imports[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertImportChunk(batch []ImportRecord) error {
	if len(batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO imports (file, module, name, alias, line) VALUES ")
	args := make([]any, 0, len(batch)*numImportCols)
	for i, imp := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?)")
		args = append(args, imp.File, imp.Module, imp.Name, imp.Alias, imp.Line)
	}
	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("insert imports: %w", err)
	}
	return nil
}

const importCols = "id, file, module, name, alias, line"

// DirectImport returns the import row in file whose name or alias matches
// name, or nil when no direct binding exists. Wildcard rows never match.
func (s *Store) DirectImport(file, name string) (*ImportRecord, error) {
	rows, err := s.q.Query("SELECT "+importCols+` FROM imports
		WHERE file=? AND (name=? OR alias=?) AND name != ? ORDER BY line LIMIT 1`,
		file, name, name, WildcardName)
	if err != nil {
		return nil, fmt.Errorf("direct import: %w", err)
	}
	defer rows.Close()
	imps, err := scanImports(rows)
	if err != nil || len(imps) == 0 {
		return nil, err
	}
	return &imps[0], nil
}

// WildcardImports returns the star imports recorded for a file, in source
// order.
func (s *Store) WildcardImports(file string) ([]ImportRecord, error) {
	rows, err := s.q.Query("SELECT "+importCols+" FROM imports WHERE file=? AND name=? ORDER BY line",
		file, WildcardName)
	if err != nil {
		return nil, fmt.Errorf("wildcard imports: %w", err)
	}
	defer rows.Close()
	return scanImports(rows)
}

// ImportsInFile returns every import recorded for a file.
func (s *Store) ImportsInFile(file string) ([]ImportRecord, error) {
	rows, err := s.q.Query("SELECT "+importCols+" FROM imports WHERE file=? ORDER BY line", file)
	if err != nil {
		return nil, fmt.Errorf("imports in file: %w", err)
	}
	defer rows.Close()
	return scanImports(rows)
}

// FindImporters returns the imports whose module or bare name matches the
// given module, across all files.
func (s *Store) FindImporters(module string) ([]ImportRecord, error) {
	rows, err := s.q.Query("SELECT "+importCols+` FROM imports
		WHERE module=? OR (module='' AND name=?) ORDER BY file, line`, module, module)
	if err != nil {
		return nil, fmt.Errorf("find importers: %w", err)
	}
	defer rows.Close()
	return scanImports(rows)
}

// AllImports returns every import row in the index.
func (s *Store) AllImports() ([]ImportRecord, error) {
	rows, err := s.q.Query("SELECT " + importCols + " FROM imports ORDER BY file, line")
	if err != nil {
		return nil, fmt.Errorf("all imports: %w", err)
	}
	defer rows.Close()
	return scanImports(rows)
}

func scanImports(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]ImportRecord, error) {
	var result []ImportRecord
	for rows.Next() {
		var imp ImportRecord
		if err := rows.Scan(&imp.ID, &imp.File, &imp.Module, &imp.Name, &imp.Alias, &imp.Line); err != nil {
			return nil, err
		}
		result = append(result, imp)
	}
	return result, rows.Err()
}
