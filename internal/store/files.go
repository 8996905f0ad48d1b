package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// File is one tracked filesystem entry, keyed by project-relative path.
type File struct {
	Path      string
	IsDir     bool
	Mtime     int64
	LineCount int
}

// ReplaceAllFiles deletes every file row and inserts the given set. Callers
// run this inside WithTransaction so a failed walk never leaves a half-empty
// table.
func (s *Store) ReplaceAllFiles(files []File) error {
	if _, err := s.q.Exec("DELETE FROM files"); err != nil {
		return fmt.Errorf("clear files: %w", err)
	}
	return s.InsertFileBatch(files)
}

// Formula-derived batch size: SQLite caps bind variables at 999.
const numFileCols = 4
const filesBatchSize = 999 / numFileCols

// InsertFileBatch upserts file rows in chunked multi-row INSERTs.
func (s *Store) InsertFileBatch(files []File) error {
	for i := 0; i < len(files); i += filesBatchSize {
		end := min(i+filesBatchSize, len(files))
		if err := s.insertFileChunk(files[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertFileChunk(batch []File) error {
	if len(batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO files (path, is_dir, mtime, line_count) VALUES ")
	args := make([]any, 0, len(batch)*numFileCols)
	for i, f := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?)")
		args = append(args, f.Path, boolToInt(f.IsDir), f.Mtime, f.LineCount)
	}
	sb.WriteString(` ON CONFLICT(path) DO UPDATE SET
		is_dir=excluded.is_dir, mtime=excluded.mtime, line_count=excluded.line_count`)
	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("insert files: %w", err)
	}
	return nil
}

// UpsertFile inserts or replaces a single file row.
func (s *Store) UpsertFile(f File) error {
	return s.insertFileChunk([]File{f})
}

// DeleteFile removes a file row by path.
func (s *Store) DeleteFile(path string) error {
	_, err := s.q.Exec("DELETE FROM files WHERE path=?", path)
	return err
}

// FileByPath returns the file row for a path, or nil when untracked.
func (s *Store) FileByPath(path string) (*File, error) {
	row := s.q.QueryRow("SELECT path, is_dir, mtime, line_count FROM files WHERE path=?", path)
	var f File
	var isDir int
	err := row.Scan(&f.Path, &isDir, &f.Mtime, &f.LineCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	f.IsDir = isDir != 0
	return &f, nil
}

// AllFiles returns every tracked file row ordered by path.
func (s *Store) AllFiles() ([]File, error) {
	rows, err := s.q.Query("SELECT path, is_dir, mtime, line_count FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("all files: %w", err)
	}
	defer rows.Close()
	var files []File
	for rows.Next() {
		var f File
		var isDir int
		if err := rows.Scan(&f.Path, &isDir, &f.Mtime, &f.LineCount); err != nil {
			return nil, err
		}
		f.IsDir = isDir != 0
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileMtimes returns a map of path → mtime for every tracked non-directory
// file. This is the change-detection working set.
func (s *Store) FileMtimes() (map[string]int64, error) {
	rows, err := s.q.Query("SELECT path, mtime FROM files WHERE is_dir=0")
	if err != nil {
		return nil, fmt.Errorf("file mtimes: %w", err)
	}
	defer rows.Close()
	mtimes := make(map[string]int64)
	for rows.Next() {
		var path string
		var mtime int64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, err
		}
		mtimes[path] = mtime
	}
	return mtimes, rows.Err()
}

// CountFiles returns the number of tracked entries.
func (s *Store) CountFiles() (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM files").Scan(&count)
	return count, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
