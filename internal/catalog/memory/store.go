package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

// FileStore keeps workbooks in process memory. Reads return copies so callers
// cannot mutate stored tables.
type FileStore struct {
	mu    sync.RWMutex
	files map[string]catalog.ExcelFile
	order []string
	now   func() time.Time
}

func NewFileStore(seed ...catalog.ExcelFile) *FileStore {
	s := &FileStore{
		files: make(map[string]catalog.ExcelFile, len(seed)),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, file := range seed {
		s.files[file.ID] = cloneFile(file)
		s.order = append(s.order, file.ID)
	}
	return s
}

// NewSeededFileStore returns a store holding the transit demo workbook.
func NewSeededFileStore() *FileStore {
	return NewFileStore(catalog.TransitWorkbook(time.Now().UTC()))
}

func (s *FileStore) CreateFile(ctx context.Context, in catalog.CreateFileInput) (catalog.ExcelFile, error) {
	if err := ctx.Err(); err != nil {
		return catalog.ExcelFile{}, err
	}
	if strings.TrimSpace(in.OriginalName) == "" {
		return catalog.ExcelFile{}, fmt.Errorf("original name is required")
	}
	if in.Tables == nil {
		return catalog.ExcelFile{}, fmt.Errorf("tables are required")
	}

	file := catalog.ExcelFile{
		ID:           uuid.NewString(),
		Filename:     in.Filename,
		OriginalName: in.OriginalName,
		UploadedAt:   s.now(),
		Tables:       cloneTables(in.Tables),
	}

	s.mu.Lock()
	s.files[file.ID] = file
	s.order = append(s.order, file.ID)
	s.mu.Unlock()

	return cloneFile(file), nil
}

func (s *FileStore) GetFile(ctx context.Context, fileID string) (catalog.ExcelFile, error) {
	if err := ctx.Err(); err != nil {
		return catalog.ExcelFile{}, err
	}
	s.mu.RLock()
	file, ok := s.files[fileID]
	s.mu.RUnlock()
	if !ok {
		return catalog.ExcelFile{}, catalog.ErrNotFound
	}
	return cloneFile(file), nil
}

// ListFiles returns files in insertion order, seeded files first.
func (s *FileStore) ListFiles(ctx context.Context) ([]catalog.ExcelFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]catalog.ExcelFile, 0, len(s.order))
	for _, id := range s.order {
		files = append(files, cloneFile(s.files[id]))
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].UploadedAt.Before(files[j].UploadedAt)
	})
	return files, nil
}

func cloneFile(file catalog.ExcelFile) catalog.ExcelFile {
	file.Tables = cloneTables(file.Tables)
	return file
}

func cloneTables(tables catalog.TablesData) catalog.TablesData {
	if tables == nil {
		return nil
	}
	out := make(catalog.TablesData, len(tables))
	for key, table := range tables {
		out[key] = cloneTable(table)
	}
	return out
}

func cloneTable(table catalog.Table) catalog.Table {
	headers := append([]string(nil), table.Headers...)
	rows := make([]map[string]any, len(table.Rows))
	for i, row := range table.Rows {
		copied := make(map[string]any, len(row))
		for k, v := range row {
			copied[k] = v
		}
		rows[i] = copied
	}
	return catalog.Table{Title: table.Title, Headers: headers, Rows: rows}
}
