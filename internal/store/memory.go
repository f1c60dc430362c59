package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Backend for tests and local development. Rows are
// returned in key order, PageSize rows at a time.
type Memory struct {
	PageSize int

	mu     sync.RWMutex
	tables map[string]map[string]Item
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]Item)}
}

// Query returns the next page of matching items with keys after cursor.
func (m *Memory) Query(ctx context.Context, table Table, filter Filter, cursor string, limit int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if m.PageSize > 0 && (limit <= 0 || m.PageSize < limit) {
		limit = m.PageSize
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.tables[table.Name]
	keys := make([]string, 0, len(rows))
	for k := range rows {
		if k > cursor {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page Page
	for _, k := range keys {
		it := rows[k]
		if !filter.Matches(it) {
			continue
		}
		page.Items = append(page.Items, copyItem(it))
		if len(page.Items) == limit {
			page.Next = k
			break
		}
	}
	return page, nil
}

// Put upserts the item by its table key.
func (m *Memory) Put(ctx context.Context, table Table, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tables[table.Name]
	if !ok {
		rows = make(map[string]Item)
		m.tables[table.Name] = rows
	}
	rows[item[table.Key]] = copyItem(item)
	return nil
}

// Len returns the number of rows stored in table.
func (m *Memory) Len(table Table) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table.Name])
}

func copyItem(it Item) Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}
