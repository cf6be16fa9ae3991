package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MemoryTable is an in-process Table keyed by tab name. It understands whole
// column ranges ("A:B") and single cells ("B7"), which is all the counter uses.
type MemoryTable struct {
	mu   sync.Mutex
	tabs map[string][][]string

	// Calls records operations as "read|update|append <range>".
	Calls []string
	// ReadErr, UpdateErr and AppendErr are returned by the matching operation when set.
	ReadErr, UpdateErr, AppendErr error
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{tabs: map[string][][]string{}}
}

// Seed replaces the contents of tab.
func (m *MemoryTable) Seed(tab string, rows ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[tab] = copyRows(rows)
}

// Rows returns a copy of tab.
func (m *MemoryTable) Rows(tab string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.tabs[tab])
}

func (m *MemoryTable) Read(ctx context.Context, rng string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "read "+rng)
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	tab, _, err := SplitA1(rng)
	if err != nil {
		return nil, err
	}
	return copyRows(m.tabs[tab]), nil
}

func (m *MemoryTable) Update(ctx context.Context, rng string, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "update "+rng)
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	tab, ref, err := SplitA1(rng)
	if err != nil {
		return err
	}
	col, row, err := parseCell(ref)
	if err != nil {
		return err
	}
	data := m.tabs[tab]
	for i, vals := range rows {
		r := row + i
		for len(data) <= r {
			data = append(data, nil)
		}
		for j, v := range vals {
			c := col + j
			for len(data[r]) <= c {
				data[r] = append(data[r], "")
			}
			data[r][c] = fmt.Sprint(v)
		}
	}
	m.tabs[tab] = data
	return nil
}

func (m *MemoryTable) Append(ctx context.Context, rng string, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "append "+rng)
	if m.AppendErr != nil {
		return m.AppendErr
	}
	tab, _, err := SplitA1(rng)
	if err != nil {
		return err
	}
	for _, vals := range rows {
		row := make([]string, len(vals))
		for j, v := range vals {
			row[j] = fmt.Sprint(v)
		}
		m.tabs[tab] = append(m.tabs[tab], row)
	}
	return nil
}

// parseCell converts "B7" to zero-based (col 1, row 6).
func parseCell(ref string) (col, row int, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A'+1)
		i++
	}
	n, err := strconv.Atoi(ref[i:])
	if i == 0 || err != nil || n < 1 {
		return 0, 0, fmt.Errorf("unsupported cell reference %q", ref)
	}
	return col - 1, n - 1, nil
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
