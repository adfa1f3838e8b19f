package storage

import (
	"strings"
)

// QueryResult is the structured outcome of a relational operation.
// Engine faults land in Error; they never propagate past this boundary.
type QueryResult struct {
	Success      bool             `json:"success"`
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"row_count,omitempty"`
	RowsAffected int64            `json:"rows_affected,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Query runs raw SQL against the session's embedded database, opening it
// on first use. SELECT-shaped statements return column names, row maps,
// and a row count; everything else commits and returns affected rows.
func (m *Manager) Query(sessionID, sql string) QueryResult {
	s, err := m.GetOrCreate(sessionID)
	if err != nil {
		return QueryResult{Error: err.Error()}
	}

	db, err := s.database(m.gormLogger)
	if err != nil {
		return QueryResult{Error: err.Error()}
	}

	if isSelect(sql) {
		rows, err := db.Raw(sql).Rows()
		if err != nil {
			return QueryResult{Error: err.Error()}
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return QueryResult{Error: err.Error()}
		}

		var mapped []map[string]any
		for rows.Next() {
			values := make([]any, len(columns))
			ptrs := make([]any, len(columns))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return QueryResult{Error: err.Error()}
			}

			row := make(map[string]any, len(columns))
			for i, col := range columns {
				// The sqlite driver hands back []byte for text values.
				if b, ok := values[i].([]byte); ok {
					row[col] = string(b)
				} else {
					row[col] = values[i]
				}
			}
			mapped = append(mapped, row)
		}
		if err := rows.Err(); err != nil {
			return QueryResult{Error: err.Error()}
		}

		return QueryResult{
			Success:  true,
			Columns:  columns,
			Rows:     mapped,
			RowCount: len(mapped),
		}
	}

	res := db.Exec(sql)
	if res.Error != nil {
		return QueryResult{Error: res.Error.Error()}
	}
	return QueryResult{
		Success:      true,
		RowsAffected: res.RowsAffected,
	}
}

// isSelect reports whether a statement is SELECT-shaped.
func isSelect(sql string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(sql)), "select")
}
