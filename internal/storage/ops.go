package storage

import (
	"errors"
	"fmt"
)

// OpRequest is one storage operation as submitted by the data_storage
// tool or the sessions API. Value and Content are pointers so an absent
// field is distinguishable from an explicit empty string, which is a
// legal value to store.
type OpRequest struct {
	Operation string  `json:"operation"`
	Namespace string  `json:"namespace,omitempty"`
	Key       string  `json:"key,omitempty"`
	Value     *string `json:"value,omitempty"`
	SQL       string  `json:"sql,omitempty"`
	Path      string  `json:"path,omitempty"`
	Content   *string `json:"content,omitempty"`
}

// ExecuteOperation dispatches one storage operation against a session.
// Every outcome, fault included, comes back as a structured map; nothing
// is raised past this boundary.
func (m *Manager) ExecuteOperation(sessionID string, req OpRequest) map[string]any {
	switch req.Operation {
	case "set":
		if req.Key == "" || req.Value == nil {
			return opError("missing key or value")
		}
		s, err := m.GetOrCreate(sessionID)
		if err != nil {
			return opError(err.Error())
		}
		s.Set(req.Namespace, req.Key, *req.Value)
		return map[string]any{"success": true, "key": req.Key}

	case "get":
		if req.Key == "" {
			return opError("missing key")
		}
		s, err := m.GetOrCreate(sessionID)
		if err != nil {
			return opError(err.Error())
		}
		value, err := s.Get(req.Namespace, req.Key)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return opError(fmt.Sprintf("key not found: %s", req.Key))
			}
			return opError(err.Error())
		}
		return map[string]any{"success": true, "key": req.Key, "value": value}

	case "delete":
		if req.Key == "" {
			return opError("missing key")
		}
		s, err := m.GetOrCreate(sessionID)
		if err != nil {
			return opError(err.Error())
		}
		deleted := s.Del(req.Namespace, req.Key)
		return map[string]any{"success": deleted, "key": req.Key}

	case "list":
		s, err := m.GetOrCreate(sessionID)
		if err != nil {
			return opError(err.Error())
		}
		keys := s.Keys(req.Namespace)
		return map[string]any{"success": true, "keys": keys, "count": len(keys)}

	case "query":
		if req.SQL == "" {
			return opError("missing SQL query")
		}
		return queryResultMap(m.Query(sessionID, req.SQL))

	case "file_write":
		if req.Path == "" || req.Content == nil {
			return opError("missing path or content")
		}
		s, err := m.GetOrCreate(sessionID)
		if err != nil {
			return opError(err.Error())
		}
		size, err := s.WriteFile(req.Path, *req.Content)
		if err != nil {
			return opError(err.Error())
		}
		return map[string]any{"success": true, "path": req.Path, "size": size}

	case "file_read":
		if req.Path == "" {
			return opError("missing path")
		}
		s, err := m.GetOrCreate(sessionID)
		if err != nil {
			return opError(err.Error())
		}
		content, err := s.ReadFile(req.Path)
		if err != nil {
			return opError(err.Error())
		}
		return map[string]any{"success": true, "path": req.Path, "content": content, "size": len(content)}

	case "file_list":
		s, err := m.GetOrCreate(sessionID)
		if err != nil {
			return opError(err.Error())
		}
		listing, err := s.ListFiles(req.Path)
		if err != nil {
			return opError(err.Error())
		}
		return map[string]any{
			"success":     true,
			"path":        listing.Path,
			"files":       listing.Files,
			"directories": listing.Directories,
		}

	default:
		return opError(fmt.Sprintf("unknown operation: %s", req.Operation))
	}
}

func opError(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

// queryResultMap flattens a QueryResult into the dispatch result shape.
func queryResultMap(qr QueryResult) map[string]any {
	if !qr.Success {
		return opError(qr.Error)
	}
	out := map[string]any{"success": true}
	if qr.Columns != nil {
		out["columns"] = qr.Columns
		out["rows"] = qr.Rows
		out["row_count"] = qr.RowCount
	} else {
		out["rows_affected"] = qr.RowsAffected
	}
	return out
}
