// file: internal/server/response_types.go
// version: 2.0.0
// guid: 7f8a9b0c-1d2e-3f4a-5b6c-7d8e9f0a1b2c

package server

// ListResponse provides a consistent format for paginated list responses
type ListResponse struct {
	Items  any `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total,omitempty"`
}

// MessageResponse provides a consistent format for status messages
type MessageResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StatusResponse provides a consistent format for status check responses
type StatusResponse struct {
	Status string `json:"status"` // "ok", "degraded", "error"
	Code   string `json:"code,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// RefreshResponse reports the outcome of a catalog load.
type RefreshResponse struct {
	Success  bool   `json:"success"`
	Cached   bool   `json:"cached"`
	Fallback bool   `json:"fallback"`
	Message  string `json:"message,omitempty"`
	Catalog  any    `json:"catalog,omitempty"`
}

// CatalogSummary is the list-level view of one imported catalog.
type CatalogSummary struct {
	Key        string         `json:"key"`
	Hash       string         `json:"hash"`
	ImportedAt string         `json:"imported_at"`
	Counts     map[string]int `json:"counts"`
}

// NewListResponse creates a new ListResponse with pagination info
func NewListResponse(items any, count int, limit int, offset int) *ListResponse {
	return &ListResponse{
		Items:  items,
		Count:  count,
		Limit:  limit,
		Offset: offset,
		Total:  count,
	}
}

// NewMessageResponse creates a new MessageResponse
func NewMessageResponse(message string, code string) *MessageResponse {
	return &MessageResponse{
		Message: message,
		Code:    code,
	}
}

// NewStatusResponse creates a new StatusResponse
func NewStatusResponse(status string, data any) *StatusResponse {
	return &StatusResponse{
		Status: status,
		Data:   data,
	}
}
