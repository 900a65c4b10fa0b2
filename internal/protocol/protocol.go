// Package protocol defines the request/response types exchanged between the
// session, the host adapter and the functions server.
package protocol

import (
	"bytes"
	"encoding/json"
)

// Backend function names.
const (
	FunctionGetFiles     = "get_files"
	FunctionDownloadFile = "download_file"
)

// Resource selectors.
const (
	SelectorAgent = "Agent"
	SelectorAsset = "Asset"
)

// CallRequest is the body of POST /api/v1/functions/{name}.
type CallRequest struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CallResponse wraps a function result. Data is either the function's
// result or an ErrorResult.
type CallResponse struct {
	Data json.RawMessage `json:"data"`
}

// ErrorResult is the result a function returns instead of data when it
// cannot serve the request.
type ErrorResult struct {
	Error string `json:"error"`
}

// HasError reports whether the response carries a truthy "error" field.
// Only object results are inspected; lists never carry one.
func (r *CallResponse) HasError() bool {
	if r == nil {
		return false
	}
	raw := bytes.TrimSpace(r.Data)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var body struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	switch v := body.Error.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		return true
	}
}

// FileEntry is one element of the get_files result.
type FileEntry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// DownloadRequest is the download_file payload.
type DownloadRequest struct {
	FileName string `json:"file_name"`
	FileID   string `json:"file_id"`
}

// DownloadResult is the download_file result. PDFFile is a data URI.
type DownloadResult struct {
	FileName string `json:"file_name,omitempty"`
	PDFFile  string `json:"pdf_file,omitempty"`
}

// ResourceQuery asks for fields of the resource matched by Selector.
type ResourceQuery struct {
	Selector string   `json:"selector"`
	Fields   []string `json:"fields"`
}

// ResourceQueryRequest is the body of POST /api/v1/resources/query.
type ResourceQueryRequest struct {
	Queries []ResourceQuery `json:"queries"`
}

// ResourceData holds the queried fields of a resource.
type ResourceData struct {
	Name string `json:"name,omitempty"`
}

// ResourceRecord is one element of a resource query result.
type ResourceRecord struct {
	Data ResourceData `json:"data"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}
