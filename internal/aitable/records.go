package aitable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Space is a workspace the token can access.
type Space struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
}

// ListSpaces returns every space visible to the configured token.
func (c *Client) ListSpaces(ctx context.Context) ([]Space, error) {
	var out struct {
		Spaces []Space `json:"spaces"`
	}
	if err := c.get(ctx, "/spaces", &out); err != nil {
		return nil, err
	}
	return out.Spaces, nil
}

// SearchNodes lists the nodes of one type in a space, optionally filtered by
// a name query. Nodes are returned as decoded objects so that fields this
// package does not model survive.
func (c *Client) SearchNodes(ctx context.Context, spaceID, nodeType, query string) ([]map[string]any, error) {
	if spaceID == "" {
		return nil, &ValidationError{Message: "space_id is required"}
	}
	params := NewParams()
	params.Set("type", nodeType)
	params.Set("query", query)
	qs, err := BuildQueryString(params, "type")
	if err != nil {
		return nil, err
	}
	var out struct {
		Nodes []map[string]any `json:"nodes"`
	}
	if err := c.get(ctx, "/spaces/"+url.PathEscape(spaceID)+"/nodes"+qs, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// SortSpec orders records by one field.
type SortSpec struct {
	Field string `json:"field" jsonschema:"required,minLength=1"`
	Order string `json:"order" jsonschema:"required,enum=asc,enum=desc"`
}

// RecordQuery narrows a record listing. Zero values are omitted.
type RecordQuery struct {
	Sort            []SortSpec
	PageNum         int
	PageSize        int
	Fields          []string
	ViewID          string
	FilterByFormula string
}

func (q RecordQuery) params() *Params {
	p := NewParams()
	if len(q.Sort) > 0 {
		p.Set("sort", q.Sort)
	}
	if q.PageNum > 0 {
		p.Set("pageNum", q.PageNum)
	}
	if q.PageSize > 0 {
		p.Set("pageSize", q.PageSize)
	}
	p.Set("fields", q.Fields)
	p.Set("viewId", q.ViewID)
	p.Set("filterByFormula", q.FilterByFormula)
	// Cells come back as display strings keyed by field name.
	p.Set("cellFormat", "string")
	p.Set("fieldKey", "name")
	return p
}

// ListRecords returns one page of records exactly as the API sent it.
func (c *Client) ListRecords(ctx context.Context, nodeID string, q RecordQuery) (json.RawMessage, error) {
	if nodeID == "" {
		return nil, &ValidationError{Message: "node_id is required"}
	}
	qs, err := BuildQueryString(q.params())
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.get(ctx, "/datasheets/"+url.PathEscape(nodeID)+"/records"+qs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type recordFields struct {
	Fields map[string]any `json:"fields"`
}

// CreateRecord writes a single record and returns the API's {records} payload.
func (c *Client) CreateRecord(ctx context.Context, nodeID string, cells map[string]any) (json.RawMessage, error) {
	if nodeID == "" {
		return nil, &ValidationError{Message: "node_id is required"}
	}
	body := struct {
		Records []recordFields `json:"records"`
	}{Records: []recordFields{{Fields: cells}}}

	resp, err := c.Call(ctx, http.MethodPost, "/v1/datasheets/"+url.PathEscape(nodeID)+"/records", body, nil)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
