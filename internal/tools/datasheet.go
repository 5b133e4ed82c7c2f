package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cockroachdb/errors"

	"aitable-mcp/internal/aitable"
)

// Remote is the part of the AITable client the datasheet tools call.
type Remote interface {
	ListSpaces(ctx context.Context) ([]aitable.Space, error)
	SearchNodes(ctx context.Context, spaceID, nodeType, query string) ([]map[string]any, error)
	ListRecords(ctx context.Context, nodeID string, q aitable.RecordQuery) (json.RawMessage, error)
	FetchFieldsSchema(ctx context.Context, nodeID string) ([]aitable.FieldSchema, error)
	CreateRecord(ctx context.Context, nodeID string, cells map[string]any) (json.RawMessage, error)
	UploadAttachment(ctx context.Context, nodeID, fileURL, fileName string) (*aitable.Response, error)
}

const (
	defaultPageNum  = 1
	defaultPageSize = 20
)

// New returns a dispatcher with every datasheet tool registered against remote.
func New(remote Remote, logger *slog.Logger) (*Dispatcher, error) {
	d := NewDispatcher(logger)
	h := &datasheetHandlers{remote: remote}
	for _, t := range []Tool{
		{
			Name:        "list_spaces",
			Description: "List all spaces (workspaces) the configured API token can access.",
			InputSchema: GenerateSchema[listSpacesArgs](),
			Handler:     h.ListSpaces,
		},
		{
			Name:        "search_nodes",
			Description: "Search the nodes (datasheets, forms, dashboards, folders, mirrors) of a space by type and optional name query.",
			InputSchema: GenerateSchema[searchNodesArgs](),
			Handler:     h.SearchNodes,
		},
		{
			Name:        "list_records",
			Description: "Read records from a datasheet, one page at a time. Cell values are returned as display strings keyed by field name.",
			InputSchema: GenerateSchema[listRecordsArgs](),
			Handler:     h.ListRecords,
		},
		{
			Name:        "get_fields_schema",
			Description: "Describe the writable fields of a datasheet as a JSON Schema. Call this before create_record.",
			InputSchema: GenerateSchema[nodeArgs](),
			Handler:     h.GetFieldsSchema,
		},
		{
			Name:        "create_record",
			Description: "Create one record in a datasheet. Values in fields must follow the schema from get_fields_schema; attachment cells go in attachments_fields as returned by upload_attachment_via_url.",
			InputSchema: GenerateSchema[createRecordArgs](),
			Handler:     h.CreateRecord,
		},
		{
			Name:        "upload_attachment_via_url",
			Description: "Copy a file from a public URL into a datasheet's attachment storage and return the attachment objects to use in create_record.",
			InputSchema: GenerateSchema[uploadAttachmentArgs](),
			Handler:     h.UploadAttachment,
		},
	} {
		if err := d.Register(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

type datasheetHandlers struct {
	remote Remote
}

type listSpacesArgs struct{}

type fieldDefinition struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

var spaceFieldDefinitions = []fieldDefinition{
	{Name: "id", Type: "string", Description: "Space ID, passed as space_id to search_nodes."},
	{Name: "name", Type: "string", Description: "Display name of the space."},
	{Name: "isAdmin", Type: "boolean", Description: "Whether the token's owner administers the space."},
}

func (h *datasheetHandlers) ListSpaces(ctx context.Context, _ json.RawMessage) (any, error) {
	spaces, err := h.remote.ListSpaces(ctx)
	if err != nil {
		return nil, err
	}
	if spaces == nil {
		spaces = []aitable.Space{}
	}
	return map[string]any{"spaces": spaces, "fields": spaceFieldDefinitions}, nil
}

type searchNodesArgs struct {
	SpaceID  string `json:"space_id" jsonschema:"required,minLength=1" jsonschema_description:"ID of the space to search, from list_spaces."`
	NodeType string `json:"node_type" jsonschema:"required,enum=Datasheet,enum=Form,enum=Automation,enum=Dashboard,enum=Mirror,enum=Folder" jsonschema_description:"Kind of node to return."`
	Query    string `json:"query,omitempty" jsonschema_description:"Only return nodes whose name contains this text."`
}

func (h *datasheetHandlers) SearchNodes(ctx context.Context, input json.RawMessage) (any, error) {
	var in searchNodesArgs
	if err := decodeArgs(input, &in); err != nil {
		return nil, err
	}
	nodes, err := h.remote.SearchNodes(ctx, in.SpaceID, in.NodeType, in.Query)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, renameNodeID(n))
	}
	return out, nil
}

// renameNodeID moves a node's id to node_id.
func renameNodeID(n map[string]any) map[string]any {
	out := make(map[string]any, len(n))
	for k, v := range n {
		if k == "id" {
			out["node_id"] = v
			continue
		}
		out[k] = v
	}
	return out
}

type listRecordsArgs struct {
	NodeID          string             `json:"node_id" jsonschema:"required,minLength=1" jsonschema_description:"Datasheet ID (node_id from search_nodes)."`
	Sort            []aitable.SortSpec `json:"sort,omitempty" jsonschema_description:"Sort order, applied in sequence."`
	PageNum         int                `json:"pageNum,omitempty" jsonschema:"minimum=1,default=1" jsonschema_description:"Page to return, starting at 1."`
	PageSize        int                `json:"pageSize,omitempty" jsonschema:"minimum=1,maximum=1000,default=20" jsonschema_description:"Records per page."`
	Fields          []string           `json:"fields,omitempty" jsonschema_description:"Only return these field names."`
	ViewID          string             `json:"viewId,omitempty" jsonschema_description:"Return records in the order and filter of this view."`
	FilterByFormula string             `json:"filterByFormula,omitempty" jsonschema_description:"Formula that each returned record must satisfy."`
}

func (h *datasheetHandlers) ListRecords(ctx context.Context, input json.RawMessage) (any, error) {
	var in listRecordsArgs
	if err := decodeArgs(input, &in); err != nil {
		return nil, err
	}
	q := aitable.RecordQuery{
		Sort:            in.Sort,
		PageNum:         in.PageNum,
		PageSize:        in.PageSize,
		Fields:          in.Fields,
		ViewID:          in.ViewID,
		FilterByFormula: in.FilterByFormula,
	}
	if q.PageNum == 0 {
		q.PageNum = defaultPageNum
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}
	return h.remote.ListRecords(ctx, in.NodeID, q)
}

type nodeArgs struct {
	NodeID string `json:"node_id" jsonschema:"required,minLength=1" jsonschema_description:"Datasheet ID (node_id from search_nodes)."`
}

func (h *datasheetHandlers) GetFieldsSchema(ctx context.Context, input json.RawMessage) (any, error) {
	var in nodeArgs
	if err := decodeArgs(input, &in); err != nil {
		return nil, err
	}
	fields, err := h.remote.FetchFieldsSchema(ctx, in.NodeID)
	if err != nil {
		return nil, err
	}
	return aitable.BuildFieldsJSONSchema(fields), nil
}

type createRecordArgs struct {
	NodeID            string                      `json:"node_id" jsonschema:"required,minLength=1" jsonschema_description:"Datasheet ID (node_id from search_nodes)."`
	Fields            map[string]any              `json:"fields,omitempty" jsonschema_description:"Cell values keyed by field name, shaped by get_fields_schema."`
	AttachmentsFields map[string][]map[string]any `json:"attachments_fields,omitempty" jsonschema_description:"Attachment cells keyed by field name; each value is the attachment list from upload_attachment_via_url."`
}

func (h *datasheetHandlers) CreateRecord(ctx context.Context, input json.RawMessage) (any, error) {
	var in createRecordArgs
	if err := decodeArgs(input, &in); err != nil {
		return nil, err
	}
	if len(in.Fields) == 0 && len(in.AttachmentsFields) == 0 {
		return nil, &aitable.ValidationError{Message: "either fields or attachments_fields must be provided"}
	}

	schema, err := h.remote.FetchFieldsSchema(ctx, in.NodeID)
	if err != nil {
		return nil, err
	}
	cells := aitable.MapFieldValuesToCells(schema, in.Fields)
	for _, f := range schema {
		if atts, ok := in.AttachmentsFields[f.Name]; ok {
			cells[f.Name] = atts
		}
	}
	return h.remote.CreateRecord(ctx, in.NodeID, cells)
}

type uploadAttachmentArgs struct {
	NodeID         string `json:"node_id" jsonschema:"required,minLength=1" jsonschema_description:"Datasheet that will own the attachment."`
	AttachmentURL  string `json:"attachment_url" jsonschema:"required,minLength=1" jsonschema_description:"Publicly reachable URL of the file to copy."`
	AttachmentName string `json:"attachment_name,omitempty" jsonschema_description:"File name to store; defaults to the last segment of the URL."`
}

func (h *datasheetHandlers) UploadAttachment(ctx context.Context, input json.RawMessage) (any, error) {
	var in uploadAttachmentArgs
	if err := decodeArgs(input, &in); err != nil {
		return nil, err
	}
	resp, err := h.remote.UploadAttachment(ctx, in.NodeID, in.AttachmentURL, in.AttachmentName)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func decodeArgs(input json.RawMessage, v any) error {
	if err := json.Unmarshal(input, v); err != nil {
		return &aitable.ValidationError{Message: "invalid input: " + err.Error()}
	}
	return nil
}

// errorMessage is the text reported to the caller for a failed call.
func errorMessage(err error) string {
	var (
		apiErr     *aitable.RemoteAPIError
		validation *aitable.ValidationError
		missing    *aitable.MissingParameterError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &missing):
		return missing.Error()
	case errors.As(err, &apiErr):
		return apiErr.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return aitable.FallbackMessage
}
