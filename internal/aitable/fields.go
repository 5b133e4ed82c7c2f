package aitable

import (
	"context"
	"fmt"
	"net/url"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FieldType is the closed set of datasheet column types this package
// understands. Tags outside the set decode to FieldTypeUnsupported.
type FieldType int

const (
	FieldTypeUnsupported FieldType = iota
	FieldTypeText
	FieldTypeSingleText
	FieldTypeEmail
	FieldTypeURL
	FieldTypePhone
	FieldTypeCheckbox
	FieldTypeNumber
	FieldTypeCurrency
	FieldTypePercent
	FieldTypeRating
	FieldTypeDateTime
	FieldTypeSingleSelect
	FieldTypeMultiSelect
	FieldTypeAttachment
)

var fieldTypeTags = map[FieldType]string{
	FieldTypeUnsupported:  "Unsupported",
	FieldTypeText:         "Text",
	FieldTypeSingleText:   "SingleText",
	FieldTypeEmail:        "Email",
	FieldTypeURL:          "URL",
	FieldTypePhone:        "Phone",
	FieldTypeCheckbox:     "Checkbox",
	FieldTypeNumber:       "Number",
	FieldTypeCurrency:     "Currency",
	FieldTypePercent:      "Percent",
	FieldTypeRating:       "Rating",
	FieldTypeDateTime:     "DateTime",
	FieldTypeSingleSelect: "SingleSelect",
	FieldTypeMultiSelect:  "MultiSelect",
	FieldTypeAttachment:   "Attachment",
}

var fieldTypesByTag = func() map[string]FieldType {
	m := make(map[string]FieldType, len(fieldTypeTags))
	for t, tag := range fieldTypeTags {
		if t != FieldTypeUnsupported {
			m[tag] = t
		}
	}
	return m
}()

// ParseFieldType maps a remote type tag to a FieldType. It never fails.
func ParseFieldType(tag string) FieldType {
	if t, ok := fieldTypesByTag[tag]; ok {
		return t
	}
	return FieldTypeUnsupported
}

func (t FieldType) String() string {
	if tag, ok := fieldTypeTags[t]; ok {
		return tag
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

func (t FieldType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *FieldType) UnmarshalText(b []byte) error {
	*t = ParseFieldType(string(b))
	return nil
}

// SelectOption is one choice of a SingleSelect or MultiSelect field.
type SelectOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color any    `json:"color,omitempty"`
}

// FieldProperty holds the type-specific metadata of a field.
type FieldProperty struct {
	Options     []SelectOption `json:"options,omitempty"`
	Max         *int           `json:"max,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Precision   *int           `json:"precision,omitempty"`
	Symbol      string         `json:"symbol,omitempty"`
	DateFormat  string         `json:"dateFormat,omitempty"`
	TimeFormat  string         `json:"timeFormat,omitempty"`
	IncludeTime bool           `json:"includeTime,omitempty"`
}

// FieldSchema describes one column of a datasheet.
type FieldSchema struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Type     FieldType      `json:"type"`
	Property *FieldProperty `json:"property,omitempty"`
	Editable bool           `json:"editable,omitempty"`
	Desc     string         `json:"desc,omitempty"`
}

func (f FieldSchema) options() []SelectOption {
	if f.Property == nil {
		return nil
	}
	return f.Property.Options
}

func (f FieldSchema) optionID(name string) (string, bool) {
	for _, o := range f.options() {
		if o.Name == name {
			return o.ID, true
		}
	}
	return "", false
}

func (f FieldSchema) optionNames() []string {
	opts := f.options()
	names := make([]string, 0, len(opts))
	for _, o := range opts {
		names = append(names, o.Name)
	}
	return names
}

// Properties is an insertion-ordered JSON Schema properties map.
type Properties = orderedmap.OrderedMap[string, *SchemaFragment]

// SchemaFragment is the JSON Schema describing a single field's value.
type SchemaFragment struct {
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Items       *SchemaFragment `json:"items,omitempty"`
	Properties  *Properties     `json:"properties,omitempty"`
	Required    []string        `json:"required,omitempty"`
}

// ObjectSchema is the root object of a generated datasheet schema.
type ObjectSchema struct {
	Type                 string      `json:"type"`
	Properties           *Properties `json:"properties"`
	AdditionalProperties bool        `json:"additionalProperties"`
	Required             []string    `json:"required"`
}

// FieldsJSONSchema is a named, strict JSON Schema document.
type FieldsJSONSchema struct {
	Name   string       `json:"name"`
	Strict bool         `json:"strict"`
	Schema ObjectSchema `json:"schema"`
}

const (
	dateTimeDescription     = "Date and time in ISO 8601 format, in UTC (for example 2024-01-01T00:00:00.000Z)."
	singleSelectDescription = "Exactly one of the listed option names."
	multiSelectDescription  = "One of the listed option names; the array may hold several distinct choices."
)

// FieldSchemaFragment returns the JSON Schema for a field's value, or nil when
// the field type cannot be represented.
func FieldSchemaFragment(f FieldSchema) *SchemaFragment {
	switch f.Type {
	case FieldTypeText, FieldTypeSingleText, FieldTypeEmail, FieldTypeURL, FieldTypePhone:
		return &SchemaFragment{Type: "string"}
	case FieldTypeCheckbox:
		return &SchemaFragment{Type: "boolean"}
	case FieldTypeNumber, FieldTypeCurrency, FieldTypePercent:
		return &SchemaFragment{Type: "number"}
	case FieldTypeRating:
		frag := &SchemaFragment{Type: "integer"}
		if f.Property != nil && f.Property.Max != nil {
			frag.Description = fmt.Sprintf("Rating from 0 to %d, as a whole number.", *f.Property.Max)
		}
		return frag
	case FieldTypeDateTime:
		return &SchemaFragment{Type: "string", Description: dateTimeDescription}
	case FieldTypeSingleSelect:
		return &SchemaFragment{Type: "string", Enum: f.optionNames(), Description: singleSelectDescription}
	case FieldTypeMultiSelect:
		if f.Property == nil || f.Property.Options == nil {
			return nil
		}
		return &SchemaFragment{
			Type: "array",
			Items: &SchemaFragment{
				Type:        "string",
				Enum:        f.optionNames(),
				Description: multiSelectDescription,
			},
		}
	case FieldTypeAttachment:
		return attachmentFragment()
	case FieldTypeUnsupported:
		return nil
	}
	return nil
}

func attachmentFragment() *SchemaFragment {
	props := orderedmap.New[string, *SchemaFragment]()
	props.Set("token", &SchemaFragment{Type: "string"})
	props.Set("name", &SchemaFragment{Type: "string"})
	props.Set("mimeType", &SchemaFragment{Type: "string"})
	props.Set("url", &SchemaFragment{Type: "string"})
	props.Set("size", &SchemaFragment{Type: "number"})
	props.Set("height", &SchemaFragment{Type: "number"})
	props.Set("width", &SchemaFragment{Type: "number"})
	return &SchemaFragment{
		Type: "array",
		Items: &SchemaFragment{
			Type:       "object",
			Properties: props,
			Required:   []string{"token", "name", "mimeType", "url", "size"},
		},
	}
}

// BuildFieldsJSONSchema describes the supported fields of a datasheet as a
// strict object schema. Unsupported fields are absent from both properties
// and required.
func BuildFieldsJSONSchema(fields []FieldSchema) FieldsJSONSchema {
	root := ObjectSchema{
		Type:       "object",
		Properties: orderedmap.New[string, *SchemaFragment](),
		Required:   []string{},
	}
	for _, f := range fields {
		frag := FieldSchemaFragment(f)
		if frag == nil {
			continue
		}
		root.Properties.Set(f.Name, frag)
		root.Required = append(root.Required, f.Name)
	}
	return FieldsJSONSchema{Name: "fields_in_datasheet", Strict: true, Schema: root}
}

// FetchFieldsSchema lists the fields of a datasheet.
func (c *Client) FetchFieldsSchema(ctx context.Context, nodeID string) ([]FieldSchema, error) {
	if nodeID == "" {
		return nil, &ValidationError{Message: "node_id is required"}
	}
	var out struct {
		Fields []FieldSchema `json:"fields"`
	}
	if err := c.get(ctx, "/v1/datasheets/"+url.PathEscape(nodeID)+"/fields", &out); err != nil {
		return nil, err
	}
	return out.Fields, nil
}
