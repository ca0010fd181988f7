package model

// Document is one stored record. The identifier lives under IDField.
type Document = map[string]any

const (
	IDField      = "_id"
	VersionField = "__v"
)

// Field types accepted in schema files.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeID      = "id"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Model describes one resource collection as loaded from schemas/<name>.yml.
type Model struct {
	Name       string                    `yaml:"-"` // file name, same as Collection unless overridden
	Collection string                    `yaml:"collection"`
	Resource   string                    `yaml:"resource"` // singular, used in messages
	Fields     map[string]*Field         `yaml:"fields"`
	Relations  map[string]*ModelRelation `yaml:"relations"`
	Parent     *ParentBinding            `yaml:"parent"`
	Populate   []PopulateSpec            `yaml:"populate"`
	Scope      map[string]map[string]any `yaml:"scope"` // filter applied to every find, e.g. active: {ne: false}
}

// Field is one schema attribute with its validation rules.
type Field struct {
	Type      string   `yaml:"type"`
	Items     string   `yaml:"items"`    // element type for arrays
	Required  string   `yaml:"required"` // message; empty means optional
	Default   any      `yaml:"default"`  // literal, or "now" for dates
	Unique    bool     `yaml:"unique"`
	Hidden    bool     `yaml:"hidden"` // never serialized to clients
	Readonly  bool     `yaml:"readonly"`
	Enum      []string `yaml:"enum"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	MinLength int      `yaml:"minlength"`
	MaxLength int      `yaml:"maxlength"`
	Lowercase bool     `yaml:"lowercase"`
	Trim      bool     `yaml:"trim"`
	Email     bool     `yaml:"email"`
	Ref       string   `yaml:"ref"` // collection referenced by an id field

	name string
}

// ModelRelation links a model to another collection for reference expansion.
type ModelRelation struct {
	Type   string   `yaml:"type"`   // belongs_to, has_many
	Model  string   `yaml:"model"`  // target model name
	FK     string   `yaml:"fk"`     // belongs_to: field here; has_many: field in target
	Select []string `yaml:"select"` // projection applied to related documents

	_ModelRef *Model `yaml:"-"`
}

// ParentBinding ties a nested route parameter to a reference field,
// e.g. reviews listed under /tours/{tourId}/reviews.
type ParentBinding struct {
	Param string `yaml:"param"`
	Field string `yaml:"field"`
}

// PopulateSpec asks for one relation to be expanded in responses.
type PopulateSpec struct {
	Path   string   `yaml:"path"`
	Select []string `yaml:"select"`
}

func (m *Model) GetRelation(name string) *ModelRelation {
	if m == nil || m.Relations == nil {
		return nil
	}
	return m.Relations[name]
}

// GetModelRef returns the linked target model (set by LinkModelRelations).
func (r *ModelRelation) GetModelRef() *Model {
	return r._ModelRef
}

func (r *ModelRelation) SetModelRef(model *Model) {
	r._ModelRef = model
}

// Name returns the field's key in the schema.
func (f *Field) Name() string {
	return f.name
}

// UniqueFields lists fields carrying a unique constraint, in schema order
// of their names.
func (m *Model) UniqueFields() []string {
	var out []string
	for _, name := range m.FieldNames() {
		if m.Fields[name].Unique {
			out = append(out, name)
		}
	}
	return out
}

// HasField reports whether name is the id or a declared field.
func (m *Model) HasField(name string) bool {
	if name == IDField || name == VersionField {
		return true
	}
	_, ok := m.Fields[name]
	return ok
}

// FieldType returns the declared type, "id" for the identifier and ""
// for unknown names.
func (m *Model) FieldType(name string) string {
	if name == IDField {
		return TypeID
	}
	if name == VersionField {
		return TypeInteger
	}
	if f, ok := m.Fields[name]; ok {
		return f.Type
	}
	return ""
}
