package quarry

// FieldKind enumerates the storage kinds a field descriptor can declare.
// Backends key their value coercion overrides on it.
type FieldKind int

const (
	IntField FieldKind = iota + 1
	FloatField
	DecimalField
	BoolField
	TextField
	DatetimeField
)

// Field describes one declared model field.
type Field struct {
	// Name is the logical field name, Column the physical column name.
	Name   string
	Column string
	Kind   FieldKind
	// Generated fields (the primary key) are assigned by the database and
	// excluded from insert and update projections.
	Generated bool
	Nullable  bool
	// DecimalPlaces is the declared scale for DecimalField values.
	DecimalPlaces int
	// AutoNow stamps the field on every write, AutoNowAdd only when unset.
	AutoNow    bool
	AutoNowAdd bool
	// ToDB, when set, replaces the default serialization for this field.
	ToDB CoerceFunc
}

// RelationKind is the closed set of relationship shapes, fixed when the
// model metadata is built.
type RelationKind int

const (
	// DirectRelation means this table owns the foreign key.
	DirectRelation RelationKind = iota + 1
	// ReverseRelation means the related table owns a foreign key back.
	ReverseRelation
	// ManyToManyRelation means a through table owns both keys.
	ManyToManyRelation
)

// Relation describes one declared relation field.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target *Meta

	// SourceField is the foreign key field on this model for direct
	// relations. Defaults to "<name>_id".
	SourceField string
	// RelationField is the foreign key field on the related model for
	// reverse relations.
	RelationField string

	// Through, BackwardKey and ForwardKey describe the intermediary table
	// for many-to-many relations.
	Through     string
	BackwardKey string
	ForwardKey  string
}

// Meta is the already-resolved metadata for one model type. It is built once
// by the model layer and shared, immutable, by every instance and executor.
type Meta struct {
	Table string

	fields     map[string]*Field
	fieldOrder []string
	columns    map[string]string // logical name -> physical column
	byColumn   map[string]string // physical column -> logical name
	relations  map[string]*Relation
}

// NewMeta builds model metadata. Field order is preserved: the insert plan
// and select projections render columns in declaration order.
func NewMeta(table string, fields []*Field, relations []*Relation) *Meta {
	m := &Meta{
		Table:     table,
		fields:    make(map[string]*Field, len(fields)),
		columns:   make(map[string]string, len(fields)),
		byColumn:  make(map[string]string, len(fields)),
		relations: make(map[string]*Relation, len(relations)),
	}
	for _, f := range fields {
		if f.Column == "" {
			f.Column = f.Name
		}
		m.fields[f.Name] = f
		m.fieldOrder = append(m.fieldOrder, f.Name)
		m.columns[f.Name] = f.Column
		m.byColumn[f.Column] = f.Name
	}
	for _, r := range relations {
		if r.Kind == DirectRelation && r.SourceField == "" {
			r.SourceField = r.Name + "_id"
		}
		m.relations[r.Name] = r
	}
	return m
}

// Field returns the descriptor for a logical field name.
func (m *Meta) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// FieldNames returns all logical field names in declaration order.
func (m *Meta) FieldNames() []string {
	names := make([]string, len(m.fieldOrder))
	copy(names, m.fieldOrder)
	return names
}

// Columns returns the physical columns in declaration order.
func (m *Meta) ColumnNames() []string {
	cols := make([]string, 0, len(m.fieldOrder))
	for _, name := range m.fieldOrder {
		cols = append(cols, m.columns[name])
	}
	return cols
}

// Column maps a logical field name to its physical column.
func (m *Meta) Column(name string) (string, bool) {
	c, ok := m.columns[name]
	return c, ok
}

// Relation returns the descriptor for a declared relation field.
func (m *Meta) Relation(name string) (*Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// InsertableFields returns the non generated logical fields and their
// physical columns, both in declaration order.
func (m *Meta) InsertableFields() (fields []string, columns []string) {
	for _, name := range m.fieldOrder {
		if m.fields[name].Generated {
			continue
		}
		fields = append(fields, name)
		columns = append(columns, m.columns[name])
	}
	return fields, columns
}

// Instance is one live model object: field values keyed by logical name,
// plus any computed columns copied through on select and any relation
// attachments populated by prefetch.
type Instance struct {
	meta    *Meta
	values  map[string]interface{}
	custom  map[string]interface{}
	related map[string]interface{}
}

// NewInstance builds an instance from logical field values.
func NewInstance(meta *Meta, values map[string]interface{}) *Instance {
	inst := &Instance{meta: meta, values: make(map[string]interface{}, len(values))}
	for k, v := range values {
		inst.values[k] = v
	}
	return inst
}

// FromRow constructs an instance from a row mapping of physical columns to
// dialect-decoded values. Columns without a declared field are ignored; the
// caller copies custom fields through separately.
func (m *Meta) FromRow(row Row) *Instance {
	inst := &Instance{meta: m, values: make(map[string]interface{}, len(row))}
	for column, value := range row {
		if name, ok := m.byColumn[column]; ok {
			inst.values[name] = value
		}
	}
	return inst
}

// Meta returns the shared model metadata.
func (i *Instance) Meta() *Meta { return i.meta }

// Get returns the value of a logical field.
func (i *Instance) Get(name string) interface{} { return i.values[name] }

// Set assigns the value of a logical field.
func (i *Instance) Set(name string, value interface{}) { i.values[name] = value }

// ID returns the primary key value, if assigned.
func (i *Instance) ID() (int64, bool) {
	return asInt64(i.values["id"])
}

// SetID assigns the generated primary key after insert.
func (i *Instance) SetID(id int64) { i.values["id"] = id }

// Custom returns a computed column copied through on select.
func (i *Instance) Custom(name string) interface{} {
	return i.custom[name]
}

func (i *Instance) setCustom(name string, value interface{}) {
	if i.custom == nil {
		i.custom = map[string]interface{}{}
	}
	i.custom[name] = value
}

// Related returns the prefetched value for a relation field: a *Instance
// (or nil) for direct relations, a []*Instance for reverse and many-to-many.
func (i *Instance) Related(name string) interface{} {
	return i.related[name]
}

// SetRelated attaches a prefetched relation value.
func (i *Instance) SetRelated(name string, value interface{}) {
	if i.related == nil {
		i.related = map[string]interface{}{}
	}
	i.related[name] = value
}

// asInt64 normalizes the integer shapes drivers hand back for key columns.
func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
