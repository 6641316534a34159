package quarry

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// NamingStrategy derives default physical names from logical model names.
type NamingStrategy struct {
	TablePrefix   string
	SingularTable bool
}

// DefaultNaming is the naming used when model metadata does not override it.
var DefaultNaming = NamingStrategy{}

// TableName derives the physical table name for a model name.
func (ns NamingStrategy) TableName(name string) string {
	if ns.SingularTable {
		return ns.TablePrefix + toDBName(name)
	}
	return ns.TablePrefix + inflection.Plural(toDBName(name))
}

// ColumnName derives the physical column name for a field name.
func (ns NamingStrategy) ColumnName(name string) string {
	return toDBName(name)
}

// ForeignKeyField derives the foreign key field name for a direct relation.
func (ns NamingStrategy) ForeignKeyField(relation string) string {
	return toDBName(relation) + "_id"
}

// toDBName converts a camelCase name to snake_case.
func toDBName(name string) string {
	if name == "" {
		return ""
	}

	var (
		buf      strings.Builder
		lastCase bool
	)
	for i, r := range name {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			if i > 0 && !lastCase {
				buf.WriteByte('_')
			}
			buf.WriteRune(r + 32)
		} else {
			buf.WriteRune(r)
		}
		lastCase = upper
	}
	return buf.String()
}
