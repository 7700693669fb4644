package dialect

import (
	"fmt"
	"strings"

	"github.com/uptrace/bun/dialect/feature"

	"github.com/fernandezvara/ormkit/convert"
	"github.com/fernandezvara/ormkit/meta"
)

// ColumnDefinition renders one column of CREATE TABLE.
func (b *Base) ColumnDefinition(f *meta.FieldDefinition) string {
	var sb strings.Builder
	sb.WriteString(b.QuoteColumn(f))
	sb.WriteByte(' ')

	colType := f.CustomFieldDefinition
	if colType == "" {
		colType = b.FieldConverter(f).ColumnDefinition(convert.ColumnSpec{
			Length:    f.FieldLength,
			Precision: precisionOf(f),
			Scale:     f.Scale,
		})
	}

	if f.AutoIncrement && b.opts.AutoIncrement != nil {
		sb.WriteString(b.opts.AutoIncrement(colType))
		return sb.String()
	}
	sb.WriteString(colType)

	if f.IsComputed && f.ComputeExpression != "" {
		sb.WriteByte(' ')
		sb.WriteString(b.opts.Computed(b.ExpandVariables(f.ComputeExpression), f.IsPersisted))
		return sb.String()
	}
	if f.IsPrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	} else if !f.IsNullable {
		sb.WriteString(" NOT NULL")
	}
	if f.IsUnique && !f.IsPrimaryKey {
		sb.WriteString(" UNIQUE")
	}
	if f.DefaultValue != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(b.ExpandVariables(f.DefaultValue))
	}
	if f.CheckConstraint != "" {
		sb.WriteString(" CHECK (")
		sb.WriteString(f.CheckConstraint)
		sb.WriteByte(')')
	}
	return sb.String()
}

func precisionOf(f *meta.FieldDefinition) int {
	if f.Scale > 0 && f.FieldLength > 0 {
		return f.FieldLength
	}
	return 0
}

// CreateTableSQL renders CREATE TABLE for def, including foreign keys and
// unique constraints. Computed columns with an expression are included.
func (b *Base) CreateTableSQL(def *meta.ModelDefinition, ifNotExists bool) (string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if ifNotExists && (b.opts.Bun == nil || b.HasFeature(feature.TableNotExists)) {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(b.QuoteTable(def))
	sb.WriteString(" (")

	var parts []string
	for _, f := range def.Fields {
		parts = append(parts, b.ColumnDefinition(f))
	}
	for _, f := range def.IgnoredFields {
		if f.IsComputed && f.ComputeExpression != "" {
			parts = append(parts, b.ColumnDefinition(f))
		}
	}
	for _, f := range def.Fields {
		if f.ForeignKey == nil {
			continue
		}
		refModel, refField, err := f.FieldReference.Resolve()
		if err != nil {
			return "", fmt.Errorf("dialect: foreign key %s.%s: %w", def.Name, f.Name, err)
		}
		fk := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			b.QuoteName(f.ForeignKey.Name), b.QuoteColumn(f), b.QuoteTable(refModel), b.QuoteColumn(refField))
		if f.ForeignKey.OnDelete != "" {
			fk += " ON DELETE " + f.ForeignKey.OnDelete
		}
		if f.ForeignKey.OnUpdate != "" {
			fk += " ON UPDATE " + f.ForeignKey.OnUpdate
		}
		parts = append(parts, fk)
	}
	for _, uc := range def.UniqueConstraints {
		cols, err := b.columnList(def, uc.Fields)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", b.QuoteName(uc.Name), cols))
	}

	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteString(")")
	return sb.String(), nil
}

func (b *Base) columnList(def *meta.ModelDefinition, fields []string) (string, error) {
	cols := make([]string, len(fields))
	for i, name := range fields {
		f, err := def.Field(name)
		if err != nil {
			return "", err
		}
		cols[i] = b.QuoteColumn(f)
	}
	return strings.Join(cols, ", "), nil
}

func (b *Base) DropTableSQL(def *meta.ModelDefinition) string {
	return "DROP TABLE IF EXISTS " + b.QuoteTable(def)
}

// CreateIndexSQL renders one statement per indexed field and per composite index.
func (b *Base) CreateIndexSQL(def *meta.ModelDefinition) []string {
	var stmts []string
	ns := b.Naming()
	for _, f := range def.Fields {
		if !f.IsIndexed || f.IsPrimaryKey {
			continue
		}
		kind := "INDEX"
		prefix := "idx"
		if f.IsUnique {
			kind, prefix = "UNIQUE INDEX", "uidx"
		}
		name := ns.ApplyNameRestrictions(prefix + "_" + def.TableName + "_" + f.ColumnName)
		stmts = append(stmts, fmt.Sprintf("CREATE %s %s ON %s (%s)",
			kind, b.QuoteName(name), b.QuoteTable(def), b.QuoteColumn(f)))
	}
	for _, idx := range def.CompositeIndexes {
		cols, err := b.columnList(def, idx.Fields)
		if err != nil {
			continue
		}
		kind := "INDEX"
		if idx.Unique {
			kind = "UNIQUE INDEX"
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %s %s ON %s (%s)",
			kind, b.QuoteName(idx.Name), b.QuoteTable(def), cols))
	}
	return stmts
}

// SelectColumns renders the select list, honouring custom select expressions.
func (b *Base) SelectColumns(def *meta.ModelDefinition) string {
	cols := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		if f.CustomSelect != "" {
			cols[i] = b.ExpandVariables(f.CustomSelect) + " AS " + b.QuoteColumn(f)
			continue
		}
		cols[i] = b.QuoteColumn(f)
	}
	return strings.Join(cols, ", ")
}

// InsertSQL renders a single-row INSERT and returns the fields bound to its
// placeholders, in order. Auto-increment keys are left to the database and
// returned through RETURNING where supported.
func (b *Base) InsertSQL(def *meta.ModelDefinition) (string, []*meta.FieldDefinition) {
	var (
		cols   []string
		values []string
		fields []*meta.FieldDefinition
	)
	for _, f := range def.Fields {
		if f.AutoIncrement {
			continue
		}
		fields = append(fields, f)
		ph := b.Placeholder(len(fields))
		if f.CustomInsert != "" {
			ph = strings.ReplaceAll(b.ExpandVariables(f.CustomInsert), "{0}", ph)
		}
		cols = append(cols, b.QuoteColumn(f))
		values = append(values, ph)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.QuoteTable(def), strings.Join(cols, ", "), strings.Join(values, ", "))
	if pk := def.PrimaryKey(); pk.AutoIncrement && b.HasFeature(feature.InsertReturning) {
		query += " RETURNING " + b.QuoteColumn(pk)
	}
	return query, fields
}

// UpdateByPKSQL renders an UPDATE of every non-key field, keyed by the
// primary key, which is the last bound field.
func (b *Base) UpdateByPKSQL(def *meta.ModelDefinition) (string, []*meta.FieldDefinition) {
	pk := def.PrimaryKey()
	var (
		sets   []string
		fields []*meta.FieldDefinition
	)
	for _, f := range def.Fields {
		if f == pk || f.AutoIncrement {
			continue
		}
		fields = append(fields, f)
		ph := b.Placeholder(len(fields))
		if f.CustomUpdate != "" {
			ph = strings.ReplaceAll(b.ExpandVariables(f.CustomUpdate), "{0}", ph)
		}
		sets = append(sets, b.QuoteColumn(f)+" = "+ph)
	}
	fields = append(fields, pk)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		b.QuoteTable(def), strings.Join(sets, ", "), b.QuoteColumn(pk), b.Placeholder(len(fields)))
	return query, fields
}

func (b *Base) DeleteByPKSQL(def *meta.ModelDefinition) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		b.QuoteTable(def), b.QuoteColumn(def.PrimaryKey()), b.Placeholder(1))
}

func (b *Base) SelectByPKSQL(def *meta.ModelDefinition) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		b.SelectColumns(def), b.QuoteTable(def), b.QuoteColumn(def.PrimaryKey()), b.Placeholder(1))
}

// BindNamed rewrites ParamName tokens in query into positional placeholders
// and returns the matching arguments. Tokens inside quoted literals are left
// alone. A token with no argument is an error.
func (b *Base) BindNamed(query string, args map[string]any) (string, []any, error) {
	prefix := b.opts.ParamPrefix
	var (
		sb    strings.Builder
		out   []any
		quote byte
	)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			sb.WriteByte(c)
			continue
		case c == '\'' || c == '"' || c == '`':
			quote = c
			sb.WriteByte(c)
			continue
		}
		if !strings.HasPrefix(query[i:], prefix) {
			sb.WriteByte(c)
			continue
		}
		if strings.HasPrefix(query[i+len(prefix):], prefix) {
			// doubled prefix is a server variable such as @@version
			sb.WriteString(prefix + prefix)
			i += 2*len(prefix) - 1
			continue
		}
		j := i + len(prefix)
		for j < len(query) && isIdentByte(query[j]) {
			j++
		}
		if j == i+len(prefix) {
			sb.WriteByte(c)
			continue
		}
		name := query[i+len(prefix) : j]
		v, ok := args[name]
		if !ok {
			return "", nil, fmt.Errorf("dialect: no value for parameter %s%s", prefix, name)
		}
		out = append(out, v)
		sb.WriteString(b.Placeholder(len(out)))
		i = j - 1
	}
	return sb.String(), out, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
