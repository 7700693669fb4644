package convert

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StringConverter maps string kinds, including named string types.
type StringConverter struct {
	Base
	Column ColumnType
}

func (c *StringConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *StringConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *StringConverter) InitParameter(p *Parameter, _ reflect.Type) {
	p.DbType = DbTypeString
	if s, ok := p.Value.(string); ok {
		p.Size = len(s)
	}
}

func (c *StringConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	if s, ok := asText(value); ok {
		return s, nil
	}
	if s, ok := value.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return fmt.Sprint(value), nil
}

func (c *StringConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	s, ok := asText(value)
	if !ok {
		s = fmt.Sprint(value)
	}
	return castTo(s, t)
}

func (c *StringConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// BoolConverter maps bool. Dialects without a boolean type set AsInt.
type BoolConverter struct {
	Base
	Column ColumnType
	AsInt  bool
}

func (c *BoolConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *BoolConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *BoolConverter) InitParameter(p *Parameter, _ reflect.Type) { p.DbType = DbTypeBoolean }

func (c *BoolConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Bool {
		return nil, fmt.Errorf("%w: %T is not a bool", ErrUnsupported, value)
	}
	if c.AsInt {
		if rv.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return rv.Bool(), nil
}

func (c *BoolConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	var b bool
	switch v := value.(type) {
	case bool:
		b = v
	default:
		if s, ok := asText(value); ok {
			parsed, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a bool", ErrUnsupported, s)
			}
			b = parsed
			break
		}
		n, err := ConvertNumber(value, reflect.TypeFor[int64]())
		if err != nil {
			return nil, err
		}
		b = n.(int64) != 0
	}
	return castTo(b, t)
}

func (c *BoolConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// IntConverter maps every signed integer width.
type IntConverter struct {
	Base
	Column ColumnType
}

func (c *IntConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *IntConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *IntConverter) InitParameter(p *Parameter, t reflect.Type) {
	switch bitsOf(t) {
	case 8:
		p.DbType = DbTypeByte
	case 16:
		p.DbType = DbTypeInt16
	case 32:
		p.DbType = DbTypeInt32
	default:
		p.DbType = DbTypeInt64
	}
}

func (c *IntConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	return ConvertNumber(value, reflect.TypeFor[int64]())
}

func (c *IntConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	return ConvertNumber(value, t)
}

func (c *IntConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// UintConverter maps unsigned integers. Values beyond int64 are bound as
// decimal text since database/sql rejects uint64 with the high bit set.
type UintConverter struct {
	Base
	Column ColumnType
}

func (c *UintConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *UintConverter) QuoteValue(value any, t reflect.Type) string {
	if isNil(value) {
		return c.Env().Null
	}
	u, err := ConvertNumber(value, reflect.TypeFor[uint64]())
	if err != nil {
		return quoteVia(c, c.Env(), value, t)
	}
	return strconv.FormatUint(u.(uint64), 10)
}

func (c *UintConverter) InitParameter(p *Parameter, t reflect.Type) {
	switch bitsOf(t) {
	case 8:
		p.DbType = DbTypeByte
	case 16:
		p.DbType = DbTypeUInt16
	case 32:
		p.DbType = DbTypeUInt32
	default:
		p.DbType = DbTypeUInt64
	}
}

func (c *UintConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	v, err := ConvertNumber(value, reflect.TypeFor[uint64]())
	if err != nil {
		return nil, err
	}
	u := v.(uint64)
	if u > math.MaxInt64 {
		return strconv.FormatUint(u, 10), nil
	}
	return int64(u), nil
}

func (c *UintConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	return ConvertNumber(value, t)
}

func (c *UintConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// FloatConverter maps float32 and float64.
type FloatConverter struct {
	Base
	Column ColumnType
}

func (c *FloatConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *FloatConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *FloatConverter) InitParameter(p *Parameter, t reflect.Type) {
	if bitsOf(t) == 32 {
		p.DbType = DbTypeSingle
		return
	}
	p.DbType = DbTypeDouble
}

func (c *FloatConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	return ConvertNumber(value, reflect.TypeFor[float64]())
}

func (c *FloatConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	return ConvertNumber(value, t)
}

func (c *FloatConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// DecimalConverter maps shopspring decimal.Decimal as exact text.
type DecimalConverter struct {
	Base
	Column ColumnType
}

func (c *DecimalConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *DecimalConverter) QuoteValue(value any, _ reflect.Type) string {
	if isNil(value) {
		return c.Env().Null
	}
	d, err := ConvertNumber(value, decimalType)
	if err != nil {
		return c.quoteString(fmt.Sprint(value))
	}
	return d.(decimal.Decimal).String()
}

func (c *DecimalConverter) InitParameter(p *Parameter, _ reflect.Type) { p.DbType = DbTypeDecimal }

func (c *DecimalConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	d, err := ConvertNumber(value, decimalType)
	if err != nil {
		return nil, err
	}
	return d.(decimal.Decimal).String(), nil
}

func (c *DecimalConverter) FromDBValue(_ reflect.Type, value any) (any, error) {
	return ConvertNumber(value, decimalType)
}

func (c *DecimalConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses the textual timestamp forms drivers commonly return.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a timestamp", ErrUnsupported, s)
}

// TimeConverter maps time.Time.
type TimeConverter struct {
	Base
	Column ColumnType
}

func (c *TimeConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *TimeConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *TimeConverter) InitParameter(p *Parameter, _ reflect.Type) { p.DbType = DbTypeDateTime }

func (c *TimeConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	tm, ok := value.(time.Time)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a time.Time", ErrUnsupported, value)
	}
	if c.Env().UTC {
		tm = tm.UTC()
	}
	return tm, nil
}

func (c *TimeConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	var tm time.Time
	switch v := value.(type) {
	case time.Time:
		tm = v
	case int64:
		tm = time.Unix(v, 0)
	default:
		s, ok := asText(value)
		if !ok {
			return nil, fmt.Errorf("%w: %T to time.Time", ErrUnsupported, value)
		}
		parsed, err := ParseTime(s)
		if err != nil {
			return nil, err
		}
		tm = parsed
	}
	if c.Env().UTC {
		tm = tm.UTC()
	}
	return castTo(tm, t)
}

func (c *TimeConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// DurationConverter stores time.Duration as integer nanoseconds.
type DurationConverter struct {
	Base
	Column ColumnType
}

func (c *DurationConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *DurationConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *DurationConverter) InitParameter(p *Parameter, _ reflect.Type) { p.DbType = DbTypeInt64 }

func (c *DurationConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	return ConvertNumber(value, reflect.TypeFor[int64]())
}

func (c *DurationConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	if s, ok := asText(value); ok && !looksNumericText([]byte(s)) {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a duration", ErrUnsupported, s)
		}
		return castTo(d, t)
	}
	return ConvertNumber(value, t)
}

func (c *DurationConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// BytesConverter maps []byte.
type BytesConverter struct {
	Base
	Column ColumnType
}

func (c *BytesConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *BytesConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *BytesConverter) InitParameter(p *Parameter, _ reflect.Type) {
	p.DbType = DbTypeBinary
	if b, ok := p.Value.([]byte); ok {
		p.Size = len(b)
	}
}

func (c *BytesConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("%w: %T is not []byte", ErrUnsupported, value)
}

func (c *BytesConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	switch v := value.(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return castTo(out, t)
	case string:
		return castTo([]byte(v), t)
	}
	return nil, fmt.Errorf("%w: %T to []byte", ErrUnsupported, value)
}

func (c *BytesConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// UUIDConverter maps uuid.UUID, as text unless Binary is set.
type UUIDConverter struct {
	Base
	Column ColumnType
	Binary bool
}

func (c *UUIDConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *UUIDConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *UUIDConverter) InitParameter(p *Parameter, _ reflect.Type) { p.DbType = DbTypeGuid }

func (c *UUIDConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	var id uuid.UUID
	switch v := value.(type) {
	case uuid.UUID:
		id = v
	case [16]byte:
		id = uuid.UUID(v)
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		id = parsed
	default:
		return nil, fmt.Errorf("%w: %T is not a uuid", ErrUnsupported, value)
	}
	if c.Binary {
		return id[:], nil
	}
	return id.String(), nil
}

func (c *UUIDConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	var id uuid.UUID
	switch v := value.(type) {
	case uuid.UUID:
		id = v
	case [16]byte:
		id = uuid.UUID(v)
	case []byte:
		var err error
		if len(v) == 16 {
			id, err = uuid.FromBytes(v)
		} else {
			id, err = uuid.ParseBytes(v)
		}
		if err != nil {
			return nil, err
		}
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		id = parsed
	default:
		return nil, fmt.Errorf("%w: %T to uuid", ErrUnsupported, value)
	}
	return castTo(id, t)
}

func (c *UUIDConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// EnumStorage selects how an enum value is persisted.
type EnumStorage int

const (
	// EnumInt stores the underlying integer.
	EnumInt EnumStorage = iota + 1
	// EnumChar stores a single-character code.
	EnumChar
	// EnumString stores the textual value.
	EnumString
)

// EnumConverter maps named integer or string types.
type EnumConverter struct {
	Base
	Storage EnumStorage
	Column  ColumnType
}

func (c *EnumConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *EnumConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *EnumConverter) InitParameter(p *Parameter, _ reflect.Type) {
	switch c.Storage {
	case EnumInt:
		p.DbType = DbTypeInt64
	case EnumChar:
		p.DbType = DbTypeFixedString
		p.Size = 1
	default:
		p.DbType = DbTypeString
	}
}

func (c *EnumConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	rv := reflect.ValueOf(value)
	switch c.Storage {
	case EnumInt:
		return ConvertNumber(value, reflect.TypeFor[int64]())
	case EnumChar:
		switch {
		case rv.CanInt():
			return string(rune(rv.Int())), nil
		case rv.CanUint():
			return string(rune(rv.Uint())), nil
		case rv.Kind() == reflect.String:
			s := rv.String()
			if utf8.RuneCountInString(s) != 1 {
				return nil, fmt.Errorf("%w: %q is not a single character", ErrUnsupported, s)
			}
			return s, nil
		}
	default:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
		if s, ok := value.(fmt.Stringer); ok {
			return s.String(), nil
		}
	}
	return nil, fmt.Errorf("%w: %T is not an enum", ErrUnsupported, value)
}

func (c *EnumConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	switch c.Storage {
	case EnumChar:
		s, ok := asText(value)
		if !ok {
			return ConvertNumber(value, t)
		}
		r, _ := utf8.DecodeRuneInString(s)
		if t.Kind() == reflect.String {
			return castTo(string(r), t)
		}
		return ConvertNumber(int64(r), t)
	case EnumString:
		if t.Kind() == reflect.String {
			s, ok := asText(value)
			if !ok {
				return nil, fmt.Errorf("%w: %T to %s", ErrUnsupported, value, t)
			}
			return castTo(s, t)
		}
	}
	return ConvertNumber(value, t)
}

func (c *EnumConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// SerializedConverter is the fallback for values with no direct column
// mapping. It round-trips through the environment serializer.
type SerializedConverter struct {
	Base
	Column ColumnType
}

func (c *SerializedConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *SerializedConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *SerializedConverter) InitParameter(p *Parameter, _ reflect.Type) {
	if c.Env().Serializer.Binary() {
		p.DbType = DbTypeBinary
		return
	}
	p.DbType = DbTypeString
}

func (c *SerializedConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	s := c.Env().Serializer
	b, err := s.Marshal(value)
	if err != nil {
		return nil, err
	}
	if s.Binary() {
		return b, nil
	}
	return string(b), nil
}

func (c *SerializedConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return castTo(value, t)
	}
	return c.Env().Serializer.Unmarshal(data, t)
}

func (c *SerializedConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

// ValuerConverter passes through types that implement driver.Valuer and
// sql.Scanner themselves, such as sql.NullString or pq arrays.
type ValuerConverter struct {
	Base
	Column ColumnType
}

func (c *ValuerConverter) ColumnDefinition(spec ColumnSpec) string { return c.Column.Render(spec) }

func (c *ValuerConverter) QuoteValue(value any, t reflect.Type) string {
	return quoteVia(c, c.Env(), value, t)
}

func (c *ValuerConverter) InitParameter(p *Parameter, _ reflect.Type) { p.DbType = DbTypeObject }

func (c *ValuerConverter) ToDBValue(_ reflect.Type, value any) (any, error) {
	return unwrapValuer(value)
}

func (c *ValuerConverter) FromDBValue(t reflect.Type, value any) (any, error) {
	if !reflect.PointerTo(t).Implements(scannerType) {
		if value == nil {
			return nil, nil
		}
		return castTo(value, t)
	}
	ptr := reflect.New(t)
	if err := ptr.Interface().(interface{ Scan(any) error }).Scan(value); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

func (c *ValuerConverter) GetValue(row RowReader, column int, t reflect.Type) (any, error) {
	return readValue(c, row, column, t)
}

func bitsOf(t reflect.Type) int {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Int, reflect.Uint, reflect.Uintptr:
		return t.Bits()
	}
	return 64
}
