package convert

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type color string

type address struct {
	Street string `json:"street" msgpack:"street"`
	Number int    `json:"number" msgpack:"number"`
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry(&Env{UTC: true})
	now := time.Date(2024, 5, 17, 10, 30, 0, 123000000, time.UTC)

	values := []any{
		"hello",
		"",
		color("red"),
		true,
		false,
		int8(-8),
		int16(1600),
		int32(-320000),
		int64(1 << 40),
		7,
		uint8(255),
		uint16(65535),
		uint32(4000000000),
		uint64(18446744073709551615),
		float32(1.25),
		3.14159,
		now,
		90 * time.Second,
		[]byte{0, 1, 2, 250},
		uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		address{Street: "Main", Number: 12},
		map[string]int{"a": 1},
		[]string{"x", "y"},
	}

	for _, v := range values {
		typ := reflect.TypeOf(v)
		t.Run(typ.String(), func(t *testing.T) {
			db, err := reg.ToDB(typ, v)
			require.NoError(t, err)
			back, err := reg.FromDB(typ, db)
			require.NoError(t, err)
			assert.Equal(t, v, back)
		})
	}
}

func TestRegistryDecimalRoundTrip(t *testing.T) {
	reg := NewRegistry(nil)
	d := decimal.RequireFromString("1234.5678")
	db, err := reg.ToDB(decimalType, d)
	require.NoError(t, err)
	assert.Equal(t, "1234.5678", db)
	back, err := reg.FromDB(decimalType, db)
	require.NoError(t, err)
	assert.True(t, d.Equal(back.(decimal.Decimal)))
}

func TestRegistryNull(t *testing.T) {
	reg := NewRegistry(nil)
	types := []reflect.Type{
		reflect.TypeFor[string](),
		reflect.TypeFor[*int](),
		reflect.TypeFor[time.Time](),
		reflect.TypeFor[uuid.UUID](),
		reflect.TypeFor[address](),
		decimalType,
	}
	for _, typ := range types {
		t.Run(typ.String(), func(t *testing.T) {
			db, err := reg.ToDB(typ, nil)
			require.NoError(t, err)
			assert.Nil(t, db)
			back, err := reg.FromDB(typ, nil)
			require.NoError(t, err)
			assert.Nil(t, back)
		})
	}

	var p *int
	db, err := reg.ToDB(reflect.TypeFor[*int](), p)
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestRegistryPointer(t *testing.T) {
	reg := NewRegistry(nil)
	n := 42
	db, err := reg.ToDB(reflect.TypeFor[*int](), &n)
	require.NoError(t, err)
	assert.Equal(t, int64(42), db)

	back, err := reg.FromDB(reflect.TypeFor[*int](), int64(42))
	require.NoError(t, err)
	require.IsType(t, &n, back)
	assert.Equal(t, 42, *back.(*int))
}

func TestRegistryNullTypes(t *testing.T) {
	reg := NewRegistry(nil)
	typ := reflect.TypeFor[sql.NullString]()

	db, err := reg.ToDB(typ, sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, db)

	back, err := reg.FromDB(typ, nil)
	require.NoError(t, err)
	assert.Equal(t, sql.NullString{}, back)

	back, err = reg.FromDB(typ, "x")
	require.NoError(t, err)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, back)
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(nil)
	assert.IsType(t, &StringConverter{}, reg.Lookup(reflect.TypeFor[color]()))
	assert.IsType(t, &IntConverter{}, reg.Lookup(reflect.TypeFor[level]()))
	assert.IsType(t, &IntConverter{}, reg.Lookup(reflect.TypeFor[*int64]()))
	assert.IsType(t, &TimeConverter{}, reg.Lookup(reflect.TypeFor[*time.Time]()))
	assert.IsType(t, &ValuerConverter{}, reg.Lookup(reflect.TypeFor[sql.NullInt64]()))
	assert.IsType(t, &SerializedConverter{}, reg.Lookup(reflect.TypeFor[address]()))

	custom := &StringConverter{Column: ColumnType{Name: "CITEXT"}}
	Register[color](reg, custom)
	assert.Same(t, custom, reg.Lookup(reflect.TypeFor[color]()))
}

func TestRegistryQuote(t *testing.T) {
	reg := NewRegistry(nil)
	tests := []struct {
		value any
		want  string
	}{
		{"O'Brien", "'O''Brien'"},
		{true, "TRUE"},
		{int16(-3), "-3"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{1.5, "1.5"},
		{[]byte{0xde, 0xad}, "X'dead'"},
		{decimal.RequireFromString("10.25"), "10.25"},
		{nil, "NULL"},
	}
	for _, tt := range tests {
		typ := reflect.TypeFor[string]()
		if tt.value != nil {
			typ = reflect.TypeOf(tt.value)
		}
		assert.Equal(t, tt.want, reg.Quote(tt.value, typ))
	}
}

func TestRegistryParam(t *testing.T) {
	reg := NewRegistry(nil)
	p, err := reg.Param("name", reflect.TypeFor[string](), "abc")
	require.NoError(t, err)
	assert.Equal(t, DbTypeString, p.DbType)
	assert.Equal(t, 3, p.Size)
	assert.Equal(t, "abc", p.Arg(false))

	p, err = reg.Param("n", reflect.TypeFor[int16](), int16(4))
	require.NoError(t, err)
	assert.Equal(t, DbTypeInt16, p.DbType)
	assert.Equal(t, sql.Named("n", int64(4)), p.Arg(true))
}

func TestEnumConverter(t *testing.T) {
	reg := NewRegistry(nil)

	type grade rune
	char := reg.Enum(EnumChar)
	db, err := char.ToDBValue(reflect.TypeFor[grade](), grade('A'))
	require.NoError(t, err)
	assert.Equal(t, "A", db)
	back, err := char.FromDBValue(reflect.TypeFor[grade](), []byte("A"))
	require.NoError(t, err)
	assert.Equal(t, grade('A'), back)

	asInt := reg.Enum(EnumInt)
	db, err = asInt.ToDBValue(reflect.TypeFor[level](), level(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), db)
	back, err = asInt.FromDBValue(reflect.TypeFor[level](), int64(2))
	require.NoError(t, err)
	assert.Equal(t, level(2), back)

	asString := reg.Enum(EnumString)
	back, err = asString.FromDBValue(reflect.TypeFor[color](), "blue")
	require.NoError(t, err)
	assert.Equal(t, color("blue"), back)

	_, err = char.ToDBValue(reflect.TypeFor[color](), color("long"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestMsgpackFallback(t *testing.T) {
	reg := NewRegistry(&Env{Serializer: MsgpackSerializer{}})
	v := address{Street: "Side", Number: 3}
	db, err := reg.ToDB(reflect.TypeOf(v), v)
	require.NoError(t, err)
	require.IsType(t, []byte{}, db)
	back, err := reg.FromDB(reflect.TypeOf(v), db)
	require.NoError(t, err)
	assert.Equal(t, v, back)
}

func TestColumnDefinition(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Equal(t, "VARCHAR(255)", reg.Lookup(reflect.TypeFor[string]()).ColumnDefinition(ColumnSpec{}))
	assert.Equal(t, "VARCHAR(40)", reg.Lookup(reflect.TypeFor[string]()).ColumnDefinition(ColumnSpec{Length: 40}))
	assert.Equal(t, "DECIMAL(10,2)", reg.Lookup(decimalType).ColumnDefinition(ColumnSpec{Precision: 10, Scale: 2}))
	assert.Equal(t, "BIGINT", reg.Lookup(reflect.TypeFor[int]()).ColumnDefinition(ColumnSpec{}))
}
