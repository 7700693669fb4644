package convert

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NumericKind classifies numeric destinations.
type NumericKind int

const (
	NotNumeric NumericKind = iota
	NumericSigned
	NumericUnsigned
	NumericFloat
	NumericDecimal
)

var decimalType = reflect.TypeFor[decimal.Decimal]()

// KindOf returns the numeric kind of t, following pointers.
func KindOf(t reflect.Type) NumericKind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == decimalType {
		return NumericDecimal
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumericSigned
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return NumericUnsigned
	case reflect.Float32, reflect.Float64:
		return NumericFloat
	}
	return NotNumeric
}

// IsNumeric reports whether t has a direct numeric mapping.
func IsNumeric(t reflect.Type) bool { return KindOf(t) != NotNumeric }

// number is the normalised form of a numeric source value.
type number struct {
	kind NumericKind
	i    int64
	u    uint64
	f    float64
	d    decimal.Decimal
	raw  []byte
}

func toNumber(value any) (number, error) {
	switch v := value.(type) {
	case int:
		return number{kind: NumericSigned, i: int64(v)}, nil
	case int8:
		return number{kind: NumericSigned, i: int64(v)}, nil
	case int16:
		return number{kind: NumericSigned, i: int64(v)}, nil
	case int32:
		return number{kind: NumericSigned, i: int64(v)}, nil
	case int64:
		return number{kind: NumericSigned, i: v}, nil
	case uint:
		return number{kind: NumericUnsigned, u: uint64(v)}, nil
	case uint8:
		return number{kind: NumericUnsigned, u: uint64(v)}, nil
	case uint16:
		return number{kind: NumericUnsigned, u: uint64(v)}, nil
	case uint32:
		return number{kind: NumericUnsigned, u: uint64(v)}, nil
	case uint64:
		return number{kind: NumericUnsigned, u: v}, nil
	case float32:
		return number{kind: NumericFloat, f: float64(v)}, nil
	case float64:
		return number{kind: NumericFloat, f: v}, nil
	case decimal.Decimal:
		return number{kind: NumericDecimal, d: v}, nil
	case bool:
		if v {
			return number{kind: NumericSigned, i: 1}, nil
		}
		return number{kind: NumericSigned}, nil
	case []byte:
		return number{raw: v}, nil
	case string:
		return parseNumber(v)
	}

	rv := reflect.ValueOf(value)
	switch KindOf(rv.Type()) {
	case NumericSigned:
		return number{kind: NumericSigned, i: rv.Int()}, nil
	case NumericUnsigned:
		return number{kind: NumericUnsigned, u: rv.Uint()}, nil
	case NumericFloat:
		return number{kind: NumericFloat, f: rv.Float()}, nil
	}
	return number{}, fmt.Errorf("%w: %T is not numeric", ErrUnsupported, value)
}

func parseNumber(s string) (number, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return number{kind: NumericSigned, i: i}, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return number{kind: NumericUnsigned, u: u}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return number{}, fmt.Errorf("%w: %q is not a number", ErrUnsupported, s)
	}
	return number{kind: NumericDecimal, d: d}, nil
}

// resolveRaw interprets a byte sequence for the destination kind. Unsigned
// destinations read the bytes as a big-endian integer; others parse them as text.
func (n number) resolveRaw(dest NumericKind) (number, error) {
	if n.raw == nil {
		return n, nil
	}
	if dest == NumericUnsigned && !looksNumericText(n.raw) {
		if len(n.raw) > 8 {
			return number{}, fmt.Errorf("%w: %d bytes overflow uint64", ErrUnsupported, len(n.raw))
		}
		var buf [8]byte
		copy(buf[8-len(n.raw):], n.raw)
		return number{kind: NumericUnsigned, u: binary.BigEndian.Uint64(buf[:])}, nil
	}
	return parseNumber(string(n.raw))
}

func looksNumericText(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for i, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case (c == '-' || c == '+') && i == 0:
		case c == '.' || c == 'e' || c == 'E':
		default:
			return false
		}
	}
	return true
}

// ConvertNumber converts value to the numeric type to using the natural
// widening or narrowing conversion for the destination kind. Narrowing that
// would overflow the destination is an error.
func ConvertNumber(value any, to reflect.Type) (any, error) {
	if value == nil {
		return nil, nil
	}
	dest := KindOf(to)
	if dest == NotNumeric {
		return nil, fmt.Errorf("%w: %s is not numeric", ErrUnsupported, to)
	}
	for to.Kind() == reflect.Pointer {
		to = to.Elem()
	}

	n, err := toNumber(value)
	if err != nil {
		return nil, err
	}
	if n, err = n.resolveRaw(dest); err != nil {
		return nil, err
	}

	switch dest {
	case NumericSigned:
		i, err := n.asInt()
		if err != nil {
			return nil, err
		}
		if bits := to.Bits(); bits < 64 {
			lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
			if i < lo || i > hi {
				return nil, fmt.Errorf("%w: %d overflows %s", ErrUnsupported, i, to)
			}
		}
		return reflect.ValueOf(i).Convert(to).Interface(), nil
	case NumericUnsigned:
		u, err := n.asUint()
		if err != nil {
			return nil, err
		}
		if bits := to.Bits(); bits < 64 && u > uint64(1)<<bits-1 {
			return nil, fmt.Errorf("%w: %d overflows %s", ErrUnsupported, u, to)
		}
		return reflect.ValueOf(u).Convert(to).Interface(), nil
	case NumericFloat:
		f := n.asFloat()
		if to.Kind() == reflect.Float32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: %g overflows %s", ErrUnsupported, f, to)
		}
		return reflect.ValueOf(f).Convert(to).Interface(), nil
	case NumericDecimal:
		return n.asDecimal(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, to)
}

func (n number) asInt() (int64, error) {
	switch n.kind {
	case NumericSigned:
		return n.i, nil
	case NumericUnsigned:
		if n.u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrUnsupported, n.u)
		}
		return int64(n.u), nil
	case NumericFloat:
		if n.f > math.MaxInt64 || n.f < math.MinInt64 || math.IsNaN(n.f) {
			return 0, fmt.Errorf("%w: %g overflows int64", ErrUnsupported, n.f)
		}
		return int64(n.f), nil
	case NumericDecimal:
		b := n.d.BigInt()
		if !b.IsInt64() {
			return 0, fmt.Errorf("%w: %s overflows int64", ErrUnsupported, n.d)
		}
		return b.Int64(), nil
	}
	return 0, ErrUnsupported
}

func (n number) asUint() (uint64, error) {
	switch n.kind {
	case NumericSigned:
		if n.i < 0 {
			return 0, fmt.Errorf("%w: %d is negative", ErrUnsupported, n.i)
		}
		return uint64(n.i), nil
	case NumericUnsigned:
		return n.u, nil
	case NumericFloat:
		if n.f < 0 || n.f > math.MaxUint64 || math.IsNaN(n.f) {
			return 0, fmt.Errorf("%w: %g overflows uint64", ErrUnsupported, n.f)
		}
		return uint64(n.f), nil
	case NumericDecimal:
		if n.d.IsNegative() {
			return 0, fmt.Errorf("%w: %s is negative", ErrUnsupported, n.d)
		}
		b := n.d.BigInt()
		if !b.IsUint64() {
			return 0, fmt.Errorf("%w: %s overflows uint64", ErrUnsupported, n.d)
		}
		return b.Uint64(), nil
	}
	return 0, ErrUnsupported
}

func (n number) asFloat() float64 {
	switch n.kind {
	case NumericSigned:
		return float64(n.i)
	case NumericUnsigned:
		return float64(n.u)
	case NumericFloat:
		return n.f
	case NumericDecimal:
		f, _ := n.d.Float64()
		return f
	}
	return 0
}

func (n number) asDecimal() decimal.Decimal {
	switch n.kind {
	case NumericSigned:
		return decimal.NewFromInt(n.i)
	case NumericUnsigned:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(n.u), 0)
	case NumericFloat:
		return decimal.NewFromFloat(n.f)
	}
	return n.d
}
