package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// FromGo converts a caller-supplied Go value into a Value.
//
// Parameters arrive from application code as loosely typed values
// (strings, ints, float64 from decoded JSON, slices, maps, time.Time).
// Integral floats collapse to Int so that LIMIT $2 bound to 10.0 behaves
// like LIMIT 10. Unknown types fall back to a JSON round trip.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case []byte:
		return String(string(val)), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint(uint64(val)), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return fromUint(val), nil
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		return fromNumberText(string(val))
	case decimal.Decimal:
		return fromDecimal(val), nil
	case time.Time:
		return String(val.UTC().Format(time.RFC3339Nano)), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case []string:
		arr := make(Array, len(val))
		for i, elem := range val {
			arr[i] = String(elem)
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("unsupported parameter type %T: %w", v, err)
		}
		return ParseJSON(data)
	}
}

// FromGoSlice converts a positional parameter list.
func FromGoSlice(params []any) ([]Value, error) {
	out := make([]Value, len(params))
	for i, p := range params {
		v, err := FromGo(p)
		if err != nil {
			return nil, fmt.Errorf("parameter $%d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Number{Dec: decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)}
	}
	return Int(int64(u))
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Int(int64(f)), nil
	}
	return Number{Dec: decimal.NewFromFloat(f)}, nil
}

func fromNumberText(s string) (Value, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n), nil
	}
	num, err := NewNumber(s)
	if err != nil {
		return nil, err
	}
	return fromDecimal(num.Dec), nil
}

func fromDecimal(d decimal.Decimal) Value {
	if d.IsInteger() && d.Abs().LessThan(decimal.New(1, 18)) {
		return Int(d.IntPart())
	}
	return Number{Dec: d}
}

// ToGo converts a Value into plain Go data suitable for encoding/json.
// Numbers become json.Number so they encode without quotes or precision loss.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Number:
		return json.Number(val.Dec.String())
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// ToDriver converts a Value into an argument accepted by database/sql
// drivers. Arrays and objects are passed as JSON text.
func ToDriver(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return nil, nil
	case String:
		return string(val), nil
	case Int:
		return int64(val), nil
	case Number:
		return val.Dec.String(), nil
	case Bool:
		return bool(val), nil
	case Array, Object:
		data, err := MarshalValue(val)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("unsupported Value type for driver argument: %T", v)
	}
}

// Text renders a scalar Value the way PostgREST expects it in a query
// string: strings verbatim, numbers and booleans in their literal form,
// null as "null", composites as JSON.
func Text(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Number:
		return val.Dec.String()
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		data, err := MarshalValue(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// AsInt extracts an integer from a Value. Strings holding an integer
// literal and integral Numbers are accepted.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Number:
		if val.Dec.IsInteger() {
			return val.Dec.IntPart(), true
		}
	case String:
		d, err := decimal.NewFromString(string(val))
		if err == nil && d.IsInteger() {
			return d.IntPart(), true
		}
	}
	return 0, false
}
