package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type columnKind int

const (
	kindOther columnKind = iota
	kindJSON
	kindNumeric
	kindBool
)

// classify maps a driver type name to how its values are normalized.
// Type names differ by driver: pgx reports "JSONB", MySQL "JSON" and
// "DECIMAL", SQLite echoes the declared type.
func classify(dbType string) columnKind {
	t := strings.ToUpper(dbType)
	switch {
	case t == "JSON" || t == "JSONB":
		return kindJSON
	case t == "BOOL" || t == "BOOLEAN":
		return kindBool
	case strings.Contains(t, "INT"),
		strings.HasPrefix(t, "NUMERIC"),
		strings.HasPrefix(t, "DECIMAL"),
		t == "FLOAT4", t == "FLOAT8", t == "FLOAT", t == "DOUBLE", t == "REAL":
		return kindNumeric
	default:
		return kindOther
	}
}

// normalizeValue converts a scanned driver value into the shape the
// PostgREST HTTP client produces: json.Number for numbers, decoded JSON
// documents, strings for text and RFC 3339 for timestamps.
func normalizeValue(v any, dbType string) (any, error) {
	kind := classify(dbType)

	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return normalizeText(string(val), kind)
	case string:
		return normalizeText(val, kind)
	case bool:
		return val, nil
	case int64:
		if kind == kindBool {
			return val != 0, nil
		}
		return json.Number(strconv.FormatInt(val, 10)), nil
	case int32:
		return json.Number(strconv.FormatInt(int64(val), 10)), nil
	case float64:
		return json.Number(decimal.NewFromFloat(val).String()), nil
	case float32:
		return json.Number(decimal.NewFromFloat32(val).String()), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case map[string]any, []any:
		// pgx may hand back decoded JSON; re-decode so numbers are json.Number.
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return decodeJSON(data)
	default:
		return nil, fmt.Errorf("unsupported driver value %T", v)
	}
}

func normalizeText(s string, kind columnKind) (any, error) {
	switch kind {
	case kindJSON:
		doc, err := decodeJSON([]byte(s))
		if err != nil {
			// Not a JSON document after all; keep the text.
			return s, nil
		}
		return doc, nil
	case kindNumeric:
		if d, err := decimal.NewFromString(s); err == nil {
			return json.Number(d.String()), nil
		}
	case kindBool:
		switch strings.ToLower(s) {
		case "1", "t", "true":
			return true, nil
		case "0", "f", "false":
			return false, nil
		}
	}
	return s, nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return doc, nil
}
