package compiler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/sqlrest/internal/ir"
	"github.com/roach88/sqlrest/internal/sqltext"
)

// Binder resolves 1-based positional placeholders against the parameter
// list supplied with a statement.
type Binder struct {
	params []ir.Value
}

// NewBinder wraps a converted parameter list.
func NewBinder(params []ir.Value) Binder {
	return Binder{params: params}
}

// Lookup returns params[index-1], or false when index is out of range.
func (b Binder) Lookup(index int) (ir.Value, bool) {
	if index < 1 || index > len(b.params) {
		return nil, false
	}
	return b.params[index-1], true
}

// Len returns the number of bound parameters.
func (b Binder) Len() int {
	return len(b.params)
}

// declined is returned by operand resolution and recognizers when a
// fragment has the right shape but cannot be translated, e.g. because a
// placeholder is out of range. The fragment is dropped (or rejected in
// strict mode) with Reason.
type declined struct {
	Reason string
}

func (d *declined) Error() string {
	return d.Reason
}

func decline(format string, args ...any) *declined {
	return &declined{Reason: fmt.Sprintf(format, args...)}
}

// unsatisfiable is returned when a condition is never true for any row,
// such as a comparison with a NULL parameter. It is not a drop: the
// statement matches nothing.
type unsatisfiable struct {
	Reason string
}

func (u *unsatisfiable) Error() string {
	return u.Reason + " never matches"
}

func never(reason string) *unsatisfiable {
	return &unsatisfiable{Reason: reason}
}

var (
	lowerCaser = cases.Lower(language.Und)
	upperCaser = cases.Upper(language.Und)
)

// scope carries everything operand resolution needs for one statement.
type scope struct {
	binder Binder
	now    time.Time
}

// value resolves an operand expression to a concrete value: placeholders,
// literals, casts of those, NOW(), LOWER()/UPPER() and NOW() +/- interval.
func (s *scope) value(e sqltext.Expr) (ir.Value, error) {
	switch x := e.(type) {
	case sqltext.Param:
		v, ok := s.binder.Lookup(x.Index)
		if !ok {
			return nil, decline("parameter $%d out of range (%d supplied)", x.Index, s.binder.Len())
		}
		return v, nil
	case sqltext.Literal:
		return x.Value, nil
	case sqltext.Paren:
		return s.value(x.X)
	case sqltext.Cast:
		v, err := s.value(x.X)
		if err != nil {
			return nil, err
		}
		return castValue(v, x.Type)
	case sqltext.FuncCall:
		switch x.Name {
		case "now":
			if len(x.Args) == 0 {
				return ir.String(formatTime(s.now)), nil
			}
		case "lower", "upper":
			if len(x.Args) != 1 {
				break
			}
			v, err := s.value(x.Args[0])
			if err != nil {
				return nil, err
			}
			if ir.IsNull(v) {
				return ir.Null{}, nil
			}
			str, ok := v.(ir.String)
			if !ok {
				return nil, decline("%s() needs a text argument", x.Name)
			}
			if x.Name == "lower" {
				return ir.String(lowerCaser.String(string(str))), nil
			}
			return ir.String(upperCaser.String(string(str))), nil
		}
		return nil, decline("function %s() is not supported here", x.Name)
	case sqltext.Binary:
		cutoff, err := s.relativeTime(x)
		var n *unsatisfiable
		if errors.As(err, &n) {
			return ir.Null{}, nil
		}
		if err != nil {
			return nil, err
		}
		return ir.String(formatTime(cutoff)), nil
	default:
		return nil, decline("unsupported operand %s", e)
	}
}

// relativeTime evaluates NOW() +/- <interval>, where the interval is an
// INTERVAL literal, a string cast to interval, or a placeholder.
func (s *scope) relativeTime(b sqltext.Binary) (time.Time, error) {
	if b.Op != "-" && b.Op != "+" {
		return time.Time{}, decline("unsupported operator %q", b.Op)
	}
	if fn, ok := sqltext.Unparen(b.Left).(sqltext.FuncCall); !ok || fn.Name != "now" {
		return time.Time{}, decline("only NOW() +/- interval arithmetic is supported")
	}

	var text string
	switch r := sqltext.Unparen(b.Right).(type) {
	case sqltext.Interval:
		text = r.Text
	default:
		v, err := s.value(r)
		if err != nil {
			return time.Time{}, err
		}
		if ir.IsNull(v) {
			return time.Time{}, never("interval arithmetic with NULL")
		}
		str, ok := v.(ir.String)
		if !ok {
			return time.Time{}, decline("interval must be text like '24 hours', got %s", ir.Text(v))
		}
		text = string(str)
	}

	d, err := ParseInterval(text)
	if err != nil {
		return time.Time{}, decline("%v", err)
	}
	if b.Op == "-" {
		return s.now.Add(-d), nil
	}
	return s.now.Add(d), nil
}

// castValue applies the value-level effect of a cast. Casts that only
// matter to the database (::text, ::uuid, ::timestamptz, ...) are identity.
func castValue(v ir.Value, typ string) (ir.Value, error) {
	str, isString := v.(ir.String)
	switch typ {
	case "jsonb", "json":
		if isString {
			return parseJSONOrRaw(string(str)), nil
		}
	case "boolean", "bool":
		if isString {
			switch strings.ToLower(strings.TrimSpace(string(str))) {
			case "true", "t", "yes", "on", "1":
				return ir.Bool(true), nil
			case "false", "f", "no", "off", "0":
				return ir.Bool(false), nil
			}
			return nil, decline("cannot cast %q to boolean", string(str))
		}
	case "int", "integer", "bigint", "smallint", "int4", "int8", "numeric", "decimal":
		if isString {
			if n, ok := ir.AsInt(str); ok {
				return ir.Int(n), nil
			}
			num, err := ir.NewNumber(string(str))
			if err != nil {
				return nil, decline("cannot cast %q to %s", string(str), typ)
			}
			return num, nil
		}
	}
	return v, nil
}

// parseJSONOrRaw decodes text as JSON, falling back to the raw text.
func parseJSONOrRaw(text string) ir.Value {
	v, err := ir.ParseJSON([]byte(text))
	if err != nil {
		return ir.String(text)
	}
	return v
}

// ParseInterval parses a relative interval such as "24 hours", "7 days",
// "30 min" or "2w". Supported units are minutes, hours, days and weeks.
func ParseInterval(text string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToLower(text))
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid interval %q", text)
	}
	var n int64
	for _, c := range s[:i] {
		n = n*10 + int64(c-'0')
		if n > 1<<31 {
			return 0, fmt.Errorf("interval %q too large", text)
		}
	}

	var unit time.Duration
	switch strings.TrimSpace(s[i:]) {
	case "minute", "minutes", "min", "mins":
		unit = time.Minute
	case "hour", "hours", "hr", "hrs", "h":
		unit = time.Hour
	case "day", "days", "d":
		unit = 24 * time.Hour
	case "week", "weeks", "w":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit in %q (use minutes, hours, days or weeks)", text)
	}
	return time.Duration(n) * unit, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
