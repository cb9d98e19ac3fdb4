package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expression is a parsed five-field cron expression
// (minute hour day-of-month month day-of-week, Sunday = 0).
//
// Each field is a comma-separated union of "*", "*/N", "A-B", "A-B/N" or a
// literal value. A field matches when any alternative matches.
type Expression struct {
	raw    string
	fields [5]exprField
}

type exprField struct {
	alts []exprAlt
}

// exprAlt is one comma alternative. any covers "*" (and "*/N"); otherwise the
// alternative is the inclusive range lo..hi (lo==hi for a literal).
type exprAlt struct {
	any  bool
	lo   int
	hi   int
	step int
}

type fieldSpec struct {
	name string
	min  int
	max  int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Parse validates and precompiles a five-field cron expression.
func Parse(raw string) (Expression, error) {
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) != 5 {
		return Expression{}, fmt.Errorf("schedule: expected 5 fields, got %d in %q", len(parts), raw)
	}

	var e Expression
	e.raw = strings.Join(parts, " ")
	for i, p := range parts {
		f, err := parseField(p, fieldSpecs[i])
		if err != nil {
			return Expression{}, err
		}
		e.fields[i] = f
	}
	return e, nil
}

func (e Expression) String() string { return e.raw }

// Matches reports whether the expression fires at t. Calendar components are
// extracted at the given UTC offset (minutes), never the system timezone.
func (e Expression) Matches(t time.Time, offsetMinutes int) bool {
	lt := t.In(offsetZone(offsetMinutes))
	values := [5]int{
		lt.Minute(),
		lt.Hour(),
		lt.Day(),
		int(lt.Month()),
		int(lt.Weekday()),
	}
	for i := range e.fields {
		if !e.fields[i].matches(values[i]) {
			return false
		}
	}
	return true
}

func (f exprField) matches(v int) bool {
	for _, a := range f.alts {
		if a.matches(v) {
			return true
		}
	}
	return false
}

func (a exprAlt) matches(v int) bool {
	if a.any {
		return v%a.step == 0
	}
	return v >= a.lo && v <= a.hi && (v-a.lo)%a.step == 0
}

func parseField(raw string, spec fieldSpec) (exprField, error) {
	var f exprField
	for _, part := range strings.Split(raw, ",") {
		a, err := parseAlt(part, spec)
		if err != nil {
			return exprField{}, err
		}
		f.alts = append(f.alts, a)
	}
	return f, nil
}

func parseAlt(part string, spec fieldSpec) (exprAlt, error) {
	base := part
	step := 1
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		base = part[:idx]
		n, err := strconv.Atoi(part[idx+1:])
		if err != nil || n < 1 {
			return exprAlt{}, fmt.Errorf("schedule: invalid step in %s field %q", spec.name, part)
		}
		step = n
	}

	if base == "*" {
		return exprAlt{any: true, step: step}, nil
	}

	if idx := strings.IndexByte(base, '-'); idx >= 0 {
		lo, err1 := strconv.Atoi(base[:idx])
		hi, err2 := strconv.Atoi(base[idx+1:])
		if err1 != nil || err2 != nil {
			return exprAlt{}, fmt.Errorf("schedule: invalid range in %s field %q", spec.name, part)
		}
		if lo > hi || lo < spec.min || hi > spec.max {
			return exprAlt{}, fmt.Errorf("schedule: %s range %q out of bounds %d-%d", spec.name, part, spec.min, spec.max)
		}
		return exprAlt{lo: lo, hi: hi, step: step}, nil
	}

	v, err := strconv.Atoi(base)
	if err != nil {
		return exprAlt{}, fmt.Errorf("schedule: invalid value in %s field %q", spec.name, part)
	}
	if v < spec.min || v > spec.max {
		return exprAlt{}, fmt.Errorf("schedule: %s value %d out of bounds %d-%d", spec.name, v, spec.min, spec.max)
	}
	return exprAlt{lo: v, hi: v, step: step}, nil
}

func offsetZone(offsetMinutes int) *time.Location {
	if offsetMinutes == 0 {
		return time.UTC
	}
	return time.FixedZone("offset", offsetMinutes*60)
}
