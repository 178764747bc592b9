// Package indication parses meter readings and applies the incremental
// submission rule. All functions are pure.
package indication

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxTariffs is the number of tariff zones (T1..T3) a meter can report.
const MaxTariffs = 3

var (
	ErrEmpty      = errors.New("at least one reading is required")
	ErrTooMany    = fmt.Errorf("at most %d readings are allowed", MaxTariffs)
	ErrNegative   = errors.New("readings must not be negative")
	ErrNotInteger = errors.New("readings must be whole numbers")
	ErrTariffKey  = fmt.Errorf("tariff keys must run from 1 to %d without gaps", MaxTariffs)
	ErrFormat     = errors.New("readings must be a list of numbers")
)

// Readings holds one value per tariff, T1 first.
type Readings []int64

// String renders the readings in the bracketed form accepted by Parse.
func (r Readings) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Tariffs returns the readings keyed t1..tN.
func (r Readings) Tariffs() map[string]int64 {
	out := make(map[string]int64, len(r))
	for i, v := range r {
		out[fmt.Sprintf("t%d", i+1)] = v
	}
	return out
}

// Equal reports whether both sets hold the same values.
func (r Readings) Equal(o Readings) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

// Parse converts a call value into readings.
//
// Accepted forms: a string in YAML flow syntax ("[123, 456]", "123, 456",
// "{1: 123, 2: 456}"), a list of numbers, or a mapping keyed by tariff
// number. This is a PURE function.
func Parse(v any) (Readings, error) {
	switch val := v.(type) {
	case nil:
		return nil, ErrEmpty
	case Readings:
		return check(val)
	case string:
		return parseString(val)
	case []any:
		return parseList(val)
	case []int64:
		return check(Readings(val))
	case []int:
		out := make(Readings, len(val))
		for i, n := range val {
			out[i] = int64(n)
		}
		return check(out)
	case map[string]any:
		keyed := make(map[any]any, len(val))
		for k, n := range val {
			keyed[k] = n
		}
		return parseMap(keyed)
	case map[any]any:
		return parseMap(val)
	case map[int]any:
		keyed := make(map[any]any, len(val))
		for k, n := range val {
			keyed[k] = n
		}
		return parseMap(keyed)
	default:
		n, err := toReading(val)
		if err != nil {
			return nil, err
		}
		return Readings{n}, nil
	}
}

func parseString(s string) (Readings, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}
	if !strings.HasPrefix(s, "[") && !strings.HasPrefix(s, "{") {
		s = "[" + s + "]"
	}

	var raw any
	if err := yaml.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	switch raw.(type) {
	case []any, map[string]any, map[any]any:
		return Parse(raw)
	default:
		return nil, ErrFormat
	}
}

func parseList(items []any) (Readings, error) {
	out := make(Readings, 0, len(items))
	for _, item := range items {
		n, err := toReading(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return check(out)
}

func parseMap(m map[any]any) (Readings, error) {
	if len(m) == 0 {
		return nil, ErrEmpty
	}

	byTariff := make(map[int]int64, len(m))
	for k, v := range m {
		tariff, err := toTariff(k)
		if err != nil {
			return nil, err
		}
		n, err := toReading(v)
		if err != nil {
			return nil, err
		}
		byTariff[tariff] = n
	}

	tariffs := make([]int, 0, len(byTariff))
	for t := range byTariff {
		tariffs = append(tariffs, t)
	}
	sort.Ints(tariffs)

	out := make(Readings, 0, len(tariffs))
	for i, t := range tariffs {
		if t != i+1 {
			return nil, ErrTariffKey
		}
		out = append(out, byTariff[t])
	}
	return check(out)
}

func check(r Readings) (Readings, error) {
	if len(r) == 0 {
		return nil, ErrEmpty
	}
	if len(r) > MaxTariffs {
		return nil, ErrTooMany
	}
	for _, v := range r {
		if v < 0 {
			return nil, ErrNegative
		}
	}
	return r, nil
}

func toTariff(k any) (int, error) {
	var n int
	switch key := k.(type) {
	case int:
		n = key
	case int64:
		n = int(key)
	case string:
		parsed, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(key)), "t"))
		if err != nil {
			return 0, ErrTariffKey
		}
		n = parsed
	default:
		return 0, ErrTariffKey
	}
	if n < 1 || n > MaxTariffs {
		return 0, ErrTariffKey
	}
	return n, nil
}

func toReading(v any) (int64, error) {
	var n int64
	switch val := v.(type) {
	case int:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case uint64:
		if val > math.MaxInt64 {
			return 0, ErrFormat
		}
		n = int64(val)
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return 0, ErrNotInteger
		}
		n = int64(val)
	case string:
		s := strings.TrimSpace(val)
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, ErrFormat
			}
			return toReading(f)
		}
		n = parsed
	default:
		return 0, ErrFormat
	}
	if n < 0 {
		return 0, ErrNegative
	}
	return n, nil
}

// Resolve returns the readings to submit.
//
// When incremental is set, each input value is added to a base for its
// tariff: the already submitted reading when non-zero, otherwise the last
// accepted reading, otherwise zero. This is a PURE function.
func Resolve(input Readings, incremental bool, last, submitted Readings) Readings {
	out := make(Readings, len(input))
	copy(out, input)

	if !incremental {
		return out
	}

	for i := range out {
		out[i] += base(i, last, submitted)
	}
	return out
}

func base(i int, last, submitted Readings) int64 {
	if i < len(submitted) && submitted[i] != 0 {
		return submitted[i]
	}
	if i < len(last) {
		return last[i]
	}
	return 0
}
