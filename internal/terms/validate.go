package terms

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validate turns an untyped payload into a well-formed [Entry].
//
// Rules:
//   - src, dst and notes are trimmed; empty src or dst, or either longer than
//     [MaxFieldLength] characters, is [CodeInvalidTerm].
//   - type defaults to "exact"; anything other than exact/regex is
//     [CodeInvalidTerm].
//   - priority defaults to [DefaultPriority]; a value that is not an integer
//     is [CodeInvalidTerm].
//   - active defaults to true and accepts booleans, numbers and the usual
//     truthy strings ("1", "true", "yes", "on", "y").
//   - regex sources must compile, otherwise [CodeBadRegex].
//   - the id is existingID when set, else the payload id, else a new UUID.
//
// Validate has no side effects.
func Validate(p Payload, existingID string) (Entry, error) {
	src := strings.TrimSpace(stringField(p["src"]))
	dst := strings.TrimSpace(stringField(p["dst"]))
	notes := strings.TrimSpace(stringField(p["notes"]))

	if src == "" {
		return Entry{}, invalid("src must not be empty")
	}
	if dst == "" {
		return Entry{}, invalid("dst must not be empty")
	}
	if utf8.RuneCountInString(src) > MaxFieldLength {
		return Entry{}, invalid(fmt.Sprintf("src exceeds %d characters", MaxFieldLength))
	}
	if utf8.RuneCountInString(dst) > MaxFieldLength {
		return Entry{}, invalid(fmt.Sprintf("dst exceeds %d characters", MaxFieldLength))
	}

	kind, err := kindField(p["type"])
	if err != nil {
		return Entry{}, err
	}

	priority, err := priorityField(p["priority"])
	if err != nil {
		return Entry{}, err
	}

	if kind == KindRegex {
		if _, err := regexp.Compile(src); err != nil {
			return Entry{}, &ValidationError{Code: CodeBadRegex, Reason: fmt.Sprintf("pattern %q", src), Err: err}
		}
	}

	id := existingID
	if id == "" {
		id = strings.TrimSpace(stringField(p["id"]))
	}
	if id == "" {
		id = uuid.NewString()
	}

	return Entry{
		ID:       id,
		Src:      src,
		Dst:      dst,
		Kind:     kind,
		Priority: priority,
		Notes:    notes,
		Active:   boolField(p["active"], true),
	}, nil
}

// stringField renders v the way a loosely typed payload expects: nil becomes
// the empty string and scalars use their natural text form.
func stringField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func kindField(v any) (Kind, error) {
	if v == nil {
		return KindExact, nil
	}
	s, ok := v.(string)
	if !ok {
		if k, isKind := v.(Kind); isKind {
			s, ok = string(k), true
		}
	}
	if !ok {
		return "", invalid(fmt.Sprintf("type %v is not a string", v))
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindExact, nil
	}
	k := Kind(s)
	if !k.IsValid() {
		return "", invalid(fmt.Sprintf("type %q is not one of exact, regex", s))
	}
	return k, nil
}

func priorityField(v any) (int, error) {
	bad := func() (int, error) {
		return 0, invalid(fmt.Sprintf("priority %v is not an integer", v))
	}

	switch x := v.(type) {
	case nil:
		return DefaultPriority, nil
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return fromInt64(x, bad)
	case uint:
		return fromUint64(uint64(x), bad)
	case uint64:
		return fromUint64(x, bad)
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case float32:
		return integral(float64(x), bad)
	case float64:
		return integral(x, bad)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return fromInt64(n, bad)
		}
		f, err := x.Float64()
		if err != nil {
			return bad()
		}
		return integral(f, bad)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return DefaultPriority, nil
		}
		n, err := strconv.Atoi(s)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return bad()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return bad()
		}
		return integral(f, bad)
	default:
		return bad()
	}
}

// integral converts f to an int when it is a whole number inside the int
// range. -MinInt is 2^63 (2^31 on 32-bit), exactly representable as a float.
func integral(f float64, bad func() (int, error)) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return bad()
	}
	if f < float64(math.MinInt) || f >= -float64(math.MinInt) {
		return bad()
	}
	return int(f), nil
}

func fromInt64(n int64, bad func() (int, error)) (int, error) {
	if n < math.MinInt || n > math.MaxInt {
		return bad()
	}
	return int(n), nil
}

func fromUint64(n uint64, bad func() (int, error)) (int, error) {
	if n > math.MaxInt {
		return bad()
	}
	return int(n), nil
}

func boolField(v any, def bool) bool {
	switch x := v.(type) {
	case nil:
		return def
	case bool:
		return x
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if s == "" {
			return def
		}
		switch s {
		case "1", "true", "yes", "on", "y":
			return true
		}
		return false
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	default:
		return def
	}
}
