package quarry

import (
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"
)

// CoerceFunc serializes one field value into its storage representation.
// It may mutate the instance (auto-now timestamps write the generated value
// back before returning it).
type CoerceFunc func(f *Field, value interface{}, inst *Instance) (interface{}, error)

// DatetimeLayout is the canonical text form for timestamp columns on
// backends that store them as text.
const DatetimeLayout = "2006-01-02 15:04:05.999999"

// DefaultToDB is the fallback serialization applied when neither the field
// nor the backend registers an override.
func DefaultToDB(f *Field, value interface{}, inst *Instance) (interface{}, error) {
	switch f.Kind {
	case DatetimeField:
		return datetimeToDB(f, value, inst, false)
	case DecimalField:
		d, ok, err := toDecimal(value)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return d, nil
	}
	return value, nil
}

// datetimeToDB resolves auto-now stamping and normalizes the value to a
// time.Time, or to DatetimeLayout text when asText is set.
func datetimeToDB(f *Field, value interface{}, inst *Instance, asText bool) (interface{}, error) {
	if f.AutoNow || (f.AutoNowAdd && isNil(value)) {
		stamp := time.Now().UTC()
		inst.Set(f.Name, stamp)
		value = stamp
	}
	if isNil(value) {
		return nil, nil
	}

	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case string:
		parsed, err := now.Parse(v)
		if err != nil {
			return nil, WrapError(KindOperational, err, "cannot parse datetime %q for field %s", v, f.Name)
		}
		t = parsed
	default:
		return nil, NewError(KindOperational, "cannot serialize %T as datetime for field %s", value, f.Name)
	}
	if asText {
		return t.Format(DatetimeLayout), nil
	}
	return t, nil
}

// QuantizeDecimal renders a decimal value to the declared scale, trailing
// zeros stripped, matching the equality used by round-trip comparisons.
func QuantizeDecimal(value interface{}, places int) (string, error) {
	d, ok, err := toDecimal(value)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", NewError(KindOperational, "cannot quantize nil decimal")
	}
	s := d.Round(int32(places)).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s, nil
}

func toDecimal(value interface{}) (decimal.Decimal, bool, error) {
	switch v := value.(type) {
	case nil:
		return decimal.Decimal{}, false, nil
	case decimal.Decimal:
		return v, true, nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, false, WrapError(KindOperational, err, "invalid decimal %q", v)
		}
		return d, true, nil
	case float64:
		return decimal.NewFromFloat(v), true, nil
	case float32:
		return decimal.NewFromFloat32(v), true, nil
	case int:
		return decimal.NewFromInt(int64(v)), true, nil
	case int64:
		return decimal.NewFromInt(v), true, nil
	}
	return decimal.Decimal{}, false, NewError(KindOperational, "cannot serialize %T as decimal", value)
}

func isNil(value interface{}) bool { return value == nil }

// BoolToInt is the storage coercion for backends without a native boolean
// column type.
func BoolToInt(f *Field, value interface{}, inst *Instance) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int, int64:
		return v, nil
	}
	return nil, NewError(KindOperational, "cannot serialize %T as bool for field %s", value, f.Name)
}

// DecimalToText quantizes a decimal to the field's declared scale and renders
// it as text, for backends without a native decimal type.
func DecimalToText(f *Field, value interface{}, inst *Instance) (interface{}, error) {
	if isNil(value) {
		return nil, nil
	}
	return QuantizeDecimal(value, f.DecimalPlaces)
}

// DatetimeToText serializes a timestamp as DatetimeLayout text, resolving
// auto-now stamping first.
func DatetimeToText(f *Field, value interface{}, inst *Instance) (interface{}, error) {
	return datetimeToDB(f, value, inst, true)
}
