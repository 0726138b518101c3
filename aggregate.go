package streamsync

import "fmt"

// AggFunc identifies a windowed aggregation function applied over a
// numeric event field when a window closes.
type AggFunc int

const (
	// AggCount counts the events in the window.
	AggCount AggFunc = iota
	// AggSum sums the field across the window.
	AggSum
	// AggMin takes the minimum field value.
	AggMin
	// AggMax takes the maximum field value.
	AggMax
	// AggMean averages the field across the window.
	AggMean
	// AggLast takes the field value of the last event.
	AggLast
)

// String returns the string representation of the aggregation function.
func (f AggFunc) String() string {
	switch f {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggMean:
		return "mean"
	case AggLast:
		return "last"
	default:
		return "unknown"
	}
}

// ParseAggFunc parses an aggregation function name.
func ParseAggFunc(name string) (AggFunc, error) {
	switch name {
	case "count":
		return AggCount, nil
	case "sum":
		return AggSum, nil
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	case "mean", "avg":
		return AggMean, nil
	case "last":
		return AggLast, nil
	default:
		return AggCount, fmt.Errorf("unknown aggregation function: %q", name)
	}
}

// UnmarshalYAML decodes an aggregation function from its name.
func (f *AggFunc) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseAggFunc(name)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalYAML encodes an aggregation function as its name.
func (f AggFunc) MarshalYAML() (any, error) {
	return f.String(), nil
}

// computeAggregates evaluates the configured aggregation functions over
// the named field of the window's events. Events missing the field or
// holding a non-numeric value are skipped. count ignores the field and
// always reflects the full event count.
func computeAggregates(events []Event, field string, funcs []AggFunc) map[string]float64 {
	if len(funcs) == 0 {
		return nil
	}

	var (
		sum     float64
		min     float64
		max     float64
		last    float64
		samples int
	)
	for _, event := range events {
		v, ok := event.GetFloat(field)
		if !ok {
			continue
		}
		if samples == 0 || v < min {
			min = v
		}
		if samples == 0 || v > max {
			max = v
		}
		sum += v
		last = v
		samples++
	}

	out := make(map[string]float64, len(funcs))
	for _, fn := range funcs {
		switch fn {
		case AggCount:
			out["count"] = float64(len(events))
		case AggSum:
			out["sum"] = sum
		case AggMin:
			if samples > 0 {
				out["min"] = min
			}
		case AggMax:
			if samples > 0 {
				out["max"] = max
			}
		case AggMean:
			if samples > 0 {
				out["mean"] = sum / float64(samples)
			}
		case AggLast:
			if samples > 0 {
				out["last"] = last
			}
		}
	}
	return out
}
