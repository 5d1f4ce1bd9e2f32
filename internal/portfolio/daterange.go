package portfolio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UnmarshalJSON accepts [from, to] with either bound null, or null for no
// range. A date-only upper bound covers the whole day.
func (r *DateRange) UnmarshalJSON(data []byte) error {
	*r = DateRange{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var bounds []*string
	if err := json.Unmarshal(data, &bounds); err != nil {
		return fmt.Errorf("dateRange must be [from, to]: %w", err)
	}
	if len(bounds) != 2 {
		return fmt.Errorf("dateRange must have exactly two entries, got %d", len(bounds))
	}
	from, err := parseBound(bounds[0], false)
	if err != nil {
		return err
	}
	to, err := parseBound(bounds[1], true)
	if err != nil {
		return err
	}
	r.From, r.To = from, to
	return nil
}

// MarshalJSON writes the range as [from, to].
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*time.Time{r.From, r.To})
}

func parseBound(s *string, upper bool) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		if upper {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	t, err := ParseTime(v)
	if err != nil {
		return nil, fmt.Errorf("dateRange: %w", err)
	}
	return &t, nil
}

// ParseDateRange builds a range from two optional bounds as used by the CLI.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := parseBound(&from, false)
	if err != nil {
		return DateRange{}, err
	}
	t, err := parseBound(&to, true)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{From: f, To: t}, nil
}
