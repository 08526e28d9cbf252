package cooling

import (
	"strconv"
	"strings"

	"codeberg.org/mutker/chassisctl/internal/errors"
)

// notAvailable is how the state DB spells a missing reading
const notAvailable = "N/A"

func field(fields map[string]string, names ...string) (string, error) {
	for _, name := range names {
		if v, ok := fields[name]; ok {
			return strings.TrimSpace(v), nil
		}
	}
	return "", errors.New().WithData(ErrSourceStale, strings.Join(names, "|"))
}

// parseOptionalFloat maps "N/A" and empty values to nil.
func parseOptionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, notAvailable) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.New().Wrap(ErrSourceStale, err)
	}
	return &v, nil
}

func parseFloat(s string) (float64, error) {
	v, err := parseOptionalFloat(s)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, errors.New().WithData(ErrSourceStale, s)
	}
	return *v, nil
}

func parseBool(s string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, errors.New().Wrap(ErrSourceStale, err)
	}
	return v, nil
}

func floatPtr(v float64) *float64 {
	return &v
}
