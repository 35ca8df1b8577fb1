package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp reads unix seconds, an RFC3339 time, or a "+duration"
// offset from now. Empty input yields now.
func ParseTimestamp(input string, now uint64) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return now, nil
	}

	if strings.HasPrefix(input, "+") {
		d, err := time.ParseDuration(input[1:])
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("negative offset %q", input)
		}
		return now + uint64(d/time.Second), nil
	}

	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	if tm.Unix() < 0 {
		return 0, fmt.Errorf("time %q before unix epoch", input)
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
