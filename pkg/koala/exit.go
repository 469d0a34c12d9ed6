package koala

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ExitCode converts v to a process exit code the way a 32-bit integer
// truncation of a loosely typed value would: numbers are truncated toward
// zero and wrapped to 32 bits, numeric strings are parsed, booleans map to
// 0 and 1, and everything else is 0.
func ExitCode(v any) int {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return int(int32(n))
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(int32(n))
	case uint:
		return int(int32(n))
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(int32(n))
	case uint64:
		return int(int32(n))
	case float32:
		return toInt32(float64(n))
	case float64:
		return toInt32(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case json.Number:
		return parseCode(string(n))
	case string:
		return parseCode(n)
	default:
		return 0
	}
}

func parseCode(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		i, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0
		}
		return int(int32(i))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return toInt32(f)
}

func toInt32(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), 1<<32)
	return int(int32(uint32(int64(m))))
}
