package parser

import (
	"strconv"

	"github.com/valyala/fastjson"
)

// extractFloat converts a JSON scalar to a float64. Exchanges encode prices
// and quantities either as JSON numbers or as decimal strings, so both are
// accepted uniformly. Any other shape, a missing value or an empty string
// yields 0.
func extractFloat(v *fastjson.Value) float64 {
	if v == nil {
		return 0
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return 0
		}
		return parseFloatPrefix(b)
	}
	return 0
}

// parseFloatPrefix parses the longest prefix of b that forms a valid decimal
// floating literal, mirroring strtod: trailing garbage is ignored and a
// string with no leading number parses as 0. It never returns an error.
func parseFloatPrefix(b []byte) float64 {
	i, n := 0, len(b)
	for i < n && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	start := i
	if i < n && (b[i] == '+' || b[i] == '-') {
		i++
	}
	digits := 0
	for i < n && b[i] >= '0' && b[i] <= '9' {
		i++
		digits++
	}
	if i < n && b[i] == '.' {
		i++
		for i < n && b[i] >= '0' && b[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	// Optional exponent, only consumed when complete.
	if i < n && (b[i] == 'e' || b[i] == 'E') {
		j := i + 1
		if j < n && (b[j] == '+' || b[j] == '-') {
			j++
		}
		expDigits := 0
		for j < n && b[j] >= '0' && b[j] <= '9' {
			j++
			expDigits++
		}
		if expDigits > 0 {
			i = j
		}
	}
	f, err := strconv.ParseFloat(string(b[start:i]), 64)
	if err != nil {
		return 0
	}
	return f
}
