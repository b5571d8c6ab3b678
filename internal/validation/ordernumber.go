package validation

import (
	"strings"
	"unicode"
)

// IsValidOrderNumber проверяет формат номера заказа ORD-<миллисекунды>-<порядковый номер>,
// где порядковый номер содержит не меньше четырёх цифр.
func IsValidOrderNumber(number string) bool {
	rest, ok := strings.CutPrefix(number, "ORD-")
	if !ok {
		return false
	}

	millis, seq, ok := strings.Cut(rest, "-")
	if !ok || !allDigits(millis) || !allDigits(seq) {
		return false
	}

	return len(seq) >= 4
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}
