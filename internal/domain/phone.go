package domain

import "strings"

// NormalizePhone strips every non-digit: "+57 324 653 7538" → "573246537538".
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}
