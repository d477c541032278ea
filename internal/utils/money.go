package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Monetary amounts are carried as int64 values in the currency's minor unit.
// UGX has no sub-unit, so 500000 means five hundred thousand shillings. All
// ledger arithmetic stays in integers; the only division in the system goes
// through MulDivRoundHalfUp so every caller rounds the same way.

// MulDivRoundHalfUp computes base*num/den rounded half-up, in integer space.
// den must be positive. Negative base or num round half away from zero, which
// for the ledger's sign convention is the same "half-up on the magnitude"
// behaviour the billing rules expect.
func MulDivRoundHalfUp(base, num, den int64) int64 {
	if den <= 0 {
		return 0
	}
	p := base * num
	neg := p < 0
	if neg {
		p = -p
	}
	q := p / den
	r := p % den
	if 2*r >= den {
		q++
	}
	if neg {
		return -q
	}
	return q
}

// FormatMoney renders an amount with thousands separators, e.g. "UGX 500,000"
// or "UGX -83,333". Intended for descriptions, statements and logs only; the
// stored value is always the raw int64.
func FormatMoney(currencyCode string, amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(digits[i : i+3])
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s", currencyCode, sign, sb.String())
}
