package patterns

// Luhn validates a digit string with the Luhn checksum. Non-digit input
// is invalid; separators must be stripped by the caller.
func Luhn(digits string) bool {
	if digits == "" {
		return false
	}

	sum := 0
	double := false

	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')

		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}

	return sum%10 == 0
}
