package product

// ValidEAN reports whether code is a well-formed GTIN-8, GTIN-12 (UPC-A),
// GTIN-13 (EAN) or GTIN-14 with a correct check digit. It only inspects the
// code; callers must keep using the original string as the identifier.
func ValidEAN(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}

	sum := 0
	// Weights alternate 3,1,3,... starting from the digit left of the check digit.
	weight := 3
	for i := len(code) - 2; i >= 0; i-- {
		c := code[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}

	last := code[len(code)-1]
	if last < '0' || last > '9' {
		return false
	}
	return (10-sum%10)%10 == int(last-'0')
}
