package stream

// NextAlias returns the base-26 alphabetic alias for the n-th (0-based)
// stream inserted into an aggregator: 0->"A", 1->"B", ..., 25->"Z",
// 26->"AA", 27->"AB", and so on — the same bijective base-26 numbering a
// spreadsheet uses for column names.
func NextAlias(n int) string {
	if n < 0 {
		return ""
	}
	var digits []byte
	n++ // shift to 1-based bijective base-26
	for n > 0 {
		n--
		digits = append(digits, byte('A'+n%26))
		n /= 26
	}
	// reverse
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}
