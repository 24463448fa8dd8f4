package dump

// ParseRanges parses a GOGGLES_DUMP_FRAME_RANGE-style string
// ("3,5,8-13") into a sorted slice of merged, inclusive Ranges,
// mirroring parse_env_config's tokenizer: comma-separated entries
// (whitespace around an entry is ignored), each either a single frame number or
// a "begin-end" pair (reversed automatically if end < begin). A
// malformed entry (missing or zero leading number) is skipped rather
// than rejecting the whole string; an empty or all-malformed input
// returns a nil slice and no error, since an absent
// GOGGLES_DUMP_FRAME_RANGE simply means "dumping disabled", not a
// configuration error.
func ParseRanges(s string) ([]Range, error) {
	var ranges []Range
	pos := 0
	n := len(s)

	skipSep := func() {
		for pos < n && (s[pos] == ',' || isSpace(s[pos])) {
			pos++
		}
	}
	skipToComma := func() {
		for pos < n && s[pos] != ',' {
			pos++
		}
	}
	parseNumber := func() (uint64, bool) {
		for pos < n && isSpace(s[pos]) {
			pos++
		}
		if pos >= n || !isDigit(s[pos]) {
			return 0, false
		}
		var val uint64
		for pos < n && isDigit(s[pos]) {
			val = val*10 + uint64(s[pos]-'0')
			pos++
		}
		return val, true
	}

	for pos < n {
		skipSep()
		if pos >= n {
			break
		}

		begin, ok := parseNumber()
		if !ok || begin == 0 {
			skipToComma()
			continue
		}

		for pos < n && isSpace(s[pos]) {
			pos++
		}

		end := begin
		if pos < n && s[pos] == '-' {
			pos++
			e, ok := parseNumber()
			if !ok || e == 0 {
				skipToComma()
				continue
			}
			end = e
		}

		if end < begin {
			begin, end = end, begin
		}
		ranges = append(ranges, Range{Begin: begin, End: end})
		skipToComma()
	}

	if len(ranges) == 0 {
		return nil, nil
	}
	return mergeRanges(ranges), nil
}

func mergeRanges(ranges []Range) []Range {
	sortRanges(ranges)
	merged := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if len(merged) == 0 {
			merged = append(merged, r)
			continue
		}
		last := &merged[len(merged)-1]
		if r.Begin <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

func sortRanges(ranges []Range) {
	// Insertion sort: ranges are always few (a human-typed CLI/env
	// value), and this avoids pulling in sort.Slice's reflection-based
	// comparator for a handful of elements.
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && ranges[j].Begin < ranges[j-1].Begin; j-- {
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f' }
