package query

// Window computes the page bounds of a sequence of total rows: skip first,
// then at most top rows. more reports whether rows remain after the page.
func Window(total, skip int, top *int) (start, end int, more bool) {
	start = min(skip, total)
	end = total
	if top != nil && *top < total-start {
		end = start + *top
	}
	return start, end, end < total
}
