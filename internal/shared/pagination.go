package shared

// Page bounds limit/offset read queries.
type Page struct {
	Limit  int
	Offset int
}

// NewPage clamps raw limit/offset values to sane bounds.
func NewPage(limit, offset int) Page {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
