package catalog

import "errors"

// ErrOutOfRange is returned when a page index points past the last page.
// Callers clamp before building, so seeing this error indicates a bug.
var ErrOutOfRange = errors.New("catalog: page index out of range")

// Control is a navigation action attached to a rendered page.
type Control int

const (
	ControlPrev Control = iota
	ControlNext
	ControlBack
	ControlHome
)

func (c Control) String() string {
	switch c {
	case ControlPrev:
		return "prev"
	case ControlNext:
		return "next"
	case ControlBack:
		return "back"
	case ControlHome:
		return "home"
	}
	return "unknown"
}

// Page is one bounded chunk of a category listing plus its navigation controls.
type Page struct {
	Items    []Category
	Controls []Control
	Index    int
	Count    int
}

// PageCount returns the number of pages needed to show n items pageSize at a
// time. Zero items still occupy one (empty) page so navigation stays valid.
func PageCount(n, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	if n <= 0 {
		return 1
	}
	return (n + pageSize - 1) / pageSize
}

// ClampPage forces a page index into [0, PageCount-1].
func ClampPage(index, n, pageSize int) int {
	last := PageCount(n, pageSize) - 1
	if index < 0 {
		return 0
	}
	if index > last {
		return last
	}
	return index
}

// BuildPage splits items into consecutive chunks of pageSize and returns the
// chunk at pageIndex together with its ordered navigation controls:
// Prev iff a page precedes, Next iff a page follows, Back iff hasParent,
// Home always. BuildPage is pure and deterministic.
func BuildPage(items []Category, pageSize, pageIndex int, hasParent bool) (Page, error) {
	if pageSize <= 0 {
		return Page{}, errors.New("catalog: page size must be positive")
	}
	if pageIndex < 0 {
		return Page{}, ErrOutOfRange
	}

	count := PageCount(len(items), pageSize)
	if pageIndex >= count {
		return Page{}, ErrOutOfRange
	}

	lo := pageIndex * pageSize
	hi := lo + pageSize
	if lo > len(items) {
		lo = len(items)
	}
	if hi > len(items) {
		hi = len(items)
	}

	controls := make([]Control, 0, 4)
	if pageIndex > 0 {
		controls = append(controls, ControlPrev)
	}
	if pageIndex < count-1 {
		controls = append(controls, ControlNext)
	}
	if hasParent {
		controls = append(controls, ControlBack)
	}
	controls = append(controls, ControlHome)

	return Page{
		Items:    items[lo:hi],
		Controls: controls,
		Index:    pageIndex,
		Count:    count,
	}, nil
}
