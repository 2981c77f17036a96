package selection

// PageWindow accumulates fetched pages for one query in fetch order.
//
// A static window wraps caller-supplied data instead: it never loads and
// never has more pages.
type PageWindow[T any] struct {
	query Query
	pages []Page[T]

	static      bool
	staticItems []T

	loadingFirst bool
	loadingNext  bool
}

// NewPageWindow returns an empty window for q.
func NewPageWindow[T any](q Query) *PageWindow[T] {
	return &PageWindow[T]{query: q}
}

// NewStaticWindow returns a window that always exposes items.
func NewStaticWindow[T any](items []T) *PageWindow[T] {
	return &PageWindow[T]{static: true, staticItems: items}
}

// Static reports whether the window wraps caller-supplied data.
func (w *PageWindow[T]) Static() bool {
	return w.static
}

// Query returns the query the window belongs to.
func (w *PageWindow[T]) Query() Query {
	return w.query
}

// Reset drops all pages and loading state and rebinds the window to q.
func (w *PageWindow[T]) Reset(q Query) {
	if w.static {
		return
	}
	w.query = q
	w.pages = nil
	w.loadingFirst = false
	w.loadingNext = false
}

// Append adds p if it belongs to the window's query and continues the
// window. Page 1 replaces whatever is there. Any other page must be the
// one the last page pointed to; repeats and gaps are ignored.
func (w *PageWindow[T]) Append(q Query, p Page[T]) bool {
	if w.static || !q.Equal(w.query) {
		return false
	}
	if p.CurrentPage <= 1 {
		w.pages = []Page[T]{p}
		return true
	}
	if len(w.pages) == 0 || w.pages[len(w.pages)-1].NextPage != p.CurrentPage {
		return false
	}
	w.pages = append(w.pages, p)
	return true
}

// Items returns the concatenation of every page's items.
func (w *PageWindow[T]) Items() []T {
	if w.static {
		return w.staticItems
	}
	n := 0
	for _, p := range w.pages {
		n += len(p.Items)
	}
	items := make([]T, 0, n)
	for _, p := range w.pages {
		items = append(items, p.Items...)
	}
	return items
}

// Len returns the number of accumulated items.
func (w *PageWindow[T]) Len() int {
	if w.static {
		return len(w.staticItems)
	}
	n := 0
	for _, p := range w.pages {
		n += len(p.Items)
	}
	return n
}

// PageCount returns the number of pages held.
func (w *PageWindow[T]) PageCount() int {
	return len(w.pages)
}

// HasNext reports whether the last page points at another one.
func (w *PageWindow[T]) HasNext() bool {
	if w.static || len(w.pages) == 0 {
		return false
	}
	return w.pages[len(w.pages)-1].HasNext()
}

// NextPage returns the page number to fetch next, or 0.
func (w *PageWindow[T]) NextPage() int {
	if !w.HasNext() {
		return 0
	}
	return w.pages[len(w.pages)-1].NextPage
}

// MarkLoading records that page is being fetched.
func (w *PageWindow[T]) MarkLoading(page int) {
	if w.static {
		return
	}
	if page <= 1 {
		w.loadingFirst = true
		return
	}
	w.loadingNext = true
}

// Settle clears both loading flags.
func (w *PageWindow[T]) Settle() {
	w.loadingFirst = false
	w.loadingNext = false
}

// IsLoading reports whether any fetch is outstanding.
func (w *PageWindow[T]) IsLoading() bool {
	return w.loadingFirst || w.loadingNext
}

// LoadingFirst reports whether page 1 is outstanding.
func (w *PageWindow[T]) LoadingFirst() bool {
	return w.loadingFirst
}

// LoadingNext reports whether a follow-up page is outstanding.
func (w *PageWindow[T]) LoadingNext() bool {
	return w.loadingNext
}
