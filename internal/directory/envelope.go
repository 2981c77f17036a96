package directory

import "github.com/runger/fleetdash/internal/selection"

// Envelope is the list response of the directory API:
//
//	{"data": {"items": [...], "pagination": {"currentPage": 1, "lastPage": 3}}}
type Envelope struct {
	Data EnvelopeData `json:"data"`
}

// EnvelopeData is the payload of an Envelope.
type EnvelopeData struct {
	Items      []Record   `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	LastPage    int `json:"lastPage"`
	PerPage     int `json:"perPage,omitempty"`
	Total       int `json:"total"`
}

// NextPage returns the page after the current one, or 0 on the last page.
func (p Pagination) NextPage() int {
	if p.CurrentPage < p.LastPage {
		return p.CurrentPage + 1
	}
	return 0
}

// Page normalizes the envelope into an engine page.
func (e Envelope) Page() selection.Page[Record] {
	items := e.Data.Items
	if items == nil {
		items = []Record{}
	}
	return selection.Page[Record]{
		Items:       items,
		CurrentPage: e.Data.Pagination.CurrentPage,
		NextPage:    e.Data.Pagination.NextPage(),
	}
}
