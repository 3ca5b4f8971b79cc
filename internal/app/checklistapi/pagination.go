package checklistapi

import (
	"net/http"
	"strconv"

	"github.com/checklist-api/project/internal/app/checklist"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

type pageRequest struct {
	limit  int
	number int
}

func (p pageRequest) page() checklist.Page {
	return checklist.Page{Limit: p.limit, Offset: (p.number - 1) * p.limit}
}

// parsePage reads page_limit and page_number; missing or invalid values fall
// back to the defaults.
func parsePage(r *http.Request) pageRequest {
	p := pageRequest{limit: defaultPageLimit, number: 1}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page_limit")); err == nil && v > 0 {
		p.limit = min(v, maxPageLimit)
	}
	if v, err := strconv.Atoi(q.Get("page_number")); err == nil && v > 0 {
		p.number = v
	}
	return p
}

type meta struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

type pageLinks struct {
	First string  `json:"first"`
	Last  *string `json:"last"`
	Next  *string `json:"next"`
	Prev  *string `json:"prev"`
}

type pageEnvelope[T any] struct {
	Meta  meta      `json:"meta"`
	Links pageLinks `json:"links"`
	Data  []T       `json:"data"`
}

func paginate[T any](baseURL, path string, p pageRequest, total int, data []T) pageEnvelope[T] {
	if data == nil {
		data = []T{}
	}
	link := func(number int) *string {
		s := baseURL + path + "?page_limit=" + strconv.Itoa(p.limit) + "&page_number=" + strconv.Itoa(number)
		return &s
	}

	pages := (total + p.limit - 1) / p.limit
	links := pageLinks{First: *link(1)}
	if pages > 0 {
		links.Last = link(pages)
	}
	if p.number < pages {
		links.Next = link(p.number + 1)
	}
	if p.number > 1 {
		links.Prev = link(p.number - 1)
	}
	return pageEnvelope[T]{
		Meta:  meta{Count: len(data), Total: total},
		Links: links,
		Data:  data,
	}
}
