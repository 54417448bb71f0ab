package handlers

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Order listing uses a fixed page size; callers cannot raise it.
const orderPageSize = 100

func parsePageParam(raw string) (int64, error) {
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || page < 1 {
		return 0, errors.New("invalid page")
	}
	return page, nil
}

func totalPagesFor(count int64) int64 {
	pages := (count + orderPageSize - 1) / orderPageSize
	if pages == 0 {
		pages = 1
	}
	return pages
}

// orderPageLink builds an absolute listing URL from the configured public base
// URL, never from the incoming request.
func orderPageLink(baseURL, search, status string, page int64) string {
	params := url.Values{}
	if search != "" {
		params.Set("search", search)
	}
	if status != "" {
		params.Set("status", status)
	}
	params.Set("page", strconv.FormatInt(page, 10))
	return baseURL + "/api/order?" + params.Encode()
}

// buildOrderPage renders the listing envelope: next/previous links, total
// count, total pages, current page and the result window.
func buildOrderPage(baseURL, search, status string, page, count int64, results []gin.H) gin.H {
	totalPages := totalPagesFor(count)

	links := gin.H{"next": nil, "previous": nil}
	if page < totalPages {
		links["next"] = orderPageLink(baseURL, search, status, page+1)
	}
	if page > 1 {
		links["previous"] = orderPageLink(baseURL, search, status, page-1)
	}

	if results == nil {
		results = []gin.H{}
	}

	return gin.H{
		"links":        links,
		"count":        count,
		"total_pages":  totalPages,
		"current_page": page,
		"results":      results,
	}
}
