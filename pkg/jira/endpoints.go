package jira

import (
	"fmt"
	"net/url"
	"strings"
)

// SearchEndpoint is the issue search resource
const SearchEndpoint = "/rest/api/2/search"

// SearchURL builds the page query for board. Only the key field is requested
// and results are ordered by key.
func SearchURL(base, board string, startAt, maxResults int) string {
	query := fmt.Sprintf("jql=%s&startAt=%d&maxResults=%d&fields=key&orderBy=key",
		url.QueryEscape("project="+board), startAt, maxResults)
	return joinPath(base, SearchEndpoint) + "?" + query
}

// joinPath appends an absolute API path to base, keeping any context path
// the server is mounted under
func joinPath(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
