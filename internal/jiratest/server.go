// Package jiratest runs an in-process fake Jira server for tests.
package jiratest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
)

const (
	Username = "backup-bot"
	Password = "s3cret"
)

// Issue is one issue served by the fake
type Issue struct {
	Key         string
	Status      string
	Summary     string
	Attachments []Attachment
}

// Attachment is one attachment served by the fake
type Attachment struct {
	Filename string
	Body     []byte
}

// SearchCall records one request to the search endpoint
type SearchCall struct {
	JQL        string
	StartAt    int
	MaxResults int
	Fields     string
	OrderBy    string
}

// Server is a fake Jira. Issues listed twice are returned twice by search,
// which is how tests provoke duplicate references.
type Server struct {
	*httptest.Server

	Board string

	mu          sync.Mutex
	issues      []Issue
	searches    []SearchCall
	fetches     map[string]int
	downloads   map[string]int
	failures    map[string][]int
	requireAuth bool
	totalOffset int
}

// New starts a fake serving issues for board "TEST". It is closed when the test ends.
func New(t testing.TB, issues ...Issue) *Server {
	t.Helper()

	s := &Server{
		Board:       "TEST",
		issues:      issues,
		fetches:     make(map[string]int),
		downloads:   make(map[string]int),
		failures:    make(map[string][]int),
		requireAuth: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/2/search", s.handleSearch)
	mux.HandleFunc("GET /rest/api/2/issue/{key}", s.handleIssue)
	mux.HandleFunc("GET /secure/attachment/{key}/{index}/{name}", s.handleAttachment)

	s.Server = httptest.NewServer(s.middleware(mux))
	t.Cleanup(s.Close)
	return s
}

// FailNext makes the next len(codes) requests whose path equals path answer
// with the given status codes, in order
func (s *Server) FailNext(path string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], codes...)
}

// AllowAnonymous disables the basic auth check
func (s *Server) AllowAnonymous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = false
}

// InflateTotal makes search report delta more issues than it serves
func (s *Server) InflateTotal(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOffset = delta
}

// SetIssues replaces the served issues
func (s *Server) SetIssues(issues ...Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = issues
}

// IssueURL is the canonical self URL of key
func (s *Server) IssueURL(key string) string {
	return s.URL + "/rest/api/2/issue/" + key
}

// Searches returns every search request seen so far
func (s *Server) Searches() []SearchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SearchCall(nil), s.searches...)
}

// Fetches returns how many times issue key was fetched
func (s *Server) Fetches(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[key]
}

// TotalFetches returns the number of issue fetches across all keys
func (s *Server) TotalFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.fetches {
		n += c
	}
	return n
}

// Downloads returns how many times the attachment with filename was downloaded
func (s *Server) Downloads(filename string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads[filename]
}

// IssueJSON renders the document served for issue i
func (s *Server) IssueJSON(i Issue) []byte {
	s.mu.Lock()
	n := s.index(i.Key)
	s.mu.Unlock()
	return s.render(i, n)
}

func (s *Server) render(i Issue, id int) []byte {
	attachments := make([]map[string]interface{}, 0, len(i.Attachments))
	for n, a := range i.Attachments {
		attachments = append(attachments, map[string]interface{}{
			"filename": a.Filename,
			"content":  fmt.Sprintf("%s/secure/attachment/%s/%d/%s", s.URL, i.Key, n, url.PathEscape(a.Filename)),
			"size":     len(a.Body),
			"mimeType": "application/octet-stream",
		})
	}

	doc := map[string]interface{}{
		"expand": "renderedFields,names,schema",
		"id":     strconv.Itoa(10000 + id),
		"self":   s.IssueURL(i.Key),
		"key":    i.Key,
		"fields": map[string]interface{}{
			"summary":    i.Summary,
			"status":     map[string]interface{}{"name": i.Status, "id": "1"},
			"attachment": attachments,
		},
	}
	data, _ := json.Marshal(doc)
	return data
}

func (s *Server) index(key string) int {
	for n, i := range s.issues {
		if i.Key == key {
			return n
		}
	}
	return -1
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		requireAuth := s.requireAuth
		var code int
		if queue := s.failures[r.URL.Path]; len(queue) > 0 {
			code = queue[0]
			s.failures[r.URL.Path] = queue[1:]
		}
		s.mu.Unlock()

		if requireAuth {
			user, pass, ok := r.BasicAuth()
			if !ok || user != Username || pass != Password {
				http.Error(w, `{"errorMessages":["unauthorized"]}`, http.StatusUnauthorized)
				return
			}
		}
		if code != 0 {
			http.Error(w, http.StatusText(code), code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startAt, _ := strconv.Atoi(q.Get("startAt"))
	maxResults, _ := strconv.Atoi(q.Get("maxResults"))

	s.mu.Lock()
	s.searches = append(s.searches, SearchCall{
		JQL:        q.Get("jql"),
		StartAt:    startAt,
		MaxResults: maxResults,
		Fields:     q.Get("fields"),
		OrderBy:    q.Get("orderBy"),
	})
	issues := s.issues
	total := len(issues) + s.totalOffset
	s.mu.Unlock()

	if q.Get("jql") != "project="+s.Board {
		http.Error(w, `{"errorMessages":["unknown project"]}`, http.StatusBadRequest)
		return
	}

	refs := make([]map[string]string, 0)
	for n := startAt; n < len(issues) && n < startAt+maxResults; n++ {
		refs = append(refs, map[string]string{
			"id":   strconv.Itoa(10000 + n),
			"key":  issues[n].Key,
			"self": s.IssueURL(issues[n].Key),
		})
	}

	writeJSON(w, map[string]interface{}{
		"expand":     "schema,names",
		"startAt":    startAt,
		"maxResults": maxResults,
		"total":      total,
		"issues":     refs,
	})
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	s.mu.Lock()
	n := s.index(key)
	s.fetches[key]++
	var body []byte
	if n >= 0 {
		body = s.render(s.issues[n], n)
	}
	s.mu.Unlock()

	if n < 0 {
		http.Error(w, `{"errorMessages":["Issue Does Not Exist"]}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	index, err := strconv.Atoi(r.PathValue("index"))

	s.mu.Lock()
	n := s.index(key)
	var body []byte
	var name string
	found := err == nil && n >= 0 && index >= 0 && index < len(s.issues[n].Attachments)
	if found {
		a := s.issues[n].Attachments[index]
		body, name = a.Body, a.Filename
		s.downloads[name]++
	}
	s.mu.Unlock()

	if !found {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
