// Package drivetest runs an in-memory stand-in for the parts of the Drive v3,
// OAuth2 userinfo and Google token endpoints that drivegate talks to.
package drivetest

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

const (
	// AccessToken is accepted by every fake API endpoint.
	AccessToken = "drivetest-access-token"
	// AuthCode is the only authorization code the token endpoint exchanges.
	AuthCode = "drivetest-auth-code"

	folderMimeType = "application/vnd.google-apps.folder"
)

type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

var DefaultUser = User{
	ID:    "1000001",
	Name:  "Ada Lovelace",
	Email: "ada@example.com",
}

type File struct {
	ID       string
	Name     string
	MimeType string
	Owners   []string
	Content  []byte
}

type Server struct {
	*httptest.Server

	mu            sync.Mutex
	user          User
	files         map[string]*File
	order         []string
	tokens        map[string]bool
	nextID        int
	failDownloads bool
	failUploads   bool
	requests      []string
	sessions      map[string]*uploadSession
	chunkCount    int
}

// uploadSession is an open resumable upload.
type uploadSession struct {
	fileID   string
	name     string
	mimeType string
	content  []byte
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		user:     DefaultUser,
		files:    make(map[string]*File),
		tokens:   map[string]bool{AccessToken: true},
		sessions: make(map[string]*uploadSession),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", s.authorized(s.handleList))
	mux.HandleFunc("GET /drive/v3/files/{id}", s.authorized(s.handleGet))
	mux.HandleFunc("GET /drive/v3/about", s.authorized(s.handleAbout))
	mux.HandleFunc("POST /upload/drive/v3/files", s.authorized(s.handleUpload))
	mux.HandleFunc("PATCH /upload/drive/v3/files/{id}", s.authorized(s.handleUpload))
	mux.HandleFunc("PUT /upload/drive/v3/sessions/{sid}", s.handleChunk)
	mux.HandleFunc("POST /upload/drive/v3/sessions/{sid}", s.handleChunk)
	mux.HandleFunc("GET /oauth2/v2/userinfo", s.authorized(s.handleUserinfo))
	mux.HandleFunc("GET /o/oauth2/auth", s.handleConsent)
	mux.HandleFunc("POST /token", s.handleToken)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// DriveEndpoint is the base URL to pass to option.WithEndpoint for the Drive client.
func (s *Server) DriveEndpoint() string { return s.URL + "/drive/v3/" }

// APIEndpoint is the base URL for the oauth2/v2 client.
func (s *Server) APIEndpoint() string { return s.URL + "/" }

func (s *Server) AuthURL() string { return s.URL + "/o/oauth2/auth" }

func (s *Server) TokenURL() string { return s.URL + "/token" }

func (s *Server) SetUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// AddFile stores a file owned by the current user and returns its ID.
func (s *Server) AddFile(name, mimeType string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(name, mimeType, content)
}

func (s *Server) AddFolder(name string) string {
	return s.AddFile(name, folderMimeType, nil)
}

// File returns a copy of the stored file.
func (s *Server) File(id string) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return File{}, false
	}
	cp := *f
	cp.Content = append([]byte(nil), f.Content...)
	return cp, true
}

func (s *Server) FileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// FailDownloads makes every alt=media request return 500.
func (s *Server) FailDownloads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDownloads = fail
}

// FailUploads makes every upload return 500 after the body is consumed.
func (s *Server) FailUploads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = fail
}

// ResumableChunks counts the chunk requests received by resumable upload sessions.
func (s *Server) ResumableChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkCount
}

// Requests lists "METHOD path" for every request served, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) addLocked(name, mimeType string, content []byte) string {
	s.nextID++
	id := fmt.Sprintf("file-%04d", s.nextID)
	s.files[id] = &File{
		ID:       id,
		Name:     name,
		MimeType: mimeType,
		Owners:   []string{s.user.Email},
		Content:  content,
	}
	s.order = append(s.order, id)
	return id
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		ok := s.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		s.mu.Unlock()

		if !ok {
			writeError(w, http.StatusUnauthorized, "Request had invalid authentication credentials.")
			return
		}
		next(w, r)
	}
}

var (
	ownerClause  = regexp.MustCompile(`^'((?:[^'\\]|\\.)*)' in owners$`)
	mimeNeClause = regexp.MustCompile(`^mimeType != '([^']*)'$`)
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var owner, excludeType string
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		for _, clause := range strings.Split(q, " and ") {
			clause = strings.TrimSpace(clause)
			switch {
			case ownerClause.MatchString(clause):
				owner = unescapeQuery(ownerClause.FindStringSubmatch(clause)[1])
			case mimeNeClause.MatchString(clause):
				excludeType = mimeNeClause.FindStringSubmatch(clause)[1]
			default:
				writeError(w, http.StatusBadRequest, "Invalid Value")
				return
			}
		}
	}

	s.mu.Lock()
	files := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		f := s.files[id]
		if excludeType != "" && f.MimeType == excludeType {
			continue
		}
		if owner != "" && !contains(f.Owners, owner) {
			continue
		}
		files = append(files, fileJSON(f))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	f, ok := s.files[id]
	var meta map[string]any
	var content []byte
	var mimeType string
	if ok {
		meta = fileJSON(f)
		content = append([]byte(nil), f.Content...)
		mimeType = f.MimeType
	}
	failDownloads := s.failDownloads
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id+".")
		return
	}

	if r.URL.Query().Get("alt") != "media" {
		writeJSON(w, http.StatusOK, meta)
		return
	}
	if failDownloads {
		writeError(w, http.StatusInternalServerError, "Backend Error")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *Server) handleAbout(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	u := s.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"displayName":  u.Name,
			"emailAddress": u.Email,
		},
	})
}

func (s *Server) handleUserinfo(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	u := s.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("uploadType") {
	case "multipart":
		s.handleMultipartUpload(w, r)
	case "resumable":
		s.handleResumableStart(w, r)
	default:
		writeError(w, http.StatusNotImplemented, "unsupported uploadType")
	}
}

type uploadMeta struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

func (s *Server) handleMultipartUpload(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" {
		writeError(w, http.StatusBadRequest, "expected multipart/related body")
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing metadata part")
		return
	}
	var meta uploadMeta
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata part")
		return
	}

	mediaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing media part")
		return
	}
	content, err := io.ReadAll(mediaPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable media part")
		return
	}
	contentType := mediaPart.Header.Get("Content-Type")
	if meta.MimeType != "" {
		contentType = meta.MimeType
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(w, r.PathValue("id"), meta.Name, contentType, content)
}

// handleResumableStart opens an upload session and answers with its URI in
// the Location header. The content arrives in later chunk requests.
func (s *Server) handleResumableStart(w http.ResponseWriter, r *http.Request) {
	var meta uploadMeta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid metadata")
		return
	}
	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = r.Header.Get("X-Upload-Content-Type")
	}

	id := r.PathValue("id")

	s.mu.Lock()
	if _, ok := s.files[id]; id != "" && !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "File not found: "+id+".")
		return
	}
	s.nextID++
	sid := fmt.Sprintf("session-%04d", s.nextID)
	s.sessions[sid] = &uploadSession{fileID: id, name: meta.Name, mimeType: mimeType}
	s.mu.Unlock()

	w.Header().Set("Location", s.URL+"/upload/drive/v3/sessions/"+sid)
	w.WriteHeader(http.StatusOK)
}

// handleChunk appends one chunk to a session. The chunk carrying the total
// size in its Content-Range completes the upload.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable chunk")
		return
	}
	total, err := rangeTotal(r.Header.Get("Content-Range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.chunkCount++

	sess, ok := s.sessions[sid]
	if !ok {
		writeError(w, http.StatusNotFound, "upload session not found")
		return
	}
	sess.content = append(sess.content, data...)

	if total < 0 || int64(len(sess.content)) < total {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", len(sess.content)-1))
		if r.Header.Get("X-GUploader-No-308") == "yes" {
			w.Header().Set("X-Http-Status-Code-Override", "308")
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusPermanentRedirect)
		}
		return
	}

	delete(s.sessions, sid)
	s.storeLocked(w, sess.fileID, sess.name, sess.mimeType, sess.content)
}

// rangeTotal reads the total size from "bytes a-b/total" or "bytes */total".
// An unknown total ("*") is reported as -1.
func rangeTotal(header string) (int64, error) {
	byteRange, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	_, total, ok := strings.Cut(byteRange, "/")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	if total == "*" {
		return -1, nil
	}
	var n int64
	if _, err := fmt.Sscan(total, &n); err != nil {
		return 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	return n, nil
}

// storeLocked creates a file, or overwrites id when set, and writes its metadata.
func (s *Server) storeLocked(w http.ResponseWriter, id, name, contentType string, content []byte) {
	if s.failUploads {
		writeError(w, http.StatusInternalServerError, "Backend Error")
		return
	}

	var f *File
	if id != "" {
		existing, ok := s.files[id]
		if !ok {
			writeError(w, http.StatusNotFound, "File not found: "+id+".")
			return
		}
		if name != "" {
			existing.Name = name
		}
		existing.MimeType = contentType
		existing.Content = content
		f = existing
	} else {
		f = s.files[s.addLocked(name, contentType, content)]
	}

	writeJSON(w, http.StatusOK, fileJSON(f))
}

// handleConsent approves every request immediately, as if the user clicked "Allow".
func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	params := redirect.Query()
	params.Set("code", AuthCode)
	params.Set("state", q.Get("state"))
	redirect.RawQuery = params.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != AuthCode {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	case "refresh_token":
		if r.PostForm.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	s.mu.Lock()
	s.nextID++
	token := fmt.Sprintf("drivetest-token-%04d", s.nextID)
	s.tokens[token] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  token,
		"token_type":    "Bearer",
		"refresh_token": "drivetest-refresh-token",
		"expires_in":    3600,
		"scope":         r.PostForm.Get("scope"),
	})
}

func fileJSON(f *File) map[string]any {
	return map[string]any{
		"id":       f.ID,
		"name":     f.Name,
		"mimeType": f.MimeType,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}

func unescapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
