package pickerapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockServer provides a configurable processing-service mock for tests.
// It implements the full session HTTP contract in-memory and records the
// calls it receives.
type MockServer struct {
	*httptest.Server

	mu        sync.RWMutex
	nextID    int
	statuses  []SessionStatus // queue consumed by consecutive status polls
	results   []FrameResult
	frames    map[int][]byte
	failures  map[string]int // endpoint -> number of failures before success
	lastBody  map[string]string
	calls     map[string]int
	deleted   []string
}

// NewMockServer creates a mock with one completed-after-two-polls default
// script and a single default frame.
func NewMockServer() *MockServer {
	m := &MockServer{
		frames:   make(map[int][]byte),
		failures: make(map[string]int),
		lastBody: make(map[string]string),
		calls:    make(map[string]int),
	}
	m.SetDefaultData()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", m.handleCreate)
	mux.HandleFunc("/api/sessions/", m.handleSession)
	m.Server = httptest.NewServer(mux)
	return m
}

// SetDefaultData resets the mock to its default script.
func (m *MockServer) SetDefaultData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = []SessionStatus{
		{Status: StatusProcessing, Progress: 20, Message: "Extracting frames from video..."},
		{Status: StatusProcessing, Progress: 50, Message: "Analyzing 12 frames..."},
		{Status: StatusCompleted, Progress: 100, Message: "Processing completed successfully. Found 1 frame(s)."},
	}
	m.results = []FrameResult{
		{FrameIndex: 0, Score: 0.87, Timestamp: 4.2, Width: 1280, Height: 720, FileSize: 52341, DownloadURL: "/api/sessions/mock/download/0"},
	}
	m.frames = map[int][]byte{0: []byte("\xff\xd8\xff\xe0mockjpeg")}
	m.deleted = nil
}

// ScriptStatuses replaces the poll script. Each poll consumes one entry;
// the final entry repeats once the queue is exhausted.
func (m *MockServer) ScriptStatuses(statuses ...SessionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = statuses
}

// SetResults replaces the results payload.
func (m *MockServer) SetResults(results ...FrameResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
}

// SetFrame sets the bytes served for one frame index.
func (m *MockServer) SetFrame(index int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[index] = data
}

// FailNext makes the named endpoint (create, upload, process, status,
// results, download, delete) fail n times with HTTP 500 before succeeding.
func (m *MockServer) FailNext(endpoint string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[endpoint] = n
}

// Calls reports how often the named endpoint was hit.
func (m *MockServer) Calls(endpoint string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[endpoint]
}

// LastBody returns the last raw request body seen on the named endpoint.
func (m *MockServer) LastBody(endpoint string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBody[endpoint]
}

// Deleted returns the session ids that received a DELETE.
func (m *MockServer) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

func (m *MockServer) failing(endpoint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[endpoint]++
	if m.failures[endpoint] > 0 {
		m.failures[endpoint]--
		return true
	}
	return false
}

func (m *MockServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if m.failing("create") {
		http.Error(w, "session store unavailable", http.StatusInternalServerError)
		return
	}
	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("mock-session-%d", m.nextID)
	m.mu.Unlock()
	writeMockJSON(w, Session{SessionID: id, Status: StatusCreated, Message: "Session created successfully"})
}

func (m *MockServer) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(rest, "/")
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if m.failing("delete") {
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}
		m.mu.Lock()
		m.deleted = append(m.deleted, id)
		m.mu.Unlock()
		writeMockJSON(w, map[string]string{"message": "Session cleaned up successfully"})

	case len(parts) == 2 && parts[1] == "upload":
		if m.failing("upload") {
			http.Error(w, "upload failed", http.StatusInternalServerError)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart body", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("video"); err != nil {
			http.Error(w, "missing video field", http.StatusBadRequest)
			return
		}
		writeMockJSON(w, map[string]string{"message": "Video uploaded successfully", "session_id": id})

	case len(parts) == 2 && parts[1] == "process":
		if m.failing("process") {
			http.Error(w, "processing start failed", http.StatusInternalServerError)
			return
		}
		body := new(strings.Builder)
		if _, err := copyBody(body, r); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.lastBody["process"] = body.String()
		m.mu.Unlock()
		writeMockJSON(w, map[string]any{"session_id": id, "status": StatusProcessing, "message": "Video processing started", "estimated_time": 30})

	case len(parts) == 2 && parts[1] == "status":
		if m.failing("status") {
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		m.mu.Lock()
		var st SessionStatus
		if len(m.statuses) > 1 {
			st, m.statuses = m.statuses[0], m.statuses[1:]
		} else if len(m.statuses) == 1 {
			st = m.statuses[0]
		}
		m.mu.Unlock()
		st.SessionID = id
		writeMockJSON(w, st)

	case len(parts) == 2 && parts[1] == "results":
		if m.failing("results") {
			http.Error(w, "results unavailable", http.StatusInternalServerError)
			return
		}
		m.mu.RLock()
		results := append([]FrameResult(nil), m.results...)
		m.mu.RUnlock()
		writeMockJSON(w, results)

	case len(parts) == 3 && parts[1] == "download":
		if m.failing("download") {
			http.Error(w, "download unavailable", http.StatusInternalServerError)
			return
		}
		idx, err := strconv.Atoi(parts[2])
		if err != nil {
			http.Error(w, "bad frame index", http.StatusBadRequest)
			return
		}
		m.mu.RLock()
		data, ok := m.frames[idx]
		m.mu.RUnlock()
		if !ok {
			http.Error(w, "frame not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(data)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func copyBody(dst *strings.Builder, r *http.Request) (int64, error) {
	defer func() { _ = r.Body.Close() }()
	return io.Copy(dst, r.Body)
}

func writeMockJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
