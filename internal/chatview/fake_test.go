package chatview

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruriclub/supportdesk/internal/backend"
	"github.com/ruriclub/supportdesk/internal/channel"
	"github.com/ruriclub/supportdesk/internal/directory"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

const (
	aiAgentID = 10
	adminID   = 3
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) model.Timestamp {
	return model.NewTimestamp(base.Add(time.Duration(sec) * time.Second))
}

// fakeAPI is an in-process support desk backend.
type fakeAPI struct {
	mu          sync.Mutex
	calls       map[string]int
	sends       []model.Message
	log         []model.Message
	assignments map[int64]model.AssignmentResponse
	aiReplies   []model.ChatResponse
	assignNext  model.RequestHumanResponse
	assignFails bool
	clients     map[int64][]model.AssignedClient
	employees   []model.EmployeeSummary
	withRecord  bool
	clock       func() time.Time
	tick        int

	hangPath string
	dropPath string
	entered  chan string
	hang     chan struct{}
	once     sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:       make(map[string]int),
		assignments: make(map[int64]model.AssignmentResponse),
		clients:     make(map[int64][]model.AssignedClient),
		entered:     make(chan string, 16),
		hang:        make(chan struct{}),
	}
}

func (f *fakeAPI) release() {
	f.once.Do(func() { close(f.hang) })
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeAPI) sent() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.sends...)
}

func (f *fakeAPI) now() time.Time {
	if f.clock != nil {
		return f.clock()
	}
	f.tick++
	return base.Add(time.Duration(100+f.tick) * time.Second)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	hang, drop := f.hangPath == r.URL.Path, f.dropPath == r.URL.Path
	f.mu.Unlock()

	if drop {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}
	if hang {
		f.entered <- r.URL.Path
		<-f.hang
	}
	f.router().ServeHTTP(w, r)
}

func (f *fakeAPI) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		reply := model.ChatResponse{Response: "How can I help?"}
		if len(f.aiReplies) > 0 {
			reply, f.aiReplies = f.aiReplies[0], f.aiReplies[1:]
		}
		writeJSON(w, http.StatusOK, reply)
	})

	r.Post("/chat/request-human", func(w http.ResponseWriter, r *http.Request) {
		var req model.RequestHumanRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.assignFails {
			writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "No employees available"})
			return
		}
		f.assignments[req.UserID] = model.AssignmentResponse{EmployeeID: f.assignNext.AssignedEmployee, EmployeeName: f.assignNext.AssignedName}
		writeJSON(w, http.StatusOK, f.assignNext)
	})

	r.Get("/assignment/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		a, ok := f.assignments[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "No assignment found"})
			return
		}
		writeJSON(w, http.StatusOK, a)
	})

	r.Get("/employee/{id}/assignments", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		rows := f.clients[id]
		if rows == nil {
			rows = []model.AssignedClient{}
		}
		writeJSON(w, http.StatusOK, rows)
	})

	r.Get("/admin/employees", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.employees)
	})

	r.Get("/admin/contact", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.Contact{UserID: adminID, FullName: "Admin"})
	})

	r.Get("/chat/employee/{emp}/client/{client}", func(w http.ResponseWriter, r *http.Request) {
		emp, _ := strconv.ParseInt(chi.URLParam(r, "emp"), 10, 64)
		client, _ := strconv.ParseInt(chi.URLParam(r, "client"), 10, 64)
		writeJSON(w, http.StatusOK, f.between(emp, client))
	})

	r.Get("/chat/admin/{emp}", func(w http.ResponseWriter, r *http.Request) {
		emp, _ := strconv.ParseInt(chi.URLParam(r, "emp"), 10, 64)
		writeJSON(w, http.StatusOK, f.between(emp, adminID))
	})

	r.Post("/chat/client/send", func(w http.ResponseWriter, r *http.Request) {
		var req model.ClientSendRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.store(w, req.ClientID, req.EmployeeID, req.Message, model.ChatTypeClientEmployee)
	})

	r.Post("/chat/employee/reply", func(w http.ResponseWriter, r *http.Request) {
		var req model.EmployeeReplyRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.store(w, req.EmployeeID, req.ClientID, req.Message, model.ChatTypeEmployeeClient)
	})

	r.Post("/admin/chat/send", func(w http.ResponseWriter, r *http.Request) {
		var req model.AdminSendRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.store(w, adminID, req.EmployeeID, req.Message, model.ChatTypeAdminEmployee)
	})

	r.Post("/chat/admin/employee-to-admin", func(w http.ResponseWriter, r *http.Request) {
		var req model.EmployeeToAdminRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.store(w, req.SenderID, adminID, req.Message, model.ChatTypeEmployeeAdmin)
	})

	return r
}

func (f *fakeAPI) store(w http.ResponseWriter, from, to int64, body string, kind model.ChatType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := model.Message{SenderID: from, ReceiverID: to, Body: body, CreatedAt: model.NewTimestamp(f.now()), ChatType: kind}
	f.log = append(f.log, m)
	f.sends = append(f.sends, m)
	ack := model.Ack{Status: "success"}
	if f.withRecord {
		ack.Record = &m
	}
	writeJSON(w, http.StatusOK, ack)
}

func (f *fakeAPI) between(a, b int64) []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Message{}
	for _, m := range f.log {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt.Time) })
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// newStack serves api over HTTP and builds the real directory and channel
// on top of the REST client.
func newStack(t *testing.T, api *fakeAPI) (*directory.Directory, *channel.Channel) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	t.Cleanup(api.release)

	log := logger.NewNop()
	client := backend.New(srv.URL, log)
	return directory.New(client, log), channel.New(client, channel.Options{AIAgentID: aiAgentID, AIName: "Ruri AI"}, log)
}

func waitEntered(t *testing.T, api *fakeAPI, path string) {
	t.Helper()
	select {
	case got := <-api.entered:
		if got != path {
			t.Fatalf("expected %s to hang, got %s", path, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("request to %s never arrived", path)
	}
}
