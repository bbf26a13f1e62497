package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/killallgit/normachat/pkg/backend"
	"github.com/killallgit/normachat/pkg/chat"
	"github.com/killallgit/normachat/pkg/httpretry"
	"github.com/killallgit/normachat/pkg/norma"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Accept string
	Body   string
}

// fakeBackend records every request and answers from a route table
type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]http.HandlerFunc
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		Accept: r.Header.Get("Accept"),
		Body:   string(body),
	})
	handler, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

func (f *fakeBackend) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func jsonReply(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		fake   *fakeBackend
		server *httptest.Server
		client *backend.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeBackend{routes: map[string]http.HandlerFunc{}}
		server = httptest.NewServer(fake)

		var err error
		client, err = backend.New(backend.Options{
			BaseURL: server.URL,
			Token:   "secret",
			Timeout: 5 * time.Second,
			Retry:   httpretry.Config{MaxRetries: 2, BackoffBase: time.Millisecond},
		})
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("New", func() {
		It("rejects a missing or relative url", func() {
			_, err := backend.New(backend.Options{})
			Expect(err).To(HaveOccurred())

			_, err = backend.New(backend.Options{BaseURL: "localhost"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Conversations", func() {
		It("lists with filters and the bearer credential", func() {
			archived := false
			fake.routes["GET /api/v1/conversations"] = jsonReply(http.StatusOK, []chat.Conversation{
				{ID: "c1", Title: "Despidos", ChatType: "laboral"},
			})

			convs, err := client.ListConversations(ctx, backend.ListOptions{Limit: 20, Archived: &archived})

			Expect(err).ToNot(HaveOccurred())
			Expect(convs).To(HaveLen(1))
			Expect(convs[0].Title).To(Equal("Despidos"))
			Expect(fake.last().Auth).To(Equal("Bearer secret"))
			Expect(fake.last().Query).To(Equal("archived=false&limit=20"))
		})

		It("sends partial updates", func() {
			fake.routes["PATCH /api/v1/conversations/c1"] = jsonReply(http.StatusOK, chat.Conversation{ID: "c1", Title: "Nuevo"})

			conv, err := client.RenameConversation(ctx, "c1", "Nuevo")

			Expect(err).ToNot(HaveOccurred())
			Expect(conv.Title).To(Equal("Nuevo"))
			Expect(fake.last().Body).To(MatchJSON(`{"title":"Nuevo"}`))
		})

		It("archives without touching the title", func() {
			fake.routes["PATCH /api/v1/conversations/c1"] = jsonReply(http.StatusOK, chat.Conversation{ID: "c1", Archived: true})

			_, err := client.ArchiveConversation(ctx, "c1", true)

			Expect(err).ToNot(HaveOccurred())
			Expect(fake.last().Body).To(MatchJSON(`{"archived":true}`))
		})

		It("deletes and accepts an empty response", func() {
			fake.routes["DELETE /api/v1/conversations/c1"] = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}

			Expect(client.DeleteConversation(ctx, "c1")).To(Succeed())
		})

		It("maps 404 to ErrNotFound", func() {
			_, err := client.GetConversation(ctx, "missing")

			Expect(errors.Is(err, backend.ErrNotFound)).To(BeTrue())
			var statusErr *backend.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("resumes a session from the conversation and its transcript", func() {
			fake.routes["GET /api/v1/conversations/c1"] = jsonReply(http.StatusOK, chat.Conversation{ID: "c1", ChatType: "laboral"})
			fake.routes["GET /api/v1/conversations/c1/messages"] = jsonReply(http.StatusOK, []chat.Message{
				{ID: "m1", Role: chat.RoleUser, Content: "hola"},
				{ID: "m2", Role: chat.RoleAssistant, Content: "buenas"},
			})

			session, err := client.ResumeSession(ctx, "c1", "formal")

			Expect(err).ToNot(HaveOccurred())
			Expect(session.ID()).To(Equal("c1"))
			Expect(session.ChatType).To(Equal("laboral"))
			Expect(session.Messages).To(HaveLen(2))
			Expect(session.Busy()).To(BeFalse())
		})
	})

	Describe("Retries", func() {
		It("retries idempotent reads on server errors", func() {
			var attempts int32
			fake.routes["GET /api/v1/favorites"] = func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&attempts, 1) < 3 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				jsonReply(http.StatusOK, []map[string]int64{{"norma_id": 9}, {"norma_id": 5}})(w, r)
			}

			ids, err := client.ListFavorites(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(ids).To(Equal([]int64{5, 9}))
			Expect(atomic.LoadInt32(&attempts)).To(Equal(int32(3)))
		})

		It("never retries writes", func() {
			fake.routes["POST /api/v1/favorites"] = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}

			err := client.AddFavorite(ctx, 7)

			var statusErr *backend.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Temporary()).To(BeTrue())
			Expect(fake.count()).To(Equal(1))
		})
	})

	Describe("SendMessage", func() {
		It("posts the request and returns the open event stream", func() {
			fake.routes["POST /api/v1/chat/messages"] = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, "data: {\"content\":\"hola\"}\n")
			}

			body, err := client.SendMessage(ctx, chat.SendRequest{Message: "¿Qué dice el artículo 14?", ChatType: "constitucional", Tone: "simple"})
			Expect(err).ToNot(HaveOccurred())
			defer body.Close()

			data, err := io.ReadAll(body)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal("data: {\"content\":\"hola\"}\n"))

			req := fake.last()
			Expect(req.Accept).To(Equal("text/event-stream"))
			Expect(req.Auth).To(Equal("Bearer secret"))
			Expect(req.Body).To(MatchJSON(`{"message":"¿Qué dice el artículo 14?","chat_type":"constitucional","tone":"simple"}`))
		})

		It("returns a status error without retrying", func() {
			fake.routes["POST /api/v1/chat/messages"] = func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			}

			_, err := client.SendMessage(ctx, chat.SendRequest{Message: "x", ChatType: "laboral"})

			var statusErr *backend.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Body).To(Equal("overloaded"))
			Expect(fake.count()).To(Equal(1))
		})

		It("requires a chat type", func() {
			_, err := client.SendMessage(ctx, chat.SendRequest{Message: "x"})
			Expect(err).To(HaveOccurred())
			Expect(fake.count()).To(BeZero())
		})

		It("drives a streamer end to end", func() {
			fake.routes["POST /api/v1/chat/messages"] = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, strings.Join([]string{
					`data: {"content":"La "}`,
					`data: {"content":"Constitución..."}`,
					`data: {"done":true,"session_id":"abc123","norma_ids":[5,9]}`,
				}, "\n")+"\n")
			}

			var created string
			streamer := chat.NewStreamer(client, chat.NewSession("constitucional", ""), chat.Handlers{
				OnConversationCreated: func(id string) { created = id },
			})

			Expect(streamer.Send(ctx, "¿Qué dice el artículo 14?")).To(Succeed())
			Expect(created).To(Equal("abc123"))
			Expect(streamer.Session().Messages[1].RelevantDocs()).To(Equal([]int64{5, 9}))
		})
	})

	Describe("Feedback", func() {
		It("creates and deletes feedback", func() {
			fake.routes["POST /api/v1/messages/m1/feedback"] = jsonReply(http.StatusCreated, map[string]string{"status": "ok"})
			fake.routes["DELETE /api/v1/messages/m1/feedback"] = jsonReply(http.StatusOK, nil)

			Expect(client.CreateFeedback(ctx, "m1", chat.FeedbackLike)).To(Succeed())
			Expect(fake.last().Body).To(MatchJSON(`{"type":"like"}`))
			Expect(client.DeleteFeedback(ctx, "m1")).To(Succeed())
		})

		It("rejects unknown kinds locally", func() {
			Expect(client.CreateFeedback(ctx, "m1", "love")).ToNot(Succeed())
			Expect(fake.count()).To(BeZero())
		})
	})

	Describe("LookupNormas", func() {
		It("normalizes ids and returns found and not-found partitions", func() {
			fake.routes["POST /api/v1/normas/batch"] = jsonReply(http.StatusOK, map[string]any{
				"found":     []map[string]any{{"id": 5, "tipo_norma": "Ley", "numero": "20744"}},
				"not_found": []int64{9},
			})

			result, err := client.LookupNormas(ctx, []int64{9, 5, 9})

			Expect(err).ToNot(HaveOccurred())
			Expect(fake.last().Body).To(MatchJSON(`{"ids":[5,9]}`))
			Expect(result.NotFound).To(Equal([]int64{9}))
			Expect(result.ByID()).To(HaveKey(int64(5)))
			Expect(result.Found[0].Source).To(Equal(norma.SourceBackend))
		})

		It("skips the request for an empty set", func() {
			result, err := client.LookupNormas(ctx, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Found).To(BeEmpty())
			Expect(fake.count()).To(BeZero())
		})
	})
})
