package middleware_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/transport/middleware"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
})

func decodeEnvelope(body *bytes.Buffer) map[string]interface{} {
	var env struct {
		Error map[string]interface{} `json:"error"`
	}
	Expect(json.Unmarshal(body.Bytes(), &env)).To(Succeed())
	return env.Error
}

var _ = Describe("CORS", func() {
	It("echoes an allowed origin", func() {
		h := middleware.CORS("https://app.example.com, https://admin.example.com/")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://admin.example.com"))
		Expect(rec.Header().Get("Access-Control-Expose-Headers")).To(Equal(middleware.TraceHeader))
	})

	It("does not echo an unknown origin", func() {
		h := middleware.CORS("https://app.example.com")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})

	It("allows any origin when configured with a wildcard", func() {
		h := middleware.CORS("*")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		Expect(rec.Header().Get("Access-Control-Allow-Credentials")).To(BeEmpty())
	})

	It("sends credentials only for a listed origin", func() {
		h := middleware.CORS("https://app.example.com")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))
	})

	It("allows no origin when none is configured", func() {
		h := middleware.CORS("")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		Expect(rec.Header().Get("Access-Control-Allow-Credentials")).To(BeEmpty())
	})

	It("answers preflight requests without calling the handler", func() {
		called := false
		h := middleware.CORS("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks/1", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(called).To(BeFalse())
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("PATCH"))
		Expect(rec.Header().Get("Access-Control-Allow-Headers")).To(ContainSubstring("Authorization"))
	})
})

var _ = Describe("RequestID", func() {
	It("generates a trace id and exposes it on the context and response", func() {
		var seen string
		h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = internal.TraceIDFromContext(r.Context())
		}))
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(seen).NotTo(BeEmpty())
		Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal(seen))
	})

	It("keeps a trace id supplied by the caller", func() {
		var seen string
		h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = internal.TraceIDFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.TraceHeader, "trace-123")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(seen).To(Equal("trace-123"))
		Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal("trace-123"))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	})

	It("converts a panic into a 500 envelope", func() {
		h := middleware.RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()

		Expect(func() {
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		}).NotTo(Panic())

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		env := decodeEnvelope(rec.Body)
		Expect(env["message"]).To(Equal("Internal server error"))
	})

	It("re-raises http.ErrAbortHandler", func() {
		h := middleware.RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		Expect(func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		}).To(PanicWith(http.ErrAbortHandler))
	})
})

var _ = Describe("RequirePermissions", func() {
	serve := func(user *auth.User) *httptest.ResponseRecorder {
		h := middleware.RequirePermissions(auth.PermManageUsers)(okHandler)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users", nil)
		if user != nil {
			req = req.WithContext(auth.ContextWithUser(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	It("rejects anonymous requests", func() {
		rec := serve(nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("forbids users without the permission", func() {
		rec := serve(&auth.User{ID: "u1", Role: auth.RoleOperator})
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(decodeEnvelope(rec.Body)["type"]).NotTo(BeEmpty())
	})

	It("lets holders of the permission through", func() {
		rec := serve(&auth.User{ID: "u2", Role: auth.RoleSenior, Permissions: []string{auth.PermManageUsers}})
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("always lets administrators through", func() {
		rec := serve(&auth.User{ID: "u3", Role: auth.RoleAdmin, IsAdmin: true})
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("UserContext", func() {
	It("passes anonymous requests through", func() {
		rec := httptest.NewRecorder()
		middleware.UserContext(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("LoggingMiddleware", func() {
	var (
		buf    *bytes.Buffer
		logger *slog.Logger
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		logger = slog.New(slog.NewJSONHandler(buf, nil))
	})

	It("masks sensitive body fields, headers and query values", func() {
		var received string
		h := middleware.LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			received = string(b)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"access_token":"abc","user":{"username":"ana"}}`))
		}))

		body := `{"username":"ana","password":"hunter22"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login?token=xyz&page=2", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer secret-jwt")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(received).To(Equal(body))
		Expect(rec.Code).To(Equal(http.StatusCreated))

		out := buf.String()
		Expect(out).NotTo(ContainSubstring("hunter22"))
		Expect(out).NotTo(ContainSubstring("secret-jwt"))
		Expect(out).NotTo(ContainSubstring("xyz"))
		Expect(out).NotTo(ContainSubstring(`\"abc\"`))
		Expect(out).To(ContainSubstring("ana"))
		Expect(out).To(ContainSubstring(`"status_code":201`))
	})

	It("skips configured prefixes", func() {
		h := middleware.LoggingMiddleware(logger, "/realtime")(okHandler)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/realtime/info", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(buf.Len()).To(BeZero())
	})

	It("logs server errors at error level", func() {
		h := middleware.LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

		Expect(buf.String()).To(ContainSubstring(`"level":"ERROR"`))
	})
})
