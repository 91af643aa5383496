package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	taskDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/task"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
	"github.com/marvellous-media/marvellous-manager/internal/task"
	taskPostgres "github.com/marvellous-media/marvellous-manager/internal/task/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/transport/middleware"
	"github.com/marvellous-media/marvellous-manager/internal/transport/rest"
)

const (
	accessSecret  = "router-test-access-secret-0123456789abcdef"
	refreshSecret = "router-test-refresh-secret-0123456789abcdef"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Router Suite")
}

type principals map[string]*auth.User

func (p principals) GetCredentials(ctx context.Context, username string) (*auth.Credentials, error) {
	return nil, appErrors.ErrUserNotFound
}

func (p principals) GetPrincipal(ctx context.Context, userID string) (*auth.User, error) {
	if u, ok := p[userID]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, appErrors.ErrUserNotFound
}

var _ = Describe("RegisterAllRoutes", func() {
	var (
		router    *chi.Mux
		tokens    *auth.JWTTokenGenerator
		hub       *realtime.Hub
		adminTok  string
		opTok     string
		sqlxDB    *sqlx.DB
		eventBus  *events.EventBus
		discarded *slog.Logger
	)

	BeforeEach(func() {
		discarded = slog.New(slog.NewTextHandler(io.Discard, nil))

		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&taskDatamodel.Board{}, &taskDatamodel.Task{}, &taskDatamodel.TaskAssignment{}, &taskDatamodel.Subtask{})).To(Succeed())
		sqlxDB = sqlx.NewDb(sqlDB, "sqlite3")

		tokens = auth.NewJWTTokenGenerator(accessSecret, refreshSecret, time.Minute, time.Hour)
		authService := auth.NewService(principals{
			"11111111-1111-1111-1111-111111111111": {ID: "11111111-1111-1111-1111-111111111111", Username: "anna", Role: auth.RoleAdmin, IsAdmin: true},
			"22222222-2222-2222-2222-222222222222": {ID: "22222222-2222-2222-2222-222222222222", Username: "otto", Role: auth.RoleOperator},
		}, tokens, nil, discarded)

		adminTok, err = tokens.GenerateAccessToken("11111111-1111-1111-1111-111111111111", "anna", auth.RoleAdmin)
		Expect(err).NotTo(HaveOccurred())
		opTok, err = tokens.GenerateAccessToken("22222222-2222-2222-2222-222222222222", "otto", auth.RoleOperator)
		Expect(err).NotTo(HaveOccurred())

		hub = realtime.NewHub(discarded)
		eventBus = events.NewEventBus(discarded)
		taskService := task.NewService(taskPostgres.NewTaskRepository(db), realtime.NewMemoryBroker(hub), eventBus, discarded)

		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Health: rest.NewHealthHandler(sqlxDB, hub),
			Auth:   auth.NewHandler(authService),
			Task:   task.NewHandler(taskService),
		}, rest.Options{AllowedOrigins: "http://localhost:5173"}, discarded)
	})

	AfterEach(func() {
		Expect(eventBus.Wait(context.Background())).To(Succeed())
		Expect(sqlxDB.Close()).To(Succeed())
	})

	do := func(method, path, token string, body interface{}) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(b)
		}
		req := httptest.NewRequest(method, path, reader)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("answers ping without authentication and tags the trace id", func() {
		rec := do(http.MethodGet, "/api/v1/ping", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get(middleware.TraceHeader)).NotTo(BeEmpty())
	})

	It("reports database and realtime health", func() {
		rec := do(http.MethodGet, "/api/v1/health", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp rest.HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal(rest.HealthHealthy))
		Expect(resp.Components).To(HaveKey("postgres"))
		Expect(resp.Components).To(HaveKey("realtime"))
	})

	It("serves the OpenAPI document", func() {
		rec := do(http.MethodGet, "/openapi.yml", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("openapi:"))
	})

	It("requires a bearer token on protected routes", func() {
		rec := do(http.MethodGet, "/api/v1/boards", "", nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects an invalid token", func() {
		rec := do(http.MethodGet, "/api/v1/boards", "not-a-jwt", nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("guards board management with the task permission", func() {
		rec := do(http.MethodPost, "/api/v1/boards", opTok, map[string]string{"name": "Studio"})
		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})

	It("lets an administrator create and list boards", func() {
		rec := do(http.MethodPost, "/api/v1/boards", adminTok, map[string]string{"name": "Studio"})
		Expect(rec.Code).To(Equal(http.StatusCreated))

		rec = do(http.MethodGet, "/api/v1/boards", opTok, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp struct {
			Boards []task.Board `json:"boards"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Boards).To(HaveLen(1))
		Expect(resp.Boards[0].Name).To(Equal("Studio"))
	})

	It("answers CORS preflight before authentication", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/boards", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:5173"))
	})

	It("leaves unmounted modules out", func() {
		rec := do(http.MethodGet, "/api/v1/shifts", adminTok, nil)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})
})
