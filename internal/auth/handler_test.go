package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marvellous-media/marvellous-manager/internal/auth"
)

var _ = Describe("AuthHandler", func() {
	var (
		handler *auth.Handler
		service *auth.Service
	)

	BeforeEach(func() {
		generator := auth.NewJWTTokenGenerator(accessSecret, refreshSecret, time.Minute, time.Hour)
		service = auth.NewService(newMockUserRepository(), generator, nil, discardLogger())
		handler = auth.NewHandler(service)
	})

	login := func(username, password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"username": username, "password": password})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		handler.Login(rec, req)
		return rec
	}

	It("returns tokens on a good login", func() {
		rec := login("anna", "correct_password")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var tokens auth.AuthTokens
		Expect(json.Unmarshal(rec.Body.Bytes(), &tokens)).To(Succeed())
		Expect(tokens.AccessToken).NotTo(BeEmpty())
	})

	It("returns 401 with an error envelope on a bad login", func() {
		rec := login("anna", "wrong")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(rec.Body.String()).To(ContainSubstring(`"code":"INVALID_CREDENTIALS"`))
	})

	It("rejects unknown fields in the body", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"x","password":"y"}`))
		rec := httptest.NewRecorder()
		handler.Login(rec, req)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	Describe("AuthMiddleware", func() {
		var reached *auth.User

		protected := func(token string) *httptest.ResponseRecorder {
			reached = nil
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached, _ = auth.UserFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()
			handler.AuthMiddleware(next).ServeHTTP(rec, req)
			return rec
		}

		It("rejects requests without a token", func() {
			Expect(protected("").Code).To(Equal(http.StatusUnauthorized))
			Expect(reached).To(BeNil())
		})

		It("loads the principal with permissions into the context", func() {
			tokens, err := service.Authenticate(context.Background(), auth.LoginDTO{Username: "sally", Password: "correct_password"})
			Expect(err).NotTo(HaveOccurred())

			rec := protected(tokens.AccessToken)
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(reached).NotTo(BeNil())
			Expect(reached.ID).To(Equal("u-senior"))
			Expect(reached.HasPermission(auth.PermManageShifts)).To(BeTrue())
		})
	})

	Describe("RBACAuthorization", func() {
		var rbac *auth.RBACAuthorization

		BeforeEach(func() {
			rbac = auth.NewRBACAuthorization(nil, discardLogger())
		})

		serve := func(mw func(http.Handler) http.Handler, user *auth.User) int {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			req := httptest.NewRequest(http.MethodPatch, "/api/v1/leave-requests/x/approve", nil)
			if user != nil {
				req = req.WithContext(auth.ContextWithUser(req.Context(), user))
			}
			rec := httptest.NewRecorder()
			mw(next).ServeHTTP(rec, req)
			return rec.Code
		}

		It("forbids operators from approving", func() {
			op := &auth.User{ID: "u-op", Role: auth.RoleOperator}
			Expect(serve(rbac.RequireApproveRequests(), op)).To(Equal(http.StatusForbidden))
		})

		It("allows administrators", func() {
			admin := &auth.User{ID: "u-admin", Role: auth.RoleAdmin}
			Expect(serve(rbac.RequireApproveRequests(), admin)).To(Equal(http.StatusOK))
			Expect(serve(rbac.RequireAdmin(), admin)).To(Equal(http.StatusOK))
		})

		It("needs a principal", func() {
			Expect(serve(rbac.RequireAdmin(), nil)).To(Equal(http.StatusUnauthorized))
		})
	})
})
