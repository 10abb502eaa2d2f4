package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/auth"
	"github.com/metalhouse/fleshrecord/internal/domain"
	"github.com/metalhouse/fleshrecord/internal/firefly"
	"github.com/metalhouse/fleshrecord/internal/userstore"
)

// Ledger is the slice of the ledger client the HTTP surface uses.
type Ledger interface {
	Transactions(ctx context.Context, creds firefly.Credentials, q firefly.TransactionQuery) ([]domain.Transaction, error)
	Budgets(ctx context.Context, creds firefly.Credentials, ref time.Time) ([]domain.BudgetStatus, error)
	AddTransaction(ctx context.Context, creds firefly.Credentials, tx firefly.NewTransaction) (string, error)
}

// Notifier posts chat messages to a user's webhook.
type Notifier interface {
	Send(ctx context.Context, webhookURL, message string) error
}

// Server is the HTTP surface: the signed ledger-event webhook plus the
// token-authenticated transaction, assistant and budget endpoints.
type Server struct {
	store    userstore.Store
	guard    *auth.Guard
	ledger   Ledger
	notifier Notifier
	log      *zap.Logger
	throttle int
}

// New assembles the HTTP surface. throttle caps requests processed
// concurrently; zero disables the cap.
func New(store userstore.Store, guard *auth.Guard, ledger Ledger, notifier Notifier, log *zap.Logger, throttle int) *Server {
	return &Server{
		store:    store,
		guard:    guard,
		ledger:   ledger,
		notifier: notifier,
		log:      log,
		throttle: throttle,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	if s.throttle > 0 {
		r.Use(middleware.Throttle(s.throttle))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Post("/webhook/{userID}", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/transactions", s.handleAddTransaction)
		r.Post("/assistant", s.handleAssistant)
		r.Get("/budgets", s.handleBudgets)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, "ok", nil)
}

type ctxKeyUser struct{}

// requireToken authenticates the request via the token guard and stores the
// profile in the request context. Fails closed.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, err := s.guard.Authenticate(r)
		if err != nil {
			s.respondDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUser{}, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) *domain.UserProfile {
	u, _ := ctx.Value(ctxKeyUser{}).(*domain.UserProfile)
	return u
}

func creds(u *domain.UserProfile) firefly.Credentials {
	return firefly.Credentials{APIURL: u.FireflyAPIURL, AccessToken: u.FireflyAccessToken}
}
