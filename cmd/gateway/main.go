package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/pinky28/moodle-mod-congrea/internal/activity"
	api "github.com/pinky28/moodle-mod-congrea/internal/api/http"
	authmw "github.com/pinky28/moodle-mod-congrea/internal/auth/middleware"
	"github.com/pinky28/moodle-mod-congrea/internal/config"
	"github.com/pinky28/moodle-mod-congrea/internal/db"
	"github.com/pinky28/moodle-mod-congrea/internal/directory"
	"github.com/pinky28/moodle-mod-congrea/internal/poll"
	"github.com/pinky28/moodle-mod-congrea/internal/quiz"
	"github.com/pinky28/moodle-mod-congrea/internal/rbac"
	"github.com/pinky28/moodle-mod-congrea/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	// --- Services ---
	gate := rbac.NewGate(dbh)
	modules := activity.NewRegistry(dbh)
	users := directory.New(dbh)

	polls := poll.NewService(poll.NewSQLStore(dbh, cfg.DBDriver), gate, modules, users, cfg.StrictVotes)
	quizzes := quiz.NewService(quiz.NewSQLStore(dbh, cfg.DBDriver), gate, modules)
	tokens := token.NewService(dbh, gate, cfg.ServiceName, cfg.TokenTTLSec, cfg.EnableWebService)

	authSvc := authmw.NewAuthService(cfg.AuthSecret)
	rpc := api.NewRPC(polls, quizzes, tokens)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", authmw.LoginHandler(authSvc, dbh))

	// Token endpoint needs the session; the RPC surface authenticates with
	// the issued web-service token instead.
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(authSvc))
		pr.Get("/webservice/token", api.TokenHandler(tokens))
		pr.Post("/auth/password", api.ChangePasswordHandler(dbh))
	})
	r.Post("/webservice/rpc", rpc.Dispatch())
	r.Options("/webservice/rpc", rpc.Dispatch())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
