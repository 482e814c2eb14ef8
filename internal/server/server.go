package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"matrix-bank/internal/config"
	"matrix-bank/internal/handler"
	"matrix-bank/internal/repository"
	"matrix-bank/internal/service"
	"matrix-bank/migrations"
	"matrix-bank/pkg/metrics"
)

// Server wires the HTTP boundary to the banking core.
type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	logger *slog.Logger
	port   string
}

func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to database", "host", cfg.DBHost, "db", cfg.DBName)

	if cfg.AutoMigrate {
		if err := migrations.Apply(db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("schema migrations applied")
	}

	store := repository.NewStore(db, cfg.LockTimeout, logger)

	userService := service.NewUserService(store, logger)
	accountService := service.NewAccountService(store, cfg.HistoryPageSize, logger)
	transferService := service.NewTransferService(store, logger)

	userHandler := handler.NewUserHandler(userService)
	accountHandler := handler.NewAccountHandler(accountService, transferService)
	transactionHandler := handler.NewTransactionHandler(transferService)

	collector := metrics.NewCollector(logger)

	router := mux.NewRouter()
	router.Use(identityMiddleware)
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware(collector))

	router.HandleFunc("/users", userHandler.Register).Methods("POST")

	router.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts", accountHandler.ListAccounts).Methods("GET")
	router.HandleFunc("/accounts/deposit", accountHandler.Deposit).Methods("POST")
	router.HandleFunc("/accounts/withdraw", transactionHandler.Withdraw).Methods("POST")
	router.HandleFunc("/accounts/transfer", transactionHandler.Transfer).Methods("POST")
	router.HandleFunc("/accounts/{number:[0-9]+}", accountHandler.GetAccountDetail).Methods("GET")
	router.HandleFunc("/accounts/{number:[0-9]+}", accountHandler.DeleteAccount).Methods("DELETE")

	router.Handle("/metrics", collector.Handler()).Methods("GET")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return &Server{
		router: router,
		db:     db,
		logger: logger,
	}, nil
}

// identityMiddleware reads the caller identity resolved by the upstream
// authentication layer. The X-User-Id header stands in for that identity
// resolver; handlers that need a caller reject requests without one.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-User-Id"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = handler.WithCallerID(r, id)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
			)
		})
	}
}

func metricsMiddleware(collector *metrics.Collector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if template, err := current.GetPathTemplate(); err == nil {
					route = template
				}
			}
			collector.RecordRequest(route, r.Method, ww.statusCode, time.Since(start))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start listens on the given port ("0" picks a free one) and serves in the
// background.
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server failed", "error", err)
		}
	}()

	return s.port, nil
}

// Stop gracefully shuts the server down and closes the database pool.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}
	if s.db != nil {
		s.db.Close()
	}
	return shutdownErr
}

// GetPort returns the port the server is listening on.
func (s *Server) GetPort() string {
	return s.port
}

// StartServer builds and starts a server from configuration.
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}
	return server, port, nil
}
