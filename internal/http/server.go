package http

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"finease/internal/admin"
	"finease/internal/cache"
	"finease/internal/core"
	"finease/internal/guard"
	"finease/internal/ledger"
	"finease/internal/log"
	"finease/internal/middleware/ratelimit"
	"finease/internal/middleware/security"
	"finease/internal/middleware/trace"
	"finease/internal/prefs"
	"finease/internal/report"
	"finease/internal/session"
	appweb "finease/web"
)

// TransactionSource loads a user's transactions for the report pages.
type TransactionSource interface {
	Transactions(ctx context.Context, email string) ([]core.Transaction, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to the session and the controllers built in main.
type Options struct {
	Addr         string
	Session      *session.Store
	Prefs        *prefs.Prefs
	Ledger       *ledger.Controller
	Admin        *admin.Controller
	Transactions TransactionSource
	Reports      *report.Cache
	// Caches is swept in the background; nil disables the sweep.
	Caches        *cache.Manager
	CacheInterval time.Duration
	// Storage is pinged by /readyz when set.
	Storage Pinger

	GoogleEnabled  bool
	RateLimit      int
	CSRF           security.CSRFConfig
	TrustedProxies []string
	StaticMaxAge   int
	Logger         *log.Logger
}

type Server struct {
	http.Server
	logger *log.Logger

	pages *pageSet

	session *session.Store
	prefs   *prefs.Prefs
	ledger  *ledger.Controller
	admin   *admin.Controller
	txs     TransactionSource
	reports *report.Cache
	caches  *cache.Manager
	storage Pinger

	googleEnabled bool

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	flashMu sync.Mutex
	flash   *Notification

	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger:        logger,
		session:       opts.Session,
		prefs:         opts.Prefs,
		ledger:        opts.Ledger,
		admin:         opts.Admin,
		txs:           opts.Transactions,
		reports:       opts.Reports,
		caches:        opts.Caches,
		storage:       opts.Storage,
		googleEnabled: opts.GoogleEnabled,
		startedAt:     time.Now(),
	}

	pages, err := parsePages(appweb.TemplatesFS)
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
	}
	s.pages = pages

	s.securityDetector = security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimit > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimit
	}
	s.rateLimiter = ratelimit.NewLimiter(rlConfig)
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	if s.caches != nil && opts.CacheInterval > 0 {
		s.caches.StartCleanup(opts.CacheInterval)
	}

	s.Handler = s.routes(opts)
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(log.Middleware(s.logger))
	r.Use(s.traceMiddleware.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(security.CSRF(opts.CSRF))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(opts.StaticMaxAge)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit))

		r.Get("/", s.handleIndex)
		r.Post("/theme", s.handleToggleTheme)

		r.Get("/login", s.handleLoginPage)
		r.Post("/login", s.handleLogin)
		r.Get("/register", s.handleRegisterPage)
		r.Post("/register", s.handleRegister)
		r.Get("/auth/google", s.handleGoogleStart)
		r.Get("/auth/google/callback", s.handleGoogleCallback)
		r.Get("/logout", s.handleLogoutPage)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/add-transaction", s.handleAddTransactionPage)
			r.Post("/add-transaction", s.handleCreateTransaction)
			r.Get("/add-transaction/categories", s.handleCategoryOptions)

			r.Route("/my-transactions", func(r chi.Router) {
				r.Get("/", s.handleTransactions)
				r.Get("/{id}", s.handleTransactionDetail)
				r.Post("/{id}", s.handleUpdateTransaction)
				r.Patch("/{id}", s.handleUpdateTransaction)
				r.Delete("/{id}", s.handleDeleteTransaction)
				r.Get("/{id}/delete", s.handleDeleteTransactionConfirm)
				r.Post("/{id}/delete", s.handleDeleteTransaction)
			})

			r.Get("/reports", s.handleReports)
			r.Get("/myprofile", s.handleProfilePage)
			r.Post("/myprofile", s.handleUpdateProfile)
			r.Get("/dashboard", s.handleDashboard)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(guard.AdminRoles...))

			r.Route("/dashboard/manage-users", func(r chi.Router) {
				r.Get("/", s.handleManageUsers)
				r.Post("/{id}/role", s.handleSetRole)
				r.Delete("/{id}", s.handleDeleteUser)
				r.Get("/{id}/delete", s.handleDeleteUserConfirm)
				r.Post("/{id}/delete", s.handleDeleteUser)
			})
			r.Get("/dashboard/analytics", s.handleAnalytics)
		})
	})

	r.NotFound(s.handleNotFound)
	return r
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r))
	if isHTMX(r) {
		NewHTMXResponse().
			Status(http.StatusTooManyRequests).
			TriggerNotice(NotificationError, "Slow down!", "Too many requests. Please try again later.").
			Write(w)
		return
	}
	http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.caches != nil {
			s.caches.Stop()
		}
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		if errors.Is(shutdownErr, http.ErrServerClosed) {
			shutdownErr = nil
		}
	})
	return shutdownErr
}

// setFlash stores a notification for the next full page render.
func (s *Server) setFlash(n Notification) {
	s.flashMu.Lock()
	s.flash = &n
	s.flashMu.Unlock()
}

func (s *Server) takeFlash() *Notification {
	s.flashMu.Lock()
	defer s.flashMu.Unlock()
	n := s.flash
	s.flash = nil
	return n
}

// outcome is the answer to a user action.
type outcome struct {
	Status int
	Notice Notification
	// Redirect navigates after the action. Empty keeps the current page for
	// htmx requests.
	Redirect string
	// Back is where plain form posts return when Redirect is empty.
	Back     string
	Triggers []string
}

// respond reports an action. htmx requests get the notification as an
// HX-Trigger; navigations carry it as a flash to the next page.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, o outcome) {
	if o.Notice.Duration == 0 {
		o.Notice.Duration = successDurationMs
		if o.Notice.Type == NotificationError || o.Notice.Type == NotificationWarning {
			o.Notice.Duration = errorDurationMs
		}
	}
	if o.Redirect != "" {
		s.setFlash(o.Notice)
		redirect(w, r, o.Redirect)
		return
	}
	if !isHTMX(r) {
		back := o.Back
		if back == "" {
			back = r.URL.Path
		}
		s.setFlash(o.Notice)
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	b := NewHTMXResponse().Trigger("show-notification", o.Notice)
	for _, t := range o.Triggers {
		b.Trigger(t, struct{}{})
	}
	if o.Status != 0 {
		b.Status(o.Status)
	}
	b.Write(w)
}

func success(title, text string) Notification {
	return Notification{Type: NotificationSuccess, Title: title, Message: text}
}

func failure(title, text string) Notification {
	return Notification{Type: NotificationError, Title: title, Message: text}
}
