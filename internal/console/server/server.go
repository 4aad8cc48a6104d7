package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/taskflow-approval-console/internal/console/handler"
	"github.com/xela07ax/taskflow-approval-console/internal/infra"
	"github.com/xela07ax/taskflow-approval-console/internal/infra/auth"
	"github.com/xela07ax/taskflow-approval-console/internal/metrics"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config
	m      *metrics.Metrics

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler    *handler.AuthHandler    // /auth/token
	flowHandler    *handler.FlowHandler    // /v1/flows (сессии документа)
	groupHandler   *handler.GroupHandler   // /v1/groups (менеджер групп)
	refdataHandler *handler.RefdataHandler // /v1/refdata (справочники)
	auditHandler   *handler.AuditHandler   // /v1/audit + dashboard
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	flowH *handler.FlowHandler,
	groupH *handler.GroupHandler,
	refdataH *handler.RefdataHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("console-api"),
		cfg:            cfg,
		m:              m,
		authValidator:  validator,
		authHandler:    authH,
		flowHandler:    flowH,
		groupHandler:   groupH,
		refdataHandler: refdataH,
		auditHandler:   auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware)
	r.Use(s.metricsMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Справочники платформы (read-only)
		r.Mount("/v1/refdata", s.refdataHandler.Routes())

		// Мутации требуют права на запись конфигурации согласований
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope("approvals.write"))

			// Сессии сборки документа (создание и редактирование)
			r.Mount("/v1/flows", s.flowHandler.Routes())

			// Отдельная страница групп согласующих
			r.Mount("/v1/groups", s.groupHandler.Routes())
		})

		// Аудит и сводка (Observability)
		r.Get("/v1/audit", s.auditHandler.GetLogs)
		r.Get("/api/v1/dashboard/stats", s.auditHandler.GetDashboard)
	})
}

// traceMiddleware кладет RequestID в контекст как сквозной trace id:
// клиент платформы отправит его в X-Trace-ID, аудит запишет в журнал.
func (s *ConsoleServer) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			r = r.WithContext(infra.WithTraceID(r.Context(), reqID))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *ConsoleServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.m.ObserveHTTPRequest(route, ww.Status())
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
