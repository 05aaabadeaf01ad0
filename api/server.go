package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"campus-alert/api/handlers"
	"campus-alert/config"
	"campus-alert/core/auth"
	"campus-alert/core/geo"
	"campus-alert/core/incidents"
	"campus-alert/core/notify"
	"campus-alert/core/rbac"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

type Server struct {
	cfg            *config.AppConfig
	policy         *rbac.Policy
	sessionManager *auth.SessionManager
	hasher         *auth.Hasher

	incidentsStore store.IncidentsStore
	archiveStore   store.ArchiveStore
	reportsStore   store.ReportsStore
	studentsStore  store.StudentsStore
	adminsStore    store.AdminsStore
	requestsStore  store.AdminRequestsStore
	chatStore      store.ChatStore
	sessionsStore  store.SessionStore
	trailStore     store.AuditTrailStore
	audits         store.AuditLogStore

	svc      *incidents.Service
	geocoder *geo.Geocoder
	sender   notify.Sender
	logger   *utils.Logger
}

type ServerDeps struct {
	Cfg            *config.AppConfig
	Policy         *rbac.Policy
	SessionManager *auth.SessionManager
	Hasher         *auth.Hasher

	Incidents store.IncidentsStore
	Archive   store.ArchiveStore
	Reports   store.ReportsStore
	Students  store.StudentsStore
	Admins    store.AdminsStore
	Requests  store.AdminRequestsStore
	Chat      store.ChatStore
	Sessions  store.SessionStore
	Trail     store.AuditTrailStore
	Audits    store.AuditLogStore

	Service  *incidents.Service
	Geocoder *geo.Geocoder
	Sender   notify.Sender
	Logger   *utils.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		cfg:            deps.Cfg,
		policy:         deps.Policy,
		sessionManager: deps.SessionManager,
		hasher:         deps.Hasher,
		incidentsStore: deps.Incidents,
		archiveStore:   deps.Archive,
		reportsStore:   deps.Reports,
		studentsStore:  deps.Students,
		adminsStore:    deps.Admins,
		requestsStore:  deps.Requests,
		chatStore:      deps.Chat,
		sessionsStore:  deps.Sessions,
		trailStore:     deps.Trail,
		audits:         deps.Audits,
		svc:            deps.Service,
		geocoder:       deps.Geocoder,
		sender:         deps.Sender,
		logger:         deps.Logger,
	}
}

func (s *Server) Router() http.Handler {
	authH := handlers.NewAuthHandler(s.cfg, s.adminsStore, s.requestsStore, s.sessionManager, s.hasher, s.audits, s.logger)
	incH := handlers.NewIncidentsHandler(s.cfg, s.incidentsStore, s.archiveStore, s.reportsStore, s.studentsStore, s.adminsStore, s.svc, s.geocoder, s.audits, s.logger)
	accH := handlers.NewAccountsHandler(s.cfg, s.adminsStore, s.studentsStore, s.requestsStore, s.archiveStore, s.svc, s.hasher, s.sender, s.audits, s.logger)
	repH := handlers.NewReportsHandler(s.reportsStore, s.incidentsStore, s.logger)
	chatH := handlers.NewChatHandler(s.chatStore, s.incidentsStore, s.logger)
	dashH := handlers.NewDashboardHandler(s.cfg, s.incidentsStore, s.sessionsStore, s.svc, s.logger)
	logsH := handlers.NewLogsHandler(s.audits, s.trailStore)

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.securityHeadersMiddleware, s.loggingMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.rateLimitMiddleware(authH.Login))
		r.Post("/auth/request-access", authH.RequestAccess)
		r.Post("/auth/logout", s.withSession(authH.Logout))
		r.Get("/auth/me", s.withSession(authH.Me))

		// Student report intake. Authenticated via the mobile gateway in
		// front of this service, not via admin sessions.
		r.Post("/reports", incH.Report)

		view := s.requirePermission(rbac.PermIncidentsView)
		edit := s.requirePermission(rbac.PermIncidentsEdit)
		arch := s.requirePermission(rbac.PermIncidentsArchive)

		r.Get("/incidents", s.withSession(view(incH.List)))
		r.Get("/incidents/feed", s.withSession(view(incH.Feed)))
		r.Get("/incidents/export", s.withSession(view(incH.ExportCSV)))
		r.Get("/incidents/archived", s.withSession(arch(incH.ListArchived)))
		r.Get("/incidents/{id}", s.withSession(view(incH.Get)))
		r.Post("/incidents/{id}/pending", s.withSession(edit(incH.MarkPending)))
		r.Post("/incidents/{id}/resolve", s.withSession(edit(incH.MarkResolved)))
		r.Post("/incidents/{id}/cancel", s.withSession(edit(incH.MarkCancelled)))
		r.Post("/incidents/{id}/dispatch", s.withSession(edit(incH.Dispatch)))
		r.Post("/incidents/bulk-status", s.withSession(edit(incH.BulkStatus)))
		r.Post("/incidents/{id}/archive", s.withSession(arch(incH.Archive)))
		r.Delete("/incidents/{id}", s.withSession(s.requirePermission(rbac.PermIncidentsDelete)(incH.Delete)))
		r.Post("/archive/incidents/{archive_id}/restore", s.withSession(arch(incH.RestoreIncident)))

		r.Get("/incidents/{id}/chat", s.withSession(s.requirePermission(rbac.PermChatPost)(chatH.List)))
		r.Post("/incidents/{id}/chat", s.withSession(s.requirePermission(rbac.PermChatPost)(chatH.Post)))
		r.Get("/incidents/{id}/trail", s.withSession(s.requirePermission(rbac.PermLogsView)(logsH.ListTrail)))

		reports := s.requirePermission(rbac.PermReportsView)
		r.Get("/resolved", s.withSession(reports(repH.List)))
		r.Get("/resolved/{id}", s.withSession(reports(repH.Get)))

		r.Get("/dashboard", s.withSession(view(dashH.Overview)))
		r.Get("/logs", s.withSession(s.requirePermission(rbac.PermLogsView)(logsH.ListActions)))
		r.Get("/trail", s.withSession(s.requirePermission(rbac.PermLogsView)(logsH.ListTrail)))

		manage := s.requirePermission(rbac.PermAccountsManage)
		r.Get("/admins", s.withSession(manage(accH.ListAdmins)))
		r.Post("/admins", s.withSession(manage(accH.CreateAdmin)))
		r.Put("/admins/{admin_id}", s.withSession(manage(accH.UpdateAdmin)))
		r.Post("/admins/{admin_id}/archive", s.withSession(manage(accH.ArchiveAdmin)))
		r.Get("/students", s.withSession(manage(accH.ListStudents)))
		r.Post("/students/{student_id}/archive", s.withSession(manage(accH.ArchiveStudent)))
		r.Get("/archive/users", s.withSession(manage(accH.ListArchivedUsers)))
		r.Post("/archive/admins/{archive_id}/restore", s.withSession(manage(accH.RestoreAdmin)))
		r.Post("/archive/students/{archive_id}/restore", s.withSession(manage(accH.RestoreStudent)))

		decide := s.requirePermission(rbac.PermRequestsDecide)
		r.Get("/requests", s.withSession(decide(accH.ListRequests)))
		r.Post("/requests/{request_id}/decide", s.withSession(decide(accH.DecideRequest)))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
