package main

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/config"
	"github.com/s/lifelessons/internal/guard"
	"github.com/s/lifelessons/internal/handlers"
	"github.com/s/lifelessons/internal/handlers/admin"
	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/middleware"
	"github.com/s/lifelessons/internal/telemetry"
	"github.com/s/lifelessons/web"
)

var errPanic = errors.New("handler panicked")

func routes(log *logger.Logger, cfg config.Config, h *handlers.Handler, resolver *auth.Resolver, sessions *auth.Sessions) http.Handler {
	adminService := admin.NewService(h)

	g := guard.New(log, sessions, http.HandlerFunc(h.HandlePending))
	authed := g.Require(guard.Authenticated)
	premium := g.Require(guard.Premium)
	adminOnly := g.Require(guard.Admin)

	r := mux.NewRouter()

	// --- Static files and health ---
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	// Every page below sees the resolved viewer.
	site := r.PathPrefix("/").Subrouter()
	site.Use(resolver.Middleware)

	// --- Public pages ---
	site.HandleFunc("/", h.HandleMain).Methods("GET")
	site.HandleFunc("/public-lessons", h.HandlePublicLessons).Methods("GET")
	site.HandleFunc("/author/{id}", h.HandleAuthor).Methods("GET")
	site.HandleFunc("/login", h.HandleLogin).Methods("GET")
	site.HandleFunc("/login", h.HandlePasswordLogin).Methods("POST")
	site.HandleFunc("/register", h.HandleRegister).Methods("GET")
	site.HandleFunc("/register", h.HandlePasswordRegister).Methods("POST")
	site.HandleFunc("/auth/google/login", h.HandleGoogleLogin).Methods("GET")
	site.HandleFunc("/auth/google/callback", h.HandleGoogleCallback).Methods("GET")
	site.HandleFunc("/logout", h.HandleLogout).Methods("GET", "POST")

	// --- Lesson details and feedback ---
	site.Handle("/lesson/{id}", authed(http.HandlerFunc(h.HandleLesson))).Methods("GET")
	site.Handle("/lesson/{id}/like", authed(http.HandlerFunc(h.HandleLike))).Methods("POST")
	site.Handle("/lesson/{id}/favorite", authed(http.HandlerFunc(h.HandleFavorite))).Methods("POST")
	site.Handle("/lesson/{id}/report", authed(http.HandlerFunc(h.HandleReport))).Methods("POST")
	site.Handle("/lesson/{id}/comments", authed(http.HandlerFunc(h.HandleComment))).Methods("POST")

	site.Handle("/premium-lessons", premium(http.HandlerFunc(h.HandlePremiumLessons))).Methods("GET")

	// --- User dashboard ---
	site.Handle("/dashboard", authed(http.HandlerFunc(h.HandleDashboard))).Methods("GET")
	site.Handle("/dashboard/add-lesson", authed(http.HandlerFunc(h.HandleAddLessonPage))).Methods("GET")
	site.Handle("/dashboard/add-lesson", authed(http.HandlerFunc(h.HandleAddLesson))).Methods("POST")
	site.Handle("/dashboard/my-lessons", authed(http.HandlerFunc(h.HandleMyLessons))).Methods("GET")
	site.Handle("/dashboard/my-lessons/{id}/delete", authed(http.HandlerFunc(h.HandleDeleteLesson))).Methods("POST")
	site.Handle("/dashboard/my-lessons/{id}/settings", authed(http.HandlerFunc(h.HandleLessonSettings))).Methods("POST")
	site.Handle("/dashboard/update-lesson/{id}", authed(http.HandlerFunc(h.HandleUpdateLessonPage))).Methods("GET")
	site.Handle("/dashboard/update-lesson/{id}", authed(http.HandlerFunc(h.HandleUpdateLesson))).Methods("POST")
	site.Handle("/dashboard/my-favorites", authed(http.HandlerFunc(h.HandleMyFavorites))).Methods("GET")
	site.Handle("/dashboard/my-favorites/{id}/remove", authed(http.HandlerFunc(h.HandleRemoveFavorite))).Methods("POST")
	site.Handle("/dashboard/profile", authed(http.HandlerFunc(h.HandleProfile))).Methods("GET")
	site.Handle("/dashboard/profile", authed(http.HandlerFunc(h.HandleUpdateProfile))).Methods("POST")

	// --- Payments ---
	site.Handle("/pricing", authed(http.HandlerFunc(h.HandlePricing))).Methods("GET")
	site.Handle("/pricing/checkout", authed(http.HandlerFunc(h.HandleCheckout))).Methods("POST")
	site.Handle("/payment/success", authed(http.HandlerFunc(h.HandlePaymentSuccess))).Methods("GET")
	site.Handle("/payment/cancel", authed(http.HandlerFunc(h.HandlePaymentCancel))).Methods("GET")

	// --- Admin panel ---
	site.Handle("/dashboard/admin", adminOnly(http.HandlerFunc(adminService.HandleAdminPage))).Methods("GET")
	site.Handle("/dashboard/admin/manage-users", adminOnly(http.HandlerFunc(adminService.HandleUsersPage))).Methods("GET")
	site.Handle("/dashboard/admin/manage-users/{id}/role", adminOnly(http.HandlerFunc(adminService.HandleSetRole))).Methods("POST")
	site.Handle("/dashboard/admin/manage-lessons", adminOnly(http.HandlerFunc(adminService.HandleLessonsPage))).Methods("GET")
	site.Handle("/dashboard/admin/manage-lessons/{id}/delete", adminOnly(http.HandlerFunc(adminService.HandleDeleteLesson))).Methods("POST")
	site.Handle("/dashboard/admin/manage-lessons/{id}/feature", adminOnly(http.HandlerFunc(adminService.HandleFeature))).Methods("POST")
	site.Handle("/dashboard/admin/reported-lessons", adminOnly(http.HandlerFunc(adminService.HandleReportPage))).Methods("GET")
	site.Handle("/dashboard/admin/reported-lessons/{id}", adminOnly(http.HandlerFunc(adminService.HandleReportDetails))).Methods("GET")
	site.Handle("/dashboard/admin/reported-lessons/{id}/delete", adminOnly(http.HandlerFunc(adminService.HandleDeleteReported))).Methods("POST")
	site.Handle("/dashboard/admin/profile", adminOnly(http.HandlerFunc(adminService.HandleProfilePage))).Methods("GET")

	r.NotFoundHandler = resolver.Middleware(http.HandlerFunc(h.NotFound))

	onPanic := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServerError(w, r, errPanic)
	})

	var handler http.Handler = r
	handler = middleware.Recover(log, onPanic)(handler)
	handler = middleware.Logging(log)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.CORS(cfg.CORSAllowOrigin)(handler)
	return telemetry.Handler(handler)
}
