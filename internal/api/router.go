package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/lostfound/internal/auth"
	"github.com/erazemk/lostfound/internal/handoff"
	"github.com/erazemk/lostfound/internal/keywords"
	"github.com/erazemk/lostfound/internal/matching"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/taxonomy"
)

// Deps are the services the API is built on.
type Deps struct {
	DB        *sql.DB
	Tokens    *auth.Tokens
	Registry  *matching.Registry
	Workflow  *handoff.Workflow
	Extractor *keywords.Extractor
	Taxonomy  *taxonomy.Taxonomy

	// StrictCategories rejects reports filed outside the taxonomy.
	StrictCategories bool
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, Tokens: d.Tokens}
	usersHandler := &UsersHandler{DB: d.DB}
	itemsHandler := &ItemsHandler{DB: d.DB, Extractor: d.Extractor, Taxonomy: d.Taxonomy, Strict: d.StrictCategories}
	matchesHandler := &MatchesHandler{Registry: d.Registry}
	handoffsHandler := &HandoffsHandler{Workflow: d.Workflow}

	authMW := AuthMiddleware(d.Tokens, d.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireStaff := RequireRole(model.RoleStaff)

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/categories", itemsHandler.Categories)

	// Authenticated.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Lost reports: anyone signed in may file and read, staff manage.
	mux.Handle("POST /api/lost", authMW(http.HandlerFunc(itemsHandler.CreateLost)))
	mux.Handle("GET /api/lost", authMW(http.HandlerFunc(itemsHandler.ListLost)))
	mux.Handle("GET /api/lost/{id}", authMW(http.HandlerFunc(itemsHandler.GetLost)))
	mux.Handle("DELETE /api/lost/{id}", authMW(requireStaff(http.HandlerFunc(itemsHandler.DeleteLost))))
	mux.Handle("PUT /api/lost/{id}/photo", authMW(http.HandlerFunc(itemsHandler.UploadLostPhoto)))
	mux.Handle("GET /api/lost/{id}/photo", authMW(http.HandlerFunc(itemsHandler.GetLostPhoto)))

	// Found reports.
	mux.Handle("POST /api/found", authMW(http.HandlerFunc(itemsHandler.CreateFound)))
	mux.Handle("GET /api/found", authMW(http.HandlerFunc(itemsHandler.ListFound)))
	mux.Handle("GET /api/found/{id}", authMW(http.HandlerFunc(itemsHandler.GetFound)))
	mux.Handle("DELETE /api/found/{id}", authMW(requireStaff(http.HandlerFunc(itemsHandler.DeleteFound))))
	mux.Handle("PUT /api/found/{id}/photo", authMW(http.HandlerFunc(itemsHandler.UploadFoundPhoto)))
	mux.Handle("GET /api/found/{id}/photo", authMW(http.HandlerFunc(itemsHandler.GetFoundPhoto)))

	// Matching (staff).
	mux.Handle("GET /api/found/{id}/candidates", authMW(requireStaff(http.HandlerFunc(matchesHandler.Candidates))))
	mux.Handle("GET /api/found/{id}/matches", authMW(requireStaff(http.HandlerFunc(matchesHandler.Weighted))))
	mux.Handle("GET /api/matches/scores", authMW(requireStaff(http.HandlerFunc(matchesHandler.Scores))))
	mux.Handle("POST /api/matches/confirm", authMW(requireStaff(http.HandlerFunc(matchesHandler.Confirm))))
	mux.Handle("POST /api/matches", authMW(requireStaff(http.HandlerFunc(matchesHandler.CreateTentative))))
	mux.Handle("GET /api/matches", authMW(requireStaff(http.HandlerFunc(matchesHandler.List))))
	mux.Handle("DELETE /api/matches/{id}", authMW(requireStaff(http.HandlerFunc(matchesHandler.Release))))

	// Handoffs: staff drive the workflow, admins may delete.
	mux.Handle("POST /api/handoffs", authMW(requireStaff(http.HandlerFunc(handoffsHandler.Create))))
	mux.Handle("GET /api/handoffs", authMW(requireStaff(http.HandlerFunc(handoffsHandler.List))))
	mux.Handle("GET /api/handoffs/{id}", authMW(requireStaff(http.HandlerFunc(handoffsHandler.Get))))
	mux.Handle("PUT /api/handoffs/{id}", authMW(requireStaff(http.HandlerFunc(handoffsHandler.Update))))
	mux.Handle("DELETE /api/handoffs/{id}", authMW(requireAdmin(http.HandlerFunc(handoffsHandler.Delete))))

	return mux
}
