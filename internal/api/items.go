package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/lostfound/internal/imaging"
	"github.com/erazemk/lostfound/internal/keywords"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
	"github.com/erazemk/lostfound/internal/taxonomy"
)

// ItemsHandler handles lost and found report endpoints.
type ItemsHandler struct {
	DB        *sql.DB
	Extractor *keywords.Extractor
	Taxonomy  *taxonomy.Taxonomy
	Strict    bool
}

type lostRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	DateLost    string `json:"date_lost"`
	OwnerName   string `json:"owner_name"`
	OwnerEmail  string `json:"owner_email"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Keywords    string `json:"keywords"`
}

type foundRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Location      string `json:"location"`
	DateFound     string `json:"date_found"`
	ReporterName  string `json:"reporter_name"`
	ReporterEmail string `json:"reporter_email"`
	Category      string `json:"category"`
	Subcategory   string `json:"subcategory"`
	Keywords      string `json:"keywords"`
}

// filing is the derived part of a report: its place in the taxonomy, its
// event date and its keywords.
type filing struct {
	category    string
	subcategory string
	date        *time.Time
	keywords    model.KeywordSet
}

// file derives the filing of a report. Keywords come from the title, the
// description and any extra terms the reporter supplied.
func (h *ItemsHandler) file(title, description, extra, date, category, subcategory string) (filing, error) {
	f := filing{
		category:    strings.TrimSpace(category),
		subcategory: strings.TrimSpace(subcategory),
	}
	if h.Strict && h.Taxonomy != nil {
		var err error
		if f.category, f.subcategory, err = h.Taxonomy.Canonical(category, subcategory); err != nil {
			return filing{}, err
		}
	}

	// A malformed optional date is dropped rather than rejected.
	d, err := store.ParseDate(date)
	if err != nil {
		slog.Warn("ignoring malformed report date", "date", date)
	}
	f.date = d

	f.keywords = h.Extractor.Extract(title, description, extra)
	return f, nil
}

func reporter(r *http.Request) *int64 {
	if claims := GetClaims(r.Context()); claims != nil && claims.UserID > 0 {
		id := claims.UserID
		return &id
	}
	return nil
}

func itemFilter(r *http.Request) store.ItemFilter {
	q := r.URL.Query()
	return store.ItemFilter{
		Status:      strings.ToUpper(q.Get("status")),
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
	}
}

// Categories handles GET /api/categories.
func (h *ItemsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.Taxonomy.Categories())
}

// CreateLost handles POST /api/lost.
func (h *ItemsHandler) CreateLost(w http.ResponseWriter, r *http.Request) {
	var req lostRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := h.file(req.Title, req.Description, req.Keywords, req.DateLost, req.Category, req.Subcategory)
	if err != nil {
		writeError(w, err, "create lost report")
		return
	}

	item, err := store.CreateLostItem(r.Context(), h.DB, &model.LostItem{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		DateLost:    f.date,
		OwnerName:   strings.TrimSpace(req.OwnerName),
		OwnerEmail:  strings.TrimSpace(req.OwnerEmail),
		Category:    f.category,
		Subcategory: f.subcategory,
		Keywords:    f.keywords,
		ReportedBy:  reporter(r),
	})
	if err != nil {
		writeError(w, err, "create lost report")
		return
	}

	slog.Info("lost item reported", "user", actor(r), "lost_item_id", item.ID, "keywords", item.Keywords.Len())
	jsonResponse(w, http.StatusCreated, item)
}

// ListLost handles GET /api/lost.
func (h *ItemsHandler) ListLost(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListLostItems(r.Context(), h.DB, itemFilter(r))
	if err != nil {
		writeError(w, err, "list lost reports")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(items))
}

// GetLost handles GET /api/lost/{id}.
func (h *ItemsHandler) GetLost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid lost item id")
		return
	}
	item, err := store.GetLostItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, err, "get lost report")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "lost item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// DeleteLost handles DELETE /api/lost/{id}.
func (h *ItemsHandler) DeleteLost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid lost item id")
		return
	}
	if err := store.DeleteLostItem(r.Context(), h.DB, id); err != nil {
		writeError(w, err, "delete lost report")
		return
	}
	slog.Info("lost item deleted", "user", actor(r), "lost_item_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "lost item deleted"})
}

// UploadLostPhoto handles PUT /api/lost/{id}/photo.
func (h *ItemsHandler) UploadLostPhoto(w http.ResponseWriter, r *http.Request) {
	h.uploadPhoto(w, r, "lost item", store.SetLostItemPhoto)
}

// GetLostPhoto handles GET /api/lost/{id}/photo.
func (h *ItemsHandler) GetLostPhoto(w http.ResponseWriter, r *http.Request) {
	h.servePhoto(w, r, store.GetLostItemPhoto)
}

// CreateFound handles POST /api/found.
func (h *ItemsHandler) CreateFound(w http.ResponseWriter, r *http.Request) {
	var req foundRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := h.file(req.Title, req.Description, req.Keywords, req.DateFound, req.Category, req.Subcategory)
	if err != nil {
		writeError(w, err, "create found report")
		return
	}

	item, err := store.CreateFoundItem(r.Context(), h.DB, &model.FoundItem{
		Title:         strings.TrimSpace(req.Title),
		Description:   strings.TrimSpace(req.Description),
		Location:      strings.TrimSpace(req.Location),
		DateFound:     f.date,
		ReporterName:  strings.TrimSpace(req.ReporterName),
		ReporterEmail: strings.TrimSpace(req.ReporterEmail),
		Category:      f.category,
		Subcategory:   f.subcategory,
		Keywords:      f.keywords,
		ReportedBy:    reporter(r),
	})
	if err != nil {
		writeError(w, err, "create found report")
		return
	}

	slog.Info("found item reported", "user", actor(r), "found_item_id", item.ID, "keywords", item.Keywords.Len())
	jsonResponse(w, http.StatusCreated, item)
}

// ListFound handles GET /api/found.
func (h *ItemsHandler) ListFound(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListFoundItems(r.Context(), h.DB, itemFilter(r))
	if err != nil {
		writeError(w, err, "list found reports")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(items))
}

// GetFound handles GET /api/found/{id}.
func (h *ItemsHandler) GetFound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid found item id")
		return
	}
	item, err := store.GetFoundItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, err, "get found report")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "found item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// DeleteFound handles DELETE /api/found/{id}.
func (h *ItemsHandler) DeleteFound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid found item id")
		return
	}
	if err := store.DeleteFoundItem(r.Context(), h.DB, id); err != nil {
		writeError(w, err, "delete found report")
		return
	}
	slog.Info("found item deleted", "user", actor(r), "found_item_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "found item deleted"})
}

// UploadFoundPhoto handles PUT /api/found/{id}/photo.
func (h *ItemsHandler) UploadFoundPhoto(w http.ResponseWriter, r *http.Request) {
	h.uploadPhoto(w, r, "found item", store.SetFoundItemPhoto)
}

// GetFoundPhoto handles GET /api/found/{id}/photo.
func (h *ItemsHandler) GetFoundPhoto(w http.ResponseWriter, r *http.Request) {
	h.servePhoto(w, r, store.GetFoundItemPhoto)
}

type photoSetter func(ctx context.Context, q store.Querier, id int64, data []byte, mime string) error

type photoGetter func(ctx context.Context, q store.Querier, id int64) ([]byte, string, error)

// uploadPhoto reads the "photo" part of a multipart form, normalizes it and
// stores it on the item.
func (h *ItemsHandler) uploadPhoto(w http.ResponseWriter, r *http.Request, what string, set photoSetter) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid "+what+" id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "photo file required")
		return
	}
	defer file.Close()

	photo, err := imaging.ProcessPhoto(file)
	if err != nil {
		writeError(w, err, "process photo")
		return
	}

	if err := set(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		writeError(w, err, "save photo")
		return
	}

	slog.Info("photo uploaded", "user", actor(r), "item", what, "id", id, "width", photo.Width, "height", photo.Height)
	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "photo uploaded",
		"width":   photo.Width,
		"height":  photo.Height,
	})
}

// servePhoto writes a stored photo, shrunk when ?size=thumb is given.
func (h *ItemsHandler) servePhoto(w http.ResponseWriter, r *http.Request, get photoGetter) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	data, mime, err := get(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, err, "get photo")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no photo")
		return
	}

	if r.URL.Query().Get("size") == "thumb" {
		thumb, err := imaging.Thumbnail(data)
		if err != nil {
			writeError(w, err, "create thumbnail")
			return
		}
		data, mime = thumb.Data, thumb.MIME
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
