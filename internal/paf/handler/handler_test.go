package handler_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paflow/internal/paf/handler"
	"paflow/internal/paf/lifecycle"
	"paflow/internal/paf/models"
	"paflow/internal/paf/store"
	"paflow/pkg/domain"
	"paflow/pkg/requestcontext"
)

var (
	creator    = domain.ActorContext{ActorID: 1, Role: domain.RoleUser, ScopeID: 100}
	scopeAdmin = domain.ActorContext{ActorID: 50, Role: domain.RoleAdmin, ScopeID: 100}
)

// newRouter builds the PAF routes behind a middleware that injects the actor
// named in the X-Test-Actor header, standing in for JWT authentication.
func newRouter(t *testing.T) http.Handler {
	t.Helper()

	svc := lifecycle.New(store.NewMemory(), "PFLW")
	h := handler.New(svc, slog.Default())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			var actor domain.ActorContext
			switch req.Header.Get("X-Test-Actor") {
			case "creator":
				actor = creator
			case "admin":
				actor = scopeAdmin
			}
			if !actor.IsZero() {
				req = req.WithContext(requestcontext.WithActor(req.Context(), actor))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.Register(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Test-Actor", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createPAF(t *testing.T, router http.Handler) models.PAF {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/pafs", "creator", map[string]any{
		"jurisdiction":     "DOMESTIC",
		"frequency_code":   "12",
		"list_owner_naics": "541860",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var p models.PAF
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestCreatePAF(t *testing.T) {
	router := newRouter(t)

	t.Run("creates and returns the PAF", func(t *testing.T) {
		p := createPAF(t, router)
		assert.NotZero(t, p.ID)
		assert.Equal(t, models.StatusInitial, p.Status)
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/pafs", bytes.NewBufferString("{not json"))
		req.Header.Set("X-Test-Actor", "creator")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects invalid jurisdiction", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/pafs", "creator", map[string]any{
			"jurisdiction":     "LUNAR",
			"frequency_code":   "12",
			"list_owner_naics": "541860",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires an actor", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/pafs", "", map[string]any{
			"jurisdiction":     "DOMESTIC",
			"frequency_code":   "12",
			"list_owner_naics": "541860",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTransitionRoutes(t *testing.T) {
	router := newRouter(t)
	p := createPAF(t, router)
	path := func(action string) string {
		return "/pafs/" + strconv.FormatInt(p.ID, 10) + "/" + action
	}

	rec := doJSON(t, router, http.MethodPost, path("submit"), "creator", map[string]any{"notes": "ready"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated models.PAF
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, models.StatusPendingListOwnerApproval, updated.Status)

	rec = doJSON(t, router, http.MethodPost, path("approve"), "creator", map[string]any{
		"signer_name":      "Dana Reyes",
		"signer_title":     "List Owner",
		"signature_method": "TYPED",
		"signature_data":   "Dana Reyes",
		"rtd_acknowledged": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, path("licensee-validate"), "admin", map[string]any{
		"signer_name":  "Pat Quinn",
		"signer_title": "Licensee Officer",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, models.StatusValidatedActive, updated.Status)
	assert.Len(t, updated.DisplayIdentifier, 18)
}

func TestTransitionErrors(t *testing.T) {
	router := newRouter(t)
	p := createPAF(t, router)
	path := "/pafs/" + strconv.FormatInt(p.ID, 10)

	t.Run("wrong status maps to 409", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, path+"/licensee-validate", "admin", map[string]any{
			"signer_name":  "Pat Quinn",
			"signer_title": "Licensee Officer",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("forbidden actor maps to 403", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, path+"/submit", "admin", map[string]any{})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid signature payload maps to 400", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, path+"/submit", "creator", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodPost, path+"/approve", "creator", map[string]any{
			"signer_name": "Dana Reyes",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad id maps to 400", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/pafs/abc/submit", "creator", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown id maps to 404", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/pafs/424242/submit", "creator", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetAndList(t *testing.T) {
	router := newRouter(t)
	p := createPAF(t, router)

	t.Run("details include history", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/pafs/"+strconv.FormatInt(p.ID, 10), "creator", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var details struct {
			ID      int64                 `json:"id"`
			History []models.HistoryEntry `json:"history"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&details))
		assert.Equal(t, p.ID, details.ID)
		assert.Len(t, details.History, 1)
	})

	t.Run("list filters by status", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/pafs?status=INITIAL", "admin", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var list struct {
			PAFs []models.PAF `json:"pafs"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
		assert.Len(t, list.PAFs, 1)

		rec = doJSON(t, router, http.MethodGet, "/pafs?status=REJECTED", "admin", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
		assert.Empty(t, list.PAFs)
	})
}
