// Package users serves the user collection over HTTP: the bulk upsert used by
// the grid, single-record CRUD and the API document.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"usergrid/docs/schema/jsonschema"
	"usergrid/docs/schema/openapi"
	"usergrid/internal/core"
	"usergrid/pkg/domain"
)

// Paths served by the handler.
const (
	PathBulkUpsert = "/api/userUpdateAll"
	PathUsers      = "/api/userApi"
	PathDoc        = "/api/doc"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 1 << 20

const (
	msgBulkSuccess  = "All documents successfully updated!"
	msgExpectArray  = "Invalid input: Expected an array of users."
	msgBulkFailure  = "Failed to update documents"
	msgListFailure  = "Failed to fetch users"
	msgCreateFailed = "Failed to create user"
	msgUpdateFailed = "Failed to update user"
	msgDeleteFailed = "Failed to delete user"
	msgMissingID    = "Missing id query parameter"
	msgBodyTooLarge = "Request body too large"
)

// Service is the subset of core.Service the handler drives.
type Service interface {
	BulkUpsert(ctx context.Context, items []domain.BatchItem) (core.BatchResult, domain.Result, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	CreateUser(ctx context.Context, u domain.User) (domain.User, domain.Result, error)
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (domain.User, domain.Result, error)
	DeleteUser(ctx context.Context, id string) (bool, domain.Result, error)
}

// Handler provides HTTP access to the user collection.
type Handler struct {
	Service Service
	Logger  *zap.Logger
	Metrics *Metrics

	docOnce sync.Once
	doc     []byte
	docErr  error
}

// NewHandler constructs a user HTTP handler.
func NewHandler(svc Service, logger *zap.Logger, metrics *Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: svc, Logger: logger, Metrics: metrics}
}

// ServeHTTP dispatches on the request path; methods are checked per endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "user service not configured")
		return
	}
	switch strings.TrimSuffix(r.URL.Path, "/") {
	case PathBulkUpsert:
		h.instrument("bulk_upsert", h.handleBulkUpsert)(w, r)
	case PathUsers:
		h.instrument("users", h.handleUsers)(w, r)
	case PathDoc:
		h.instrument("doc", h.handleDoc)(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	if h.Metrics == nil {
		return next
	}
	return h.Metrics.Instrument(endpoint, next)
}

func (h *Handler) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, msgExpectArray)
		return
	}
	if list, isArray := raw.([]any); !isArray || len(list) == 0 {
		writeError(w, http.StatusBadRequest, msgExpectArray)
		return
	}
	if err := jsonschema.Validate(jsonschema.BulkSchema, raw); err != nil {
		h.Logger.Debug("bulk body rejected by schema", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid input: "+schemaReason(err))
		return
	}
	var items []domain.BatchItem
	if err := json.Unmarshal(body, &items); err != nil {
		writeError(w, http.StatusBadRequest, msgExpectArray)
		return
	}

	batch, _, err := h.Service.BulkUpsert(r.Context(), items)
	if err != nil {
		h.writeServiceError(w, "bulk_upsert", err, msgBulkFailure)
		return
	}
	h.Logger.Info("bulk upsert", zap.Int("created", batch.Created), zap.Int("updated", batch.Updated))
	writeJSON(w, http.StatusOK, map[string]string{"message": msgBulkSuccess})
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	case http.MethodPut:
		h.handleUpdate(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, "list_users", err, msgListFailure)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readUserBody(w, r)
	if !ok {
		return
	}
	var u domain.User
	if err := json.Unmarshal(body, &u); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	created, _, err := h.Service.CreateUser(r.Context(), u)
	if err != nil {
		h.writeServiceError(w, "create_user", err, msgCreateFailed)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, msgMissingID)
		return
	}
	body, ok := h.readUserBody(w, r)
	if !ok {
		return
	}
	var patch domain.UserPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	updated, _, err := h.Service.UpdateUser(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, "update_user", err, msgUpdateFailed)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, msgMissingID)
		return
	}
	if _, _, err := h.Service.DeleteUser(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete_user", err, msgDeleteFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDoc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	h.docOnce.Do(func() {
		h.doc, h.docErr = openapi.JSON(context.WithoutCancel(r.Context()))
	})
	if h.docErr != nil {
		h.Logger.Error("render api document", zap.Error(h.docErr))
		writeError(w, http.StatusInternalServerError, "API document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.doc)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid input: unreadable body")
		return nil, false
	}
	return body, true
}

func (h *Handler) readUserBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, ok := h.readBody(w, r)
	if !ok {
		return nil, false
	}
	if err := jsonschema.ValidateBytes(jsonschema.UserSchema, body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input: "+schemaReason(err))
		return nil, false
	}
	return body, true
}

// writeServiceError maps malformed input and rule violations to 400 with their
// own message; anything else is logged and answered with fallback.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error, fallback string) {
	var violation domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		writeError(w, http.StatusBadRequest, "Invalid input: "+malformedReason(err))
	case errors.As(err, &violation):
		h.Logger.Warn("request blocked by rules", zap.String("operation", op), zap.Error(err))
		writeError(w, http.StatusBadRequest, violation.Error())
	default:
		h.Logger.Error("request failed", zap.String("operation", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func malformedReason(err error) string {
	var m domain.MalformedInputError
	if errors.As(err, &m) && m.Reason != "" {
		return m.Reason
	}
	return err.Error()
}

func schemaReason(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = strings.TrimSpace(msg[i+1:])
	}
	return msg
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
