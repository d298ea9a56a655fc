package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gourl/shortcode/internal/allocator"
	"github.com/gourl/shortcode/internal/reserved"
	"github.com/gourl/shortcode/internal/stats"
	"github.com/gourl/shortcode/pkg/logger"
)

// maxReloadBody bounds the size of an uploaded reserved lists document.
const maxReloadBody = 1 << 20

// CodeEngine defines the engine operations exposed over HTTP.
type CodeEngine interface {
	GetCode(ctx context.Context, length int) (string, error)
	GetCodeForAlias(ctx context.Context, alias string) (string, error)
	GetStats() stats.Snapshot
	ReloadReserved(lists reserved.Lists) (reservedWords, profanityWords int)
}

// CodeResponse is returned for an issued code.
type CodeResponse struct {
	Code string `json:"code"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Code        string   `json:"code,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ReloadResponse reports the size of the reloaded lists.
type ReloadResponse struct {
	ReservedWords  int `json:"reserved_words"`
	ProfanityWords int `json:"profanity_words"`
}

// CodeHandler handles code issuance and engine administration requests.
type CodeHandler struct {
	engine       CodeEngine
	reservedPath string
	log          *logger.Logger
}

// NewCodeHandler creates a new CodeHandler. reservedPath is the lists file
// re-read by a reload request without a body.
func NewCodeHandler(engine CodeEngine, reservedPath string, log *logger.Logger) *CodeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CodeHandler{
		engine:       engine,
		reservedPath: reservedPath,
		log:          log,
	}
}

// IssueCode handles POST /v1/codes requests. The optional length query
// parameter selects the code length.
func (h *CodeHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	length := 0
	if v := r.URL.Query().Get("length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "length must be a positive integer",
				Code:  "INVALID_LENGTH",
			})
			return
		}
		length = n
	}

	code, err := h.engine.GetCode(r.Context(), length)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CodeResponse{Code: code})
}

// ClaimAlias handles POST /v1/aliases/{alias} requests.
func (h *CodeHandler) ClaimAlias(w http.ResponseWriter, r *http.Request) {
	code, err := h.engine.GetCodeForAlias(r.Context(), r.PathValue("alias"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CodeResponse{Code: code})
}

// Stats handles GET /v1/stats requests.
func (h *CodeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetStats())
}

// ReloadReserved handles POST /v1/admin/reserved/reload requests. A JSON
// body replaces the lists directly; an empty body re-reads the configured
// file.
func (h *CodeHandler) ReloadReserved(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReloadBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "failed to read request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if len(body) > maxReloadBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "reserved lists document too large",
			Code:  "BODY_TOO_LARGE",
		})
		return
	}

	var lists reserved.Lists
	switch {
	case len(body) > 0:
		if !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "invalid JSON body",
				Code:  "INVALID_JSON",
			})
			return
		}
		lists, err = reserved.Parse(body)
	case h.reservedPath != "":
		lists, err = reserved.LoadFile(h.reservedPath)
	default:
		lists = reserved.DefaultLists()
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_LISTS",
		})
		return
	}

	reservedWords, profanityWords := h.engine.ReloadReserved(lists)
	writeJSON(w, http.StatusOK, ReloadResponse{
		ReservedWords:  reservedWords,
		ProfanityWords: profanityWords,
	})
}

func (h *CodeHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := mapErrorToResponse(err)
	if status >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).Error("code request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, resp)
}

// mapErrorToResponse maps engine errors to HTTP status codes and error responses.
func mapErrorToResponse(err error) (int, ErrorResponse) {
	var taken *allocator.AliasTakenError
	var storeErr *allocator.StoreError

	switch {
	case errors.Is(err, allocator.ErrInvalidLength):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_LENGTH",
		}
	case errors.Is(err, allocator.ErrInvalidBatchSize):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_BATCH_SIZE",
		}
	case errors.Is(err, reserved.ErrInvalidAlias):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ALIAS",
		}
	case errors.Is(err, allocator.ErrReservedAlias):
		return http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "RESERVED_ALIAS",
		}
	case errors.As(err, &taken):
		return http.StatusConflict, ErrorResponse{
			Error:       err.Error(),
			Code:        "ALIAS_TAKEN",
			Suggestions: taken.Suggestions,
		}
	case errors.Is(err, allocator.ErrExhaustedRetries):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error: "service temporarily unavailable",
			Code:  "RETRY_EXCEEDED",
		}
	case errors.As(err, &storeErr):
		return http.StatusBadGateway, ErrorResponse{
			Error: "code store unavailable",
			Code:  "STORE_UNAVAILABLE",
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error: "request cancelled",
			Code:  "TIMEOUT",
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		}
	}
}
