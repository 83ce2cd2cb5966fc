package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/gghookah/hookah-orders/internal/orders"
)

const (
	HeaderTelegramID = "X-Telegram-ID"
	HeaderOperatorID = "X-Operator-ID"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
	Max   *int   `json:"max,omitempty"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orders.ErrPreconditionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orders.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to its status and body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var re *orders.RuleError
	if errors.As(err, &re) {
		resp.Rule = re.Rule
		if re.Rule == orders.RuleOnlyNAvailable {
			n := re.Max
			resp.Max = &n
		}
	}
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		resp.Error = "internal error"
	}
	writeJSON(w, code, resp)
}

var validate = validator.New()

// decode reads a JSON body into dst and validates it. On failure it writes
// the 400 response and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid json: %v", err)})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, r, err)
			return false
		}
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Namespace()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{Error: "validation failed", Details: details})
		return false
	}
	return true
}

type actorKey struct{}

// withActor requires header to carry a positive chat id and stores the
// resulting actor in the request context.
func withActor(header string, as func(int64) orders.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(r.Header.Get(header), 10, 64)
			if err != nil || id <= 0 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid " + header})
				return
			}
			ctx := context.WithValue(r.Context(), actorKey{}, as(id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFrom(ctx context.Context) orders.Actor {
	a, _ := ctx.Value(actorKey{}).(orders.Actor)
	return a
}
