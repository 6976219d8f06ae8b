package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"trtlbridge/apperrors"
)

// limit of accepted request bodies
const maxBodySize = 64 << 10

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responsePlain(w http.ResponseWriter, data []byte, code int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	w.Write(data)
}

func responseNoContent(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusNoContent)
}

// responseError answers with the status of err's category. Only the user message leaves the service.
func (h *Handlers) responseError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Int("code", code), zap.Error(err))
	} else {
		h.logger.Info("request rejected", zap.String("path", r.URL.Path), zap.Int("code", code), zap.Error(err))
	}

	responseJSON(w, &APIResponse{
		Status:  "error",
		Message: apperrors.UserMessage(err),
	}, code)
}

// decode reads a JSON body into req and validates it, answering 400 itself on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Info("error reading request body", zap.Error(err))
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Error reading request body",
		}, http.StatusBadRequest)
		return false
	}

	if err = json.Unmarshal(body, req); err != nil {
		h.logger.Info("error unmarshalling request body", zap.Error(err))
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Cannot unmarshal input JSON",
		}, http.StatusBadRequest)
		return false
	}

	if err = h.validate.Struct(req); err != nil {
		resp := &APIResponse{Status: "error", Message: "Invalid request"}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			resp.Field = lowerFirst(verrs[0].Field())
			resp.Message = fieldMessage(verrs[0])
		}
		responseJSON(w, resp, http.StatusBadRequest)
		return false
	}
	return true
}
