package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

// RegisterServiceInterface は登録ハンドラーが必要とするサービスインターフェース。
type RegisterServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*model.User, error)
}

// registerMetricsRecorder は登録ハンドラーが記録するメトリクスの部分集合。
type registerMetricsRecorder interface {
	RecordRegisterSuccess()
	RecordRegisterFailure(reason string)
}

// noopRegisterMetrics はメトリクス未設定時のフォールバック。
type noopRegisterMetrics struct{}

func (noopRegisterMetrics) RecordRegisterSuccess()       {}
func (noopRegisterMetrics) RecordRegisterFailure(string) {}

// RegisterHandler はユーザー登録のHTTPハンドラー。
type RegisterHandler struct {
	service RegisterServiceInterface
	metrics registerMetricsRecorder
}

// NewRegisterHandler はRegisterHandlerを生成する。
// metricsがnilの場合は記録しない。
func NewRegisterHandler(service RegisterServiceInterface, metrics registerMetricsRecorder) *RegisterHandler {
	if metrics == nil {
		metrics = noopRegisterMetrics{}
	}
	return &RegisterHandler{
		service: service,
		metrics: metrics,
	}
}

// registerRequest はユーザー登録のリクエストボディ。
type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register はユーザー登録を処理する。
// POST /api/register
// 登録が成功してもセッションは発行しない。クライアントは続けてログインする。
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordRegisterFailure(model.ErrCodeValidationFailure)
		middleware.WriteAPIError(w, model.NewValidationFailureError("body", 2))
		return
	}

	user, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			h.metrics.RecordRegisterFailure(apiErr.Code)
			middleware.WriteAPIError(w, apiErr)
			return
		}
		h.metrics.RecordRegisterFailure("INTERNAL_ERROR")
		slog.Error("register failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.metrics.RecordRegisterSuccess()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toUserResponse(user))
}
