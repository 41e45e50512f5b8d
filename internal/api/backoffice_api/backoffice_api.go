package backoffice_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/BearBump/CargoDesk/internal/services/reconcile"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// UserIDHeader identifies the caller of self-service endpoints. Authentication
// happens in front of this service.
const UserIDHeader = "X-User-ID"

const defaultNotificationsLimit = 50

type TrackingService interface {
	CreateForUser(ctx context.Context, userID uint64, in models.TrackingInput) (*models.Tracking, error)
	CreateByAdmin(ctx context.Context, in models.TrackingInput) (*models.Tracking, error)
	UpdateByAdmin(ctx context.Context, id uint64, patch models.TrackingPatch) (*models.Tracking, error)
	OnTrackingWritten(ctx context.Context, id uint64) (*reconcile.Result, error)
	GetGroup(ctx context.Context, number string) ([]*models.Tracking, error)
}

type UserService interface {
	Register(ctx context.Context, in models.RegisterInput) (*models.User, error)
	RecordLogin(ctx context.Context, userID uint64, success bool) (*models.User, error)
	GenerateShippingMark(ctx context.Context, userID uint64, in models.ShippingMarkInput) (*models.ShippingMark, error)
	RenameShippingMark(ctx context.Context, userID uint64, in models.ShippingMarkInput) (*models.ShippingMark, error)
}

type SettingsService interface {
	SaveShippingRate(ctx context.Context, in models.ShippingRateInput) (*models.ShippingRate, error)
	CurrentShippingRate(ctx context.Context) (*models.ShippingRate, error)
	ShippingFee(ctx context.Context, goodsType string, cbm decimal.Decimal) (decimal.Decimal, bool, error)
	SaveBaseAddress(ctx context.Context, in models.BaseAddressInput) (*models.DefaultBaseAddress, error)
	CurrentBaseAddress(ctx context.Context) (*models.DefaultBaseAddress, error)
	SaveCurrencyRate(ctx context.Context, in models.CurrencyRateInput) (*models.CurrencyRate, error)
	CurrentCurrencyRate(ctx context.Context) (*models.CurrencyRate, error)
}

type NotificationLister interface {
	ListNotificationsByUser(ctx context.Context, userID uint64, limit int) ([]*models.Notification, error)
}

type BackofficeAPI struct {
	trackings     TrackingService
	users         UserService
	settings      SettingsService
	notifications NotificationLister
}

func New(trackings TrackingService, users UserService, settings SettingsService, notifications NotificationLister) *BackofficeAPI {
	return &BackofficeAPI{
		trackings:     trackings,
		users:         users,
		settings:      settings,
		notifications: notifications,
	}
}

// Register mounts every endpoint on mux.
func (a *BackofficeAPI) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		h       runtime.HandlerFunc
	}{
		{http.MethodPost, "/api/v1/trackings", a.createTracking},
		{http.MethodGet, "/api/v1/trackings/{number}", a.getTrackingGroup},
		{http.MethodPost, "/api/v1/trackings/{id}/reconcile", a.reconcileTracking},
		{http.MethodPost, "/api/v1/admin/trackings", a.adminCreateTracking},
		{http.MethodPatch, "/api/v1/admin/trackings/{id}", a.adminUpdateTracking},

		{http.MethodGet, "/api/v1/shipping-rates/current", a.currentShippingRate},
		{http.MethodGet, "/api/v1/shipping-rates/quote", a.quoteShippingFee},
		{http.MethodPost, "/api/v1/admin/shipping-rates", a.saveShippingRate},
		{http.MethodGet, "/api/v1/base-address/current", a.currentBaseAddress},
		{http.MethodPost, "/api/v1/admin/base-address", a.saveBaseAddress},
		{http.MethodGet, "/api/v1/currency-rate/current", a.currentCurrencyRate},
		{http.MethodPost, "/api/v1/admin/currency-rate", a.saveCurrencyRate},

		{http.MethodPost, "/api/v1/users", a.registerUser},
		{http.MethodPost, "/api/v1/users/{id}/login", a.recordLogin},
		{http.MethodPost, "/api/v1/users/{id}/shipping-mark", a.generateShippingMark},
		{http.MethodPatch, "/api/v1/users/{id}/shipping-mark", a.renameShippingMark},
		{http.MethodGet, "/api/v1/users/{id}/notifications", a.listNotifications},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.h); err != nil {
			return errors.Wrapf(err, "register %s %s", rt.method, rt.pattern)
		}
	}
	return nil
}

func (a *BackofficeAPI) createTracking(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	userID, err := strconv.ParseUint(r.Header.Get(UserIDHeader), 10, 64)
	if err != nil || userID == 0 {
		writeError(w, errors.Wrap(models.ErrValidation, UserIDHeader+" header is required"))
		return
	}
	var in models.TrackingInput
	if !decode(w, r, &in) {
		return
	}
	// owner is always the caller
	in.OwnerID = nil
	t, err := a.trackings.CreateForUser(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *BackofficeAPI) getTrackingGroup(w http.ResponseWriter, r *http.Request, params map[string]string) {
	rows, err := a.trackings.GetGroup(r.Context(), params["number"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracking_number": params["number"], "rows": rows})
}

func (a *BackofficeAPI) reconcileTracking(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := pathID(w, params)
	if !ok {
		return
	}
	res, err := a.trackings.OnTrackingWritten(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *BackofficeAPI) adminCreateTracking(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in models.TrackingInput
	if !decode(w, r, &in) {
		return
	}
	t, err := a.trackings.CreateByAdmin(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *BackofficeAPI) adminUpdateTracking(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := pathID(w, params)
	if !ok {
		return
	}
	var patch models.TrackingPatch
	if !decode(w, r, &patch) {
		return
	}
	t, err := a.trackings.UpdateByAdmin(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *BackofficeAPI) currentShippingRate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rate, err := a.settings.CurrentShippingRate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (a *BackofficeAPI) quoteShippingFee(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	cbm, err := decimal.NewFromString(q.Get("cbm"))
	if err != nil {
		writeError(w, errors.Wrap(models.ErrValidation, "cbm must be a decimal"))
		return
	}
	fee, ok, err := a.settings.ShippingFee(r.Context(), q.Get("goods_type"), cbm)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, errors.Wrap(models.ErrValidation, "goods_type must be normal or special and cbm positive"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goods_type": q.Get("goods_type"), "cbm": cbm, "shipping_fee": fee})
}

func (a *BackofficeAPI) saveShippingRate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in models.ShippingRateInput
	if !decode(w, r, &in) {
		return
	}
	rate, err := a.settings.SaveShippingRate(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (a *BackofficeAPI) currentBaseAddress(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	addr, err := a.settings.CurrentBaseAddress(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (a *BackofficeAPI) saveBaseAddress(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in models.BaseAddressInput
	if !decode(w, r, &in) {
		return
	}
	addr, err := a.settings.SaveBaseAddress(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (a *BackofficeAPI) currentCurrencyRate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rate, err := a.settings.CurrentCurrencyRate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (a *BackofficeAPI) saveCurrencyRate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in models.CurrencyRateInput
	if !decode(w, r, &in) {
		return
	}
	rate, err := a.settings.SaveCurrencyRate(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rate)
}

func (a *BackofficeAPI) registerUser(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in models.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	u, err := a.users.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type loginRequest struct {
	Success bool `json:"success"`
}

func (a *BackofficeAPI) recordLogin(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := pathID(w, params)
	if !ok {
		return
	}
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := a.users.RecordLogin(r.Context(), id, req.Success)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *BackofficeAPI) generateShippingMark(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := pathID(w, params)
	if !ok {
		return
	}
	var in models.ShippingMarkInput
	if !decode(w, r, &in) {
		return
	}
	sm, err := a.users.GenerateShippingMark(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sm)
}

func (a *BackofficeAPI) renameShippingMark(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := pathID(w, params)
	if !ok {
		return
	}
	var in models.ShippingMarkInput
	if !decode(w, r, &in) {
		return
	}
	sm, err := a.users.RenameShippingMark(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sm)
}

func (a *BackofficeAPI) listNotifications(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := pathID(w, params)
	if !ok {
		return
	}
	limit := defaultNotificationsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errors.Wrap(models.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	ns, err := a.notifications.ListNotificationsByUser(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": ns})
}

func pathID(w http.ResponseWriter, params map[string]string) (uint64, bool) {
	id, err := strconv.ParseUint(params["id"], 10, 64)
	if err != nil || id == 0 {
		writeError(w, errors.Wrap(models.ErrValidation, "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, errors.Wrap(models.ErrValidation, "invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrSuspended):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
