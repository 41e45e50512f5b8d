package backoffice_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/BearBump/CargoDesk/internal/cache/rediscache"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/BearBump/CargoDesk/internal/services/reconcile"
	"github.com/BearBump/CargoDesk/internal/services/settings"
	"github.com/BearBump/CargoDesk/internal/services/trackings"
	"github.com/BearBump/CargoDesk/internal/services/users"
	"github.com/BearBump/CargoDesk/internal/storage/memstore"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	store *memstore.Store
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	t.Cleanup(func() { _ = rc.Close() })

	st := memstore.New()
	settingsSvc := settings.New(st.ShippingRates(), st.BaseAddresses(), st, rc, time.Minute, settings.Defaults{
		NormalGoodsRate:  decimal.RequireFromString("250"),
		SpecialGoodsRate: decimal.RequireFromString("300"),
		BaseAddress:      "Default warehouse",
		USDToGHS:         decimal.RequireFromString("12"),
	})
	trackingSvc := trackings.New(st, reconcile.New(st), settingsSvc, nil, rc, time.Minute)
	userSvc := users.New(st, nil, users.MarkFormat{Prefix: "M856", Code: "FIM"})

	mux := runtime.NewServeMux()
	require.NoError(t, New(trackingSvc, userSvc, settingsSvc, st).Register(mux))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) register(t *testing.T, name, role string) *models.User {
	t.Helper()
	var u models.User
	code := e.do(t, http.MethodPost, "/api/v1/users", models.RegisterInput{
		Username: name, FullName: "Test " + name, Email: name + "@example.com", Contact: "+233" + name, Role: role,
	}, nil, &u)
	require.Equal(t, http.StatusCreated, code)
	return &u
}

func TestTrackingFlow_AdminFirstThenUser(t *testing.T) {
	env := newEnv(t)
	user := env.register(t, "kofi", "")

	var mark models.ShippingMark
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, fmtUser(user.ID, "/shipping-mark"), models.ShippingMarkInput{Name: "Kofi"}, nil, &mark))
	require.True(t, strings.HasPrefix(mark.MarkID, "M856-FIM"))

	var adminRow models.Tracking
	code := env.do(t, http.MethodPost, "/api/v1/admin/trackings", models.TrackingInput{TrackingNumber: "TRK1", Status: models.TrackingStatusVessel}, nil, &adminRow)
	require.Equal(t, http.StatusCreated, code)
	require.Nil(t, adminRow.OwnerID)

	var userRow models.Tracking
	code = env.do(t, http.MethodPost, "/api/v1/trackings", models.TrackingInput{TrackingNumber: "TRK1"}, map[string]string{UserIDHeader: uintStr(user.ID)}, &userRow)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, user.ID, *userRow.OwnerID)

	var group struct {
		TrackingNumber string             `json:"tracking_number"`
		Rows           []*models.Tracking `json:"rows"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/trackings/TRK1", nil, nil, &group))
	require.Len(t, group.Rows, 2)
	for _, r := range group.Rows {
		require.Equal(t, user.ID, *r.OwnerID)
		require.Equal(t, mark.MarkID, r.ShippingMark)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	env := newEnv(t)
	var res reconcile.Result
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/trackings/99/reconcile", nil, nil, nil))

	var row models.Tracking
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/admin/trackings", models.TrackingInput{TrackingNumber: "X", ShippingMark: "NOBODY"}, nil, &row))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, fmtTracking(row.ID, "/reconcile"), nil, nil, &res))
	require.Equal(t, reconcile.SourceUnresolved, res.Source)
	require.False(t, res.Changed())
}

func TestAdminUpdate_ComputesFee(t *testing.T) {
	env := newEnv(t)
	var row models.Tracking
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/admin/trackings", models.TrackingInput{TrackingNumber: "F1"}, nil, &row))

	cbm := decimal.RequireFromString("2")
	goods := models.GoodsTypeSpecial
	var updated models.Tracking
	code := env.do(t, http.MethodPatch, fmtAdminTracking(row.ID), models.TrackingPatch{CBM: &cbm, GoodsType: &goods}, nil, &updated)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, updated.ShippingFee)
	require.Equal(t, "600", updated.ShippingFee.String())

	bad := "teleported"
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, fmtAdminTracking(row.ID), models.TrackingPatch{Status: &bad}, nil, nil))
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, fmtAdminTracking(12345), models.TrackingPatch{}, nil, nil))
}

func TestCreateTracking_RequiresUserHeader(t *testing.T) {
	env := newEnv(t)
	var body map[string]string
	code := env.do(t, http.MethodPost, "/api/v1/trackings", models.TrackingInput{TrackingNumber: "T"}, nil, &body)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body["error"], UserIDHeader)

	code = env.do(t, http.MethodPost, "/api/v1/trackings", models.TrackingInput{TrackingNumber: "T"}, map[string]string{UserIDHeader: "77"}, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newEnv(t)

	var rate models.ShippingRate
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/shipping-rates/current", nil, nil, &rate))
	require.Zero(t, rate.ID)
	require.Equal(t, "250", rate.NormalGoodsRate.String())

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/admin/shipping-rates", models.ShippingRateInput{
		NormalGoodsRate: decimal.RequireFromString("200"), SpecialGoodsRate: decimal.RequireFromString("280"),
	}, nil, &rate))
	require.True(t, rate.IsActive)

	var cur models.ShippingRate
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/shipping-rates/current", nil, nil, &cur))
	require.Equal(t, rate.ID, cur.ID)

	var quote struct {
		ShippingFee decimal.Decimal `json:"shipping_fee"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/shipping-rates/quote?goods_type=normal&cbm=1.5", nil, nil, &quote))
	require.Equal(t, "300", quote.ShippingFee.String())
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/shipping-rates/quote?goods_type=bulk&cbm=1", nil, nil, nil))

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/admin/shipping-rates", models.ShippingRateInput{}, nil, nil))

	var addr models.DefaultBaseAddress
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/base-address/current", nil, nil, &addr))
	require.Equal(t, "Default warehouse", addr.BaseAddress)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/admin/base-address", models.BaseAddressInput{BaseAddress: "Tema port"}, nil, &addr))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/base-address/current", nil, nil, &addr))
	require.Equal(t, "Tema port", addr.BaseAddress)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/admin/base-address", models.BaseAddressInput{}, nil, nil))

	var fx models.CurrencyRate
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/currency-rate/current", nil, nil, &fx))
	require.Equal(t, "12", fx.USDToGHS.String())
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/admin/currency-rate", models.CurrencyRateInput{USDToGHS: decimal.RequireFromString("15.5")}, nil, &fx))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/currency-rate/current", nil, nil, &fx))
	require.Equal(t, "15.5", fx.USDToGHS.String())
}

func TestUserEndpoints(t *testing.T) {
	env := newEnv(t)
	u := env.register(t, "ama", "")

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/users", models.RegisterInput{Username: "x"}, nil, nil))

	var after models.User
	for i := 0; i < models.MaxLoginAttempts; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, fmtUser(u.ID, "/login"), loginRequest{Success: false}, nil, &after))
	}
	require.Equal(t, models.UserStatusSuspended, after.Status)
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, fmtUser(u.ID, "/login"), loginRequest{Success: true}, nil, nil))

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, fmtUser(u.ID, "/shipping-mark"), models.ShippingMarkInput{Name: "Ama"}, nil, nil))
	require.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, fmtUser(u.ID, "/shipping-mark"), models.ShippingMarkInput{Name: "Again"}, nil, nil))

	var renamed models.ShippingMark
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, fmtUser(u.ID, "/shipping-mark"), models.ShippingMarkInput{Name: "Ama Ltd"}, nil, &renamed))
	require.Equal(t, "Ama Ltd", renamed.Name)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/users/abc/login", loginRequest{}, nil, nil))
}

func TestListNotifications(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	u := env.register(t, "yaw", "")
	for i := 0; i < 3; i++ {
		require.NoError(t, env.store.CreateNotification(ctx, &models.Notification{
			UserID: u.ID, Kind: models.NotificationWelcome, Subject: "hi", Status: models.NotificationStatusSent,
		}))
	}

	var out struct {
		Notifications []*models.Notification `json:"notifications"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmtUser(u.ID, "/notifications?limit=2"), nil, nil, &out))
	require.Len(t, out.Notifications, 2)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, fmtUser(u.ID, "/notifications?limit=-1"), nil, nil, nil))
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, statusFor(errors.Wrap(models.ErrValidation, "x")))
	require.Equal(t, http.StatusNotFound, statusFor(errors.Wrap(models.ErrNotFound, "x")))
	require.Equal(t, http.StatusConflict, statusFor(errors.Wrap(models.ErrConflict, "x")))
	require.Equal(t, http.StatusForbidden, statusFor(models.ErrSuspended))
	require.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func uintStr(id uint64) string { return strconv.FormatUint(id, 10) }

func fmtUser(id uint64, suffix string) string {
	return "/api/v1/users/" + uintStr(id) + suffix
}

func fmtTracking(id uint64, suffix string) string {
	return "/api/v1/trackings/" + uintStr(id) + suffix
}

func fmtAdminTracking(id uint64) string {
	return "/api/v1/admin/trackings/" + uintStr(id)
}
