package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/CargoDesk/config"
	backofficeapi "github.com/BearBump/CargoDesk/internal/api/backoffice_api"
	"github.com/BearBump/CargoDesk/internal/services/reconcile"
	"github.com/BearBump/CargoDesk/internal/services/settings"
	"github.com/BearBump/CargoDesk/internal/services/trackings"
	"github.com/BearBump/CargoDesk/internal/services/users"
	"github.com/BearBump/CargoDesk/internal/storage/memstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
)

func newTestAPI(t *testing.T) *backofficeapi.BackofficeAPI {
	t.Helper()
	st := memstore.New()
	defaults, err := settingsDefaults(config.CargoDeskConfig{})
	require.NoError(t, err)
	settingsSvc := settings.New(st.ShippingRates(), st.BaseAddresses(), st, nil, 0, defaults)
	return backofficeapi.New(
		trackings.New(st, reconcile.New(st), settingsSvc, nil, nil, 0),
		users.New(st, nil, users.MarkFormat{Prefix: "M856", Code: "FIM"}),
		settingsSvc,
		st,
	)
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRunServers_SwaggerHealthAndAPI(t *testing.T) {
	sw := writeSwagger(t)

	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grpcErr := make(chan error, 1)
	go func() { grpcErr <- runGRPCServer(ctx, grpcLis, health.NewServer()) }()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runGatewayServer(ctx, httpLis, grpcLis.Addr().String(), sw, newTestAPI(t), nil)
	}()

	base := "http://" + httpLis.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/swagger.json")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	code, body := get(t, base+"/swagger.json")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"swagger"`)

	require.Eventually(t, func() bool {
		code, body := get(t, base+"/healthz")
		return code == http.StatusOK && body != ""
	}, 2*time.Second, 20*time.Millisecond)

	code, body = get(t, base+"/api/v1/shipping-rates/current")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"normal_goods_rate":"250"`)

	code, _ = get(t, base+"/api/v1/trackings/missing")
	require.Equal(t, http.StatusNotFound, code)

	code, body = get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "go_goroutines")

	cancel()

	select {
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting grpc server to stop")
	case <-grpcErr:
	}
	select {
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting gateway to stop")
	case <-httpErr:
	}
}

func TestRunCargoAPI_ContextCanceled(t *testing.T) {
	sw := writeSwagger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := cargoAPIOpts{
		grpcAddr:     "127.0.0.1:0",
		httpAddr:     "127.0.0.1:0",
		grpcDialAddr: "127.0.0.1:0",
		swaggerPath:  sw,
		onListen:     func(_, httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runCargoAPI(ctx, opts, newTestAPI(t), nil) }()

	httpAddr := <-addrCh
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + httpAddr + "/swagger.json")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRunCargoAPI_MissingSwagger(t *testing.T) {
	err := runCargoAPI(context.Background(), cargoAPIOpts{swaggerPath: filepath.Join(t.TempDir(), "nope.json")}, newTestAPI(t), nil)
	require.Error(t, err)

	err = runCargoAPI(context.Background(), cargoAPIOpts{}, newTestAPI(t), nil)
	require.Error(t, err)
}

func TestReadyzHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	srv := &http.Server{Handler: readyzHandler(map[string]readinessCheck{"postgres": ok, "redis": down})}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Close()

	code, body := get(t, "http://"+lis.Addr().String())
	require.Equal(t, http.StatusServiceUnavailable, code)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Equal(t, "ok", out["postgres"])
	require.Equal(t, "connection refused", out["redis"])
}

func TestSettingsDefaults(t *testing.T) {
	d, err := settingsDefaults(config.CargoDeskConfig{DefaultUSDToGHS: "13.5", DefaultBaseAddress: "Tema"})
	require.NoError(t, err)
	require.Equal(t, "250", d.NormalGoodsRate.String())
	require.Equal(t, "300", d.SpecialGoodsRate.String())
	require.Equal(t, "13.5", d.USDToGHS.String())
	require.Equal(t, "Tema", d.BaseAddress)

	_, err = settingsDefaults(config.CargoDeskConfig{DefaultNormalGoodsRate: "cheap"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "default_normal_goods_rate")
}

func TestMarkFormat_Defaults(t *testing.T) {
	require.Equal(t, users.MarkFormat{Prefix: "M856", Code: "FIM"}, markFormat(config.CargoDeskConfig{}))
	require.Equal(t, users.MarkFormat{Prefix: "X1", Code: "AB"}, markFormat(config.CargoDeskConfig{MarkPrefix: "X1", MarkCode: "AB"}))
}
