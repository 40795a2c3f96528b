package testsupport

import (
	"context"
	"net/http/httptest"
	"testing"

	"animate3d/internal/config"
	"animate3d/internal/mockservice"
)

// StartMockService runs an in-memory mock service for the life of the test
// and points cfg at it.
func StartMockService(t testing.TB, cfg *config.Config) *httptest.Server {
	t.Helper()

	ctx := context.Background()
	store, err := mockservice.Open(ctx, "")
	if err != nil {
		t.Fatalf("mockservice.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv, err := mockservice.New(ctx, store, mockservice.Options{
		ClientID:     cfg.API.ClientID,
		ClientSecret: cfg.API.ClientSecret,
		StepsPerJob:  cfg.Mock.StepsPerJob,
	})
	if err != nil {
		t.Fatalf("mockservice.New: %v", err)
	}
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	cfg.API.ServerURL = server.URL
	return server
}
