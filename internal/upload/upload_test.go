package upload_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"animate3d/internal/services"
	"animate3d/internal/transport"
	"animate3d/internal/upload"
)

func TestVideoRequestsSignedURLAndPuts(t *testing.T) {
	var stored []byte
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/upload":
			if r.URL.Query().Get("name") != "dance.mp4" || r.URL.Query().Get("resumable") != "0" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"url": server.URL + "/blob/1"})
		case r.Method == http.MethodPut && r.URL.Path == "/blob/1":
			if r.Header.Get("Content-Type") != "application/octet-stream" {
				t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
			}
			stored, _ = io.ReadAll(r.Body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "dance.mp4")
	if err := os.WriteFile(path, []byte("frames"), 0o644); err != nil {
		t.Fatal(err)
	}

	u := upload.New(transport.New(server.URL, nil, transport.WithHTTPClient(server.Client())), nil)
	got, err := u.Video(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Video returned error: %v", err)
	}
	if got != server.URL+"/blob/1" || string(stored) != "frames" {
		t.Fatalf("unexpected upload: url %q body %q", got, stored)
	}
}

func TestVideoMissingFileFailsLocally(t *testing.T) {
	u := upload.New(nil, nil)
	_, err := u.Video(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
