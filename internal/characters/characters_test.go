package characters_test

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

	"animate3d/internal/characters"
	"animate3d/internal/services"
	"animate3d/internal/transport"
	"animate3d/internal/upload"
)

func newService(server *httptest.Server) *characters.Service {
	api := transport.New(server.URL, nil, transport.WithHTTPClient(server.Client()))
	return characters.New(api, upload.New(api, nil), nil)
}

func TestListAcceptsWrappedAndBareLists(t *testing.T) {
	for name, body := range map[string]string{
		"wrapped": `{"list":[{"id":"m1","name":"Ybot","platform":"stock","ctime":1700000000000},{"Id":"m2","name":"Mine","platform":"custom"}]}`,
		"bare":    `[{"id":"m1","name":"Ybot","platform":"stock","ctime":1700000000000},{"Id":"m2","name":"Mine","platform":"custom"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/character/listModels" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				if r.URL.Query().Get("stockModel") != "all" || r.URL.Query().Get("searchToken") != "bot" {
					t.Errorf("unexpected query %q", r.URL.RawQuery)
				}
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			models, err := newService(server).List(context.Background(), characters.ListOptions{Search: "bot"})
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if len(models) != 2 {
				t.Fatalf("expected 2 models, got %d", len(models))
			}
			if models[0].ID != "m1" || models[0].IsCustom() || models[0].Created.UnixMilli() != 1700000000000 {
				t.Fatalf("unexpected stock model %+v", models[0])
			}
			if models[1].ID != "m2" || !models[1].IsCustom() {
				t.Fatalf("legacy id not honoured: %+v", models[1])
			}
		})
	}
}

func TestListOnlyCustomOmitsStockFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("stockModel") {
			t.Errorf("stockModel must be omitted, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"list":[{"id":"m1","platform":"stock"},{"id":"m2","platform":"custom"}]}`))
	}))
	defer server.Close()

	models, err := newService(server).List(context.Background(), characters.ListOptions{OnlyCustom: true})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "m2" {
		t.Fatalf("expected only the custom model, got %+v", models)
	}
}

func TestUploadRemoteURLStoresDirectly(t *testing.T) {
	var stored map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/character/storeModel" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&stored)
		_, _ = w.Write([]byte(`{"modelId":"m9"}`))
	}))
	defer server.Close()

	id, err := newService(server).Upload(context.Background(), "https://cdn.example/bot.fbx", characters.UploadOptions{CreateThumb: true})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if id != "m9" {
		t.Fatalf("unexpected model id %q", id)
	}
	if stored["modelName"] != "Unnamed Model" || stored["modelUrl"] != "https://cdn.example/bot.fbx" || stored["createThumb"] != float64(1) {
		t.Fatalf("unexpected store body %v", stored)
	}
}

func TestUploadLocalFileUsesSignedURL(t *testing.T) {
	var blob []byte
	var storedName string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/character/getModelUploadUrl":
			q := r.URL.Query()
			if q.Get("name") != "hero" || q.Get("modelExt") != "glb" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"modelUrl": server.URL + "/blob/hero"})
		case "/blob/hero":
			blob, _ = io.ReadAll(r.Body)
		case "/character/storeModel":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			storedName, _ = body["modelName"].(string)
			if _, ok := body["createThumb"]; ok {
				t.Error("createThumb should be omitted")
			}
			_, _ = w.Write([]byte(`{"modelId":"m10"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "hero.glb")
	if err := os.WriteFile(path, []byte("mesh"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := newService(server).Upload(context.Background(), path, characters.UploadOptions{})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if id != "m10" || storedName != "hero" || string(blob) != "mesh" {
		t.Fatalf("unexpected upload: id %q name %q blob %q", id, storedName, blob)
	}
}

func TestDeleteReturnsCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/character/deleteModel/m1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"count":1}`))
	}))
	defer server.Close()

	n, err := newService(server).Delete(context.Background(), "m1")
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
}

func TestEmptyInputsAreRejected(t *testing.T) {
	svc := characters.New(nil, nil, nil)
	if _, err := svc.Delete(context.Background(), " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Upload(context.Background(), "", characters.UploadOptions{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
