package mockservice

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"animate3d/internal/characters"
)

type modelEntry struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Thumb    string  `json:"thumb,omitempty"`
	RigID    string  `json:"rigId,omitempty"`
	Platform string  `json:"platform"`
	Created  float64 `json:"ctime"`
	Modified float64 `json:"mtime"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.store.listModels(r.Context(), modelFilter{
		ID:           strings.TrimSpace(q.Get("modelId")),
		Search:       strings.TrimSpace(q.Get("searchToken")),
		IncludeStock: q.Get("stockModel") == "all",
	})
	if err != nil {
		s.internalError(w, err)
		return
	}
	list := make([]modelEntry, 0, len(rows))
	for _, m := range rows {
		list = append(list, modelEntry{
			ID:       m.ID,
			Name:     m.Name,
			Thumb:    m.Thumb,
			RigID:    m.RigID,
			Platform: m.Platform,
			Created:  float64(m.CreatedMS),
			Modified: float64(m.ModifiedMS),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": list})
}

func (s *Server) handleModelUploadURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	ext := strings.TrimPrefix(strings.TrimSpace(q.Get("modelExt")), ".")
	if name == "" || ext == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name and modelExt are required")
		return
	}
	key := "models/" + uuid.NewString() + "/" + url.PathEscape(path.Base(name)) + "." + ext
	writeJSON(w, http.StatusOK, map[string]string{"modelUrl": baseURL(r).url(key)})
}

type storeModelRequest struct {
	ModelURL    string `json:"modelUrl"`
	ModelName   string `json:"modelName"`
	ThumbURL    string `json:"thumbUrl"`
	ModelID     string `json:"modelId"`
	CreateThumb int    `json:"createThumb"`
}

func (s *Server) handleStoreModel(w http.ResponseWriter, r *http.Request) {
	var req storeModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "decode body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.ModelURL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "modelUrl is required")
		return
	}
	id := strings.TrimSpace(req.ModelID)
	if id == "" {
		id = uuid.NewString()
	}
	thumb := req.ThumbURL
	if thumb == "" && req.CreateThumb == 1 {
		key := "thumbs/" + id + ".png"
		if err := s.store.putBlob(r.Context(), key, "image/png", []byte("thumbnail "+id)); err != nil {
			s.internalError(w, err)
			return
		}
		thumb = baseURL(r).url(key)
	}
	if err := s.store.upsertModel(r.Context(), modelRow{
		ID:       id,
		Name:     req.ModelName,
		URL:      req.ModelURL,
		Thumb:    thumb,
		Platform: characters.PlatformCustom,
	}); err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"modelId": id})
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.deleteModel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}
