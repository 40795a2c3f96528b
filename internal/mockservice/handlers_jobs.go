package mockservice

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"

	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/params"
)

// jobCost is the credit price of every accepted job.
const jobCost = 1

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	key := "uploads/" + uuid.NewString() + "/" + url.PathEscape(path.Base(name))
	writeJSON(w, http.StatusOK, map[string]string{"url": baseURL(r).url(key)})
}

func (s *Server) handleBlobPut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "read body: "+err.Error())
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds limit")
		return
	}
	if err := s.store.putBlob(r.Context(), key, r.Header.Get("Content-Type"), data); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBlobGet(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok, err := s.store.blob(r.Context(), r.PathValue("key"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "blob not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req jobs.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "decode body: "+err.Error())
		return
	}
	if req.Processor != jobs.Processor {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown processor %q", req.Processor))
		return
	}
	p, err := params.Decode(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, 503, err.Error())
		return
	}

	ctx := r.Context()
	job := jobRow{RID: uuid.NewString(), Status: jobs.RemotePending, Params: req.Params}
	switch {
	case req.URL != "":
		job.Kind = kindSingle
		if p.Pipeline == params.PipelineMultiPersonDetection {
			job.Kind = kindDetection
		}
		job.MediaURL = req.URL
		job.MediaName = mediaName(req.URL)
		if key, ok := keyFromURL(req.URL); ok {
			if job.MediaSize, err = s.store.blobSize(ctx, key); err != nil {
				s.internalError(w, err)
				return
			}
		}
	case req.DetectionRID != "":
		det, found, err := s.store.job(ctx, req.DetectionRID)
		if err != nil {
			s.internalError(w, err)
			return
		}
		if !found || det.Kind != kindDetection {
			writeError(w, http.StatusNotFound, "not_found", "detection job "+req.DetectionRID+" not found")
			return
		}
		if det.remoteStatus(det.Tick, s.opts.StepsPerJob) != jobs.RemoteSuccess {
			writeError(w, http.StatusBadRequest, "invalid_request", "detection job "+req.DetectionRID+" has not succeeded")
			return
		}
		if msg := checkBindings(p.Models); msg != "" {
			writeError(w, http.StatusBadRequest, 503, msg)
			return
		}
		models, _ := json.Marshal(p.Models)
		job.Kind = kindMulti
		job.DetectionRID = det.RID
		job.MediaURL, job.MediaName, job.MediaSize = det.MediaURL, det.MediaName, det.MediaSize
		job.Models = string(models)
	case req.RID != "":
		src, found, err := s.store.job(ctx, req.RID)
		if err != nil {
			s.internalError(w, err)
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "not_found", "job "+req.RID+" not found")
			return
		}
		job.Kind = kindRerun
		job.SourceRID = src.RID
		job.MediaURL, job.MediaName, job.MediaSize = src.MediaURL, src.MediaName, src.MediaSize
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "one of url, rid or rid_mp_detection is required")
		return
	}

	charged, err := s.store.charge(ctx, jobCost)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !charged {
		writeError(w, http.StatusPaymentRequired, 101, "Not enough credits")
		return
	}
	if err := s.store.insertJob(ctx, job); err != nil {
		s.internalError(w, err)
		return
	}
	if err := s.storeArtifacts(r, job); err != nil {
		s.internalError(w, err)
		return
	}

	s.logger.Info("mock job created",
		logging.String(logging.FieldEventType, "mock_job_created"),
		logging.RID(job.RID),
		logging.String("kind", string(job.Kind)),
		logging.String("media", job.MediaName),
	)
	writeJSON(w, http.StatusOK, jobs.ProcessResponse{RID: job.RID})
}

func (s *Server) storeArtifacts(r *http.Request, job jobRow) error {
	for _, g := range job.artifacts() {
		for _, f := range g.files {
			content := fmt.Sprintf("%s %s %s\n", job.RID, g.name, f.typ)
			if err := s.store.putBlob(r.Context(), f.key, "application/octet-stream", []byte(content)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rid := r.PathValue("rid")
	job, found, err := s.store.job(r.Context(), rid)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, jobs.StatusResponse{Count: 0, Status: []jobs.StatusEntry{}})
		return
	}

	steps := s.opts.StepsPerJob
	entry := job.entry(steps, baseURL(r))
	if job.Tick < terminalTick(steps) {
		if err := s.store.advanceJob(r.Context(), rid, job.Tick, job.remoteStatus(job.Tick+1, steps)); err != nil {
			s.internalError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, jobs.StatusResponse{Count: 1, Status: []jobs.StatusEntry{entry}})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	if raw := r.PathValue("statuses"); raw != "" {
		for part := range strings.SplitSeq(raw, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				statuses = append(statuses, part)
			}
		}
	}
	rows, err := s.store.listJobs(r.Context(), statuses)
	if err != nil {
		s.internalError(w, err)
		return
	}
	resp := jobs.ListResponse{List: make([]jobs.ListEntry, 0, len(rows))}
	for _, j := range rows {
		resp.List = append(resp.List, j.listEntry())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, found, err := s.store.job(r.Context(), r.PathValue("rid"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !found || job.remoteStatus(job.Tick, s.opts.StepsPerJob) != jobs.RemoteSuccess {
		writeJSON(w, http.StatusOK, jobs.DownloadResponse{Count: 0, Links: []jobs.LinkEntry{}})
		return
	}
	writeJSON(w, http.StatusOK, jobs.DownloadResponse{Count: 1, Links: []jobs.LinkEntry{job.link(baseURL(r))}})
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := s.store.credits(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"credits": credits})
}

// checkBindings validates multi-person bindings against the detected slots.
func checkBindings(models []params.ModelBinding) string {
	if len(models) == 0 {
		return "models are required"
	}
	for _, m := range models {
		if !slices.Contains(detectedSlots, m.TrackingID) {
			return fmt.Sprintf("unknown tracking id %q", m.TrackingID)
		}
		if m.ModelID == "" {
			return fmt.Sprintf("tracking id %s has no model", m.TrackingID)
		}
	}
	return ""
}

func mediaName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return path.Base(raw)
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}
