// Package resolver is the optional HTTP wrapper around the frame extractor
// and inference client: POST /analyze runs the same pipeline the in-process
// analyzer runs, returning an explicit success boolean (HTTP 200 even on
// internal failure) rather than a status code. GET /health reports
// liveness.
package resolver

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/scrollsafe/doomscroller/extractor"
	"github.com/scrollsafe/doomscroller/httpclient"
	doomlog "github.com/scrollsafe/doomscroller/log"
	"github.com/scrollsafe/doomscroller/middleware"
	"github.com/scrollsafe/doomscroller/model"
)

// Service holds the collaborators the HTTP handlers need.
type Service struct {
	extractor *extractor.Extractor
	infer     *httpclient.Client

	apiToken string
	limiter  *middleware.CapacityLimiter
}

// NewService builds a resolver Service. apiToken may be empty to disable
// auth; limiter may be nil to disable the in-flight cap.
func NewService(ex *extractor.Extractor, infer *httpclient.Client, apiToken string, limiter *middleware.CapacityLimiter) *Service {
	return &Service{extractor: ex, infer: infer, apiToken: apiToken, limiter: limiter}
}

// Router builds the httprouter mux exposing POST /analyze and GET /health.
func (s *Service) Router() *httprouter.Router {
	analyze := middleware.RequireBearerToken(s.apiToken, s.handleAnalyze)
	if s.limiter != nil {
		analyze = s.limiter.Limit(analyze)
	}

	router := httprouter.New()
	router.POST("/analyze", analyze)
	router.GET("/health", s.handleHealth)
	return router
}

// AnalyzeRequest is the resolver's request body.
type AnalyzeRequest struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Channel      string `json:"channel,omitempty"`
	TargetFrames int    `json:"target_frames"`
	Timeout      int    `json:"timeout"`
}

// AnalyzeResponse is the resolver's response body: it runs extraction and
// inference in one round trip and hands back the inference result directly,
// so the analyzer never needs the raw frame bytes in resolver mode.
type AnalyzeResponse struct {
	Success     bool                    `json:"success"`
	Inference   model.InferenceResponse `json:"inference,omitempty"`
	FramesCount int                     `json:"frames_count"`
	Error       string                  `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, AnalyzeResponse{Success: false, Error: "invalid request body"})
		return
	}
	if req.TargetFrames <= 0 {
		req.TargetFrames = 16
	}
	if req.Timeout <= 0 {
		req.Timeout = 180
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.Timeout)*time.Second)
	defer cancel()

	frames, err := s.extractor.Extract(ctx, req.URL, req.TargetFrames, time.Duration(req.Timeout)*time.Second)
	if err != nil {
		doomlog.LogError(req.URL, "resolver extraction failed", err)
		writeJSON(w, http.StatusOK, AnalyzeResponse{Success: false, Error: err.Error()})
		return
	}

	inferResp, err := s.infer.Infer(ctx, frames)
	if err != nil {
		doomlog.LogError(req.URL, "resolver inference failed", err)
		writeJSON(w, http.StatusOK, AnalyzeResponse{Success: false, Error: err.Error(), FramesCount: len(frames)})
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Success:     true,
		Inference:   inferResp,
		FramesCount: len(frames),
	})
}
