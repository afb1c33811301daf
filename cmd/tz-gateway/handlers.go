package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tensorzero/tensorzero-sub023/config"
	"github.com/tensorzero/tensorzero-sub023/dataset"
	"github.com/tensorzero/tensorzero-sub023/feedback"
	"github.com/tensorzero/tensorzero-sub023/inference"
	"github.com/tensorzero/tensorzero-sub023/internal/idutil"
	"github.com/tensorzero/tensorzero-sub023/stream"
	"github.com/tensorzero/tensorzero-sub023/values"
)

type handlers struct {
	pipeline  *inference.Pipeline
	functions map[string]config.FunctionConfig
	feedback  *feedback.Store // nil when no feedback store is configured
	datasets  *dataset.Store  // nil when no dataset store is configured
}

// inferenceRequest is the wire shape of a POST /inference body.
type inferenceRequest struct {
	FunctionName string       `json:"function_name"`
	VariantName  string       `json:"variant_name,omitempty"`
	EpisodeID    string       `json:"episode_id,omitempty"`
	Input        values.Input `json:"input"`
	Stream       bool         `json:"stream,omitempty"`
	Dryrun       bool         `json:"dryrun,omitempty"`
	CacheMaxAgeS int          `json:"cache_max_age_seconds,omitempty"`
}

func (h *handlers) infer(w http.ResponseWriter, r *http.Request) {
	var req inferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.FunctionName == "" {
		writeError(w, http.StatusBadRequest, "function_name is required")
		return
	}

	episodeID := idutil.ID{}
	if req.EpisodeID != "" {
		parsed, err := idutil.Parse(req.EpisodeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid episode_id: "+err.Error())
			return
		}
		episodeID = parsed
	}

	pipelineReq := inference.Request{
		FunctionName: req.FunctionName,
		VariantName:  req.VariantName,
		Input:        req.Input,
		EpisodeID:    episodeID,
		Dryrun:       req.Dryrun,
		CacheMaxAge:  time.Duration(req.CacheMaxAgeS) * time.Second,
	}

	if req.Stream {
		ch, err := h.pipeline.InferStream(r.Context(), pipelineReq)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		stream.WriteSSE(w, ch)
		return
	}

	result, err := h.pipeline.Infer(r.Context(), pipelineReq)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"inference_id": result.InferenceID.String(),
		"episode_id":   result.EpisodeID.String(),
		"variant_name": result.VariantName,
		"output":       result.Output,
		"cache_hit":    result.CacheHit,
	})
}

// feedbackRequest is the wire shape of a POST /feedback body.
type feedbackRequest struct {
	MetricName string  `json:"metric_name"`
	Type       string  `json:"type"` // "boolean" | "float"
	Level      string  `json:"level"` // "inference" | "episode"
	TargetID   string  `json:"target_id"`
	BoolValue  bool    `json:"value_bool,omitempty"`
	FloatValue float64 `json:"value_float,omitempty"`
}

func (h *handlers) feedback(w http.ResponseWriter, r *http.Request) {
	if h.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback store is not configured")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	targetID, err := idutil.Parse(req.TargetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target_id: "+err.Error())
		return
	}

	id, err := h.feedback.Record(r.Context(), feedback.Feedback{
		MetricName: req.MetricName,
		Type:       feedback.MetricType(req.Type),
		Level:      feedback.Level(req.Level),
		TargetID:   targetID,
		BoolValue:  req.BoolValue,
		FloatValue: req.FloatValue,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"feedback_id": id.String()})
}

// datapointRequest is the wire shape of one entry in a POST
// /datasets/{name}/datapoints body.
type datapointRequest struct {
	FunctionName string          `json:"function_name"`
	Input        json.RawMessage `json:"input"`
	Output       json.RawMessage `json:"output,omitempty"`
}

func (h *handlers) createDatapoints(w http.ResponseWriter, r *http.Request) {
	if h.datasets == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset store is not configured")
		return
	}
	name := chi.URLParam(r, "name")
	var reqs []datapointRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points := make([]dataset.Datapoint, 0, len(reqs))
	for _, dr := range reqs {
		points = append(points, dataset.Datapoint{
			DatasetName:  name,
			FunctionName: dr.FunctionName,
			Input:        dr.Input,
			Output:       dr.Output,
		})
	}
	if err := h.datasets.CreateDatapoints(r.Context(), points); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"created": len(points)})
}

func (h *handlers) listDatapoints(w http.ResponseWriter, r *http.Request) {
	if h.datasets == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset store is not configured")
		return
	}
	name := chi.URLParam(r, "name")
	points, err := h.datasets.List(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(points)
}

func (h *handlers) deleteDataset(w http.ResponseWriter, r *http.Request) {
	if h.datasets == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset store is not configured")
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.datasets.DeleteDataset(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"message": message},
	})
}
