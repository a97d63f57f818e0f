package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/muchq/sgdmaster/internal/asyncmaster"
	"github.com/muchq/sgdmaster/internal/gradstate"
	"github.com/muchq/sgdmaster/internal/httpapi"
	"github.com/muchq/sgdmaster/internal/registry"
	"github.com/muchq/sgdmaster/internal/stopping"
	"github.com/muchq/sgdmaster/internal/syncmaster"
	"github.com/muchq/sgdmaster/internal/vector"
)

func linearModel(w, x vector.Vector) float64 { return w.Mul(x).Sum() }

// gradStateResponse is GradState adapted for JSON: vector.Vector has no
// exported fields to marshal directly.
type gradStateResponse struct {
	Weights   []float64 `json:"weights"`
	Updates   int64     `json:"updates"`
	Done      bool      `json:"done"`
	FinalLoss *float64  `json:"finalLoss,omitempty"`
}

func toResponse(s gradstate.State) gradStateResponse {
	return gradStateResponse{
		Weights:   s.Grad.Data(),
		Updates:   s.Updates,
		Done:      s.Done(),
		FinalLoss: s.FinalLoss,
	}
}

type trainRequest struct {
	InitialWeights []float64 `json:"initialWeights"`
	Epochs         int       `json:"epochs"`
	BatchSize      int       `json:"batchSize"`
	MaxSteps       int64     `json:"maxSteps"`
	CheckEvery     int64     `json:"checkEvery"`
}

func decodeTrainRequest(r *http.Request, cfg appConfig) (trainRequest, error) {
	var req trainRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
	}
	if req.Epochs == 0 {
		req.Epochs = cfg.Epochs
	}
	if req.BatchSize == 0 {
		req.BatchSize = cfg.BatchSize
	}
	if req.MaxSteps == 0 {
		req.MaxSteps = cfg.MaxSteps
	}
	if req.CheckEvery == 0 {
		req.CheckEvery = cfg.CheckEvery
	}
	return req, nil
}

// appConfig is the subset of config.Config the HTTP handlers need.
type appConfig struct {
	Epochs     int
	BatchSize  int
	MaxSteps   int64
	CheckEvery int64
	LeakCoef   float64
	FeatureDim int
}

func trainSyncHandler(sm *syncmaster.Master, cfg appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeTrainRequest(r, cfg)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.NewBadRequest(err.Error()))
			return
		}
		w0, err := initialWeights(req.InitialWeights, cfg.FeatureDim)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.NewBadRequest(err.Error()))
			return
		}

		final, err := sm.Backward(r.Context(), req.Epochs, req.BatchSize, w0, stopping.ConsecutiveDelta(1e-6))
		if err != nil {
			if errors.Is(err, gradstate.ErrAlreadyRunning) {
				httpapi.WriteProblem(w, httpapi.NewConflict(err.Error()))
				return
			}
			httpapi.WriteProblem(w, httpapi.NewBadGateway(err.Error()))
			return
		}
		httpapi.JsonOk(w, toResponse(final))
	}
}

func trainAsyncHandler(am *asyncmaster.Master, reg *registry.Registry, cfg appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeTrainRequest(r, cfg)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.NewBadRequest(err.Error()))
			return
		}
		w0, err := initialWeights(req.InitialWeights, cfg.FeatureDim)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.NewBadRequest(err.Error()))
			return
		}

		acfg := asyncmaster.Config{
			InitialWeights: w0,
			MaxSteps:       req.MaxSteps,
			Stopping:       stopping.ConsecutiveDelta(1e-6),
			BatchSize:      req.BatchSize,
			CheckEvery:     req.CheckEvery,
			LeakCoef:       cfg.LeakCoef,
			Model:          linearModel,
		}
		completion, err := am.Run(r.Context(), acfg)
		if err != nil {
			if !errors.Is(err, gradstate.ErrAlreadyRunning) {
				httpapi.WriteProblem(w, httpapi.NewBadGateway(err.Error()))
				return
			}
			httpapi.WriteProblem(w, httpapi.NewConflict(err.Error()))
			return
		}

		final := completion.Wait()
		httpapi.JsonOk(w, toResponse(final))
	}
}

func initialWeights(raw []float64, dim int) (vector.Vector, error) {
	if len(raw) == 0 {
		return vector.Zeros(dim), nil
	}
	return vector.New(raw)
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httpapi.JsonOk(w, map[string]string{"status": "ok"})
}

func readyzHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-reg.Ready():
			httpapi.JsonOk(w, map[string]string{"status": "ready"})
		default:
			httpapi.JsonStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting"})
		}
	}
}
