// Package router holds the HTTP handlers of the session surface: map clicks,
// the rendered view, and sign in/out.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/observability"
	"github.com/mohammed-shakir/watershed-gateway/internal/view"
	"github.com/mohammed-shakir/watershed-gateway/internal/watershed"
)

const maxClickBody = 64 << 10

// Clicker receives validated map clicks
type Clicker interface {
	OnPointSelected(ctx context.Context, pt model.Point) watershed.Dispatch
}

type Sessioner interface {
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
	State() watershed.SessionState
}

type Viewer interface {
	Snapshot() view.Snapshot
}

type ClickResponse struct {
	Dispatch watershed.Dispatch `json:"dispatch"`
	Point    model.Point        `json:"point"`
}

// HandleClick validates the clicked point and hands it to the orchestrator.
// Every accepted click answers 202; the body says whether it was dispatched.
func HandleClick(logger *slog.Logger, defaultSR model.SpatialReference, c Clicker) http.HandlerFunc {
	return instrument("/click", func(w http.ResponseWriter, r *http.Request) {
		pt, err := ParseClick(r, defaultSR)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d := c.OnPointSelected(r.Context(), pt)
		logger.DebugContext(r.Context(), "click", "point", pt.String(), "dispatch", d.String())
		writeJSON(w, http.StatusAccepted, ClickResponse{Dispatch: d, Point: pt})
	})
}

func HandleView(v Viewer) http.HandlerFunc {
	return instrument("/view", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, v.Snapshot())
	})
}

func HandleSession(s Sessioner) http.HandlerFunc {
	return instrument("/session", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.State())
	})
}

func HandleSignIn(logger *slog.Logger, s Sessioner) http.HandlerFunc {
	return instrument("/sign-in", func(w http.ResponseWriter, r *http.Request) {
		if err := s.SignIn(r.Context()); err != nil {
			writeSessionError(r.Context(), logger, w, "sign in failed", err)
			return
		}
		writeJSON(w, http.StatusOK, s.State())
	})
}

func HandleSignOut(logger *slog.Logger, s Sessioner) http.HandlerFunc {
	return instrument("/sign-out", func(w http.ResponseWriter, r *http.Request) {
		if err := s.SignOut(r.Context()); err != nil {
			writeSessionError(r.Context(), logger, w, "sign out failed", err)
			return
		}
		writeJSON(w, http.StatusOK, s.State())
	})
}

func writeSessionError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, watershed.ErrNoSignIn) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	logger.ErrorContext(ctx, msg, "err", err)
	http.Error(w, msg, http.StatusBadGateway)
}

// ParseClick reads a point from a JSON body or from x, y, z and wkid query
// parameters. A point without a spatial reference takes defaultSR.
func ParseClick(r *http.Request, defaultSR model.SpatialReference) (model.Point, error) {
	var (
		pt  model.Point
		err error
	)
	if isJSON(r) {
		pt, err = decodeJSONPoint(r)
	} else {
		pt, err = queryPoint(r)
	}
	if err != nil {
		return model.Point{}, err
	}
	if pt.SpatialReference.ID() == 0 {
		pt.SpatialReference = defaultSR
	}
	if err := pt.Validate(); err != nil {
		return model.Point{}, fmt.Errorf("invalid point: %w", err)
	}
	return pt, nil
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/json"
}

func decodeJSONPoint(r *http.Request) (model.Point, error) {
	var body struct {
		X                *float64               `json:"x"`
		Y                *float64               `json:"y"`
		Z                *float64               `json:"z"`
		SpatialReference model.SpatialReference `json:"spatialReference"`
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxClickBody))
	if err := dec.Decode(&body); err != nil {
		return model.Point{}, fmt.Errorf("invalid click body: %w", err)
	}
	if body.X == nil || body.Y == nil {
		return model.Point{}, errors.New("missing required fields: x, y")
	}
	return model.Point{X: *body.X, Y: *body.Y, Z: body.Z, SpatialReference: body.SpatialReference}, nil
}

func queryPoint(r *http.Request) (model.Point, error) {
	q := r.URL.Query()
	rawX, rawY := strings.TrimSpace(q.Get("x")), strings.TrimSpace(q.Get("y"))
	if rawX == "" || rawY == "" {
		return model.Point{}, errors.New("missing required parameters: x, y")
	}
	x, err := parseFloat(rawX)
	if err != nil {
		return model.Point{}, fmt.Errorf("x: %w", err)
	}
	y, err := parseFloat(rawY)
	if err != nil {
		return model.Point{}, fmt.Errorf("y: %w", err)
	}
	pt := model.Point{X: x, Y: y}
	if rawZ := strings.TrimSpace(q.Get("z")); rawZ != "" {
		z, err := parseFloat(rawZ)
		if err != nil {
			return model.Point{}, fmt.Errorf("z: %w", err)
		}
		pt.Z = &z
	}
	if rawWKID := strings.TrimSpace(q.Get("wkid")); rawWKID != "" {
		wkid, err := strconv.Atoi(rawWKID)
		if err != nil {
			return model.Point{}, fmt.Errorf("wkid: %w", err)
		}
		pt.SpatialReference = model.SpatialReference{WKID: wkid}
	}
	return pt, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}
