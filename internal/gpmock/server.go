// Package gpmock is an in-process fake of the hydrology watershed
// geoprocessing service. It implements submitJob, job status and result data
// endpoints and records every call it receives.
package gpmock

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
)

const DefaultTaskPath = "/Watershed"

type ErrorBody struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type Behavior struct {
	// status reported by submitJob; defaults to esriJobSubmitted
	SubmitStatus model.JobStatus
	// status reported once polling ends; defaults to esriJobSucceeded
	FinalStatus model.JobStatus
	// polls answered with esriJobExecuting before FinalStatus
	PendingPolls int

	SubmitError      *ErrorBody
	SubmitHTTPStatus int

	// nil means derive a result around the submitted point
	Watershed     *model.FeatureSet
	SnappedPoints *model.FeatureSet
	ResultError   map[string]*ErrorBody

	// when set, submitJob blocks until the channel is closed
	Gate <-chan struct{}

	RequireToken string
}

type Call struct {
	Op     string
	JobID  string
	Param  string
	Values url.Values
}

type job struct {
	id     string
	polls  int
	status model.JobStatus
	input  model.FeatureSet
}

type Server struct {
	mu       sync.Mutex
	behavior Behavior
	jobs     map[string]*job
	calls    []Call
	router   chi.Router
}

func New(b Behavior) *Server {
	s := &Server{behavior: b, jobs: map[string]*job{}}
	r := chi.NewRouter()
	r.Route(DefaultTaskPath, func(r chi.Router) {
		r.Post("/submitJob", s.submitJob)
		r.Get("/jobs/{jobID}", s.jobStatus)
		r.Get("/jobs/{jobID}/results/{param}", s.result)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) SetBehavior(b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behavior = b
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many calls of op were received
func (s *Server) Count(op string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (s *Server) record(c Call) Behavior {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	return s.behavior
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, &ErrorBody{Code: 400, Message: err.Error()})
		return
	}
	b := s.record(Call{Op: "submitJob", Values: r.PostForm})

	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-r.Context().Done():
			return
		}
	}
	if !tokenOK(b, r) {
		writeError(w, http.StatusOK, &ErrorBody{Code: 498, Message: "Invalid token."})
		return
	}
	if b.SubmitError != nil {
		code := b.SubmitHTTPStatus
		if code == 0 {
			code = http.StatusOK
		}
		writeError(w, code, b.SubmitError)
		return
	}
	if b.SubmitHTTPStatus >= 400 {
		http.Error(w, http.StatusText(b.SubmitHTTPStatus), b.SubmitHTTPStatus)
		return
	}

	var input model.FeatureSet
	if err := json.Unmarshal([]byte(r.PostForm.Get(model.ParamInputPoints)), &input); err != nil {
		writeError(w, http.StatusOK, &ErrorBody{Code: 400, Message: "Invalid InputPoints", Details: []string{err.Error()}})
		return
	}

	status := b.SubmitStatus
	if status == "" {
		status = "esriJobSubmitted"
	}
	j := &job{id: "j" + uuid.NewString(), status: status, input: input}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	writeJSON(w, map[string]any{"jobId": j.id, "jobStatus": j.status})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	b := s.record(Call{Op: "jobStatus", JobID: id, Values: r.URL.Query()})
	if !tokenOK(b, r) {
		writeError(w, http.StatusOK, &ErrorBody{Code: 498, Message: "Invalid token."})
		return
	}

	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		j.polls++
		if j.polls > b.PendingPolls {
			j.status = b.FinalStatus
			if j.status == "" {
				j.status = "esriJobSucceeded"
			}
		} else {
			j.status = "esriJobExecuting"
		}
	}
	var status model.JobStatus
	if ok {
		status = j.status
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusOK, &ErrorBody{Code: 400, Message: "Job not found"})
		return
	}
	writeJSON(w, map[string]any{
		"jobId":     id,
		"jobStatus": status,
		"messages":  []map[string]string{{"type": "esriJobMessageTypeInformative", "description": "mock"}},
	})
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	param := chi.URLParam(r, "param")
	b := s.record(Call{Op: "result", JobID: id, Param: param, Values: r.URL.Query()})
	if !tokenOK(b, r) {
		writeError(w, http.StatusOK, &ErrorBody{Code: 498, Message: "Invalid token."})
		return
	}
	if e, ok := b.ResultError[param]; ok {
		writeError(w, http.StatusOK, e)
		return
	}

	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusOK, &ErrorBody{Code: 400, Message: "Job not found"})
		return
	}

	var value model.FeatureSet
	switch param {
	case model.OutputWatershedArea:
		if b.Watershed != nil {
			value = *b.Watershed
		} else {
			value = watershedAround(j.input)
		}
	case model.OutputSnappedPoints:
		if b.SnappedPoints != nil {
			value = *b.SnappedPoints
		} else {
			value = snappedFrom(j.input)
		}
	default:
		writeError(w, http.StatusOK, &ErrorBody{Code: 400, Message: "Invalid parameter name: " + param})
		return
	}

	writeJSON(w, map[string]any{
		"paramName": param,
		"dataType":  "GPFeatureRecordSetLayer",
		"value":     value,
	})
}

func tokenOK(b Behavior, r *http.Request) bool {
	if b.RequireToken == "" {
		return true
	}
	return r.FormValue("token") == b.RequireToken
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, e *ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": e})
}
