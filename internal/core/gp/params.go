package gp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
)

// SubmitEndpoint returns the submitJob URL for a task base URL. Proxy URLs are
// configured without the trailing /submitJob segment; tolerate either form.
func SubmitEndpoint(taskURL string) string {
	return TaskBase(taskURL) + "/submitJob"
}

func TaskBase(taskURL string) string {
	base := strings.TrimRight(strings.TrimSpace(taskURL), "/")
	return strings.TrimSuffix(base, "/submitJob")
}

func JobEndpoint(taskURL, jobID string) string {
	return TaskBase(taskURL) + "/jobs/" + url.PathEscape(jobID)
}

func ResultEndpoint(taskURL, jobID, param string) string {
	return JobEndpoint(taskURL, jobID) + "/results/" + url.PathEscape(param)
}

// BuildSubmitParams encodes a job request as submitJob form values
func BuildSubmitParams(req model.JobRequest, processSR, outSR model.SpatialReference) (url.Values, error) {
	fs, err := json.Marshal(req.InputPoints)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", model.ParamInputPoints, err)
	}

	params := url.Values{}
	params.Set("f", "json")
	params.Set(model.ParamInputPoints, string(fs))
	params.Set(model.ParamSnapDistance, req.SnapDistance)
	params.Set(model.ParamSnapDistanceUnits, req.SnapDistanceUnits)
	params.Set(model.ParamSourceDatabase, req.SourceDatabase)
	params.Set(model.ParamGeneralize, req.Generalize)
	if id := processSR.ID(); id != 0 {
		params.Set("env:processSR", strconv.Itoa(id))
	}
	if id := outSR.ID(); id != 0 {
		params.Set("env:outSR", strconv.Itoa(id))
	}
	return params, nil
}
