package train

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"datahound/internal/model"
	"datahound/internal/util"
)

// ErrorKind classifies a training failure.
type ErrorKind string

const (
	// KindStructural marks failures caused by the dataset itself, such
	// as a missing class-folder layout. Retries cannot help.
	KindStructural ErrorKind = "structural"
	// KindTransient marks infrastructure failures worth retrying.
	KindTransient ErrorKind = "transient"
)

// TrainingError is a failed training attempt with its classification.
type TrainingError struct {
	Kind    ErrorKind
	Message string
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed (%s): %s", e.Kind, e.Message)
}

// IsStructural reports whether err marks the dataset itself as broken.
func IsStructural(err error) bool {
	var te *TrainingError
	return errors.As(err, &te) && te.Kind == KindStructural
}

// JobSpec is one training submission.
type JobSpec struct {
	TaskName       string  `json:"task_name"`
	DatasetRef     string  `json:"dataset_ref"`
	Architecture   string  `json:"architecture"`
	Epochs         int     `json:"epochs"`
	LearningRate   float64 `json:"learning_rate"`
	BatchSize      int     `json:"batch_size"`
	FreezeBackbone bool    `json:"freeze_backbone"`
	InputSize      int     `json:"input_size,omitempty"`
}

// Artifact identifies a stored model together with its training
// metrics.
type Artifact struct {
	Ref          string   `json:"ref"`
	Accuracy     float64  `json:"accuracy"`
	ClassNames   []string `json:"class_names,omitempty"`
	NumClasses   int      `json:"num_classes"`
	SizeBytes    int64    `json:"size_bytes,omitempty"`
	TrainingSecs float64  `json:"training_time_s,omitempty"`
}

// Compute is the external training service.
type Compute interface {
	// SubmitTraining runs one job to completion and returns the
	// artifact reference. Failures carry an ErrorKind classification.
	SubmitTraining(ctx context.Context, spec JobSpec) (string, error)
	// FetchArtifact retrieves and validates a finished artifact.
	FetchArtifact(ctx context.Context, ref string) (*Artifact, error)
}

// ComputeClient talks JSON over HTTP to the training service. The
// train call blocks server-side until the job finishes, so the client
// timeout is the job timeout.
type ComputeClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type trainResponse struct {
	Success     bool   `json:"success"`
	ArtifactRef string `json:"artifact_ref"`
	Error       string `json:"error"`
	ErrorKind   string `json:"error_kind"`
}

// NewComputeClient builds the client from training and HTTP config.
func NewComputeClient(cfg model.TrainingConfig, httpCfg model.HTTPConfig) (*ComputeClient, error) {
	if cfg.ComputeURL == "" {
		return nil, fmt.Errorf("compute URL is required")
	}
	timeout := cfg.JobTimeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}
	return &ComputeClient{
		baseURL: strings.TrimSuffix(cfg.ComputeURL, "/"),
		apiKey:  cfg.ComputeKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy),
			},
		},
	}, nil
}

// SubmitTraining posts the job and blocks for the outcome.
func (c *ComputeClient) SubmitTraining(ctx context.Context, spec JobSpec) (string, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/train"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TrainingError{Kind: KindTransient, Message: err.Error()}
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", &TrainingError{Kind: KindTransient, Message: fmt.Sprintf("read response: %v", err)}
	}

	var resp trainResponse
	if uerr := json.Unmarshal(respBody, &resp); uerr != nil {
		if httpResp.StatusCode != http.StatusOK {
			return "", &TrainingError{
				Kind:    KindTransient,
				Message: fmt.Sprintf("compute API error (%d): %s", httpResp.StatusCode, firstBytes(respBody, 200)),
			}
		}
		return "", fmt.Errorf("unmarshal response: %w", uerr)
	}

	if !resp.Success || httpResp.StatusCode != http.StatusOK {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("compute API error (%d)", httpResp.StatusCode)
		}
		return "", &TrainingError{Kind: classifyKind(resp.ErrorKind, msg), Message: msg}
	}
	if resp.ArtifactRef == "" {
		return "", &TrainingError{Kind: KindTransient, Message: "job succeeded but returned no artifact ref"}
	}
	return resp.ArtifactRef, nil
}

// FetchArtifact retrieves the artifact record for a finished job.
func (c *ComputeClient) FetchArtifact(ctx context.Context, ref string) (*Artifact, error) {
	endpoint := c.baseURL + "/v1/artifacts/" + url.PathEscape(ref)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artifact API error (%d): %s", httpResp.StatusCode, firstBytes(respBody, 200))
	}

	var artifact Artifact
	if err := json.Unmarshal(respBody, &artifact); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	if artifact.Ref == "" {
		artifact.Ref = ref
	}
	return &artifact, nil
}

// classifyKind prefers the service's own classification and falls back
// to matching the known structural failure messages.
func classifyKind(kind, message string) ErrorKind {
	switch strings.ToLower(kind) {
	case "structural", "structural-candidate-error":
		return KindStructural
	case "transient", "transient-error":
		return KindTransient
	}
	if strings.Contains(message, "No class folders") ||
		strings.Contains(strings.ToLower(message), "dataset structure") {
		return KindStructural
	}
	return KindTransient
}

func firstBytes(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
