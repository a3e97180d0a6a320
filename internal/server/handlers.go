package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"datahound/internal/jobs"
	"datahound/internal/llm"
	"datahound/internal/model"
	"datahound/internal/store"
	"datahound/internal/train"
	"datahound/internal/workflow"
)

// StartDiscoveryHandler kicks off a background discovery run and
// returns its job handle.
func StartDiscoveryHandler(flow *workflow.Orchestrator, registry *jobs.Registry) echo.HandlerFunc {
	type request struct {
		Prompt    string `json:"prompt"`
		ProjectID string `json:"project_id,omitempty"`
	}
	type response struct {
		ProjectID string `json:"project_id"`
		JobID     string `json:"job_id"`
		Status    string `json:"status"`
	}
	return func(c echo.Context) error {
		var req request
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(req.Prompt) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
		}
		projectID := req.ProjectID
		if projectID == "" {
			projectID = uuid.NewString()
		}
		if registry.HasActive(jobs.KindDiscovery, projectID) {
			return echo.NewHTTPError(http.StatusConflict,
				"a discovery run is already in progress for this project")
		}

		job := registry.Create(jobs.KindDiscovery, projectID, req.Prompt)
		registry.Run(context.Background(), job.ID, func(ctx context.Context) (any, error) {
			return flow.RunDiscovery(ctx, projectID, req.Prompt)
		})
		return c.JSON(http.StatusAccepted, response{
			ProjectID: projectID,
			JobID:     job.ID,
			Status:    string(job.Status),
		})
	}
}

// DiscoveryStatusHandler reports one project's progress. threshold
// marks the high-quality line in the stats.
func DiscoveryStatusHandler(flow *workflow.Orchestrator, threshold int) echo.HandlerFunc {
	type response struct {
		ProjectID string                `json:"project_id"`
		Status    model.ProjectStatus   `json:"status"`
		Prompt    string                `json:"prompt"`
		Stats     model.SourceStats     `json:"stats"`
		Selected  *model.SelectedSource `json:"selected,omitempty"`
		Backups   []model.Candidate     `json:"backups,omitempty"`
		LastError string                `json:"last_error,omitempty"`
	}
	return func(c echo.Context) error {
		project, err := flow.Project(c.Request().Context(), c.Param("projectId"))
		if err != nil {
			if errors.Is(err, store.ErrProjectNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "project not found")
			}
			return err
		}
		return c.JSON(http.StatusOK, response{
			ProjectID: project.ID,
			Status:    project.Status,
			Prompt:    project.Prompt,
			Stats:     project.Stats(threshold),
			Selected:  project.Selected,
			Backups:   project.Backups(),
			LastError: project.LastError,
		})
	}
}

// ListProjectsHandler lists project summaries.
func ListProjectsHandler(flow *workflow.Orchestrator) echo.HandlerFunc {
	type response struct {
		Projects []store.ProjectSummary `json:"projects"`
		Total    int                    `json:"total"`
	}
	return func(c echo.Context) error {
		projects, err := flow.Projects(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, response{Projects: projects, Total: len(projects)})
	}
}

// StartTrainingHandler kicks off a background training run.
func StartTrainingHandler(flow *workflow.Orchestrator, registry *jobs.Registry) echo.HandlerFunc {
	type response struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	return func(c echo.Context) error {
		var req workflow.TrainingRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(req.Task) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "task is required")
		}

		job := registry.Create(jobs.KindTraining, "", req.Task)
		registry.Run(context.Background(), job.ID, func(ctx context.Context) (any, error) {
			return flow.RunTraining(ctx, req)
		})
		return c.JSON(http.StatusAccepted, response{
			JobID:   job.ID,
			Status:  string(job.Status),
			Message: "training started",
		})
	}
}

// GetTrainingHandler returns one training job snapshot.
func GetTrainingHandler(registry *jobs.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		job, ok := registry.Get(c.Param("jobId"))
		if !ok || job.Kind != jobs.KindTraining {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return c.JSON(http.StatusOK, job)
	}
}

// ListTrainingHandler lists training jobs, newest first.
func ListTrainingHandler(registry *jobs.Registry) echo.HandlerFunc {
	type response struct {
		Jobs  []*jobs.Job `json:"jobs"`
		Total int         `json:"total"`
	}
	return func(c echo.Context) error {
		all := registry.List()
		trainJobs := make([]*jobs.Job, 0, len(all))
		for _, job := range all {
			if job.Kind == jobs.KindTraining {
				trainJobs = append(trainJobs, job)
			}
		}
		return c.JSON(http.StatusOK, response{Jobs: trainJobs, Total: len(trainJobs)})
	}
}

// ListModelsHandler lists trained model manifests, newest first.
func ListModelsHandler(modelsDir string) echo.HandlerFunc {
	type response struct {
		Models []train.Manifest `json:"models"`
		Total  int              `json:"total"`
	}
	return func(c echo.Context) error {
		manifests, err := train.LoadManifests(modelsDir)
		if err != nil {
			return err
		}
		if manifests == nil {
			manifests = []train.Manifest{}
		}
		return c.JSON(http.StatusOK, response{Models: manifests, Total: len(manifests)})
	}
}

// GetModelHandler returns one model manifest by name.
func GetModelHandler(modelsDir string) echo.HandlerFunc {
	return func(c echo.Context) error {
		manifest, err := train.LoadManifest(modelsDir, c.Param("name"))
		if err != nil {
			if errors.Is(err, train.ErrManifestNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "model not found")
			}
			return err
		}
		return c.JSON(http.StatusOK, manifest)
	}
}

// ChatHandler relays one chat turn to the judge, degrading to the
// canned reply when the judge is unreachable.
func ChatHandler(judge llm.Judge) echo.HandlerFunc {
	type request struct {
		Message string         `json:"message"`
		History []llm.ChatTurn `json:"history,omitempty"`
	}
	return func(c echo.Context) error {
		var req request
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(req.Message) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "message is required")
		}
		reply, err := judge.Chat(c.Request().Context(), llm.ChatRequest{
			Message: req.Message,
			History: req.History,
		})
		if err != nil {
			reply = llm.FallbackReply()
		}
		return c.JSON(http.StatusOK, reply)
	}
}

// ScrapeWebhookHandler acknowledges crawl-progress callbacks. Events
// are logged, never acted on; scraping state lives in the store.
func ScrapeWebhookHandler(logger *slog.Logger) echo.HandlerFunc {
	type ack struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	return func(c echo.Context) error {
		var payload map[string]any
		if err := c.Bind(&payload); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook payload")
		}
		event, _ := payload["type"].(string)
		logger.Info("scrape webhook received", "event", event)
		return c.JSON(http.StatusOK, ack{Success: true, Message: "acknowledged"})
	}
}

// HealthHandler reports liveness plus coarse inventory counts.
func HealthHandler(flow *workflow.Orchestrator, modelsDir string) echo.HandlerFunc {
	type response struct {
		Status   string    `json:"status"`
		Time     time.Time `json:"time"`
		Projects int       `json:"projects"`
		Models   int       `json:"models"`
	}
	return func(c echo.Context) error {
		projects, err := flow.Projects(c.Request().Context())
		if err != nil {
			return err
		}
		manifests, err := train.LoadManifests(modelsDir)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, response{
			Status:   "ok",
			Time:     time.Now().UTC(),
			Projects: len(projects),
			Models:   len(manifests),
		})
	}
}
