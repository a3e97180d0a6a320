package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"datahound/internal/jobs"
	"datahound/internal/llm"
	"datahound/internal/logging"
	"datahound/internal/model"
	"datahound/internal/pipeline"
	"datahound/internal/scrape"
	"datahound/internal/store"
	"datahound/internal/train"
	"datahound/internal/workflow"
)

// scriptedJudge drives the pipeline with fixed verdicts so discovery
// runs end to end without a provider endpoint.
type scriptedJudge struct {
	chatFn func(context.Context, llm.ChatRequest) (*llm.ChatReply, error)
}

func (scriptedJudge) Name() string                     { return "scripted" }
func (scriptedJudge) IsAvailable(context.Context) bool { return true }

func (scriptedJudge) ParseIntent(_ context.Context, prompt string) (*model.Intent, error) {
	return &model.Intent{Target: prompt, SearchQueries: []string{prompt}}, nil
}

func (scriptedJudge) ScoreRelevance(context.Context, llm.RelevanceRequest) (*model.Judgment, error) {
	return &model.Judgment{Score: 90, SourceType: model.SourceDataset}, nil
}

func (scriptedJudge) DetectSchema(context.Context, llm.SchemaRequest) (*llm.SchemaReport, error) {
	return &llm.SchemaReport{FeaturesFound: []string{"images"}, QualityRating: 85}, nil
}

func (scriptedJudge) AdviseArchitecture(context.Context, llm.ArchRequest) (*llm.ArchAdvice, error) {
	return nil, errors.New("no advice scripted")
}

func (j scriptedJudge) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatReply, error) {
	if j.chatFn == nil {
		return nil, errors.New("chat not scripted")
	}
	return j.chatFn(ctx, req)
}

type stubScraper struct{}

func (stubScraper) Scrape(context.Context, string) (*scrape.Result, error) {
	return &scrape.Result{Title: "Dataset page", Sample: "images of 100 bird species"}, nil
}

// okCompute accepts every training submission.
type okCompute struct {
	submits []train.JobSpec
}

func (c *okCompute) SubmitTraining(_ context.Context, spec train.JobSpec) (string, error) {
	c.submits = append(c.submits, spec)
	return "artifact-" + spec.DatasetRef, nil
}

func (c *okCompute) FetchArtifact(_ context.Context, ref string) (*train.Artifact, error) {
	return &train.Artifact{Ref: ref, Accuracy: 0.88, NumClasses: 3}, nil
}

type serverFixture struct {
	srv      *Server
	flow     *workflow.Orchestrator
	registry *jobs.Registry
	store    store.ProjectStore
	cfg      *model.Config
}

func newFixture(t *testing.T, judge llm.Judge, compute train.Compute) *serverFixture {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Discovery.ScoreDelay = 0
	cfg.Training.RetryDelay = time.Millisecond
	cfg.Training.ResultsDir = ""
	cfg.Training.ModelsDir = t.TempDir()

	st := store.NewMemoryStore()
	logger := logging.Nop()
	p := pipeline.New(st, judge, nil, stubScraper{}, cfg, logger)
	flow := workflow.New(p, st, judge, compute, cfg, logger)
	registry := jobs.NewRegistry(logger)
	return &serverFixture{
		srv:      New(flow, registry, judge, cfg, logger),
		flow:     flow,
		registry: registry,
		store:    st,
		cfg:      cfg,
	}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func handlerContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func httpStatusOf(t *testing.T, err error) int {
	t.Helper()
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected an echo.HTTPError, got %v", err)
	}
	return httpErr.Code
}

func waitForJob(t *testing.T, registry *jobs.Registry, id string) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := registry.Get(id)
		if ok && job.Status != jobs.StatusPending && job.Status != jobs.StatusRunning {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish in time", id)
	return nil
}

func TestStartDiscoveryHandler(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, nil)

	req := jsonRequest(t, http.MethodPost, "/api/discovery/start",
		map[string]string{"prompt": "identify bird species from photos"})
	ctx, rec := handlerContext(req)

	if err := StartDiscoveryHandler(fx.flow, fx.registry)(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}

	var resp struct {
		ProjectID string `json:"project_id"`
		JobID     string `json:"job_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if resp.ProjectID == "" || resp.JobID == "" {
		t.Fatalf("Expected generated IDs, got %+v", resp)
	}
	if resp.Status != string(jobs.StatusPending) {
		t.Errorf("Expected pending status, got %s", resp.Status)
	}

	job := waitForJob(t, fx.registry, resp.JobID)
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("Expected discovery job to complete, got %s (%s)", job.Status, job.Error)
	}
	project, err := fx.store.GetProject(context.Background(), resp.ProjectID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if project.Status != model.ProjectCompleted {
		t.Errorf("Expected completed project, got %s", project.Status)
	}
	if project.Selected == nil {
		t.Error("Expected a selected source after discovery")
	}
}

func TestStartDiscoveryHandler_EmptyPrompt(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, nil)

	req := jsonRequest(t, http.MethodPost, "/api/discovery/start",
		map[string]string{"prompt": "   "})
	ctx, _ := handlerContext(req)

	err := StartDiscoveryHandler(fx.flow, fx.registry)(ctx)
	if code := httpStatusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
}

func TestStartDiscoveryHandler_ConflictWhileActive(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, nil)
	fx.registry.Create(jobs.KindDiscovery, "proj-busy", "first run")

	req := jsonRequest(t, http.MethodPost, "/api/discovery/start",
		map[string]string{"prompt": "more birds", "project_id": "proj-busy"})
	ctx, _ := handlerContext(req)

	err := StartDiscoveryHandler(fx.flow, fx.registry)(ctx)
	if code := httpStatusOf(t, err); code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", code)
	}
}

func TestDiscoveryStatusHandler(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, nil)
	ctxBg := context.Background()
	if _, err := fx.store.UpsertProject(ctxBg, "proj-1", "find birds"); err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	_, err := fx.store.AppendCandidates(ctxBg, "proj-1", []model.Candidate{
		{Identifier: "kaggle.com/datasets/a/b", Status: model.StatusPending},
		{Identifier: "kaggle.com/datasets/c/d", Status: model.StatusPending},
	})
	if err != nil {
		t.Fatalf("AppendCandidates failed: %v", err)
	}

	req := jsonRequest(t, http.MethodGet, "/api/discovery/proj-1/status", nil)
	ctx, rec := handlerContext(req)
	ctx.SetPath("/api/discovery/:projectId/status")
	ctx.SetParamNames("projectId")
	ctx.SetParamValues("proj-1")

	if err := DiscoveryStatusHandler(fx.flow, 70)(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		ProjectID string            `json:"project_id"`
		Status    string            `json:"status"`
		Prompt    string            `json:"prompt"`
		Stats     model.SourceStats `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if resp.ProjectID != "proj-1" || resp.Prompt != "find birds" {
		t.Errorf("Unexpected identity fields: %+v", resp)
	}
	if resp.Stats.Total != 2 || resp.Stats.Pending != 2 {
		t.Errorf("Expected 2 pending of 2, got %+v", resp.Stats)
	}
}

func TestDiscoveryStatusHandler_NotFound(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, nil)

	req := jsonRequest(t, http.MethodGet, "/api/discovery/nope/status", nil)
	ctx, _ := handlerContext(req)
	ctx.SetPath("/api/discovery/:projectId/status")
	ctx.SetParamNames("projectId")
	ctx.SetParamValues("nope")

	err := DiscoveryStatusHandler(fx.flow, 70)(ctx)
	if code := httpStatusOf(t, err); code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
}

func TestListProjectsHandler(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, nil)
	ctxBg := context.Background()
	for _, id := range []string{"p-1", "p-2"} {
		if _, err := fx.store.UpsertProject(ctxBg, id, "prompt "+id); err != nil {
			t.Fatalf("UpsertProject failed: %v", err)
		}
	}

	req := jsonRequest(t, http.MethodGet, "/api/projects", nil)
	ctx, rec := handlerContext(req)
	if err := ListProjectsHandler(fx.flow)(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	var resp struct {
		Projects []store.ProjectSummary `json:"projects"`
		Total    int                    `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if resp.Total != 2 || len(resp.Projects) != 2 {
		t.Errorf("Expected 2 projects, got %+v", resp)
	}
}

func TestStartTrainingHandler(t *testing.T) {
	compute := &okCompute{}
	fx := newFixture(t, scriptedJudge{}, compute)

	req := jsonRequest(t, http.MethodPost, "/api/training/start", map[string]string{
		"task":        "classify bird species",
		"dataset_ref": "gpiosenka/100-bird-species",
	})
	ctx, rec := handlerContext(req)
	if err := StartTrainingHandler(fx.flow, fx.registry)(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response: %v", err)
	}

	job := waitForJob(t, fx.registry, resp.JobID)
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("Expected training job to complete, got %s (%s)", job.Status, job.Error)
	}
	if len(compute.submits) != 1 {
		t.Fatalf("Expected 1 training submission, got %d", len(compute.submits))
	}
	if compute.submits[0].DatasetRef != "gpiosenka/100-bird-species" {
		t.Errorf("Expected the explicit ref submitted, got %s", compute.submits[0].DatasetRef)
	}

	manifests, err := train.LoadManifests(fx.cfg.Training.ModelsDir)
	if err != nil {
		t.Fatalf("LoadManifests failed: %v", err)
	}
	if len(manifests) != 1 {
		t.Errorf("Expected 1 model manifest after training, got %d", len(manifests))
	}
}

func TestStartTrainingHandler_MissingTask(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, &okCompute{})

	req := jsonRequest(t, http.MethodPost, "/api/training/start", map[string]string{"task": ""})
	ctx, _ := handlerContext(req)

	err := StartTrainingHandler(fx.flow, fx.registry)(ctx)
	if code := httpStatusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
}

func TestGetTrainingHandler_FiltersByKind(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, &okCompute{})
	discoveryJob := fx.registry.Create(jobs.KindDiscovery, "p-1", "find birds")
	trainingJob := fx.registry.Create(jobs.KindTraining, "", "classify birds")

	lookup := func(id string) (int, *httptest.ResponseRecorder) {
		req := jsonRequest(t, http.MethodGet, "/api/training/"+id, nil)
		ctx, rec := handlerContext(req)
		ctx.SetPath("/api/training/:jobId")
		ctx.SetParamNames("jobId")
		ctx.SetParamValues(id)
		if err := GetTrainingHandler(fx.registry)(ctx); err != nil {
			return httpStatusOf(t, err), rec
		}
		return rec.Code, rec
	}

	if code, _ := lookup(trainingJob.ID); code != http.StatusOK {
		t.Errorf("Expected 200 for a training job, got %d", code)
	}
	if code, _ := lookup(discoveryJob.ID); code != http.StatusNotFound {
		t.Errorf("Expected 404 for a discovery job, got %d", code)
	}
	if code, _ := lookup("unknown"); code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown job, got %d", code)
	}
}

func TestListTrainingHandler(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, &okCompute{})
	fx.registry.Create(jobs.KindDiscovery, "p-1", "find birds")
	fx.registry.Create(jobs.KindTraining, "", "classify birds")
	fx.registry.Create(jobs.KindTraining, "", "classify defects")

	req := jsonRequest(t, http.MethodGet, "/api/training", nil)
	ctx, rec := handlerContext(req)
	if err := ListTrainingHandler(fx.registry)(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	var resp struct {
		Jobs  []jobs.Job `json:"jobs"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("Expected 2 training jobs, got %d", resp.Total)
	}
	for _, job := range resp.Jobs {
		if job.Kind != jobs.KindTraining {
			t.Errorf("Expected only training jobs, got %s", job.Kind)
		}
	}
}

func TestModelHandlers(t *testing.T) {
	dir := t.TempDir()
	_, err := train.SaveManifest(dir, train.Manifest{
		ModelFile:  "bird_species_efficientnet_b0.pth",
		TaskName:   "bird species",
		DatasetRef: "gpiosenka/100-bird-species",
		Accuracy:   0.91,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SaveManifest failed: %v", err)
	}

	listReq := jsonRequest(t, http.MethodGet, "/api/models", nil)
	listCtx, listRec := handlerContext(listReq)
	if err := ListModelsHandler(dir)(listCtx); err != nil {
		t.Fatalf("List handler returned error: %v", err)
	}
	var listResp struct {
		Models []train.Manifest `json:"models"`
		Total  int              `json:"total"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("Decode list response: %v", err)
	}
	if listResp.Total != 1 {
		t.Fatalf("Expected 1 model, got %d", listResp.Total)
	}
	if listResp.Models[0].ModelFile != "bird_species_efficientnet_b0.pth" {
		t.Errorf("Unexpected model file %s", listResp.Models[0].ModelFile)
	}

	get := func(name string) int {
		req := jsonRequest(t, http.MethodGet, "/api/models/"+name, nil)
		ctx, rec := handlerContext(req)
		ctx.SetPath("/api/models/:name")
		ctx.SetParamNames("name")
		ctx.SetParamValues(name)
		if err := GetModelHandler(dir)(ctx); err != nil {
			return httpStatusOf(t, err)
		}
		return rec.Code
	}

	if code := get("bird_species_efficientnet_b0.pth"); code != http.StatusOK {
		t.Errorf("Expected 200 for a known model, got %d", code)
	}
	if code := get("missing.pth"); code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing model, got %d", code)
	}
	if code := get("../../etc/passwd"); code != http.StatusNotFound {
		t.Errorf("Expected 404 for a traversal attempt, got %d", code)
	}
}

func TestListModelsHandler_EmptyDir(t *testing.T) {
	req := jsonRequest(t, http.MethodGet, "/api/models", nil)
	ctx, rec := handlerContext(req)
	if err := ListModelsHandler(t.TempDir())(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"models":[]`) {
		t.Errorf("Expected an empty array, got %s", body)
	}
}

func TestChatHandler(t *testing.T) {
	judge := scriptedJudge{chatFn: func(_ context.Context, req llm.ChatRequest) (*llm.ChatReply, error) {
		if req.Message != "I need to sort bird photos" {
			t.Errorf("Unexpected message relayed: %s", req.Message)
		}
		if len(req.History) != 1 || req.History[0].Role != "user" {
			t.Errorf("Expected prior history relayed, got %+v", req.History)
		}
		return &llm.ChatReply{Message: "Let's find a bird dataset.", ShouldStartDiscovery: true}, nil
	}}

	req := jsonRequest(t, http.MethodPost, "/api/chat", map[string]any{
		"message": "I need to sort bird photos",
		"history": []map[string]string{{"role": "user", "content": "hello"}},
	})
	ctx, rec := handlerContext(req)
	if err := ChatHandler(judge)(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	var reply llm.ChatReply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("Decode reply: %v", err)
	}
	if reply.Message != "Let's find a bird dataset." || !reply.ShouldStartDiscovery {
		t.Errorf("Unexpected reply: %+v", reply)
	}
}

func TestChatHandler_FallsBackWhenJudgeFails(t *testing.T) {
	req := jsonRequest(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "help me"})
	ctx, rec := handlerContext(req)
	if err := ChatHandler(scriptedJudge{})(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	var reply llm.ChatReply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("Decode reply: %v", err)
	}
	want := llm.FallbackReply()
	if reply.Message != want.Message {
		t.Errorf("Expected the canned reply, got %q", reply.Message)
	}
	if len(reply.Suggestions) != len(want.Suggestions) {
		t.Errorf("Expected %d suggestions, got %d", len(want.Suggestions), len(reply.Suggestions))
	}
}

func TestChatHandler_EmptyMessage(t *testing.T) {
	req := jsonRequest(t, http.MethodPost, "/api/chat", map[string]string{"message": ""})
	ctx, _ := handlerContext(req)

	err := ChatHandler(scriptedJudge{})(ctx)
	if code := httpStatusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
}

func TestScrapeWebhookHandler(t *testing.T) {
	req := jsonRequest(t, http.MethodPost, "/api/webhooks/scrape",
		map[string]any{"type": "crawl.completed", "id": "abc"})
	ctx, rec := handlerContext(req)
	if err := ScrapeWebhookHandler(logging.Nop())(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("Expected an acknowledgement, got %s", rec.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	fx := newFixture(t, scriptedJudge{}, nil)
	if _, err := fx.store.UpsertProject(context.Background(), "p-1", "find birds"); err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}

	req := jsonRequest(t, http.MethodGet, "/healthz", nil)
	ctx, rec := handlerContext(req)
	if err := HealthHandler(fx.flow, fx.cfg.Training.ModelsDir)(ctx); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	var resp struct {
		Status   string `json:"status"`
		Projects int    `json:"projects"`
		Models   int    `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Projects != 1 || resp.Models != 0 {
		t.Errorf("Unexpected health payload: %+v", resp)
	}
}
