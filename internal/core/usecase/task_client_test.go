package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

type statusReply struct {
	task *domain.Task
	err  error
}

type backendFake struct {
	mu sync.Mutex

	uploadFn    func(domain.UploadRequest, func(domain.UploadProgress)) (*domain.ProcessResponse, error)
	uploadCalls int

	replies     []statusReply
	statusCalls int

	result      *domain.AnalysisResult
	resultErr   error
	resultCalls int

	downloads   map[domain.FileType]*domain.Download
	downloadErr error

	deleted []string
}

func (f *backendFake) Upload(_ context.Context, req domain.UploadRequest, onProgress func(domain.UploadProgress)) (*domain.ProcessResponse, error) {
	f.mu.Lock()
	f.uploadCalls++
	fn := f.uploadFn
	f.mu.Unlock()
	if fn == nil {
		return &domain.ProcessResponse{TaskID: "t1", Status: domain.TaskStatusProcessing}, nil
	}
	return fn(req, onProgress)
}

func (f *backendFake) TaskStatus(ctx context.Context, taskID string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.replies) == 0 {
		return nil, domain.NewFailure(domain.CodeNetwork, 0, "no scripted reply", true)
	}
	idx := f.statusCalls
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	f.statusCalls++
	reply := f.replies[idx]
	if reply.err != nil {
		return nil, reply.err
	}
	task := *reply.task
	task.ID = taskID
	return &task, nil
}

func (f *backendFake) TaskResult(context.Context, string) (*domain.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return f.result, nil
}

func (f *backendFake) Download(_ context.Context, _ string, fileType domain.FileType) (*domain.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	dl, ok := f.downloads[fileType]
	if !ok {
		return nil, domain.NewFailure(domain.CodeNotFound, 404, "file not found", false)
	}
	return dl, nil
}

func (f *backendFake) Health(context.Context) (*domain.HealthStatus, error) {
	return &domain.HealthStatus{Status: "healthy", Version: "1.0.0"}, nil
}

func (f *backendFake) ListTasks(context.Context) ([]domain.TaskSummary, error) {
	return []domain.TaskSummary{{ID: "t1", Status: domain.TaskStatusCompleted}}, nil
}

func (f *backendFake) DeleteTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, taskID)
	return nil
}

func (f *backendFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func statuses(list ...domain.TaskStatus) []statusReply {
	out := make([]statusReply, 0, len(list))
	for _, s := range list {
		out = append(out, statusReply{task: &domain.Task{Status: s}})
	}
	return out
}

type storageFake struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (s *storageFake) Save(_ context.Context, key string, data io.Reader, _ int64) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	s.saved[key] = raw
	return "/downloads/" + key, nil
}

func (s *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.TaskStatus
}

func (p *publisherFake) PublishStatus(_ context.Context, task domain.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, task.Status)
	return errors.New("broker unavailable")
}

type historyFake struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (h *historyFake) RecordTask(_ context.Context, entry domain.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

func (h *historyFake) ListRecent(context.Context, int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func newTestTaskClient(backend *backendFake, deps Dependencies) (*TaskClient, *[]time.Duration) {
	deps.Backend = backend
	client := NewTaskClient(deps, Config{})
	var mu sync.Mutex
	waits := []time.Duration{}
	client.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	return client, &waits
}

func validRequest() domain.UploadRequest {
	return domain.UploadRequest{
		Filename:    "ies.pdf",
		Content:     []byte("%PDF-1.4 test"),
		NIF:         "516807706",
		FiscalYear:  "2023",
		CompanyName: "Empresa Exemplo Lda",
		Email:       "geral@example.pt",
	}
}

func TestApplyStatusRejectsUploadedBackToUploading(t *testing.T) {
	client, _ := newTestTaskClient(&backendFake{}, Dependencies{})
	ctx := context.Background()

	client.ApplyStatus(ctx, domain.Task{ID: "t1", Status: domain.TaskStatusUploading})
	if _, changed := client.ApplyStatus(ctx, domain.Task{ID: "t1", Status: domain.TaskStatusUploaded}); !changed {
		t.Fatalf("uploading -> uploaded must be accepted")
	}
	task, changed := client.ApplyStatus(ctx, domain.Task{ID: "t1", Status: domain.TaskStatusUploading})
	if changed || task.Status != domain.TaskStatusUploaded {
		t.Fatalf("uploaded -> uploading must be ignored, got %s changed=%v", task.Status, changed)
	}
}

func TestApplyStatusNeverRegresses(t *testing.T) {
	backend := &backendFake{replies: statuses(
		domain.TaskStatusExtracting,
		domain.TaskStatusAnalyzing,
		domain.TaskStatusExtracting,
		domain.TaskStatusCompleted,
	)}
	backend.result = &domain.AnalysisResult{}
	client, _ := newTestTaskClient(backend, Dependencies{})

	var seen []domain.TaskStatus
	err := client.Poll(context.Background(), "t1", func(task domain.Task) {
		seen = append(seen, task.Status)
	})
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	want := []domain.TaskStatus{domain.TaskStatusExtracting, domain.TaskStatusAnalyzing, domain.TaskStatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
	task, _ := client.Task("t1")
	if task.Status != domain.TaskStatusCompleted || task.Result == nil {
		t.Fatalf("expected completed task with result, got %+v", task)
	}
}

func TestApplyStatusTerminalIsAbsorbing(t *testing.T) {
	client, _ := newTestTaskClient(&backendFake{}, Dependencies{})
	ctx := context.Background()

	client.ApplyStatus(ctx, domain.Task{ID: "t1", Status: domain.TaskStatusError, Error: "falhou"})
	got, changed := client.ApplyStatus(ctx, domain.Task{ID: "t1", Status: domain.TaskStatusCompleted})
	if changed || got.Status != domain.TaskStatusError {
		t.Fatalf("terminal status must not change, got %+v changed=%v", got, changed)
	}
	if _, changed := client.ApplyStatus(ctx, domain.Task{ID: "t2", Status: "queued"}); changed {
		t.Fatalf("unknown status must be ignored")
	}
}

func TestPollGivesUpAfterConsecutiveFailures(t *testing.T) {
	backend := &backendFake{replies: []statusReply{{err: domain.NewFailure(domain.CodeNetwork, 0, "offline", true)}}}
	client, waits := newTestTaskClient(backend, Dependencies{})

	var updates []domain.Task
	err := client.Poll(context.Background(), "t1", func(task domain.Task) {
		updates = append(updates, task)
	})
	if err == nil {
		t.Fatalf("expected poll failure")
	}
	if got := backend.calls(); got != 5 {
		t.Fatalf("expected 5 poll attempts, got %d", got)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, *waits)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Fatalf("expected waits %v, got %v", want, *waits)
		}
	}
	if len(updates) != 1 || updates[0].Status != domain.TaskStatusError || updates[0].Error != pollGiveUpReason {
		t.Fatalf("expected synthesized error update, got %+v", updates)
	}
}

func TestPollResetsFailureCountAfterSuccess(t *testing.T) {
	netErr := domain.NewFailure(domain.CodeNetwork, 0, "offline", true)
	backend := &backendFake{replies: []statusReply{
		{err: netErr}, {err: netErr}, {err: netErr}, {err: netErr},
		{task: &domain.Task{Status: domain.TaskStatusAnalyzing}},
		{err: netErr}, {err: netErr}, {err: netErr}, {err: netErr},
		{task: &domain.Task{Status: domain.TaskStatusCompleted, Result: &domain.AnalysisResult{}}},
	}}
	client, _ := newTestTaskClient(backend, Dependencies{})

	if err := client.Poll(context.Background(), "t1", nil); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if task, _ := client.Task("t1"); task.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
}

func TestStartPollingIsReplacedAndStoppable(t *testing.T) {
	backend := &backendFake{replies: statuses(domain.TaskStatusAnalyzing)}
	client := NewTaskClient(Dependencies{Backend: backend}, Config{PollInterval: time.Millisecond})
	defer client.Close()

	updates := make(chan domain.Task, 4)
	client.StartPolling("t1", func(task domain.Task) { updates <- task })
	client.StartPolling("t1", func(task domain.Task) { updates <- task })

	select {
	case task := <-updates:
		if task.Status != domain.TaskStatusAnalyzing {
			t.Fatalf("unexpected update %+v", task)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no update received")
	}
	if !client.IsPolling("t1") {
		t.Fatalf("expected an active poller")
	}

	client.StopPolling("t1")
	if client.IsPolling("t1") {
		t.Fatalf("expected poller to be removed")
	}
	before := backend.calls()
	time.Sleep(20 * time.Millisecond)
	if after := backend.calls(); after > before+1 {
		t.Fatalf("poller kept running after stop: %d -> %d", before, after)
	}
}

func TestUploadRollsBackOptimisticRecordOnFailure(t *testing.T) {
	var pendingDuringUpload int
	backend := &backendFake{}
	client, _ := newTestTaskClient(backend, Dependencies{})
	backend.uploadFn = func(domain.UploadRequest, func(domain.UploadProgress)) (*domain.ProcessResponse, error) {
		pendingDuringUpload = client.uploads.Len()
		return nil, domain.NewFailure(domain.CodeServer, 503, "HTTP 503: Service Unavailable", true)
	}

	_, err := client.UploadFile(context.Background(), validRequest(), nil)
	if err == nil {
		t.Fatalf("expected upload failure")
	}
	if pendingDuringUpload != 1 {
		t.Fatalf("expected optimistic record during upload, got %d", pendingDuringUpload)
	}
	if client.uploads.Len() != 0 {
		t.Fatalf("expected optimistic record rolled back")
	}
	state := client.State()
	if state.State != domain.UploadStateError || !strings.Contains(state.Error, "temporariamente indisponível") {
		t.Fatalf("unexpected upload state: %+v", state)
	}
}

func TestUploadConfirmsOptimisticRecordAndTracksTask(t *testing.T) {
	publisher := &publisherFake{}
	backend := &backendFake{}
	client, _ := newTestTaskClient(backend, Dependencies{Publisher: publisher})

	task, err := client.UploadFile(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if task.ID != "t1" || task.Status != domain.TaskStatusProcessing {
		t.Fatalf("unexpected task: %+v", task)
	}
	if client.uploads.Len() != 0 {
		t.Fatalf("expected optimistic record confirmed")
	}
	if got := client.State(); got.TaskID != "t1" || got.State != domain.UploadStateProcessing || got.Progress.Percentage != 100 {
		t.Fatalf("unexpected upload state: %+v", got)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event despite publisher error, got %v", publisher.events)
	}
}

func TestUploadRejectsInvalidMetadataLocally(t *testing.T) {
	backend := &backendFake{}
	client, _ := newTestTaskClient(backend, Dependencies{})

	req := validRequest()
	req.NIF = "123"
	_, err := client.UploadFile(context.Background(), req, nil)

	f := domain.AsFailure(err)
	if f == nil || f.Code != domain.CodeValidation || f.Retryable {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if backend.uploadCalls != 0 {
		t.Fatalf("nothing must be sent for invalid metadata")
	}
}

func TestOptimisticStatusConfirmedByPoll(t *testing.T) {
	client, _ := newTestTaskClient(&backendFake{}, Dependencies{})
	ctx := context.Background()
	client.ApplyStatus(ctx, domain.Task{ID: "t1", Status: domain.TaskStatusExtracting})

	predicted, err := client.UpdateStatusOptimistically("t1", domain.TaskStatusAnalyzing)
	if err != nil {
		t.Fatalf("UpdateStatusOptimistically() error = %v", err)
	}
	if !predicted.Optimistic {
		t.Fatalf("expected optimistic flag")
	}
	if shown, _ := client.Task("t1"); shown.Status != domain.TaskStatusAnalyzing {
		t.Fatalf("expected prediction to be shown, got %s", shown.Status)
	}

	client.ApplyStatus(ctx, domain.Task{ID: "t1", Status: domain.TaskStatusGenerating})
	if client.predictions.Len() != 0 {
		t.Fatalf("expected prediction confirmed by a later status")
	}
	if shown, _ := client.Task("t1"); shown.Status != domain.TaskStatusGenerating || shown.Optimistic {
		t.Fatalf("unexpected shown task: %+v", shown)
	}
}

func TestRollbackStatusUpdateIsIdempotent(t *testing.T) {
	client, _ := newTestTaskClient(&backendFake{}, Dependencies{})
	client.ApplyStatus(context.Background(), domain.Task{ID: "t1", Status: domain.TaskStatusExtracting})

	if _, ok := client.RollbackStatusUpdate("t1"); ok {
		t.Fatalf("nothing pending: rollback must report false")
	}
	if _, err := client.UpdateStatusOptimistically("t1", domain.TaskStatusGenerating); err != nil {
		t.Fatalf("UpdateStatusOptimistically() error = %v", err)
	}
	restored, ok := client.RollbackStatusUpdate("t1")
	if !ok || restored.Status != domain.TaskStatusExtracting {
		t.Fatalf("expected restored extracting, got %+v ok=%v", restored, ok)
	}
	if _, ok := client.RollbackStatusUpdate("t1"); ok {
		t.Fatalf("second rollback must report false")
	}
	if _, err := client.UpdateStatusOptimistically("missing", domain.TaskStatusAnalyzing); err == nil {
		t.Fatalf("expected error for untracked task")
	}
}

func TestGetTaskResultCachesUntilForced(t *testing.T) {
	backend := &backendFake{result: &domain.AnalysisResult{Metadata: domain.AnalysisMetadata{NIF: "516807706"}}}
	client, _ := newTestTaskClient(backend, Dependencies{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.GetTaskResult(ctx, "t1", false); err != nil {
			t.Fatalf("GetTaskResult() error = %v", err)
		}
	}
	if backend.resultCalls != 1 {
		t.Fatalf("expected one backend call, got %d", backend.resultCalls)
	}
	if _, err := client.GetTaskResult(ctx, "t1", true); err != nil {
		t.Fatalf("GetTaskResult(force) error = %v", err)
	}
	if backend.resultCalls != 2 {
		t.Fatalf("expected forced refresh, got %d calls", backend.resultCalls)
	}
}

func TestDownloadFileFallsBackToNIFFilename(t *testing.T) {
	storage := &storageFake{}
	backend := &backendFake{downloads: map[domain.FileType]*domain.Download{
		domain.FileTypeExcel: {Data: []byte("xlsx-bytes")},
		domain.FileTypeJSON:  {Filename: "relatorio.json", Data: []byte(`{}`)},
	}}
	client, _ := newTestTaskClient(backend, Dependencies{Storage: storage})
	if _, err := client.UploadFile(context.Background(), validRequest(), nil); err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	saved, err := client.DownloadAll(context.Background(), "t1", []domain.FileType{domain.FileTypeExcel, domain.FileTypeJSON})
	if err != nil {
		t.Fatalf("DownloadAll() error = %v", err)
	}
	if saved[0].Name != "aiparati_516807706.xlsx" || saved[0].Size != int64(len("xlsx-bytes")) {
		t.Fatalf("unexpected excel file: %+v", saved[0])
	}
	if saved[1].Name != "relatorio.json" || saved[1].Location != "/downloads/relatorio.json" {
		t.Fatalf("unexpected json file: %+v", saved[1])
	}
}

func TestDownloadFailureDoesNotTouchStatus(t *testing.T) {
	backend := &backendFake{downloadErr: domain.NewFailure(domain.CodeNotFound, 404, "HTTP 404: Not Found", false)}
	client, _ := newTestTaskClient(backend, Dependencies{Storage: &storageFake{}})
	client.ApplyStatus(context.Background(), domain.Task{ID: "t9", Status: domain.TaskStatusCompleted})

	if _, err := client.DownloadFile(context.Background(), "t9", domain.FileTypeJSON); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if task, _ := client.Task("t9"); task.Status != domain.TaskStatusCompleted {
		t.Fatalf("status changed after download failure: %s", task.Status)
	}
}

func TestTerminalStatusRecordsHistory(t *testing.T) {
	history := &historyFake{}
	backend := &backendFake{}
	client, _ := newTestTaskClient(backend, Dependencies{History: history})
	if _, err := client.UploadFile(context.Background(), validRequest(), nil); err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	client.ApplyStatus(context.Background(), domain.Task{
		ID:     "t1",
		Status: domain.TaskStatusCompleted,
		Result: &domain.AnalysisResult{Analysis: domain.FinancialAnalysis{Rating: domain.RatingLow}},
	})

	if len(history.entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history.entries))
	}
	entry := history.entries[0]
	if entry.NIF != "516807706" || entry.Rating != "BAIXO" || entry.CompletedAt == nil {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
}

func TestWatchReceivesTransitionsUntilStopped(t *testing.T) {
	client, _ := newTestTaskClient(&backendFake{}, Dependencies{})
	updates, stop := client.Watch("t1")

	client.ApplyStatus(context.Background(), domain.Task{ID: "t1", Status: domain.TaskStatusAnalyzing})
	select {
	case task := <-updates:
		if task.Status != domain.TaskStatusAnalyzing {
			t.Fatalf("unexpected update %+v", task)
		}
	default:
		t.Fatalf("expected buffered update")
	}

	stop()
	stop()
	if _, ok := <-updates; ok {
		t.Fatalf("expected closed channel after stop")
	}
	client.ApplyStatus(context.Background(), domain.Task{ID: "t1", Status: domain.TaskStatusCompleted})
}

func TestPreferencesCommitAndDiscard(t *testing.T) {
	client, _ := newTestTaskClient(&backendFake{}, Dependencies{})
	enabled := true
	dark := domain.ThemeDark

	got := client.UpdatePreferences(domain.PreferencesPatch{AutoDownload: &enabled})
	if !got.AutoDownload || got.Language != "pt" {
		t.Fatalf("unexpected pending preferences: %+v", got)
	}
	if discarded := client.DiscardPreferences(); discarded.AutoDownload {
		t.Fatalf("discard must restore committed preferences")
	}

	client.UpdatePreferences(domain.PreferencesPatch{Theme: &dark})
	committed := client.CommitPreferences()
	if committed.Theme != domain.ThemeDark || client.Preferences().Theme != domain.ThemeDark {
		t.Fatalf("expected committed dark theme, got %+v", committed)
	}
}

func TestDeleteTaskForgetsLocalState(t *testing.T) {
	backend := &backendFake{}
	client, _ := newTestTaskClient(backend, Dependencies{})
	client.ApplyStatus(context.Background(), domain.Task{ID: "t1", Status: domain.TaskStatusCompleted})

	if err := client.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if _, ok := client.Task("t1"); ok {
		t.Fatalf("expected task to be forgotten")
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != "t1" {
		t.Fatalf("unexpected deletes: %v", backend.deleted)
	}
}

func TestUserMessage(t *testing.T) {
	client := NewTaskClient(Dependencies{Backend: &backendFake{}}, Config{MaxUploadMB: 10})

	cases := []struct {
		err  error
		want string
	}{
		{domain.NewFailure(domain.CodeAuthentication, 401, "x", false), "Por favor, faça login para continuar."},
		{domain.NewFailure(domain.CodeValidation, 422, "x", false), "Os dados fornecidos são inválidos. Por favor, verifique e tente novamente."},
		{domain.NewFailure(domain.CodeFileTooLarge, 0, "x", false), "O ficheiro é demasiado grande. Tamanho máximo: 10MB."},
		{domain.NewFailure(domain.CodeRateLimited, 429, "x", true), "Muitas tentativas. Por favor, aguarde alguns segundos antes de tentar novamente."},
		{domain.NewFailure(domain.CodeServer, 502, "x", true), "O serviço está temporariamente indisponível. Por favor, tente novamente mais tarde."},
		{domain.NewFailure(domain.CodeNetwork, 0, "x", true), "Sem conexão à internet. Por favor, verifique a sua ligação."},
		{domain.NewFailure(domain.CodeTimeout, 0, "x", true), "A operação demorou demasiado tempo. Por favor, tente novamente."},
		{domain.NewFailure(domain.CodeConnection, 0, "x", true), "Erro de conexão. Por favor, verifique a sua internet e tente novamente."},
		{context.Canceled, "A operação foi cancelada."},
		{errors.New("boom"), unexpectedMessage},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := client.UserMessage(tc.err); got != tc.want {
			t.Fatalf("UserMessage(%v): expected %q, got %q", tc.err, tc.want, got)
		}
	}
}
