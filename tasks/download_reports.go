package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"markd/internal/store"
	"markd/types"
)

const (
	// defaultPollInterval is the wait between status checks for one task.
	defaultPollInterval = 20 * time.Second

	// defaultMaxAttempts bounds polling per task (~20 minutes). A task that
	// exhausts the budget stays pending for the next scheduled run.
	defaultMaxAttempts = 60
)

// Poller drains a certificate's pending export tasks: it polls remote
// status, downloads finished result files, and rewrites the pending queue
// with whatever is still outstanding.
type Poller struct {
	Client       *TrueAPIClient
	Store        *store.Store
	PollInterval time.Duration
	MaxAttempts  int
}

// NewPoller creates a Poller with the production poll budget.
func NewPoller(client *TrueAPIClient, st *store.Store) *Poller {
	return &Poller{
		Client:       client,
		Store:        st,
		PollInterval: defaultPollInterval,
		MaxAttempts:  defaultMaxAttempts,
	}
}

// ResolvePending processes every task in the certificate's pending file.
// Each task ends in exactly one of three states: downloaded (removed),
// terminally failed or skipped (removed), or still pending (persisted for
// the next run). An empty final queue removes the pending file.
func (p *Poller) ResolvePending(ctx context.Context, certName, token string) ([]types.PendingTask, error) {
	logger := zap.L().With(zap.String("task", "download_reports"), zap.String("certificate", certName))

	tasks, err := p.Store.ReadPending(certName)
	if err != nil {
		return nil, fmt.Errorf("read pending tasks: %w", err)
	}
	if len(tasks) == 0 {
		logger.Info("no pending tasks")
		return nil, nil
	}
	logger.Info("download_reports started", zap.Int("pending", len(tasks)))

	reportsDir, err := p.Store.ReportsDir(certName)
	if err != nil {
		return nil, err
	}

	var remaining []types.PendingTask
	for _, task := range tasks {
		resolved, err := p.monitorAndDownload(ctx, token, task, reportsDir)
		if err != nil {
			logger.Error("task left pending",
				zap.String("task_id", task.TaskID),
				zap.String("group", types.GroupLabel(task.GroupCode)),
				zap.Error(err))
			remaining = append(remaining, task)
			continue
		}
		if resolved {
			logger.Info("task resolved", zap.String("task_id", task.TaskID))
		}
	}

	if err := p.Store.WritePending(certName, remaining); err != nil {
		return remaining, fmt.Errorf("persist pending tasks: %w", err)
	}
	logger.Info("download_reports complete",
		zap.Int("resolved", len(tasks)-len(remaining)),
		zap.Int("remaining", len(remaining)))
	return remaining, nil
}

// monitorAndDownload polls one task until it reaches a terminal state or
// the attempt budget runs out. It returns (true, nil) when the task is
// resolved — downloaded, terminally failed, benign-skipped, or empty — and
// an error when the task must stay pending.
func (p *Poller) monitorAndDownload(ctx context.Context, token string, task types.PendingTask, reportsDir string) (bool, error) {
	logger := zap.L().With(
		zap.String("task", "download_reports"),
		zap.String("task_id", task.TaskID),
		zap.String("group", types.GroupLabel(task.GroupCode)))

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, p.PollInterval); err != nil {
				return false, err
			}
		}

		results, err := p.Client.GetResults(ctx, token, task.GroupCode, []string{task.TaskID})
		if err != nil {
			logger.Warn("status query failed", zap.Error(err))
			continue
		}
		if len(results) == 0 {
			logger.Info("no result entry yet")
			continue
		}

		result := results[0]
		switch result.DownloadStatus {
		case DownloadStatusSuccess:
			return p.downloadResult(ctx, token, task, result.ID, reportsDir)
		case DownloadStatusFailed:
			// Terminal for this product group and day; no retry.
			logger.Error("export failed remotely", zap.String("remote_error", result.ErrorMessage))
			return true, nil
		default:
			logger.Info("still processing", zap.String("status", result.DownloadStatus))
		}
	}
	return false, fmt.Errorf("poll budget exhausted after %d attempts", p.MaxAttempts)
}

func (p *Poller) downloadResult(ctx context.Context, token string, task types.PendingTask, resultID, reportsDir string) (bool, error) {
	logger := zap.L().With(
		zap.String("task", "download_reports"),
		zap.String("task_id", task.TaskID),
		zap.String("group", types.GroupLabel(task.GroupCode)))

	data, err := p.Client.DownloadResultFile(ctx, token, task.GroupCode, resultID)
	switch {
	case errors.Is(err, ErrNoAccess):
		// Token has no access to this product group; skip without error.
		logger.Info("no access to product group, skipping")
		return true, nil
	case errors.Is(err, ErrEmptyResult):
		logger.Info("no violations for group and date")
		return true, nil
	case err != nil:
		return false, fmt.Errorf("download result: %w", err)
	}

	filename := resultFilename(task.GroupCode, p.dateRange(ctx, token, task), time.Now())
	path := filepath.Join(reportsDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write result file: %w", err)
	}
	logger.Info("result file saved", zap.String("file", filename), zap.Int("bytes", len(data)))
	return true, nil
}

// dateRange asks the task endpoint for the covered range. Failure is
// tolerated; the filename simply omits the range segment.
func (p *Poller) dateRange(ctx context.Context, token string, task types.PendingTask) string {
	info, err := p.Client.GetTaskInfo(ctx, token, task.GroupCode, task.TaskID)
	if err != nil || info.DataStartDate == "" || info.DataEndDate == "" {
		return ""
	}
	start, _, _ := strings.Cut(info.DataStartDate, "T")
	end, _, _ := strings.Cut(info.DataEndDate, "T")
	return fmt.Sprintf("%s_to_%s", start, end)
}

func resultFilename(groupCode int, dateRange string, now time.Time) string {
	return fmt.Sprintf("violations_group%d_%s_%s.csv", groupCode, dateRange, now.Format("20060102_150405"))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
