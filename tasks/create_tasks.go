package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"markd/internal/store"
	"markd/types"
)

// CreateTasks submits one export task per configured product group for
// yesterday's date and persists the collected ids as the certificate's
// pending queue, replacing its previous contents for this invocation.
// Individual group failures are logged and skipped.
func CreateTasks(ctx context.Context, client *TrueAPIClient, st *store.Store, certName, token string) ([]types.PendingTask, error) {
	logger := zap.L().With(zap.String("task", "create_tasks"), zap.String("certificate", certName))

	yesterday := types.Yesterday(time.Now())
	groups := st.LoadProductGroups()
	logger.Info("create_tasks started",
		zap.String("date", yesterday),
		zap.Int("groups", len(groups)))

	var created []types.PendingTask
	for _, code := range groups {
		taskID, err := client.CreateViolationsTask(ctx, token, code, yesterday, yesterday)
		if err != nil {
			logger.Error("task creation failed",
				zap.String("group", types.GroupLabel(code)),
				zap.Error(err))
			continue
		}
		created = append(created, types.PendingTask{TaskID: taskID, GroupCode: code})
		logger.Info("task created",
			zap.String("task_id", taskID),
			zap.String("group", types.GroupLabel(code)))
	}

	if len(created) > 0 {
		if err := st.WritePending(certName, created); err != nil {
			return created, err
		}
	}
	logger.Info("create_tasks complete", zap.Int("created", len(created)))
	return created, nil
}
