package daily

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldryand/goflow/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"markd/pipelines"
	"markd/tasks"
	"markd/types"
)

func init() {
	pipelines.RegisterDescriptor(pipelines.Descriptor{
		Name:        "daily",
		Description: "Daily marking-violation report pipeline",
	})
}

// State keys for daily pipeline data
const (
	KeyTokens        = "tokens"
	KeyRegionReports = "region_reports"
)

// Pipeline implements the daily report pipeline: token refresh, remote
// export task creation, polling and download, ingestion, aggregation and
// email dispatch, per registered certificate.
type Pipeline struct {
	state  *pipelines.State
	manual bool
}

// New creates a new daily pipeline instance
func New(state *pipelines.State, manual bool) *Pipeline {
	return &Pipeline{state: state, manual: manual}
}

// Name returns the pipeline identifier
func (p *Pipeline) Name() string {
	return "daily"
}

// Description returns a human-readable description
func (p *Pipeline) Description() string {
	return "Daily marking-violation report pipeline"
}

// ValidateConfig validates that all required configuration is present
func (p *Pipeline) ValidateConfig() error {
	if p.state.Config.TrueAPIBaseURL == "" {
		return fmt.Errorf("TRUE_API_BASE_URL is required")
	}
	certs, err := p.state.Store.LoadCertificates()
	if err != nil {
		return fmt.Errorf("load certificates: %w", err)
	}
	if len(certs) == 0 {
		return fmt.Errorf("no certificates registered")
	}
	return nil
}

// Job returns a goflow job factory function
func (p *Pipeline) Job() func() *goflow.Job {
	return func() *goflow.Job {
		j := &goflow.Job{
			Name:     "daily-pipeline",
			Schedule: "@manual",
			Active:   true,
		}

		j.Add(&goflow.Task{
			Name:       "refresh_tokens",
			Operator:   &RefreshTokensOp{pipeline: p},
			Retries:    2,
			RetryDelay: goflow.ConstantDelay{Period: 5},
		})
		j.Add(&goflow.Task{
			Name:       "create_tasks",
			Operator:   &CreateTasksOp{pipeline: p},
			Retries:    2,
			RetryDelay: goflow.ConstantDelay{Period: 5},
		})
		j.Add(&goflow.Task{
			Name:       "download_reports",
			Operator:   &DownloadReportsOp{pipeline: p},
			Retries:    2,
			RetryDelay: goflow.ConstantDelay{Period: 5},
		})
		j.Add(&goflow.Task{
			Name:     "ingest_reports",
			Operator: &IngestReportsOp{pipeline: p},
		})
		j.Add(&goflow.Task{
			Name:     "aggregate_regions",
			Operator: &AggregateRegionsOp{pipeline: p},
		})
		j.Add(&goflow.Task{
			Name:       "send_email",
			Operator:   &SendEmailOp{pipeline: p},
			Retries:    2,
			RetryDelay: goflow.ConstantDelay{Period: 5},
		})

		j.SetDownstream(j.Task("refresh_tokens"), j.Task("create_tasks"))
		j.SetDownstream(j.Task("create_tasks"), j.Task("download_reports"))
		j.SetDownstream(j.Task("download_reports"), j.Task("ingest_reports"))
		j.SetDownstream(j.Task("ingest_reports"), j.Task("aggregate_regions"))
		j.SetDownstream(j.Task("aggregate_regions"), j.Task("send_email"))
		return j
	}
}

// RunOnce executes the pipeline synchronously
func (p *Pipeline) RunOnce() error {
	ctx := context.Background()

	flow := pipelines.NewFlow(p.Name())
	flow.AddStep("refresh_tokens", p.refreshTokens)
	flow.AddStep("create_tasks", p.createTasks)
	flow.AddStep("download_reports", p.downloadReports)
	flow.AddStep("ingest_reports", p.ingestReports)
	flow.AddStep("aggregate_regions", p.aggregateRegions)
	flow.AddStep("send_email", p.sendEmail)

	runErr := flow.Run(ctx)

	marker := &types.RunMarker{
		LastRun:               time.Now(),
		RunID:                 uuid.NewString(),
		DataDate:              types.Yesterday(time.Now()),
		CertificatesProcessed: len(p.tokens()),
		ManualRun:             p.manual,
	}
	if next, err := NextRunAfter(p.state.Config.DailyReportTime, time.Now()); err == nil {
		marker.NextScheduledRun = next
	}
	if err := p.state.Store.WriteRunMarker(marker); err != nil {
		zap.L().Error("failed to write run marker", zap.Error(err))
	}
	return runErr
}

// refreshTokens reacquires tokens when the stored set is past its validity
// window, then publishes the live set for the downstream steps.
func (p *Pipeline) refreshTokens(ctx context.Context) error {
	ts, err := p.state.Store.LoadTokens()
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	if tasks.TokensStale(ts, time.Now()) {
		zap.L().Info("token store stale, reacquiring")
		if _, err := tasks.AcquireTokens(ctx, p.state.Client, p.state.Signer, p.state.Store); err != nil {
			return fmt.Errorf("acquire tokens: %w", err)
		}
		if ts, err = p.state.Store.LoadTokens(); err != nil {
			return fmt.Errorf("reload tokens: %w", err)
		}
	}
	if len(ts.Tokens) == 0 {
		return fmt.Errorf("no tokens available")
	}
	p.state.Set(KeyTokens, ts.Tokens)
	return nil
}

func (p *Pipeline) createTasks(ctx context.Context) error {
	tokens := p.tokens()
	failed := 0
	for certName, token := range tokens {
		if _, err := tasks.CreateTasks(ctx, p.state.Client, p.state.Store, certName, token); err != nil {
			zap.L().Error("create_tasks failed for certificate",
				zap.String("certificate", certName),
				zap.Error(err))
			failed++
		}
	}
	if failed > 0 && failed == len(tokens) {
		return fmt.Errorf("task creation failed for all %d certificates", failed)
	}
	return nil
}

func (p *Pipeline) downloadReports(ctx context.Context) error {
	poller := tasks.NewPoller(p.state.Client, p.state.Store)
	for certName, token := range p.tokens() {
		if _, err := poller.ResolvePending(ctx, certName, token); err != nil {
			zap.L().Error("download_reports failed for certificate",
				zap.String("certificate", certName),
				zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) ingestReports(ctx context.Context) error {
	for certName := range p.tokens() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := tasks.IngestReports(p.state.Store, certName); err != nil {
			zap.L().Error("ingest_reports failed for certificate",
				zap.String("certificate", certName),
				zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) aggregateRegions(ctx context.Context) error {
	reports, err := tasks.AggregateRegions(p.state.Store)
	if err != nil {
		return err
	}
	p.state.Set(KeyRegionReports, reports)
	return nil
}

func (p *Pipeline) sendEmail(ctx context.Context) error {
	reports, _ := p.state.Get(KeyRegionReports).(map[string]*types.RegionReport)
	if len(reports) == 0 {
		zap.L().Info("no region reports to dispatch")
		return nil
	}
	ok, err := tasks.SendRegionalReports(p.state.Store, reports)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dispatch incomplete, one or more regions failed")
	}
	return nil
}

func (p *Pipeline) tokens() map[string]string {
	tokens, _ := p.state.Get(KeyTokens).(map[string]string)
	return tokens
}

// NextRunAfter computes the next occurrence of a HH:MM time of day strictly
// after now.
func NextRunAfter(timeOfDay string, now time.Time) (time.Time, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("parse time of day %q: %w", timeOfDay, err)
	}
	schedule, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return time.Time{}, fmt.Errorf("build schedule: %w", err)
	}
	return schedule.Next(now), nil
}

// Operators adapt pipeline steps to goflow's execution model.

type RefreshTokensOp struct{ pipeline *Pipeline }

func (o *RefreshTokensOp) Run() (interface{}, error) {
	if err := o.pipeline.refreshTokens(context.Background()); err != nil {
		return nil, err
	}
	return len(o.pipeline.tokens()), nil
}

type CreateTasksOp struct{ pipeline *Pipeline }

func (o *CreateTasksOp) Run() (interface{}, error) {
	if err := o.pipeline.createTasks(context.Background()); err != nil {
		return nil, err
	}
	return true, nil
}

type DownloadReportsOp struct{ pipeline *Pipeline }

func (o *DownloadReportsOp) Run() (interface{}, error) {
	if err := o.pipeline.downloadReports(context.Background()); err != nil {
		return nil, err
	}
	return true, nil
}

type IngestReportsOp struct{ pipeline *Pipeline }

func (o *IngestReportsOp) Run() (interface{}, error) {
	if err := o.pipeline.ingestReports(context.Background()); err != nil {
		return nil, err
	}
	return true, nil
}

type AggregateRegionsOp struct{ pipeline *Pipeline }

func (o *AggregateRegionsOp) Run() (interface{}, error) {
	if err := o.pipeline.aggregateRegions(context.Background()); err != nil {
		return nil, err
	}
	reports, _ := o.pipeline.state.Get(KeyRegionReports).(map[string]*types.RegionReport)
	return len(reports), nil
}

type SendEmailOp struct{ pipeline *Pipeline }

func (o *SendEmailOp) Run() (interface{}, error) {
	if err := o.pipeline.sendEmail(context.Background()); err != nil {
		return nil, err
	}
	return true, nil
}
