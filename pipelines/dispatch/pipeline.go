package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldryand/goflow/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"markd/pipelines"
	"markd/pipelines/daily"
	"markd/tasks"
	"markd/types"
)

func init() {
	pipelines.RegisterDescriptor(pipelines.Descriptor{
		Name:        "dispatch",
		Description: "Evening email dispatch of aggregated regional reports",
	})
}

const keyRegionReports = "dispatch_region_reports"

// Pipeline re-aggregates the day's reports and emails them per region. It
// exists separately from the daily pipeline so the evening send picks up
// reports that finished downloading after the morning run.
type Pipeline struct {
	state  *pipelines.State
	manual bool
}

// New creates a new dispatch pipeline instance
func New(state *pipelines.State, manual bool) *Pipeline {
	return &Pipeline{state: state, manual: manual}
}

// Name returns the pipeline identifier
func (p *Pipeline) Name() string {
	return "dispatch"
}

// Description returns a human-readable description
func (p *Pipeline) Description() string {
	return "Evening email dispatch of aggregated regional reports"
}

// ValidateConfig validates that all required configuration is present
func (p *Pipeline) ValidateConfig() error {
	cfg, err := p.state.Store.LoadEmailConfig()
	if err != nil {
		return fmt.Errorf("load email config: %w", err)
	}
	if cfg == nil {
		return fmt.Errorf("email_config.json not found in %s", p.state.Store.Dir())
	}
	return nil
}

// Job returns a goflow job factory function
func (p *Pipeline) Job() func() *goflow.Job {
	return func() *goflow.Job {
		j := &goflow.Job{
			Name:     "dispatch-pipeline",
			Schedule: "@manual",
			Active:   true,
		}
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
		j.SetDownstream(j.Task("aggregate_regions"), j.Task("send_email"))
		return j
	}
}

// RunOnce executes the pipeline synchronously
func (p *Pipeline) RunOnce() error {
	flow := pipelines.NewFlow(p.Name())
	flow.AddStep("aggregate_regions", p.aggregateRegions)
	flow.AddStep("send_email", p.sendEmail)

	runErr := flow.Run(context.Background())

	marker := &types.RunMarker{
		LastRun:   time.Now(),
		RunID:     uuid.NewString(),
		DataDate:  types.Yesterday(time.Now()),
		ManualRun: p.manual,
	}
	if next, err := daily.NextRunAfter(p.state.Config.EmailTime, time.Now()); err == nil {
		marker.NextScheduledRun = next
	}
	if err := p.state.Store.WriteEmailRunMarker(marker); err != nil {
		zap.L().Error("failed to write email run marker", zap.Error(err))
	}
	return runErr
}

func (p *Pipeline) aggregateRegions(ctx context.Context) error {
	reports, err := tasks.AggregateRegions(p.state.Store)
	if err != nil {
		return err
	}
	p.state.Set(keyRegionReports, reports)
	return nil
}

func (p *Pipeline) sendEmail(ctx context.Context) error {
	reports, _ := p.state.Get(keyRegionReports).(map[string]*types.RegionReport)
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

type AggregateRegionsOp struct{ pipeline *Pipeline }

func (o *AggregateRegionsOp) Run() (interface{}, error) {
	if err := o.pipeline.aggregateRegions(context.Background()); err != nil {
		return nil, err
	}
	reports, _ := o.pipeline.state.Get(keyRegionReports).(map[string]*types.RegionReport)
	return len(reports), nil
}

type SendEmailOp struct{ pipeline *Pipeline }

func (o *SendEmailOp) Run() (interface{}, error) {
	if err := o.pipeline.sendEmail(context.Background()); err != nil {
		return nil, err
	}
	return true, nil
}
