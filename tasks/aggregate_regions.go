package tasks

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"markd/internal/store"
	"markd/types"
)

// AggregateRegions rolls yesterday's per-certificate violation reports up
// into one RegionReport per region. Certificates whose outlet belongs to no
// configured region land in the Undefined bucket; they are reported, never
// dropped.
func AggregateRegions(st *store.Store) (map[string]*types.RegionReport, error) {
	logger := zap.L().With(zap.String("task", "aggregate_regions"))

	yesterday := types.Yesterday(time.Now())
	reports, err := st.LoadAllReports(yesterday)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	regions, err := st.LoadRegions()
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	logger.Info("aggregate_regions started",
		zap.String("date", yesterday),
		zap.Int("reports", len(reports)),
		zap.Int("regions", len(regions)))

	tcToRegion := map[string]string{}
	for id, region := range regions {
		for _, tc := range region.TCList {
			tcToRegion[tc] = id
		}
	}

	aggregated := map[string]*types.RegionReport{}
	for certName, doc := range reports {
		regionID := resolveRegion(tcToRegion, certName)

		agg, ok := aggregated[regionID]
		if !ok {
			agg = &types.RegionReport{
				Date:        yesterday,
				CertReports: map[string]map[string]int{},
				Violations:  map[string]int{},
			}
			aggregated[regionID] = agg
		}
		agg.Certificates = append(agg.Certificates, certName)

		breakdown := map[string]int{}
		for group, raw := range doc.Violations {
			count, ok := coerceCount(raw)
			if !ok {
				logger.Warn("non-numeric violation count excluded",
					zap.String("certificate", certName),
					zap.String("group", group),
					zap.Any("value", raw))
				continue
			}
			breakdown[group] = count
			agg.Violations[group] += count
			agg.Total += count
		}
		agg.CertReports[certName] = breakdown
	}

	logger.Info("aggregate_regions complete", zap.Int("regions", len(aggregated)))
	return aggregated, nil
}

// resolveRegion maps a certificate directory name to its region. Keys of
// the form "Name - TC" resolve by either the full key or the TC suffix;
// plain names resolve by themselves.
func resolveRegion(tcToRegion map[string]string, certName string) string {
	if id, ok := tcToRegion[certName]; ok {
		return id
	}
	if _, tc, found := strings.Cut(certName, " - "); found {
		if id, ok := tcToRegion[strings.TrimSpace(tc)]; ok {
			return id
		}
	}
	return types.UndefinedRegion
}

// coerceCount turns a raw JSON value into an integer count. Floats with a
// fractional part and non-numeric strings are rejected.
func coerceCount(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
