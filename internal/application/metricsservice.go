package application

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Overview summarizes run outcomes over a window. Rates are percentages of
// all matched runs, rounded to two decimals; runs still in flight count
// toward the denominator but toward neither rate.
type Overview struct {
	TotalRuns       int                `json:"total_runs"`
	SuccessRate     float64            `json:"success_rate"`
	FailureRate     float64            `json:"failure_rate"`
	AvgDurationSecs float64            `json:"avg_duration_secs"`
	LastBuild       *model.WorkflowRun `json:"last_build"`
}

// TimeseriesPoint is one day's outcome counts and average run duration.
type TimeseriesPoint struct {
	Date            string  `json:"date"`
	Total           int     `json:"total"`
	Success         int     `json:"success"`
	Failure         int     `json:"failure"`
	Other           int     `json:"other"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`
}

// MetricsService computes health summaries from stored run history.
type MetricsService struct {
	runStore driven.RunStore
}

// NewMetricsService creates a MetricsService.
func NewMetricsService(runStore driven.RunStore) *MetricsService {
	return &MetricsService{runStore: runStore}
}

// Overview computes aggregate rates over the runs matching the filter.
// Average duration considers only runs with a positive recorded duration and
// is zero when there are none.
func (s *MetricsService) Overview(ctx context.Context, filter driven.RunFilter) (Overview, error) {
	runs, err := s.runStore.List(ctx, filter)
	if err != nil {
		return Overview{}, fmt.Errorf("list runs: %w", err)
	}

	var ov Overview
	ov.TotalRuns = len(runs)
	if len(runs) == 0 {
		return ov, nil
	}

	// List returns newest first.
	last := runs[0]
	ov.LastBuild = &last

	var successes, failures int
	var durationSum float64
	var durationCount int
	for _, run := range runs {
		switch run.Conclusion {
		case model.ConclusionSuccess:
			successes++
		case model.ConclusionFailure:
			failures++
		}
		if run.DurationSecs != nil && *run.DurationSecs > 0 {
			durationSum += *run.DurationSecs
			durationCount++
		}
	}

	ov.SuccessRate = roundRate(successes, len(runs))
	ov.FailureRate = roundRate(failures, len(runs))
	if durationCount > 0 {
		ov.AvgDurationSecs = durationSum / float64(durationCount)
	}

	return ov, nil
}

// Timeseries buckets matching runs by UTC calendar day, oldest first. Runs
// with no known start time are excluded; each bucket's average duration is
// over its runs with a positive recorded duration.
func (s *MetricsService) Timeseries(ctx context.Context, filter driven.RunFilter) ([]TimeseriesPoint, error) {
	runs, err := s.runStore.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	byDay := make(map[string]*TimeseriesPoint)
	durationSum := make(map[string]float64)
	durationCount := make(map[string]int)
	for _, run := range runs {
		if run.StartedAt.IsZero() {
			continue
		}
		day := run.StartedAt.UTC().Format(time.DateOnly)
		point, ok := byDay[day]
		if !ok {
			point = &TimeseriesPoint{Date: day}
			byDay[day] = point
		}
		point.Total++
		switch run.Conclusion {
		case model.ConclusionSuccess:
			point.Success++
		case model.ConclusionFailure:
			point.Failure++
		default:
			point.Other++
		}
		if run.DurationSecs != nil && *run.DurationSecs > 0 {
			durationSum[day] += *run.DurationSecs
			durationCount[day]++
		}
	}

	points := make([]TimeseriesPoint, 0, len(byDay))
	for day, point := range byDay {
		if n := durationCount[day]; n > 0 {
			point.AvgDurationSecs = durationSum[day] / float64(n)
		}
		points = append(points, *point)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	return points, nil
}

// roundRate renders part/whole as a percentage rounded to two decimals.
func roundRate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}
