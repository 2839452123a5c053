package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "campaign-evaluation"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.IncLockSkipped(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for _, name := range []string{"groupbuy_job_success_total", "groupbuy_job_failure_total", "groupbuy_job_lock_skipped_total"} {
		got, err := fetchCounterValue(mfs, name, map[string]string{"job": job})
		if err != nil {
			t.Fatalf("fetch %s: %v", name, err)
		}
		if got != 1 {
			t.Fatalf("expected %s=1, got %f", name, got)
		}
	}

	if got, err := fetchHistogramSum(mfs, "groupbuy_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestCronJobMetricsCandidateOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	metrics.AddCandidates("grace-period", 2, 1)
	metrics.AddCandidates("grace-period", 1, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	succeeded, err := fetchCounterValue(mfs, "groupbuy_job_candidates_total", map[string]string{"job": "grace-period", "outcome": OutcomeSucceeded})
	if err != nil {
		t.Fatalf("fetch succeeded: %v", err)
	}
	failed, err := fetchCounterValue(mfs, "groupbuy_job_candidates_total", map[string]string{"job": "grace-period", "outcome": OutcomeFailed})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if succeeded != 3 || failed != 1 {
		t.Fatalf("expected 3 succeeded / 1 failed, got %f / %f", succeeded, failed)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	metrics := NewCronJobMetrics(nil)
	metrics.IncSuccess("job")
	metrics.AddCandidates("job", 1, 1)

	var nilMetrics *CronJobMetrics
	nilMetrics.IncFailure("job")

	lifecycle := NewLifecycleMetrics(nil)
	lifecycle.IncTransition("ACTIVE", "GRACE_PERIOD")
}

func TestLifecycleMetricsCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLifecycleMetrics(reg)
	metrics.IncTransition("GRACE_PERIOD", "LOCKED")
	metrics.IncTransition("GRACE_PERIOD", "LOCKED")
	metrics.IncOrder("created")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounterValue(mfs, "groupbuy_campaign_transitions_total", map[string]string{"from": "GRACE_PERIOD", "to": "LOCKED"})
	if err != nil {
		t.Fatalf("fetch transitions: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 transitions, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "groupbuy_orders_materialized_total", map[string]string{"result": "created"}); err != nil || got != 1 {
		t.Fatalf("expected 1 created order, got %f (%v)", got, err)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		matched := true
		for k, v := range labels {
			if !matchesLabel(metric.GetLabel(), k, v) {
				matched = false
				break
			}
		}
		if matched {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
