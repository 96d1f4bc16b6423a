package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRatingAction(t *testing.T) {
	RatingActionsTotal.Reset()

	RecordRatingAction("create", "success")
	RecordRatingAction("create", "success")
	RecordRatingAction("flag", "error")

	count := testutil.ToFloat64(RatingActionsTotal.WithLabelValues("create", "success"))
	if count != 2 {
		t.Errorf("Expected create success count = 2, got %f", count)
	}

	count = testutil.ToFloat64(RatingActionsTotal.WithLabelValues("flag", "error"))
	if count != 1 {
		t.Errorf("Expected flag error count = 1, got %f", count)
	}
}

func TestRecordThrottled(t *testing.T) {
	RatingsThrottledTotal.Reset()

	RecordThrottled("post")
	RecordThrottled("post")
	RecordThrottled("vote")

	if count := testutil.ToFloat64(RatingsThrottledTotal.WithLabelValues("post")); count != 2 {
		t.Errorf("Expected post throttled count = 2, got %f", count)
	}
}

func TestRecordScreening(t *testing.T) {
	ScreeningOutcomesTotal.Reset()

	RecordScreening("denied_words", "rejected")

	if count := testutil.ToFloat64(ScreeningOutcomesTotal.WithLabelValues("denied_words", "rejected")); count != 1 {
		t.Errorf("Expected rejected count = 1, got %f", count)
	}
}

func TestRecordTask(t *testing.T) {
	TasksTotal.Reset()
	TaskDurationSeconds.Reset()

	RecordTask("update_denorm", "success", 20*time.Millisecond)
	RecordTask("update_denorm", "error", 10*time.Millisecond)

	if count := testutil.ToFloat64(TasksTotal.WithLabelValues("update_denorm", "success")); count != 1 {
		t.Errorf("Expected task success count = 1, got %f", count)
	}
	if n := testutil.CollectAndCount(TaskDurationSeconds); n != 1 {
		t.Errorf("Expected 1 duration series, got %d", n)
	}
}

func TestRecordSchedulerJobRun(t *testing.T) {
	SchedulerJobRunsTotal.Reset()
	SchedulerLastRun.Reset()

	RecordSchedulerJobRun("bayesian", "success")

	if count := testutil.ToFloat64(SchedulerJobRunsTotal.WithLabelValues("bayesian", "success")); count != 1 {
		t.Errorf("Expected job run count = 1, got %f", count)
	}
	if ts := testutil.ToFloat64(SchedulerLastRun.WithLabelValues("bayesian")); ts <= 0 {
		t.Errorf("Expected last run timestamp to be set, got %f", ts)
	}
}

func TestSetTaskQueueDepth(t *testing.T) {
	SetTaskQueueDepth(7)

	if depth := testutil.ToFloat64(TaskQueueDepth); depth != 7 {
		t.Errorf("Expected queue depth = 7, got %f", depth)
	}
}
