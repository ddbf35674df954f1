package taskengine

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.executionFinished("completed")
	m.executionFinished("completed")
	m.eventPublished("status-update")
	m.pushNotificationSent(nil)
	m.pushNotificationSent(errors.New("boom"))
	m.operation("GetTask", nil)
	m.operation("GetTask", taskNotFound("x"))

	if got := testutil.ToFloat64(m.executions.WithLabelValues("completed")); got != 2 {
		t.Errorf("executions{completed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("status-update")); got != 1 {
		t.Errorf("events{status-update} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pushNotifications.WithLabelValues("error")); got != 1 {
		t.Errorf("push_notifications{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("GetTask", "ok")); got != 1 {
		t.Errorf("operations{GetTask,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("GetTask", string(ErrorKindNotFound))); got != 1 {
		t.Errorf("operations{GetTask,not-found} = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.executionFinished("completed")
	m.eventPublished("status-update")
	m.pushNotificationSent(nil)
	m.operation("GetTask", nil)
}
