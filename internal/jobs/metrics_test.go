package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("overdue_scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("overdue_scan").End(boom), boom)

	require.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("overdue_scan", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("overdue_scan", "failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("overdue_scan")))
}

func TestReminderAndNotificationCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddOverdueReminders(7, 3)
	m.AddOverdueReminders(7, 0)
	m.NotificationSent("invoice.paid")

	require.Equal(t, float64(3), testutil.ToFloat64(m.reminders.WithLabelValues("7")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.notifications.WithLabelValues("invoice.paid")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.AddOverdueReminders(1, 1)
	m.NotificationSent("invoice.sent")
}
