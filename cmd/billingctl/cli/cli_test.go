package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billing/internal/billing"
	"github.com/odyssey-erp/billing/internal/rbac"
	"github.com/odyssey-erp/billing/jobs"
)

type stubMigrator struct {
	applied int
	err     error
}

func (s stubMigrator) Files() ([]string, error) {
	return []string{"0001_billing_schema.sql", "0002_audit_logs.sql"}, nil
}

func (s stubMigrator) Up(context.Context) (int, error) { return s.applied, s.err }

type stubReconciler struct {
	inv     billing.Invoice
	changed bool
	err     error
	gotID   int64
}

func (s *stubReconciler) Reconcile(_ context.Context, id int64) (billing.Invoice, bool, error) {
	s.gotID = id
	return s.inv, s.changed, s.err
}

type stubOverdue struct {
	invoices []billing.Invoice
	filter   billing.InvoiceFilter
}

func (s *stubOverdue) ListOverdue(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int, error) {
	s.filter = filter
	return s.invoices, len(s.invoices), nil
}

type stubJobs struct {
	name    string
	storeID int64
}

func (s *stubJobs) Trigger(_ context.Context, name string, storeID int64) (*asynq.TaskInfo, error) {
	if name != jobs.TaskTypeOverdueScan {
		return nil, errors.New("unsupported")
	}
	s.name, s.storeID = name, storeID
	return &asynq.TaskInfo{ID: "t-1", Type: name, Queue: jobs.QueueDefault}, nil
}

func (s *stubJobs) InspectQueue(context.Context) (QueueStats, error) {
	return QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}, nil
}

func run(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()
	released := false
	open := func(context.Context) (*Env, func(), error) {
		return env, func() { released = true }, nil
	}
	out := new(bytes.Buffer)
	root := NewRootCommand(open, out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		require.True(t, released, "environment must be released")
	}
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	out, err := run(t, &Env{Migrator: stubMigrator{applied: 2}}, "migrate")
	require.NoError(t, err)
	require.Equal(t, "applied 2 migration(s)\n", out)

	out, err = run(t, &Env{Migrator: stubMigrator{}}, "migrate", "--list")
	require.NoError(t, err)
	require.Equal(t, "0001_billing_schema.sql\n0002_audit_logs.sql\n", out)

	_, err = run(t, &Env{Migrator: stubMigrator{err: errors.New("locked")}}, "migrate")
	require.EqualError(t, err, "locked")
}

func TestReconcileCommand(t *testing.T) {
	rec := &stubReconciler{inv: billing.Invoice{InvoiceNumber: "INV-202501-000001", Status: billing.InvoiceStatusPaid}, changed: true}
	out, err := run(t, &Env{Reconciler: rec}, "reconcile", "17")
	require.NoError(t, err)
	require.Equal(t, int64(17), rec.gotID)
	require.Equal(t, "INV-202501-000001 marked PAID\n", out)

	rec = &stubReconciler{inv: billing.Invoice{InvoiceNumber: "INV-202501-000002", Status: billing.InvoiceStatusSent}}
	out, err = run(t, &Env{Reconciler: rec}, "reconcile", "18")
	require.NoError(t, err)
	require.Equal(t, "INV-202501-000002 unchanged (status SENT)\n", out)

	_, err = run(t, &Env{Reconciler: rec}, "reconcile", "abc")
	require.Error(t, err)

	rec = &stubReconciler{err: billing.ErrInvoiceNotFound}
	_, err = run(t, &Env{Reconciler: rec}, "reconcile", "99")
	require.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestOverdueCommand(t *testing.T) {
	due := billing.DateOnly(time.Now()).AddDate(0, 0, -3)
	lister := &stubOverdue{invoices: []billing.Invoice{{
		InvoiceNumber: "INV-202501-000003",
		AccountName:   "Main",
		StoreID:       4,
		TotalAmount:   decimal.RequireFromString("250.5"),
		DueDate:       due,
	}}}

	out, err := run(t, &Env{Overdue: lister}, "overdue", "--store", "4")
	require.NoError(t, err)
	require.Equal(t, int64(4), lister.filter.StoreID)
	require.Equal(t, -1, lister.filter.Size)
	require.Contains(t, out, "INV-202501-000003")
	require.Contains(t, out, "250.50")
	require.True(t, strings.HasSuffix(out, "1 overdue invoice(s)\n"))

	out, err = run(t, &Env{Overdue: lister}, "overdue", "--json")
	require.NoError(t, err)
	var rows []overdueRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, 3, rows[0].DaysLate)
}

func TestJobsCommands(t *testing.T) {
	q := &stubJobs{}
	out, err := run(t, &Env{Jobs: q}, "jobs", "trigger", jobs.TaskTypeOverdueScan, "--store", "9")
	require.NoError(t, err)
	require.Equal(t, int64(9), q.storeID)
	require.Contains(t, out, "enqueued billing:overdue_scan id=t-1")

	out, err = run(t, &Env{Jobs: q}, "jobs", "stats")
	require.NoError(t, err)
	require.Equal(t, "queue=default pending=2 active=0 scheduled=0 retry=1\n", out)

	_, err = run(t, &Env{Jobs: q}, "jobs", "trigger", "unknown")
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	tokens := rbac.NewTokenManager("secret", "billing", time.Hour)
	out, err := run(t, &Env{Tokens: tokens}, "token", "--user", "5", "--email", "a@example.com", "--role", "admin")
	require.NoError(t, err)

	principal, err := tokens.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, rbac.Principal{ID: 5, Email: "a@example.com", Role: rbac.RoleAdmin}, principal)

	_, err = run(t, &Env{Tokens: tokens}, "token", "--user", "5", "--role", "auditor")
	require.Error(t, err)
}

func TestMissingCollaborators(t *testing.T) {
	_, err := run(t, &Env{}, "migrate")
	require.Error(t, err)
	_, err = run(t, &Env{}, "overdue")
	require.Error(t, err)
}
