package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyJobFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want JobFailure
	}{
		{"deadline", context.DeadlineExceeded, JobFailure{JobReasonDeadlineExceeded, true}},
		{"forbidden", fmt.Errorf("expire sessions: %w", authorization.ErrForbidden), JobFailure{JobReasonForbidden, false}},
		{"pg lock timeout", &pgconn.PgError{Code: "55P03"}, JobFailure{JobReasonDBLockTimeout, true}},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, JobFailure{JobReasonSerializationFailure, true}},
		{"pg other", &pgconn.PgError{Code: "42P01"}, JobFailure{JobReasonDB, true}},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), JobFailure{JobReasonDBLockTimeout, true}},
		{"duplicate", gorm.ErrDuplicatedKey, JobFailure{JobReasonUniqueViolation, false}},
		{"not found", gorm.ErrRecordNotFound, JobFailure{JobReasonUnknown, false}},
		{"nil", nil, JobFailure{JobReasonUnknown, false}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyJobFailure(tc.err))
		})
	}
}

func TestSweptIgnoresEmptyBatches(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{ServiceName: "mystictxt", Environment: "test"})

	m.Swept("chat.expire_sessions", ResourceChatSessions, 3)
	m.Swept("chat.expire_sessions", ResourceChatSessions, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.swept.WithLabelValues("chat.expire_sessions", ResourceChatSessions)))
}

func TestJobFailedCountsTimeouts(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{Environment: "test"})

	m.JobFailed("wallet.reconcile", context.DeadlineExceeded)
	m.JobFailed("wallet.reconcile", errors.New("boom"))
	m.JobFailed("wallet.reconcile", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.timeouts.WithLabelValues("wallet.reconcile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("wallet.reconcile", JobReasonUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("wallet.reconcile", JobReasonDeadlineExceeded)))
}

func TestLedgerMismatchesGaugeResets(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{Environment: "test"})

	m.LedgerMismatches(2)
	m.LedgerMismatches(0)

	assert.Zero(t, testutil.ToFloat64(m.ledgerMismatches))
}
