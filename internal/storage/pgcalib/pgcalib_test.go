package pgcalib

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startStorage(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "calibbox_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/calibbox_test?sslmode=disable"
	var st *Storage
	require.Eventually(t, func() bool {
		st, err = New(dsn)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)
	t.Cleanup(st.Close)
	return st
}

func TestPGCalib_RepoFlow(t *testing.T) {
	st := startStorage(t)
	ctx := context.Background()

	for _, a := range []models.Account{
		{ID: 1, Username: "acme", Role: models.RoleCustomer},
		{ID: 2, Username: "tech", Role: models.RoleTechnician},
		{ID: 3, Username: "lab", Role: models.RoleQualityManager},
	} {
		_, err := st.UpsertAccount(ctx, a)
		require.NoError(t, err)
	}

	e, err := st.CreateEquipment(ctx, models.Equipment{
		Name: "Caliper", SerialNumber: "E-1", OwnerID: 1,
		Category: models.CategoryCustomerAsset, IntervalDays: 365, Status: models.EquipmentActive,
		Attributes: map[string]any{"range": "0-150mm"},
	})
	require.NoError(t, err)
	require.Equal(t, "0-150mm", e.Attributes["range"])
	require.Nil(t, e.NextDueDate)

	_, err = st.CreateEquipment(ctx, models.Equipment{
		Name: "Dup", SerialNumber: "E-1", OwnerID: 1,
		Category: models.CategoryCustomerAsset, IntervalDays: 365, Status: models.EquipmentActive,
	})
	require.True(t, calerr.Is(err, calerr.KindValidation))

	_, err = st.CreateEquipment(ctx, models.Equipment{
		Name: "Orphan", SerialNumber: "E-2", OwnerID: 99,
		Category: models.CategoryCustomerAsset, IntervalDays: 365, Status: models.EquipmentActive,
	})
	require.True(t, calerr.Is(err, calerr.KindValidation))

	ref, err := st.CreateEquipment(ctx, models.Equipment{
		Name: "Gauge block set", SerialNumber: "S-1", OwnerID: 3,
		Category: models.CategoryReferenceStandard, IntervalDays: 730, Status: models.EquipmentActive,
	})
	require.NoError(t, err)

	r, err := st.CreateRequest(ctx, models.CalibrationRequest{
		TrackingCode: "trk-1", EquipmentID: e.ID, RequestedBy: 1, Status: models.RequestPending,
	})
	require.NoError(t, err)

	_, err = st.CreateJobOrder(ctx, models.JobOrder{RequestID: r.ID, Status: models.JobAssigned})
	require.True(t, calerr.Is(err, calerr.KindInvalidTransition))

	r, err = st.UpdateRequestStatus(ctx, r.ID, models.RequestPending, models.RequestApproved)
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, r.Status)

	_, err = st.UpdateRequestStatus(ctx, r.ID, models.RequestPending, models.RequestRejected)
	require.True(t, calerr.Is(err, calerr.KindInvalidTransition))

	j, err := st.CreateJobOrder(ctx, models.JobOrder{RequestID: r.ID, Status: models.JobAssigned})
	require.NoError(t, err)
	require.Nil(t, j.TechnicianID)

	_, err = st.CreateJobOrder(ctx, models.JobOrder{RequestID: r.ID, Status: models.JobAssigned})
	require.True(t, calerr.Is(err, calerr.KindConflict))

	// status freezes once a job order exists
	_, err = st.UpdateRequestStatus(ctx, r.ID, models.RequestApproved, models.RequestCanceled)
	require.True(t, calerr.Is(err, calerr.KindInvalidTransition))

	j, err = st.UpdateJobTechnician(ctx, j.ID, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, *j.TechnicianID)

	queue, err := st.ListJobs(ctx, models.JobFilter{TechnicianID: j.TechnicianID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	_, err = st.UpdateJobStatus(ctx, j.ID, models.JobAssigned, models.JobInProgress)
	require.NoError(t, err)
	_, err = st.UpdateJobStatus(ctx, j.ID, models.JobInProgress, models.JobPendingReview)
	require.NoError(t, err)

	calDate := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	_, err = st.RecordResult(ctx, models.ResultWrite{Result: models.CalibrationResult{
		JobOrderID: j.ID, ReferenceStandardID: e.ID, CalibrationDate: calDate, Pass: true,
	}})
	require.True(t, calerr.Is(err, calerr.KindTraceability))

	res, err := st.RecordResult(ctx, models.ResultWrite{
		Result: models.CalibrationResult{
			JobOrderID: j.ID, ReferenceStandardID: ref.ID, CalibrationDate: calDate, Pass: true,
			Environment: models.Environment{Temperature: 20.1, Humidity: 45},
		},
		Calibration: &models.CalibrationUpdate{
			EquipmentID:         e.ID,
			LastCalibrationDate: calDate,
			NextDueDate:         models.NextDueDate(calDate, 365),
			Status:              models.EquipmentActive,
		},
	})
	require.NoError(t, err)

	_, err = st.RecordResult(ctx, models.ResultWrite{Result: models.CalibrationResult{
		JobOrderID: j.ID, ReferenceStandardID: ref.ID, CalibrationDate: calDate,
	}})
	require.True(t, calerr.Is(err, calerr.KindConflict))

	j, err = st.GetJobOrder(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, j.Status)

	e, err = st.GetEquipment(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, "2024-01-10", e.LastCalibrationDate.Format(time.DateOnly))
	require.Equal(t, "2025-01-10", e.NextDueDate.Format(time.DateOnly))

	due, err := st.ListDueEquipment(ctx, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 10, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	m, err := st.AddMeasurement(ctx, models.NewMeasurement(res.ID, models.MeasurementInput{Nominal: 10.0, Measured: 10.1}))
	require.NoError(t, err)
	require.Equal(t, models.MeasurementError(10.0, 10.1), m.Error)

	m.Measured = 9.95
	m, err = st.UpdateMeasurement(ctx, *m)
	require.NoError(t, err)
	require.Equal(t, models.MeasurementError(10.0, 9.95), m.Error)

	_, err = st.AddMeasurement(ctx, models.NewMeasurement(res.ID, models.MeasurementInput{}))
	require.NoError(t, err)
	points, err := st.ListMeasurements(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, m.ID, points[0].ID)
	require.Zero(t, points[1].Error)

	_, err = st.UpdateEquipmentCategory(ctx, ref.ID, models.CategoryCustomerAsset)
	require.True(t, calerr.Is(err, calerr.KindTraceability))

	require.True(t, calerr.Is(st.DeleteEquipment(ctx, ref.ID), calerr.KindConflict))
	require.True(t, calerr.Is(st.DeleteAccount(ctx, 3), calerr.KindConflict))

	// technician removal keeps the job but clears the assignee
	require.NoError(t, st.DeleteAccount(ctx, 2))
	j, err = st.GetJobOrder(ctx, j.ID)
	require.NoError(t, err)
	require.Nil(t, j.TechnicianID)
	require.Equal(t, models.JobCompleted, j.Status)

	// owner removal cascades down to measurements
	require.NoError(t, st.DeleteAccount(ctx, 1))
	_, err = st.GetEquipment(ctx, e.ID)
	require.True(t, calerr.Is(err, calerr.KindNotFound))
	_, err = st.GetMeasurement(ctx, m.ID)
	require.True(t, calerr.Is(err, calerr.KindNotFound))
}

func TestPGCalib_ClaimDueEquipment(t *testing.T) {
	st := startStorage(t)
	ctx := context.Background()

	_, err := st.UpsertAccount(ctx, models.Account{ID: 1, Username: "acme", Role: models.RoleCustomer})
	require.NoError(t, err)

	now := time.Now().UTC()
	var ids []int64
	for i, due := range []time.Time{now.AddDate(0, 0, 3), now.AddDate(0, 2, 0)} {
		e, err := st.CreateEquipment(ctx, models.Equipment{
			Name: "Meter", SerialNumber: []string{"M-1", "M-2"}[i], OwnerID: 1,
			Category: models.CategoryCustomerAsset, IntervalDays: 365, Status: models.EquipmentActive,
		})
		require.NoError(t, err)
		_, err = st.db.Exec(ctx, `UPDATE equipment SET last_calibration_date = $2, next_due_date = $3 WHERE id = $1`,
			e.ID, due.AddDate(-1, 0, 0), due)
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	lease := time.Minute
	picked, err := st.ClaimDueEquipment(ctx, now, 14*24*time.Hour, 10, lease)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	require.Equal(t, ids[0], picked[0].ID)
	require.WithinDuration(t, now.Add(lease), *picked[0].NextNoticeAt, time.Second)

	again, err := st.ClaimDueEquipment(ctx, now, 14*24*time.Hour, 10, lease)
	require.NoError(t, err)
	require.Empty(t, again)

	require.NoError(t, st.ScheduleDueNotice(ctx, models.DueNoticeUpdate{EquipmentID: ids[0], NextNoticeAt: now.Add(-time.Second)}))
	again, err = st.ClaimDueEquipment(ctx, now, 14*24*time.Hour, 10, lease)
	require.NoError(t, err)
	require.Len(t, again, 1)
}
