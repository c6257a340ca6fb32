package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prestafacil/loandocs-api/internal/models"
	"github.com/prestafacil/loandocs-api/pkg/jobs"
)

type expiryStoreStub struct {
	expired    []models.Document
	lastCutoff time.Time
	calls      int
}

func (e *expiryStoreStub) ExpireApproved(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	e.calls++
	e.lastCutoff = cutoff
	return e.expired, nil
}

func TestExpiryServiceSweep(t *testing.T) {
	expired := activeDocument("doc-1", 1)
	expired.Status = models.DocumentStatusExpired
	store := &expiryStoreStub{expired: []models.Document{expired}}
	audit := &auditSinkStub{}
	svc := NewExpiryService(store, audit, 90*24*time.Hour, nil)

	count, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Contains(t, audit.actions(), models.AuditActionDocumentExpire)
	require.WithinDuration(t, time.Now().UTC().Add(-90*24*time.Hour), store.lastCutoff, time.Minute)
}

func TestExpiryServiceDisabledWithoutValidity(t *testing.T) {
	store := &expiryStoreStub{}
	svc := NewExpiryService(store, nil, 0, nil)

	count, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, store.calls)
}

func TestExpiryServiceHandleJob(t *testing.T) {
	store := &expiryStoreStub{}
	svc := NewExpiryService(store, nil, time.Hour, nil)

	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{Type: "document.expiry"}))
	require.Equal(t, 1, store.calls)
}
