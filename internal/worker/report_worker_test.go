package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/amqp"
	"tani/internal/core"
	"tani/internal/memory"
	"tani/internal/report"
	"tani/internal/services"
	sheetsmem "tani/internal/sheets/memory"
	"tani/internal/storage"
)

type pdfStub struct{ err error }

func (p pdfStub) PDF(context.Context, []byte) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []byte("%PDF-1.4 stub"), nil
}

type fixture struct {
	repo   *storage.SQLiteRepository
	store  *memory.Store
	svc    *services.Service
	sheets *sheetsmem.Store
	tokens []string
	render error
	season core.Season
	worker *ReportWorker
	userID string
	outDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "tani.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	f := &fixture{
		repo:   repo,
		store:  memory.New(),
		sheets: sheetsmem.New(),
		userID: "u-1",
		outDir: filepath.Join(dir, "reports"),
	}
	f.svc = services.New(services.Config{Backend: f.store.Backend(), CacheTTL: time.Minute})

	f.season, err = f.svc.CreateSeason(ctx, f.userID, core.Season{
		Name: "MT I", StartDate: core.NewDate(2025, 1, 1), EndDate: core.NewDate(2025, 4, 30),
	})
	require.NoError(t, err)
	_, err = f.svc.CreateReceipt(ctx, f.userID, core.Receipt{
		SeasonID: f.season.ID, Date: core.NewDate(2025, 4, 1), Description: "Gabah", Quantity: 100, UnitPrice: 6000,
	})
	require.NoError(t, err)

	f.worker = NewReportWorker(repo, func(token string) Generator {
		f.tokens = append(f.tokens, token)
		exporter := report.NewExporter(f.outDir, pdfStub{err: f.render}, nil, nil)
		return report.NewGenerator(f.svc, exporter, "Laporan", core.Farm{Name: "Tani Makmur"})
	}, f.sheets, nil)
	return f
}

func (f *fixture) enqueue(t *testing.T) *amqp.ReportJobMessage {
	t.Helper()
	job, err := f.repo.CreateReportJob(context.Background(), core.ReportJob{ID: uuid.NewString(), UserID: f.userID, SeasonID: f.season.ID})
	require.NoError(t, err)
	return amqp.NewReportJobMessage(job, "access-token")
}

func TestHandleMarksJobDone(t *testing.T) {
	f := newFixture(t)
	msg := f.enqueue(t)

	require.NoError(t, f.worker.Handle(context.Background(), msg))

	job, err := f.repo.GetReportJob(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobDone, job.Status)
	assert.FileExists(t, job.FilePath)
	assert.Equal(t, f.outDir, filepath.Dir(job.FilePath))
	assert.Equal(t, []string{"access-token"}, f.tokens)

	rows, ok := f.sheets.Sheet("MT I 2025")
	require.True(t, ok)
	assert.Equal(t, "Laporan", rows[0][0])
}

func TestHandleRecordsRenderFailure(t *testing.T) {
	f := newFixture(t)
	f.render = errors.New("chrome crashed")
	msg := f.enqueue(t)

	require.NoError(t, f.worker.Handle(context.Background(), msg))

	job, err := f.repo.GetReportJob(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, job.Status)
	assert.Contains(t, job.Error, "chrome crashed")
	assert.Zero(t, f.sheets.Writes())
}

func TestHandleSkipsFinishedAndMissingJobs(t *testing.T) {
	f := newFixture(t)
	msg := f.enqueue(t)
	require.NoError(t, f.repo.UpdateReportJob(context.Background(), msg.JobID, core.JobDone, "/tmp/x.pdf", ""))

	require.NoError(t, f.worker.Handle(context.Background(), msg))
	assert.Empty(t, f.tokens)

	missing := *msg
	missing.JobID = "gone"
	require.NoError(t, f.worker.Handle(context.Background(), &missing))
	assert.Empty(t, f.tokens)
}

func TestHandleRejectsMismatchedMessage(t *testing.T) {
	f := newFixture(t)
	msg := f.enqueue(t)
	msg.UserID = "someone-else"

	require.NoError(t, f.worker.Handle(context.Background(), msg))

	job, err := f.repo.GetReportJob(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, job.Status)
	assert.Empty(t, f.tokens)
}
