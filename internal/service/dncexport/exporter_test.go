package dncexport

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/juicedmedia/lead-compliance-backend/internal/batch"
	domaincompliance "github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/job"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/values"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/compliance"
)

// fakeJobStore keeps jobs in a map. The real in-memory store lives in the
// repository package, which imports this one for the export record type, so
// tests carry their own.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]job.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]job.Job)}
}

func (s *fakeJobStore) Create(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = snapshotJob(j)
	return nil
}

func (s *fakeJobStore) Update(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return errors.New("job not found")
	}
	s.jobs[j.ID] = snapshotJob(j)
	return nil
}

func (s *fakeJobStore) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	copied := stored
	copied.Errors = append([]string(nil), stored.Errors...)
	return &copied, nil
}

// snapshotJob copies the job so the export goroutine's later mutations don't
// race readers
func snapshotJob(j *job.Job) job.Job {
	copied := *j
	copied.Errors = append([]string(nil), j.Errors...)
	return copied
}

type fakeLeadSource struct {
	mu       sync.Mutex
	byList   map[string][]*lead.Lead
	listErr  map[string]error
	monthErr error
}

func (s *fakeLeadSource) allSorted(listIDs []string) []*lead.Lead {
	var out []*lead.Lead
	for _, listID := range sortedKeys(s.byList) {
		if len(listIDs) > 0 && !contains(listIDs, listID) {
			continue
		}
		out = append(out, s.byList[listID]...)
	}
	sortByID(out)
	return out
}

func (s *fakeLeadSource) FetchMonthBatch(ctx context.Context, year, month int, listIDs []string, afterID string, limit int) ([]*lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monthErr != nil {
		return nil, s.monthErr
	}
	return page(s.allSorted(listIDs), afterID, limit), nil
}

func (s *fakeLeadSource) FetchListMonthBatch(ctx context.Context, listID string, year, month int, afterID string, limit int) ([]*lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listErr[listID]; err != nil {
		return nil, err
	}
	rows := append([]*lead.Lead(nil), s.byList[listID]...)
	sortByID(rows)
	return page(rows, afterID, limit), nil
}

func page(rows []*lead.Lead, afterID string, limit int) []*lead.Lead {
	var out []*lead.Lead
	for _, l := range rows {
		if l.ID.String() > afterID {
			out = append(out, l)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

func sortByID(rows []*lead.Lead) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
}

func sortedKeys(m map[string][]*lead.Lead) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

type fakeExportStore struct {
	mu      sync.Mutex
	records []*Record
	err     error
}

func (s *fakeExportStore) Upsert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

// dncStub fails the phones in its block set and passes everything else
type dncStub struct {
	name  string
	block map[string]bool
}

func (c *dncStub) Name() string { return c.name }

func (c *dncStub) Check(ctx context.Context, phone string, opts compliance.Options) domaincompliance.CheckResult {
	if c.block[phone] {
		return domaincompliance.CheckResult{
			Source:    c.name,
			Compliant: domaincompliance.VerdictFail,
			Reasons:   []string{"Number on internal do-not-call list"},
		}
	}
	return domaincompliance.CheckResult{Source: c.name, Compliant: domaincompliance.VerdictPass, Reasons: []string{}}
}

func exportLead(t *testing.T, listID, phone string) *lead.Lead {
	t.Helper()
	l, err := lead.NewLead(values.MustNewPhoneNumber(phone), "Ann", "Lee", "ann@example.com", listID)
	require.NoError(t, err)
	return l
}

func newTestExporter(t *testing.T, leads *fakeLeadSource, store *fakeExportStore, checkers []compliance.Checker, jobs job.Store) *Exporter {
	t.Helper()
	return NewExporter(leads, store, checkers, jobs, 10, batch.Nop{}, 2, 100, nil, zaptest.NewLogger(t))
}

func waitForTerminal(t *testing.T, jobs job.Store, id uuid.UUID) *job.Job {
	t.Helper()
	var final *job.Job
	require.Eventually(t, func() bool {
		j, err := jobs.Get(context.Background(), id)
		if err != nil {
			return false
		}
		final = j
		return j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return final
}

func TestExporter_ScrubsMonthByList(t *testing.T) {
	leads := &fakeLeadSource{byList: map[string][]*lead.Lead{
		"list-a": {
			exportLead(t, "list-a", "5125550001"),
			exportLead(t, "list-a", "5125550002"),
			exportLead(t, "list-a", "5125550003"),
		},
		"list-b": {
			exportLead(t, "list-b", "5125550004"),
		},
	}}
	checkers := []compliance.Checker{
		&dncStub{name: "Internal DNC List", block: map[string]bool{"5125550002": true}},
		&dncStub{name: "Synergy DNC", block: map[string]bool{"5125550004": true}},
	}
	store := &fakeExportStore{}
	jobs := newFakeJobStore()
	exporter := newTestExporter(t, leads, store, checkers, jobs)

	j, err := exporter.StartExport(context.Background(), 2025, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, job.KindDNCExport, j.Kind)

	final := waitForTerminal(t, jobs, j.ID)
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 2, final.ListsProcessed)
	assert.Equal(t, 4, final.LeadsFound)
	assert.Equal(t, 2, final.DNCMatches)

	require.Len(t, store.records, 2)
	byList := map[string]*Record{}
	for _, rec := range store.records {
		byList[rec.ListID] = rec
	}
	a := byList["list-a"]
	require.NotNil(t, a)
	assert.Equal(t, 3, a.TotalLeads)
	assert.Equal(t, 1, a.DNCMatches)
	assert.Equal(t, "33.33%", a.DNCRate)
	assert.Equal(t, 2025, a.Year)
	assert.Equal(t, 5, a.Month)

	b := byList["list-b"]
	require.NotNil(t, b)
	assert.Equal(t, "100.00%", b.DNCRate)
}

func TestExporter_CSVMarksDNCRows(t *testing.T) {
	dirty := exportLead(t, "list-a", "5125550002")
	leads := &fakeLeadSource{byList: map[string][]*lead.Lead{
		"list-a": {exportLead(t, "list-a", "5125550001"), dirty},
	}}
	checkers := []compliance.Checker{
		&dncStub{name: "Internal DNC List", block: map[string]bool{"5125550002": true}},
	}
	store := &fakeExportStore{}
	jobs := newFakeJobStore()
	exporter := newTestExporter(t, leads, store, checkers, jobs)

	j, err := exporter.StartExport(context.Background(), 2025, 5, []string{"list-a"})
	require.NoError(t, err)
	waitForTerminal(t, jobs, j.ID)

	require.Len(t, store.records, 1)
	csvData := store.records[0].CSVData
	lines := strings.Split(strings.TrimSpace(csvData), "\n")
	require.Len(t, lines, 3, "header plus one row per lead")
	assert.Contains(t, lines[0], "DNC Status")

	var dirtyLine string
	for _, line := range lines[1:] {
		if strings.Contains(line, dirty.ID.String()) {
			dirtyLine = line
		}
	}
	require.NotEmpty(t, dirtyLine)
	assert.Contains(t, dirtyLine, "DNC")
	assert.Contains(t, dirtyLine, "Number on internal do-not-call list")
}

func TestExporter_EmptyMonthCompletes(t *testing.T) {
	leads := &fakeLeadSource{byList: map[string][]*lead.Lead{}}
	store := &fakeExportStore{}
	jobs := newFakeJobStore()
	exporter := newTestExporter(t, leads, store, nil, jobs)

	j, err := exporter.StartExport(context.Background(), 2025, 2, nil)
	require.NoError(t, err)
	final := waitForTerminal(t, jobs, j.ID)

	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Zero(t, final.LeadsFound)
	assert.Empty(t, store.records)
}

func TestExporter_BrokenListSkippedNotFatal(t *testing.T) {
	leads := &fakeLeadSource{
		byList: map[string][]*lead.Lead{
			"list-a": {exportLead(t, "list-a", "5125550001")},
			"list-b": {exportLead(t, "list-b", "5125550002")},
		},
		listErr: map[string]error{"list-b": errors.New("query timeout")},
	}
	store := &fakeExportStore{}
	jobs := newFakeJobStore()
	exporter := newTestExporter(t, leads, store, nil, jobs)

	j, err := exporter.StartExport(context.Background(), 2025, 5, nil)
	require.NoError(t, err)
	final := waitForTerminal(t, jobs, j.ID)

	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, 1, final.ListsProcessed)
	require.Len(t, final.Errors, 1)
	assert.Contains(t, final.Errors[0], "list-b")
	require.Len(t, store.records, 1)
	assert.Equal(t, "list-a", store.records[0].ListID)
}

func TestExporter_MonthEnumerationErrorFailsJob(t *testing.T) {
	leads := &fakeLeadSource{monthErr: errors.New("connection refused")}
	jobs := newFakeJobStore()
	exporter := newTestExporter(t, leads, &fakeExportStore{}, nil, jobs)

	j, err := exporter.StartExport(context.Background(), 2025, 5, nil)
	require.NoError(t, err)
	final := waitForTerminal(t, jobs, j.ID)

	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "connection refused")
}

func TestExporter_InvalidMonthRejected(t *testing.T) {
	exporter := newTestExporter(t, &fakeLeadSource{}, &fakeExportStore{}, nil, newFakeJobStore())

	_, err := exporter.StartExport(context.Background(), 2025, 13, nil)
	assert.Error(t, err)
	_, err = exporter.StartExport(context.Background(), 0, 5, nil)
	assert.Error(t, err)
}
