package run

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/notify"
	"github.com/John-Robertt/petwatch/internal/paginate"
	"github.com/John-Robertt/petwatch/internal/snapshot"
	"github.com/John-Robertt/petwatch/internal/taxonomy"
)

type memStore struct {
	snap    domain.Snapshot
	loadErr error
	saveErr error

	saves int
}

func (s *memStore) Load(ctx context.Context) (domain.Snapshot, error) {
	if s.loadErr != nil {
		return domain.Snapshot{}, s.loadErr
	}
	return s.snap, nil
}

func (s *memStore) Save(ctx context.Context, records []domain.Record, at time.Time) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.snap = domain.Snapshot{Records: append([]domain.Record(nil), records...), LastCheckedAt: &at}
	return nil
}

func (s *memStore) Close() error { return nil }

type stubNotifier struct {
	mu    sync.Mutex
	calls [][]domain.Record
	res   notify.Result
}

func (n *stubNotifier) Notify(ctx context.Context, records []domain.Record) notify.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, records)
	return n.res
}

func book(id, title string) domain.RawRecord {
	return domain.RawRecord{Title: title, URL: "/product/" + id}
}

// pagesOf 返回一个按页号取数的 PageFunc；超出范围返回空页。
func pagesOf(pages ...[]domain.RawRecord) func(ctx context.Context, page int) ([]domain.RawRecord, error) {
	return func(ctx context.Context, page int) ([]domain.RawRecord, error) {
		if page > len(pages) {
			return nil, nil
		}
		return pages[page-1], nil
	}
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func deps(store snapshot.Store, n notify.Notifier, fetch func(ctx context.Context, page int) ([]domain.RawRecord, error)) Deps {
	return Deps{
		FetchPage:  fetch,
		PageURL:    func(p int) string { return "https://www.eslite.com/category/3/123?page=" + strconv.Itoa(p) },
		Paginator:  paginate.Paginator{MaxPages: 10},
		Classifier: taxonomy.New(taxonomy.Default()),
		Store:      store,
		Notifier:   n,
		Now:        func() time.Time { return fixedNow },
	}
}

func eff() config.EffectiveConfig {
	return config.EffectiveConfig{CategoryURL: "https://www.eslite.com/category/3/123"}
}

func TestExecute_FirstRunThenNewBook(t *testing.T) {
	store := &memStore{}
	n := &stubNotifier{res: notify.Result{Sent: 1}}
	a := book("1", "黃金獵犬完全飼養指南")
	b := book("2", "貓咪健康百科")

	// 第一次：建立基线，不通知。
	rr, err := Execute(context.Background(), eff(), deps(store, n, pagesOf([]domain.RawRecord{a})), nil)
	require.NoError(t, err)
	assert.True(t, rr.FirstRun)
	assert.Empty(t, rr.NewRecords)
	assert.False(t, rr.Notify.Attempted)
	assert.Empty(t, n.calls)
	assert.True(t, rr.Saved)
	require.Len(t, store.snap.Records, 1)
	assert.Equal(t, []string{"狗"}, store.snap.Records[0].AnimalTypes)
	assert.Equal(t, domain.StopDuplicatePage, rr.Stop)

	// 第二次：A,B => 只有 B 是新书。
	rr, err = Execute(context.Background(), eff(), deps(store, n, pagesOf([]domain.RawRecord{a, b})), nil)
	require.NoError(t, err)
	assert.False(t, rr.FirstRun)
	require.Len(t, rr.NewRecords, 1)
	assert.Equal(t, "https://www.eslite.com/product/2", rr.NewRecords[0].Identity)
	assert.Equal(t, []string{"貓"}, rr.NewRecords[0].AnimalTypes)
	require.Len(t, n.calls, 1)
	assert.Equal(t, rr.NewRecords, n.calls[0])
	assert.Equal(t, domain.NotifyResult{Attempted: true, Sent: 1}, rr.Notify)

	assert.Equal(t, 2, store.saves)
	assert.Equal(t, []string{"https://www.eslite.com/product/1", "https://www.eslite.com/product/2"}, store.snap.Identities())
	require.NotNil(t, rr.PreviousCheckedAt)
	assert.Equal(t, domain.ReportSummary{Pages: 2, Collected: 2, Previous: 1, New: 1}, rr.Summary)
}

func TestExecute_NoNewBooks_SavesWithoutNotify(t *testing.T) {
	a := book("1", "狗狗行為學")
	store := &memStore{snap: domain.Snapshot{Records: []domain.Record{{Identity: "https://www.eslite.com/product/1", Title: "狗狗行為學"}}}}
	n := &stubNotifier{}

	rr, err := Execute(context.Background(), eff(), deps(store, n, pagesOf([]domain.RawRecord{a})), nil)
	require.NoError(t, err)
	assert.Empty(t, rr.NewRecords)
	assert.Empty(t, n.calls)
	assert.Equal(t, 1, store.saves)
	require.NotNil(t, store.snap.LastCheckedAt)
	assert.True(t, fixedNow.Equal(*store.snap.LastCheckedAt))
}

func TestExecute_CorruptSnapshot_AbortsBeforeFetch(t *testing.T) {
	store := &memStore{loadErr: &snapshot.Error{Code: snapshot.CodeCorrupt, Op: "load", Err: errors.New("bad json")}}
	fetched := false
	fetch := func(ctx context.Context, page int) ([]domain.RawRecord, error) {
		fetched = true
		return nil, nil
	}

	rr, err := Execute(context.Background(), eff(), deps(store, &stubNotifier{}, fetch), nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeSnapshotCorrupt, Code(err))
	assert.Equal(t, domain.ErrCodeSnapshotCorrupt, rr.ErrorCode)
	assert.False(t, fetched)
	assert.False(t, rr.Saved)
	assert.Equal(t, 0, store.saves)
}

func TestExecute_NotifyFailureStillSaves(t *testing.T) {
	store := &memStore{snap: domain.Snapshot{Records: []domain.Record{{Identity: "old", Title: "舊書"}}}}
	n := &stubNotifier{res: notify.Result{Failed: 2, Errors: []error{errors.New("a@test：535 auth failed"), errors.New("b@test：timeout")}}}

	rr, err := Execute(context.Background(), eff(), deps(store, n, pagesOf([]domain.RawRecord{book("9", "鸚鵡的心事")})), nil)
	require.NoError(t, err)
	assert.True(t, rr.Notify.Attempted)
	assert.Equal(t, 2, rr.Notify.Failed)
	assert.Equal(t, []string{"a@test：535 auth failed", "b@test：timeout"}, rr.Notify.Errors)
	assert.True(t, rr.Saved)
	assert.Equal(t, 1, store.saves)
}

func TestExecute_FirstPageFailed(t *testing.T) {
	store := &memStore{}
	fetch := func(ctx context.Context, page int) ([]domain.RawRecord, error) {
		return nil, errors.New("navigation timeout")
	}

	rr, err := Execute(context.Background(), eff(), deps(store, nil, fetch), nil)
	assert.Equal(t, domain.ErrCodeFetchFailed, Code(err))
	assert.Equal(t, domain.StopFetchError, rr.Stop)
	require.Len(t, rr.Pages, 1)
	assert.Equal(t, "navigation timeout", rr.Pages[0].Error)
	assert.Equal(t, 0, store.saves)
}

func TestExecute_LaterPageFailed_KeepsPartial(t *testing.T) {
	store := &memStore{}
	fetch := func(ctx context.Context, page int) ([]domain.RawRecord, error) {
		if page == 2 {
			return nil, errors.New("timeout")
		}
		return []domain.RawRecord{book("1", "兔兔日常")}, nil
	}

	rr, err := Execute(context.Background(), eff(), deps(store, nil, fetch), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StopFetchError, rr.Stop)
	assert.Equal(t, 1, rr.Summary.Pages)
	assert.Len(t, rr.Pages, 2)
	assert.Equal(t, 1, store.saves)
}

func TestExecute_EmptyCatalog_DoesNotSave(t *testing.T) {
	store := &memStore{snap: domain.Snapshot{Records: []domain.Record{{Identity: "old", Title: "舊書"}}}}

	rr, err := Execute(context.Background(), eff(), deps(store, nil, pagesOf()), nil)
	assert.Equal(t, domain.ErrCodeEmptyCatalog, Code(err))
	assert.False(t, rr.Saved)
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 1, rr.Summary.Previous)
}

func TestExecute_SaveFailed(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}

	rr, err := Execute(context.Background(), eff(), deps(store, nil, pagesOf([]domain.RawRecord{book("1", "貓的報恩")})), nil)
	assert.Equal(t, domain.ErrCodeSaveFailed, Code(err))
	assert.Equal(t, "disk full", errors.Unwrap(err).Error())
	assert.False(t, rr.Saved)
}

func TestExecute_Cancelled_DoesNotSave(t *testing.T) {
	store := &memStore{}
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(c context.Context, page int) ([]domain.RawRecord, error) {
		if page == 2 {
			cancel()
			return nil, c.Err()
		}
		return []domain.RawRecord{book("1", "烏龜飼養")}, nil
	}

	_, err := Execute(ctx, eff(), deps(store, nil, fetch), nil)
	assert.Equal(t, domain.ErrCodeCancelled, Code(err))
	assert.Equal(t, 0, store.saves)
}

func TestExecute_NilNotifier(t *testing.T) {
	store := &memStore{snap: domain.Snapshot{Records: []domain.Record{{Identity: "old", Title: "舊書"}}}}

	rr, err := Execute(context.Background(), eff(), deps(store, nil, pagesOf([]domain.RawRecord{book("1", "貓")})), nil)
	require.NoError(t, err)
	assert.Len(t, rr.NewRecords, 1)
	assert.False(t, rr.Notify.Attempted)
}
