package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/notify"
	"github.com/John-Robertt/petwatch/internal/paginate"
)

type recordObserver struct {
	startCalls int
	pages      []int
	phases     []string
	notifies   int
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) { o.startCalls++ }

func (o *recordObserver) OnPage(st paginate.PageStat) { o.pages = append(o.pages, st.Page) }

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnNotify(res notify.Result) { o.notifies++ }

func TestExecute_EmitsEvents(t *testing.T) {
	store := &memStore{snap: domain.Snapshot{Records: []domain.Record{{Identity: "old", Title: "舊書"}}}}
	d := deps(store, &stubNotifier{res: notify.Result{Sent: 1}}, pagesOf(
		[]domain.RawRecord{book("1", "狗狗美容"), book("2", "貓咪行為")},
		[]domain.RawRecord{book("3", "倉鼠飼養")},
	))
	var userPages int
	d.Paginator.OnPage = func(paginate.PageStat) { userPages++ }

	obs := &recordObserver{}
	rr, err := Execute(context.Background(), eff(), d, obs)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.startCalls)
	assert.Equal(t, []int{1, 2, 3}, obs.pages)
	assert.Equal(t, 3, userPages)
	assert.Equal(t, []string{"load", "collect", "classify", "diff", "save"}, obs.phases)
	assert.Equal(t, 1, obs.notifies)

	require.Len(t, rr.Pages, 3)
	assert.Equal(t, "https://www.eslite.com/category/3/123?page=2", rr.Pages[1].URL)
	assert.Equal(t, 0, rr.Pages[2].Added)
}

func TestExecute_ObserverStopsAtFatal(t *testing.T) {
	obs := &recordObserver{}
	_, err := Execute(context.Background(), eff(), deps(&memStore{}, nil, pagesOf()), obs)
	require.Error(t, err)
	assert.Equal(t, []string{"load", "collect"}, obs.phases)
}
