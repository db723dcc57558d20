package tools

import (
	"context"
	"sync"

	"github.com/raphaelgruber/diveroast/internal/analysis"
	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/raphaelgruber/diveroast/internal/session"
)

func profile(depths ...float64) []models.Sample {
	samples := make([]models.Sample, len(depths))
	for i, d := range depths {
		samples[i] = models.Sample{Elapsed: float64(i * 60), Depth: d}
	}
	return samples
}

// seedSession stores two analysed dives and one excluded dive.
func seedSession(store session.Store) string {
	th := analysis.DefaultThresholds()
	dives := []models.Dive{
		{ID: "1", Site: "Blue Hole", Rating: 4, Samples: profile(0, 10, 18, 18, 5, 0)},
		{ID: "2", Site: "Quarry", Rating: 2, Samples: profile(0, 30, 30, 2, 0)},
		{ID: "3", Site: "Pool", Samples: profile(0)},
	}
	features, excluded := analysis.Analyze(dives, th)
	return store.Create(dives, session.Analysis{
		Features: features,
		Ranking:  analysis.Rank(features, th.TopN, th),
		Excluded: excluded,
	})
}

type fakeRetriever struct {
	mu       sync.Mutex
	err      error
	passages []models.RetrievedPassage
	queries  []string
	cats     []string
	ks       []int
}

func (f *fakeRetriever) RetrieveCategory(ctx context.Context, query, category string, k int) ([]models.RetrievedPassage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.cats = append(f.cats, category)
	f.ks = append(f.ks, k)
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

type fakeUploader struct {
	store session.Store
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, filename string, raw []byte) (*models.UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := seedSession(f.store)
	return &models.UploadResult{SessionID: id, DiveCount: 2, DiveNumbers: []string{"1", "2"}, Message: "ok"}, nil
}

type fakeRefresher struct {
	running bool
	err     error
}

func (f *fakeRefresher) StartRefresh(ctx context.Context) (string, bool, error) {
	return "job1", f.running, f.err
}
