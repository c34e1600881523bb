package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mend/internal/embedding"
	"mend/internal/learning"
	"mend/internal/retrieval"
)

func newTestStore(t *testing.T) *StateStore {
	t.Helper()
	s, err := NewStateStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBanditRoundTrip(t *testing.T) {
	s := newTestStore(t)

	b := learning.NewBandit("planner_v1", "planner_v2")
	b.Update("planner_v1", true, 0.3)
	b.Update("planner_v2", false, 1.7)
	require.NoError(t, s.SaveBandit("planner", b))

	restored := learning.NewBandit()
	require.NoError(t, s.LoadBandit("planner", restored))

	want := b.Statistics()
	got := restored.Statistics()
	require.Len(t, got, len(want))
	for arm, ws := range want {
		assert.Equal(t, ws.Alpha, got[arm].Alpha, "alpha for %s", arm)
		assert.Equal(t, ws.Beta, got[arm].Beta, "beta for %s", arm)
	}
}

func TestBanditCheckpointOverwrites(t *testing.T) {
	s := newTestStore(t)

	b := learning.NewBandit("arm")
	require.NoError(t, s.SaveBandit("planner", b))
	b.Update("arm", true, 5)
	require.NoError(t, s.SaveBandit("planner", b))

	restored := learning.NewBandit()
	require.NoError(t, s.LoadBandit("planner", restored))
	assert.Equal(t, 6.0, restored.Statistics()["arm"].Alpha)
}

func TestBanditNamespacesIsolated(t *testing.T) {
	s := newTestStore(t)

	planner := learning.NewBandit("a")
	planner.Update("a", true, 2)
	strategy := learning.NewBandit("a")
	strategy.Update("a", false, 3)

	require.NoError(t, s.SaveBandit("planner", planner))
	require.NoError(t, s.SaveBandit("strategy", strategy))

	restored := learning.NewBandit()
	require.NoError(t, s.LoadBandit("strategy", restored))
	assert.Equal(t, 4.0, restored.Statistics()["a"].Beta)
	assert.Equal(t, 1.0, restored.Statistics()["a"].Alpha)
}

func TestIndexRoundTrip(t *testing.T) {
	s := newTestStore(t)
	engine := embedding.NewHashEngine(128)

	fi := retrieval.NewFailureIndex(engine)
	fi.Insert("repo1", "ImportError missing module alpha", nil, "add import", true)
	fi.Insert("repo2", "AssertionError expected beta", nil, "fix compare", false)
	require.NoError(t, s.SaveIndex(fi))

	restored := retrieval.NewFailureIndex(engine)
	require.NoError(t, s.LoadIndex(restored))
	require.Equal(t, 2, restored.Size())

	// Embeddings round-trip bit-exactly.
	want := fi.Snapshot()
	got := restored.Snapshot()
	for i := range want {
		assert.Equal(t, want[i].Repo, got[i].Repo)
		assert.Equal(t, want[i].Text, got[i].Text)
		assert.Equal(t, want[i].Vec, got[i].Vec)
		assert.Equal(t, want[i].Passed, got[i].Passed)
	}

	// The restored index answers queries like the original.
	hits := restored.Query("repo1", "ImportError missing module alpha", 1)
	require.Len(t, hits, 1)
	assert.Equal(t, "add import", hits[0].PatchSummary)
}

func TestEpisodeLogAndSummary(t *testing.T) {
	s := newTestStore(t)

	records := []EpisodeRecord{
		{TaskID: "t1", Repo: "r", Bucket: "import", Planner: "planner_v1", Strategy: "surgical", Template: "minimal_patch",
			Outcome: learning.Outcome{Passed: true, Runtime: 2 * time.Second}, Reward: 1.0, Attempts: 1},
		{TaskID: "t2", Repo: "r", Bucket: "import", Planner: "planner_v1", Strategy: "surgical", Template: "minimal_patch",
			Outcome: learning.Outcome{Passed: false, CritiqueScore: 0.4}, Reward: 0.1, Attempts: 6},
		{TaskID: "t3", Repo: "r", Bucket: "assertion", Planner: "planner_v2", Strategy: "test_first", Template: "test_driven",
			Outcome: learning.Outcome{Passed: false, ErrorMessage: "exhausted"}, Reward: 0.0, Attempts: 6},
	}
	for _, rec := range records {
		require.NoError(t, s.RecordEpisode(rec))
	}

	sum, err := s.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Episodes)

	require.Len(t, sum.BucketRank, 2)
	assert.Equal(t, "import", sum.BucketRank[0].Key, "import bucket has higher mean reward")
	assert.InDelta(t, 0.55, sum.BucketRank[0].MeanReward, 1e-9)
	assert.Equal(t, 1, sum.BucketRank[0].Successes)
	assert.Equal(t, 2, sum.BucketRank[0].N)

	require.Len(t, sum.StrategyRank, 2)
	assert.Equal(t, "surgical", sum.StrategyRank[0].Key)
	require.Len(t, sum.TemplateRank, 2)
}

func TestSummarize_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	sum, err := s.Summarize()
	require.NoError(t, err)
	assert.Zero(t, sum.Episodes)
	assert.Empty(t, sum.BucketRank)
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/state.db"

	s, err := NewStateStore(path)
	require.NoError(t, err)
	b := learning.NewBandit("arm")
	b.Update("arm", true, 1)
	require.NoError(t, s.SaveBandit("planner", b))
	require.NoError(t, s.Close())

	s2, err := NewStateStore(path)
	require.NoError(t, err)
	defer s2.Close()

	restored := learning.NewBandit()
	require.NoError(t, s2.LoadBandit("planner", restored))
	assert.Equal(t, 2.0, restored.Statistics()["arm"].Alpha)
}
