// Package retrieval stores past failure signatures and their outcomes and
// answers similarity queries against them. Retrieval is an advisory hint for
// the repair pipeline, not a correctness-critical lookup: queries may observe
// a snapshot slightly behind the latest insert.
package retrieval

import (
	"sort"
	"sync"
	"unicode/utf8"

	"mend/internal/embedding"
	"mend/internal/logging"
)

// Hit is one similarity match returned by a query.
type Hit struct {
	// Score is cosine similarity in [-1, 1].
	Score float64 `json:"score"`
	// Signature is an excerpt of the stored failure text.
	Signature string `json:"signature"`
	// PatchSummary describes the fix that was attempted for this failure.
	PatchSummary string `json:"patch_summary"`
	// Passed reports whether that fix ultimately passed.
	Passed bool `json:"passed"`
}

// Entry is one stored failure. Entries are append-only and never mutated.
type Entry struct {
	Repo         string
	Text         string
	Vec          []float64
	PatchSummary string
	Passed       bool
	Seq          int64 // Insertion order, used for recency tie-breaks.
}

// signatureLen bounds the excerpt carried in hits.
const signatureLen = 240

// FailureIndex is an append-only, repo-scoped similarity index.
// Safe for concurrent use.
type FailureIndex struct {
	mu      sync.RWMutex
	entries []Entry
	nextSeq int64
	engine  *embedding.HashEngine
}

// NewFailureIndex creates an empty index using the given embedding engine.
// A nil engine gets the default hashed engine.
func NewFailureIndex(engine *embedding.HashEngine) *FailureIndex {
	if engine == nil {
		engine = embedding.NewHashEngine(embedding.DefaultDimensions)
	}
	return &FailureIndex{engine: engine}
}

// Engine returns the embedding engine backing this index.
func (fi *FailureIndex) Engine() *embedding.HashEngine {
	return fi.engine
}

// Insert appends a failure with its outcome metadata. If vec is nil the text
// is embedded on the spot.
func (fi *FailureIndex) Insert(repo, text string, vec []float64, patchSummary string, passed bool) {
	if vec == nil {
		vec = fi.engine.Embed(text)
	}

	fi.mu.Lock()
	fi.entries = append(fi.entries, Entry{
		Repo:         repo,
		Text:         text,
		Vec:          vec,
		PatchSummary: patchSummary,
		Passed:       passed,
		Seq:          fi.nextSeq,
	})
	fi.nextSeq++
	total := len(fi.entries)
	fi.mu.Unlock()

	logging.RetrievalDebug("Inserted failure for repo=%s (total=%d)", repo, total)
}

// Restore appends a previously persisted entry, preserving load order.
// Used by the store when rehydrating the index at startup.
func (fi *FailureIndex) Restore(e Entry) {
	fi.mu.Lock()
	e.Seq = fi.nextSeq
	fi.nextSeq++
	fi.entries = append(fi.entries, e)
	fi.mu.Unlock()
}

// Size reports the total number of entries.
func (fi *FailureIndex) Size() int {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return len(fi.entries)
}

// Snapshot returns a copy of all entries, in insertion order.
func (fi *FailureIndex) Snapshot() []Entry {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	out := make([]Entry, len(fi.entries))
	copy(out, fi.entries)
	return out
}

// Query embeds text and returns the top-k most similar stored failures.
// Same-repo entries are preferred; when fewer than k exist for the repo the
// search falls back to the global pool. Equal scores break toward the most
// recently inserted entry.
func (fi *FailureIndex) Query(repo, text string, k int) []Hit {
	if k <= 0 {
		return nil
	}
	qv := fi.engine.Embed(text)

	fi.mu.RLock()
	snapshot := fi.entries // Append-only, safe to scan after unlock.
	fi.mu.RUnlock()

	scoped := scoreEntries(qv, snapshot, repo)
	if len(scoped) < k {
		scoped = scoreEntries(qv, snapshot, "")
	}

	sort.SliceStable(scoped, func(i, j int) bool {
		if scoped[i].score != scoped[j].score {
			return scoped[i].score > scoped[j].score
		}
		return scoped[i].seq > scoped[j].seq // Most recent wins ties.
	})

	if len(scoped) > k {
		scoped = scoped[:k]
	}

	hits := make([]Hit, 0, len(scoped))
	for _, s := range scoped {
		hits = append(hits, Hit{
			Score:        s.score,
			Signature:    excerpt(s.entry.Text),
			PatchSummary: s.entry.PatchSummary,
			Passed:       s.entry.Passed,
		})
	}

	logging.RetrievalDebug("Query repo=%s returned %d hits", repo, len(hits))
	return hits
}

type scored struct {
	entry Entry
	score float64
	seq   int64
}

// scoreEntries scores all entries matching repo; an empty repo matches all.
func scoreEntries(qv []float64, entries []Entry, repo string) []scored {
	out := make([]scored, 0, len(entries))
	for _, e := range entries {
		if repo != "" && e.Repo != repo {
			continue
		}
		out = append(out, scored{
			entry: e,
			score: embedding.Cosine(qv, e.Vec),
			seq:   e.Seq,
		})
	}
	return out
}

// excerpt truncates on a rune boundary so multibyte failure text never
// yields a broken trailing character.
func excerpt(text string) string {
	if len(text) <= signatureLen {
		return text
	}
	cut := signatureLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
