package persistence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsquiz/internal/core"
)

// ErrTxDone is returned when a finished memory transaction is used again.
var ErrTxDone = errors.New("transaction has already been committed or rolled back")

// MemoryStore is an in-process Database used for dry runs and tests.
// Writes made through a transaction are staged and become visible only on
// Commit; reads always see committed state.
type MemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	articles  map[string]core.ArticleRef
	order     []string
	byLink    map[string]string
	synthetic map[string]core.SyntheticArticle
	quizzes   map[string][]core.QuizItem
	usage     []core.Keyword
	daily     map[time.Time]core.DailyQuizSet
	commits   int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       func() time.Time { return time.Now().UTC() },
		articles:  make(map[string]core.ArticleRef),
		byLink:    make(map[string]string),
		synthetic: make(map[string]core.SyntheticArticle),
		quizzes:   make(map[string][]core.QuizItem),
		daily:     make(map[time.Time]core.DailyQuizSet),
	}
}

// SetClock overrides the timestamp source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Commits returns the number of committed write batches.
func (s *MemoryStore) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

func (s *MemoryStore) repos() *memRepos { return &memRepos{store: s} }

func (s *MemoryStore) Articles() ArticleRepository       { return s.repos() }
func (s *MemoryStore) Synthetic() SyntheticRepository    { return memSyntheticRepo{s.repos()} }
func (s *MemoryStore) Quizzes() QuizRepository           { return memQuizRepo{s.repos()} }
func (s *MemoryStore) Keywords() KeywordRepository       { return memKeywordRepo{s.repos()} }
func (s *MemoryStore) DailyQuizzes() DailyQuizRepository { return memDailyRepo{s.repos()} }

func (s *MemoryStore) Close() error                   { return nil }
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) BeginTx(ctx context.Context) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx := &memTx{store: s}
	tx.repos = &memRepos{store: s, tx: tx}
	return tx, nil
}

// memTx stages mutations until Commit.
type memTx struct {
	store *MemoryStore
	repos *memRepos
	mu    sync.Mutex
	ops   []func(*MemoryStore)
	done  bool
}

func (t *memTx) Articles() ArticleRepository       { return t.repos }
func (t *memTx) Synthetic() SyntheticRepository    { return memSyntheticRepo{t.repos} }
func (t *memTx) Quizzes() QuizRepository           { return memQuizRepo{t.repos} }
func (t *memTx) Keywords() KeywordRepository       { return memKeywordRepo{t.repos} }
func (t *memTx) DailyQuizzes() DailyQuizRepository { return memDailyRepo{t.repos} }

func (t *memTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		op(t.store)
	}
	if len(t.ops) > 0 {
		t.store.commits++
	}
	t.ops = nil
	return nil
}

func (t *memTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.ops = nil
	return nil
}

// memRepos implements every repository over a store, optionally staged in a transaction.
type memRepos struct {
	store *MemoryStore
	tx    *memTx
}

func (r *memRepos) write(op func(*MemoryStore)) error {
	if r.tx != nil {
		r.tx.mu.Lock()
		defer r.tx.mu.Unlock()
		if r.tx.done {
			return ErrTxDone
		}
		r.tx.ops = append(r.tx.ops, op)
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	op(r.store)
	r.store.commits++
	return nil
}

func (r *memRepos) clock() time.Time {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.now()
}

func (r *memRepos) SaveSelected(ctx context.Context, date time.Time, articles []core.ScoredArticle) ([]core.ArticleRef, error) {
	now := r.clock()
	day := core.DateOnly(date)

	r.store.mu.RLock()
	refs := make([]core.ArticleRef, 0, len(articles))
	for _, a := range articles {
		if id, ok := r.store.byLink[a.Link]; ok {
			ref := r.store.articles[id]
			ref.QualityScore = a.QualityScore
			ref.Category = a.Category
			refs = append(refs, ref)
			continue
		}
		refs = append(refs, core.ArticleRef{
			ID:           uuid.NewString(),
			Title:        a.Title,
			Body:         a.Body,
			Description:  a.Description,
			Link:         a.Link,
			Source:       a.Source,
			Category:     a.Category,
			QualityScore: a.QualityScore,
			PublishedAt:  a.PublishedAt,
			QuizDate:     day,
			CreatedAt:    now,
		})
	}
	r.store.mu.RUnlock()

	staged := append([]core.ArticleRef(nil), refs...)
	err := r.write(func(s *MemoryStore) {
		for _, ref := range staged {
			if id, ok := s.byLink[ref.Link]; ok && id != ref.ID {
				existing := s.articles[id]
				existing.QualityScore = ref.QualityScore
				existing.Category = ref.Category
				s.articles[id] = existing
				continue
			}
			if _, ok := s.articles[ref.ID]; !ok {
				s.order = append(s.order, ref.ID)
			}
			s.articles[ref.ID] = ref
			s.byLink[ref.Link] = ref.ID
		}
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *memRepos) Get(ctx context.Context, id string) (*core.ArticleRef, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ref, ok := r.store.articles[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "article", ID: id}
	}
	return &ref, nil
}

func (r *memRepos) FindNeedingQuizzes(ctx context.Context, limit int) ([]core.ArticleRef, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var refs []core.ArticleRef
	for _, id := range r.store.order {
		if len(r.store.quizzes[id]) > 0 {
			continue
		}
		refs = append(refs, r.store.articles[id])
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].CreatedAt.Before(refs[j].CreatedAt) })
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

type memSyntheticRepo struct{ *memRepos }

func (r memSyntheticRepo) Save(ctx context.Context, article *core.SyntheticArticle) error {
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = r.clock()
	}
	saved := *article
	return r.write(func(s *MemoryStore) {
		if existing, ok := s.synthetic[saved.SourceArticleID]; ok {
			saved.ID = existing.ID
		}
		s.synthetic[saved.SourceArticleID] = saved
	})
}

func (r memSyntheticRepo) GetBySource(ctx context.Context, sourceArticleID string) (*core.SyntheticArticle, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	a, ok := r.store.synthetic[sourceArticleID]
	if !ok {
		return nil, &core.NotFoundError{Kind: "synthetic article", ID: sourceArticleID}
	}
	return &a, nil
}

type memQuizRepo struct{ *memRepos }

func (r memQuizRepo) ReplaceSet(ctx context.Context, articleID string, items []core.QuizItem) ([]core.QuizItem, error) {
	now := r.clock()
	stored := make([]core.QuizItem, 0, len(items))
	for _, item := range items {
		item.ID = uuid.NewString()
		item.SourceArticleID = articleID
		item.CreatedAt = now
		item.Options = append([]string(nil), item.Options...)
		stored = append(stored, item)
	}

	staged := append([]core.QuizItem(nil), stored...)
	if err := r.write(func(s *MemoryStore) { s.quizzes[articleID] = staged }); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r memQuizRepo) ListByArticle(ctx context.Context, articleID string) ([]core.QuizItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]core.QuizItem(nil), r.store.quizzes[articleID]...), nil
}

func (r memQuizRepo) ListByDate(ctx context.Context, date time.Time) ([]core.QuizItem, error) {
	day := core.DateOnly(date)

	r.store.mu.RLock()
	var items []core.QuizItem
	for _, id := range r.store.order {
		if !r.store.articles[id].QuizDate.Equal(day) {
			continue
		}
		items = append(items, r.store.quizzes[id]...)
	}
	r.store.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

type memKeywordRepo struct{ *memRepos }

func (r memKeywordRepo) RecordUsage(ctx context.Context, keywords []core.Keyword, date time.Time) error {
	day := core.DateOnly(date)
	rows := make([]core.Keyword, 0, len(keywords))
	for _, k := range keywords {
		k.UsedDate = day
		rows = append(rows, k)
	}
	return r.write(func(s *MemoryStore) { s.usage = append(s.usage, rows...) })
}

func (r memKeywordRepo) FindOverused(ctx context.Context, since time.Time, minUsage int) ([]string, error) {
	from := core.DateOnly(since)

	r.store.mu.RLock()
	counts := make(map[string]int)
	for _, k := range r.store.usage {
		if !k.UsedDate.Before(from) {
			counts[k.Text]++
		}
	}
	r.store.mu.RUnlock()

	var out []string
	for text, n := range counts {
		if n >= minUsage {
			out = append(out, text)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memDailyRepo struct{ *memRepos }

func (r memDailyRepo) Get(ctx context.Context, date time.Time) (*core.DailyQuizSet, error) {
	day := core.DateOnly(date)
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	set, ok := r.store.daily[day]
	if !ok {
		return nil, &core.NotFoundError{Kind: "daily quiz set", ID: day.Format("2006-01-02")}
	}
	set.QuizIDs = append([]string(nil), set.QuizIDs...)
	return &set, nil
}

func (r memDailyRepo) Save(ctx context.Context, set *core.DailyQuizSet) error {
	set.Date = core.DateOnly(set.Date)
	if set.UpdatedAt.IsZero() {
		set.UpdatedAt = r.clock()
	}
	saved := *set
	saved.QuizIDs = append([]string(nil), set.QuizIDs...)
	return r.write(func(s *MemoryStore) { s.daily[saved.Date] = saved })
}
