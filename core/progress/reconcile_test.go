package progress

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/user"
)

func TestCompletionPercentage(t *testing.T) {
	tests := []struct {
		score, total, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{6, 10, 60},
		{10, 10, 100},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13}, // 12.5
		{3, 8, 38}, // 37.5
	}
	for _, tt := range tests {
		if got := CompletionPercentage(tt.score, tt.total); got != tt.want {
			t.Errorf("CompletionPercentage(%d, %d) = %d, want %d", tt.score, tt.total, got, tt.want)
		}
	}
}

func TestAttempt_Validate(t *testing.T) {
	tests := []struct {
		name       string
		att        Attempt
		wantFields []string
	}{
		{name: "valid", att: Attempt{LessonID: "l1", Language: "en", Score: 0, TotalExercises: 1}},
		{name: "empty", att: Attempt{Score: -1}, wantFields: []string{"lessonId", "language", "score", "totalExercises"}},
		{name: "reserved language", att: Attempt{LessonID: "l1", Language: "completedLessons", TotalExercises: 1}, wantFields: []string{"language"}},
		{name: "no exercises", att: Attempt{LessonID: "l1", Language: "en"}, wantFields: []string{"totalExercises"}},
		{name: "underscore in language", att: Attempt{LessonID: "b", Language: "en_a", TotalExercises: 1}, wantFields: []string{"language"}},
		{name: "max values", att: Attempt{LessonID: "l1", Language: "en", Score: MaxExercises, TotalExercises: MaxExercises}},
		{
			name:       "too large",
			att:        Attempt{LessonID: "l1", Language: "en", Score: MaxExercises + 1, TotalExercises: MaxExercises + 1},
			wantFields: []string{"score", "totalExercises"},
		},
		{name: "huge score", att: Attempt{LessonID: "l1", Language: "en", Score: math.MaxInt, TotalExercises: 1}, wantFields: []string{"score"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.att.Validate()
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "want a *core.ValidationError, got %v", err)
			assert.Equal(t, ErrInvalidAttempt, vErr.Err)
			var flds []string
			for _, f := range vErr.Fields {
				flds = append(flds, f.Field)
			}
			assert.Equal(t, tt.wantFields, flds)
		})
	}
}

func TestReconcile_overflow(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	att := Attempt{LessonID: "l1", Language: "en", Score: 8, TotalExercises: 10}
	nearMax := math.MaxInt - 7

	tests := []struct {
		name   string
		points int
		stats  user.Stats
	}{
		{name: "points", points: nearMax},
		{name: "correct answers", stats: user.Stats{TotalCorrectAnswers: nearMax}},
		{name: "exercises", stats: user.Stats{TotalExercises: math.MaxInt - 9}},
		{name: "language correct answers", stats: user.Stats{Languages: map[string]user.LanguageStats{"en": {CorrectAnswers: nearMax}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(tt.points, tt.stats, nil, att, now)
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "want a *core.ValidationError, got %v", err)
			assert.Equal(t, ErrTotalsOverflow, vErr.Err)
		})
	}

	// right at the limit
	res, err := Reconcile(math.MaxInt-8, user.Stats{}, nil, att, now)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, res.Points)
	assert.Equal(t, 8, res.PointsGained)

	// a no-op attempt never overflows
	existing := Record{ID: "en_l1", LessonID: "l1", Language: "en", Score: 8, TotalExercises: 10, Completed: true}
	res, err = Reconcile(math.MaxInt, user.Stats{}, &existing, att, now)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 0, res.PointsGained)
}

func TestReconcile(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)

	completedRec := Record{
		ID: "en_l1", LessonID: "l1", Language: "en",
		Score: 8, TotalExercises: 10, CompletionPercentage: 80,
		Completed: true, CompletedAt: &created, LastUpdated: created, CreatedAt: created,
	}
	partialRec := Record{
		ID: "en_l1", LessonID: "l1", Language: "en",
		Score: 3, TotalExercises: 10, CompletionPercentage: 30,
		LastUpdated: created, CreatedAt: created,
	}

	tests := []struct {
		name          string
		points        int
		existing      *Record
		att           Attempt
		wantChanged   bool
		wantCreated   bool
		wantPoints    int
		wantCompleted bool
		wantIsDone    bool // IsCompleted of the attempt itself
	}{
		{
			name:        "first attempt, completed",
			att:         Attempt{LessonID: "l1", Language: "en", Score: 8, TotalExercises: 10},
			wantChanged: true, wantCreated: true, wantPoints: 8, wantCompleted: true, wantIsDone: true,
		},
		{
			name:        "first attempt, not completed",
			points:      4,
			att:         Attempt{LessonID: "l1", Language: "en", Score: 3, TotalExercises: 10},
			wantChanged: true, wantCreated: true, wantPoints: 7,
		},
		{
			name:       "same score",
			points:     8,
			existing:   &completedRec,
			att:        Attempt{LessonID: "l1", Language: "en", Score: 8, TotalExercises: 10},
			wantPoints: 8, wantCompleted: true, wantIsDone: true,
		},
		{
			name:       "lower score",
			points:     8,
			existing:   &completedRec,
			att:        Attempt{LessonID: "l1", Language: "en", Score: 2, TotalExercises: 10},
			wantPoints: 8, wantCompleted: true,
		},
		{
			name:        "better score on a completed lesson",
			points:      8,
			existing:    &completedRec,
			att:         Attempt{LessonID: "l1", Language: "en", Score: 10, TotalExercises: 10},
			wantChanged: true, wantPoints: 8, wantCompleted: true, wantIsDone: true,
		},
		{
			name:        "improvement, still not completed",
			points:      3,
			existing:    &partialRec,
			att:         Attempt{LessonID: "l1", Language: "en", Score: 5, TotalExercises: 10},
			wantChanged: true, wantPoints: 5,
		},
		{
			name:        "first completion",
			points:      3,
			existing:    &partialRec,
			att:         Attempt{LessonID: "l1", Language: "en", Score: 7, TotalExercises: 10},
			wantChanged: true, wantPoints: 10, wantCompleted: true, wantIsDone: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := user.Stats{Languages: map[string]user.LanguageStats{}}
			res, err := Reconcile(tt.points, stats, tt.existing, tt.att, now)
			require.NoError(t, err)

			assert.Equal(t, tt.wantChanged, res.Changed)
			assert.Equal(t, tt.wantCreated, res.Created)
			assert.Equal(t, tt.points, res.PreviousPoints)
			assert.Equal(t, tt.wantPoints, res.Points)
			assert.Equal(t, tt.wantPoints-tt.points, res.PointsGained)
			assert.Equal(t, tt.wantCompleted, res.Progress.Completed)
			assert.Equal(t, tt.wantIsDone, res.IsCompleted)
			assert.Equal(t, CompletionPercentage(tt.att.Score, tt.att.TotalExercises), res.CompletionPercentage)
			assert.Empty(t, stats.Languages, "input stats must not be mutated")

			if !tt.wantChanged {
				assert.Equal(t, *tt.existing, res.Progress)
				assert.Equal(t, stats, res.Stats)
				return
			}

			assert.Equal(t, "en_l1", res.Progress.ID)
			assert.Equal(t, tt.att.Score, res.Progress.Score)
			assert.Equal(t, now, res.Progress.LastUpdated)
			if tt.existing == nil {
				assert.Equal(t, now, res.Progress.CreatedAt)
			} else {
				assert.Equal(t, created, res.Progress.CreatedAt)
			}
			if res.Progress.Completed {
				require.NotNil(t, res.Progress.CompletedAt)
				if tt.existing != nil && tt.existing.Completed {
					assert.Equal(t, created, *res.Progress.CompletedAt)
				} else {
					assert.Equal(t, now, *res.Progress.CompletedAt)
				}
			} else {
				assert.Nil(t, res.Progress.CompletedAt)
			}

			var done int
			if tt.wantIsDone {
				done = 1
			}
			assert.Equal(t, done, res.Stats.CompletedLessons)
			assert.Equal(t, tt.att.Score, res.Stats.TotalCorrectAnswers)
			assert.Equal(t, tt.att.TotalExercises, res.Stats.TotalExercises)
			assert.Equal(t, user.LanguageStats{CompletedLessons: done, CorrectAnswers: tt.att.Score}, res.Stats.Languages["en"])
		})
	}
}

func TestReconcile_invalid(t *testing.T) {
	_, err := Reconcile(0, user.Stats{}, nil, Attempt{Language: "en", TotalExercises: 10}, time.Now())
	assert.True(t, core.IsValidationError(err))
}

func TestReconcile_idempotent(t *testing.T) {
	now := time.Now().UTC()
	att := Attempt{LessonID: "l1", Language: "fr", Score: 9, TotalExercises: 10}

	first, err := Reconcile(0, user.Stats{}, nil, att, now)
	require.NoError(t, err)
	require.True(t, first.Changed)

	rec := first.Progress
	second, err := Reconcile(first.Points, first.Stats, &rec, att, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Points, second.Points)
	assert.Zero(t, second.PointsGained)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Progress, second.Progress)
}

func TestReconcile_monotonic(t *testing.T) {
	now := time.Now().UTC()
	scores := []int{2, 1, 4, 4, 3, 7, 5, 9, 0, 10}

	var (
		points int
		stats  user.Stats
		rec    *Record
		best   int
	)
	for i, score := range scores {
		res, err := Reconcile(points, stats, rec, Attempt{LessonID: "l1", Language: "en", Score: score, TotalExercises: 10}, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)

		assert.GreaterOrEqual(t, res.Points, points, "points never decrease")
		assert.GreaterOrEqual(t, res.Progress.Score, best, "stored score never decreases")
		if rec != nil && rec.Completed {
			assert.True(t, res.Progress.Completed, "a completed lesson stays completed")
		}

		points, stats = res.Points, res.Stats
		p := res.Progress
		rec = &p
		if score > best {
			best = score
		}
	}
	assert.Equal(t, 10, rec.Score)
	// 2 (new) + 2 (4-2) + 7 (first completion); later improvements award nothing
	assert.Equal(t, 11, points)
}

func TestMergeSave(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	completedRec := Record{
		ID: "en_l1", LessonID: "l1", Language: "en",
		Score: 3, TotalExercises: 10, CompletionPercentage: 30,
		Completed: true, CompletedAt: &created, LastUpdated: created, CreatedAt: created,
	}

	tests := []struct {
		name          string
		existing      *Record
		score         int
		completed     bool
		wantChanged   bool
		wantCompleted bool
	}{
		{name: "below save threshold", score: 7, wantChanged: true},
		{name: "save threshold", score: 8, wantChanged: true, wantCompleted: true},
		{name: "forced completion", score: 1, completed: true, wantChanged: true, wantCompleted: true},
		{name: "not better", existing: &completedRec, score: 3, wantCompleted: true},
		{name: "better, stays completed", existing: &completedRec, score: 5, wantChanged: true, wantCompleted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att := Attempt{LessonID: "l1", Language: "en", Score: tt.score, TotalExercises: 10}
			rec, changed, err := MergeSave(tt.existing, att, tt.completed, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantCompleted, rec.Completed)

			if !tt.wantChanged {
				assert.Equal(t, *tt.existing, rec)
				return
			}
			assert.Equal(t, tt.score, rec.Score)
			assert.Equal(t, tt.score*10, rec.CompletionPercentage)
			assert.Equal(t, now, rec.LastUpdated)
			if tt.existing != nil {
				assert.Equal(t, created, rec.CreatedAt)
				assert.Equal(t, &created, rec.CompletedAt)
			} else if rec.Completed {
				assert.Equal(t, now, *rec.CompletedAt)
			} else {
				assert.Nil(t, rec.CompletedAt)
			}
		})
	}

	_, _, err := MergeSave(nil, Attempt{LessonID: "l1", Language: "en", Score: 1}, false, now)
	assert.True(t, core.IsValidationError(err))
}

func TestQueryFilter_Filter(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []Record{
		{ID: "en_b", Language: "en", LastUpdated: base.Add(1 * time.Minute)},
		{ID: "fr_a", Language: "fr", LastUpdated: base.Add(3 * time.Minute)},
		{ID: "en_a", Language: "en", LastUpdated: base.Add(2 * time.Minute)},
	}
	ids := func(recs []Record) []string {
		out := make([]string, 0, len(recs))
		for _, rec := range recs {
			out = append(out, rec.ID)
		}
		return out
	}

	assert.Equal(t, []string{"en_a", "en_b", "fr_a"}, ids(QueryFilter{}.Filter(recs)))
	assert.Equal(t, []string{"en_a", "en_b"}, ids(QueryFilter{Language: "en"}.Filter(recs)))
	assert.Equal(t, []string{"fr_a", "en_a"}, ids(QueryFilter{RecentFirst: true, Limit: 2}.Filter(recs)))
}
