package progress

import (
	"math"
	"time"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/user"
)

// Result is the outcome of merging an Attempt into the stored state of a user.
type Result struct {
	Progress             Record
	Changed              bool // Progress, Points and Stats must be written
	Created              bool // Progress is a new record
	PreviousPoints       int
	Points               int
	PointsGained         int
	Stats                user.Stats
	CompletionPercentage int
	IsCompleted          bool
}

// Reconcile merges `att` into the user's `points`/`stats` and the `existing` record of the lesson (nil if none).
//
//   - an attempt that does not beat the stored score changes nothing;
//   - a lesson completed before awards no more points;
//   - completing a lesson for the first time awards the full score;
//   - otherwise the score improvement is awarded.
//
// Stats accumulate on every change, even when no points are awarded.
// A completed record never goes back to not completed.
func Reconcile(points int, stats user.Stats, existing *Record, att Attempt, now time.Time) (Result, error) {
	if err := att.Validate(); err != nil {
		return Result{}, err
	}

	pct := CompletionPercentage(att.Score, att.TotalExercises)
	res := Result{
		PreviousPoints:       points,
		Points:               points,
		Stats:                stats,
		CompletionPercentage: pct,
		IsCompleted:          pct >= CompletionThreshold,
	}
	if existing != nil && att.Score <= existing.Score {
		res.Progress = *existing
		return res, nil
	}

	rec := Record{
		ID:                   Key(att.Language, att.LessonID),
		LessonID:             att.LessonID,
		Language:             att.Language,
		Score:                att.Score,
		TotalExercises:       att.TotalExercises,
		CompletionPercentage: pct,
		Completed:            res.IsCompleted,
		LastUpdated:          now,
		CreatedAt:            now,
	}

	var delta int
	if existing == nil {
		res.Created = true
		delta = att.Score
	} else {
		rec.CreatedAt = existing.CreatedAt
		rec.CompletedAt = existing.CompletedAt
		switch {
		case existing.Completed:
			rec.Completed = true
		case res.IsCompleted:
			delta = att.Score
		default:
			delta = att.Score - existing.Score
		}
	}
	if rec.Completed && rec.CompletedAt == nil {
		completedAt := now
		rec.CompletedAt = &completedAt
	}

	if addOverflows(points, delta) ||
		addOverflows(stats.TotalCorrectAnswers, att.Score) ||
		addOverflows(stats.TotalExercises, att.TotalExercises) ||
		addOverflows(stats.Languages[att.Language].CorrectAnswers, att.Score) {
		return Result{}, core.NewValidationError(ErrTotalsOverflow, core.FieldError{Field: "score", Error: ErrTotalsOverflow.Error()})
	}

	res.Changed = true
	res.Progress = rec
	res.Stats = stats.Clone()
	res.Stats.RecordLesson(att.Language, res.IsCompleted, att.Score, att.TotalExercises)
	res.Points = points + delta
	res.PointsGained = res.Points - res.PreviousPoints
	return res, nil
}

func addOverflows(a, b int) bool {
	return b > 0 && a > math.MaxInt-b
}

// MergeSave applies a partial progress save: `completed` forces completion, otherwise
// the SaveCompletionThreshold applies. The stored record only changes when `att` beats its score.
func MergeSave(existing *Record, att Attempt, completed bool, now time.Time) (rec Record, changed bool, err error) {
	if err = att.Validate(); err != nil {
		return Record{}, false, err
	}
	if existing != nil && att.Score <= existing.Score {
		return *existing, false, nil
	}

	pct := CompletionPercentage(att.Score, att.TotalExercises)
	rec = Record{
		ID:                   Key(att.Language, att.LessonID),
		LessonID:             att.LessonID,
		Language:             att.Language,
		Score:                att.Score,
		TotalExercises:       att.TotalExercises,
		CompletionPercentage: pct,
		Completed:            completed || pct >= SaveCompletionThreshold,
		LastUpdated:          now,
		CreatedAt:            now,
	}
	if existing != nil {
		rec.CreatedAt = existing.CreatedAt
		rec.CompletedAt = existing.CompletedAt
		rec.Completed = rec.Completed || existing.Completed
	}
	if rec.Completed && rec.CompletedAt == nil {
		completedAt := now
		rec.CompletedAt = &completedAt
	}
	return rec, true, nil
}
