package progress

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/user"
)

// Completion thresholds, in percent.
const (
	// CompletionThreshold applies when a lesson is finalized.
	CompletionThreshold = 60
	// SaveCompletionThreshold applies to partial progress saves.
	SaveCompletionThreshold = 80

	DefaultRecentLimit = 5

	// MaxExercises bounds both the score and the exercise count of an attempt.
	MaxExercises = 10000
)

// Record is the best attempt of a user on one lesson, keyed by Key(language, lessonId).
type Record struct {
	ID                   string     `json:"id"`
	LessonID             string     `json:"lessonId"`
	Language             string     `json:"language"`
	Score                int        `json:"score"`
	TotalExercises       int        `json:"totalExercises"`
	CompletionPercentage int        `json:"completionPercentage"`
	Completed            bool       `json:"completed"`
	CompletedAt          *time.Time `json:"completedAt"` // UTC
	LastUpdated          time.Time  `json:"lastUpdated"` // UTC
	CreatedAt            time.Time  `json:"createdAt"`   // UTC
}

// Key returns the document id of the progress of (`lang`, `lessonID`).
// Language codes hold no '_', so distinct pairs never share a key.
func Key(lang, lessonID string) string {
	return lang + "_" + lessonID
}

// CompletionPercentage is round(100 * score / total), rounding halves up.
func CompletionPercentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*score + total) / (2 * total)
}

// Attempt is one submitted try at a lesson.
type Attempt struct {
	LessonID       string
	Language       string
	Score          int
	TotalExercises int
}

// Validate returns a *core.ValidationError listing every invalid field of `att`.
func (att Attempt) Validate() error {
	var flds []core.FieldError
	if att.LessonID == "" {
		flds = append(flds, core.FieldError{Field: "lessonId", Error: "this field is required"})
	}
	switch {
	case att.Language == "":
		flds = append(flds, core.FieldError{Field: "language", Error: "this field is required"})
	case !core.IsLanguageCode(att.Language):
		flds = append(flds, core.FieldError{Field: "language", Error: core.LanguageCodeText})
	case user.IsReservedStatsKey(att.Language):
		flds = append(flds, core.FieldError{Field: "language", Error: "this language code is reserved"})
	}
	switch {
	case att.Score < 0:
		flds = append(flds, core.FieldError{Field: "score", Error: "score must be 0 or greater"})
	case att.Score > MaxExercises:
		flds = append(flds, core.FieldError{Field: "score", Error: fmt.Sprintf("score must be %d or less", MaxExercises)})
	}
	switch {
	case att.TotalExercises <= 0:
		flds = append(flds, core.FieldError{Field: "totalExercises", Error: "totalExercises must be greater than 0"})
	case att.TotalExercises > MaxExercises:
		flds = append(flds, core.FieldError{Field: "totalExercises", Error: fmt.Sprintf("totalExercises must be %d or less", MaxExercises)})
	}
	if len(flds) > 0 {
		return core.NewValidationError(ErrInvalidAttempt, flds...)
	}
	return nil
}

// Submission is the payload of the lesson progress endpoints.
type Submission struct {
	LessonID       string `json:"lessonId" validate:"required,notblank"`
	Language       string `json:"language" validate:"required,langcode"`
	Score          *int   `json:"score" validate:"required,min=0,max=10000"`
	TotalExercises *int   `json:"totalExercises" validate:"required,gt=0,max=10000"`
	Completed      bool   `json:"completed"`
}

func (sub *Submission) Clean() {
	sub.LessonID = core.CleanString(sub.LessonID)
	sub.Language = core.CleanString(sub.Language)
}

func (sub Submission) Attempt() Attempt {
	att := Attempt{LessonID: sub.LessonID, Language: sub.Language}
	if sub.Score != nil {
		att.Score = *sub.Score
	}
	if sub.TotalExercises != nil {
		att.TotalExercises = *sub.TotalExercises
	}
	return att
}

type QueryFilter struct {
	Language    string
	RecentFirst bool // order by LastUpdated desc; by ID otherwise
	Limit       int  // 0: no limit
}

// Filter applies `qf` to an in-memory list of records.
func (qf QueryFilter) Filter(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if qf.Language != "" && rec.Language != qf.Language {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if qf.RecentFirst && !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].ID < out[j].ID
	})
	if qf.Limit > 0 && len(out) > qf.Limit {
		out = out[:qf.Limit]
	}
	return out
}

type (
	Repository interface {
		GetProgress(ctx context.Context, uid, id string) (Record, error)
		QueryProgress(ctx context.Context, uid string, filter QueryFilter) ([]Record, error)
		// RunInTransaction runs `fn` against a consistent snapshot and commits all its writes atomically.
		// Nothing is written when `fn` returns an error, which is then returned as is.
		RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
	}

	Tx interface {
		user.Tx
		GetProgress(ctx context.Context, uid, id string) (Record, error)
		SaveProgress(ctx context.Context, uid string, rec Record) error
	}
)
