package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("progress not found for this lesson")
	ErrInvalidAttempt = errors.New("invalid data: provide lessonId, language, score and totalExercises")
	ErrInvalidLimit   = errors.New("limit must be a positive number")
	ErrTotalsOverflow = errors.New("this score cannot be added to the user's totals")

	nowFunc = time.Now // mockable
)

type Service interface {
	// CompleteLesson finalizes an attempt: the user's points, stats and the lesson record
	// are reconciled and written in a single transaction.
	CompleteLesson(ctx context.Context, id identity.Identity, att Attempt) (Result, error)
	// SaveProgress stores a partial attempt. It never touches points nor stats.
	SaveProgress(ctx context.Context, uid string, att Attempt, completed bool) (rec Record, changed bool, err error)
	GetProgress(ctx context.Context, uid, lang, lessonID string) (Record, error)
	ListProgress(ctx context.Context, uid, lang string) ([]Record, error)
	RecentProgress(ctx context.Context, uid string, limit int) ([]Record, error)
}

type service struct {
	repo  Repository
	users user.Service
	log   core.Logger
}

var _ Service = (*service)(nil)

func NewService(repo Repository, userSvc user.Service, logger core.Logger) Service {
	return &service{repo: repo, users: userSvc, log: logger}
}

func (svc *service) CompleteLesson(ctx context.Context, id identity.Identity, att Attempt) (Result, error) {
	if err := att.Validate(); err != nil {
		return Result{}, err
	}
	if _, _, err := svc.users.EnsureUser(ctx, id); err != nil {
		return Result{}, err
	}

	var res Result
	err := svc.repo.RunInTransaction(ctx, func(tx Tx) error {
		usr, err := tx.GetUser(ctx, id.UID)
		if err != nil {
			return err
		}

		var existing *Record
		rec, err := tx.GetProgress(ctx, id.UID, Key(att.Language, att.LessonID))
		switch errors.Cause(err) {
		case nil:
			existing = &rec
		case ErrNotFound:
		default:
			return err
		}

		now := nowFunc().UTC()
		if res, err = Reconcile(usr.Points, usr.Stats, existing, att, now); err != nil {
			return err
		}
		if !res.Changed {
			return nil
		}
		if err = tx.SaveProgress(ctx, id.UID, res.Progress); err != nil {
			return err
		}
		return tx.UpdateUserScore(ctx, id.UID, res.Points, res.Stats, now)
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "completing lesson")
	}

	svc.log.Debug("lesson completed", map[string]interface{}{
		"uid":          id.UID,
		"lesson":       res.Progress.ID,
		"score":        att.Score,
		"pointsGained": res.PointsGained,
		"points":       res.Points,
	})
	return res, nil
}

func (svc *service) SaveProgress(ctx context.Context, uid string, att Attempt, completed bool) (Record, bool, error) {
	if err := att.Validate(); err != nil {
		return Record{}, false, err
	}

	var (
		rec     Record
		changed bool
	)
	err := svc.repo.RunInTransaction(ctx, func(tx Tx) error {
		var existing *Record
		stored, err := tx.GetProgress(ctx, uid, Key(att.Language, att.LessonID))
		switch errors.Cause(err) {
		case nil:
			existing = &stored
		case ErrNotFound:
		default:
			return err
		}

		if rec, changed, err = MergeSave(existing, att, completed, nowFunc().UTC()); err != nil || !changed {
			return err
		}
		return tx.SaveProgress(ctx, uid, rec)
	})
	if err != nil {
		return Record{}, false, errors.Wrap(err, "saving progress")
	}
	return rec, changed, nil
}

func (svc *service) GetProgress(ctx context.Context, uid, lang, lessonID string) (Record, error) {
	lang = core.CleanString(lang)
	if lang == "" {
		err := errors.New("the language parameter is required")
		return Record{}, core.NewValidationError(err, core.FieldError{Field: "language", Error: err.Error()})
	}
	if !core.IsLanguageCode(lang) {
		return Record{}, ErrNotFound
	}
	return svc.repo.GetProgress(ctx, uid, Key(lang, core.CleanString(lessonID)))
}

func (svc *service) ListProgress(ctx context.Context, uid, lang string) ([]Record, error) {
	return svc.repo.QueryProgress(ctx, uid, QueryFilter{Language: core.CleanString(lang)})
}

// RecentProgress returns the `limit` most recently updated records. Unknown users have none.
func (svc *service) RecentProgress(ctx context.Context, uid string, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, core.NewValidationError(ErrInvalidLimit, core.FieldError{Field: "limit", Error: ErrInvalidLimit.Error()})
	}
	if _, err := svc.users.GetUser(ctx, uid); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return []Record{}, nil
		}
		return nil, err
	}
	return svc.repo.QueryProgress(ctx, uid, QueryFilter{RecentFirst: true, Limit: limit})
}
