package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core/progress"
	"github.com/triolingo/backend/core/user"
)

type (
	lessonApi struct {
		svc      progress.Service
		validate *validator.Validate
	}

	CompleteLessonResponse struct {
		Message        string          `json:"message"`
		Progress       progress.Record `json:"progress"`
		IsCompleted    bool            `json:"isCompleted"`
		Points         int             `json:"points"`
		PreviousPoints int             `json:"previousPoints"`
		PointsGained   int             `json:"pointsGained"`
		Stats          user.Stats      `json:"stats"`
	}

	SaveProgressResponse struct {
		Message  string          `json:"message"`
		Progress progress.Record `json:"progress"`
		Updated  bool            `json:"updated"`
	}
)

func registerLessonAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := lessonApi{
		svc:      deps.ProgressSvc,
		validate: deps.Validate,
	}

	lg := g.Group("/lessons", auth)
	lg.POST("/progress", api.saveProgress)
	lg.GET("/progress", api.listProgress)
	lg.GET("/progress/:lessonId", api.retrieveProgress)
	lg.POST("/complete", api.complete)
	lg.GET("/recent-progress", api.recentProgress)
}

func (api *lessonApi) bindSubmission(ctx echo.Context) (progress.Submission, error) {
	var data progress.Submission
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to Submission")
	}
	if err := api.validate.Struct(data); err != nil {
		return data, err
	}
	data.Clean()
	return data, nil
}

// Handlers

func (api *lessonApi) saveProgress(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	data, err := api.bindSubmission(ctx)
	if err != nil {
		return err
	}

	rec, changed, err := api.svc.SaveProgress(ctx.Request().Context(), id.UID, data.Attempt(), data.Completed)
	if err != nil {
		return errors.Wrap(err, "saving progress")
	}
	msg := "Progress saved successfully"
	if !changed {
		msg = "Existing progress has a higher score"
	}
	return ctx.JSON(http.StatusOK, SaveProgressResponse{Message: msg, Progress: rec, Updated: changed})
}

func (api *lessonApi) complete(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	data, err := api.bindSubmission(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.CompleteLesson(ctx.Request().Context(), id, data.Attempt())
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUserNotFound
		}
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, CompleteLessonResponse{
		Message:        "Lesson finished successfully",
		Progress:       res.Progress,
		IsCompleted:    res.IsCompleted,
		Points:         res.Points,
		PreviousPoints: res.PreviousPoints,
		PointsGained:   res.PointsGained,
		Stats:          res.Stats,
	})
}

func (api *lessonApi) listProgress(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	recs, err := api.svc.ListProgress(ctx.Request().Context(), id.UID, ctx.QueryParam("language"))
	if err != nil {
		return errors.Wrap(err, "listing progress")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"progress": recs})
}

func (api *lessonApi) retrieveProgress(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	rec, err := api.svc.GetProgress(ctx.Request().Context(), id.UID, ctx.QueryParam("language"), ctx.Param("lessonId"))
	if err != nil {
		if errors.Cause(err) == progress.ErrNotFound {
			return errProgressNotFound
		}
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *lessonApi) recentProgress(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	limit, err := queryLimit(ctx, progress.DefaultRecentLimit, progress.ErrInvalidLimit)
	if err != nil {
		return err
	}

	recs, err := api.svc.RecentProgress(ctx.Request().Context(), id.UID, limit)
	if err != nil {
		return errors.Wrap(err, "getting recent progress")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"progress": recs})
}
