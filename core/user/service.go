package user

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/presence"
)

var (
	// errors
	ErrNotFound     = errors.New("user not found")
	ErrInvalidLimit = fmt.Errorf("limit must be a number between 1 and %d", MaxRankingLimit)

	nowFunc = time.Now // mockable
)

type Service interface {
	GetUser(ctx context.Context, uid string) (User, error)
	// EnsureUser creates the default document of `id` when missing. An empty stored name is backfilled from `id`.
	EnsureUser(ctx context.Context, id identity.Identity) (usr User, created bool, err error)
	Profile(ctx context.Context, id identity.Identity) (Profile, error)
	LearningLanguages(ctx context.Context, uid string) ([]string, error)
	SetTargetLanguages(ctx context.Context, id identity.Identity, langs []string) error
	Points(ctx context.Context, uid string) (int, error)
	GeneralRanking(ctx context.Context, limit int) ([]RankingEntry, error)
	LanguageRanking(ctx context.Context, lang string, limit int) ([]LanguageRankingEntry, error)
	// SetOnlineStatus returns created == true when the user document had to be created.
	SetOnlineStatus(ctx context.Context, id identity.Identity, isOnline bool) (created bool, err error)
	// SweepPresence flips to offline the users whose presence entry expired and returns how many were changed.
	SweepPresence(ctx context.Context) (int, error)
}

type service struct {
	repo     Repository
	presence presence.Store
	log      core.Logger
}

var _ Service = (*service)(nil)

func NewService(repo Repository, presenceStore presence.Store, logger core.Logger) Service {
	return &service{repo: repo, presence: presenceStore, log: logger}
}

// NewUser returns the default document of a user who never used the app.
func NewUser(id identity.Identity, now time.Time) User {
	return User{
		UID:             id.UID,
		Email:           id.Email,
		Name:            id.Name,
		TargetLanguages: []string{},
		Stats:           Stats{Languages: map[string]LanguageStats{}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (svc *service) GetUser(ctx context.Context, uid string) (User, error) {
	return svc.repo.GetUser(ctx, uid)
}

func (svc *service) EnsureUser(ctx context.Context, id identity.Identity) (User, bool, error) {
	usr, created, err := svc.repo.CreateUserIfNotExists(ctx, NewUser(id, nowFunc().UTC()))
	if err != nil {
		return User{}, false, errors.Wrap(err, "creating user")
	}
	if created || usr.Name != "" || id.Name == "" {
		return usr, created, nil
	}

	usr, err = svc.repo.UpdateProfile(ctx, id.UID, ProfileUpdate{Name: &id.Name, UpdatedAt: nowFunc().UTC()})
	if err != nil {
		return User{}, false, errors.Wrap(err, "backfilling user name")
	}
	return usr, false, nil
}

func (svc *service) Profile(ctx context.Context, id identity.Identity) (Profile, error) {
	usr, err := svc.repo.GetUser(ctx, id.UID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Profile{UID: id.UID, Email: id.Email, Name: id.Name, TargetLanguages: []string{}}, nil
		}
		return Profile{}, err
	}

	if usr.Name == "" && id.Name != "" {
		if usr, err = svc.repo.UpdateProfile(ctx, id.UID, ProfileUpdate{Name: &id.Name, UpdatedAt: nowFunc().UTC()}); err != nil {
			return Profile{}, errors.Wrap(err, "backfilling user name")
		}
	}

	langs := usr.TargetLanguages
	if langs == nil {
		langs = []string{}
	}
	return Profile{UID: id.UID, Email: id.Email, Name: usr.Name, TargetLanguages: langs}, nil
}

func (svc *service) LearningLanguages(ctx context.Context, uid string) ([]string, error) {
	usr, err := svc.repo.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if usr.TargetLanguages == nil {
		return []string{}, nil
	}
	return usr.TargetLanguages, nil
}

func (svc *service) SetTargetLanguages(ctx context.Context, id identity.Identity, langs []string) error {
	if _, _, err := svc.EnsureUser(ctx, id); err != nil {
		return err
	}
	if langs == nil {
		langs = []string{}
	}
	_, err := svc.repo.UpdateProfile(ctx, id.UID, ProfileUpdate{
		Email:           &id.Email,
		TargetLanguages: langs,
		UpdatedAt:       nowFunc().UTC(),
	})
	return errors.Wrap(err, "updating target languages")
}

func (svc *service) Points(ctx context.Context, uid string) (int, error) {
	usr, err := svc.repo.GetUser(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return usr.Points, nil
}

// ValidateRankingLimit returns a *core.ValidationError when `limit` is out of [1, MaxRankingLimit].
func ValidateRankingLimit(limit int) error {
	if limit <= 0 || limit > MaxRankingLimit {
		return core.NewValidationError(ErrInvalidLimit, core.FieldError{Field: "limit", Error: ErrInvalidLimit.Error()})
	}
	return nil
}

func (svc *service) GeneralRanking(ctx context.Context, limit int) ([]RankingEntry, error) {
	if err := ValidateRankingLimit(limit); err != nil {
		return nil, err
	}
	users, err := svc.repo.QueryUsers(ctx, QueryFilter{OrderByPoints: true, Limit: limit})
	if err != nil {
		return nil, errors.Wrap(err, "querying users by points")
	}

	rankings := make([]RankingEntry, 0, len(users))
	for i, usr := range users {
		rankings = append(rankings, RankingEntry{
			Position: i + 1,
			UID:      usr.UID,
			Name:     usr.DisplayName(),
			Points:   usr.Points,
			Stats:    usr.Stats,
		})
	}
	return rankings, nil
}

func (svc *service) LanguageRanking(ctx context.Context, lang string, limit int) ([]LanguageRankingEntry, error) {
	if err := ValidateRankingLimit(limit); err != nil {
		return nil, err
	}
	lang = core.CleanString(lang)
	if lang == "" {
		err := errors.New("language is required")
		return nil, core.NewValidationError(err, core.FieldError{Field: "language", Error: err.Error()})
	}

	users, err := svc.repo.QueryUsers(ctx, QueryFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	type row struct {
		usr User
		ls  LanguageStats
	}
	rows := make([]row, 0, len(users))
	for _, usr := range users {
		if ls, ok := usr.Stats.Language(lang); ok {
			rows = append(rows, row{usr: usr, ls: ls})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ls.CorrectAnswers == rows[j].ls.CorrectAnswers {
			return rows[i].usr.UID < rows[j].usr.UID
		}
		return rows[i].ls.CorrectAnswers > rows[j].ls.CorrectAnswers
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	rankings := make([]LanguageRankingEntry, 0, len(rows))
	for i, r := range rows {
		rankings = append(rankings, LanguageRankingEntry{
			Position:         i + 1,
			UID:              r.usr.UID,
			Name:             r.usr.DisplayName(),
			Points:           r.ls.CorrectAnswers,
			CompletedLessons: r.ls.CompletedLessons,
		})
	}
	return rankings, nil
}

func (svc *service) SetOnlineStatus(ctx context.Context, id identity.Identity, isOnline bool) (bool, error) {
	now := nowFunc().UTC()

	if err := svc.presence.SetStatus(ctx, id.UID, isOnline); err != nil {
		// the document store stays authoritative when the presence store is unreachable
		svc.log.Warn("setting presence status", err, map[string]interface{}{"uid": id.UID})
	}

	usr := NewUser(id, now)
	usr.IsOnline = isOnline
	usr.LastActive = &now
	if _, created, err := svc.repo.CreateUserIfNotExists(ctx, usr); err != nil {
		return false, errors.Wrap(err, "creating user")
	} else if created {
		return true, nil
	}

	_, err := svc.repo.UpdateProfile(ctx, id.UID, ProfileUpdate{IsOnline: &isOnline, LastActive: &now, UpdatedAt: now})
	return false, errors.Wrap(err, "updating online status")
}

func (svc *service) SweepPresence(ctx context.Context) (int, error) {
	users, err := svc.repo.QueryUsers(ctx, QueryFilter{OnlineOnly: true})
	if err != nil {
		return 0, errors.Wrap(err, "querying online users")
	}

	offline := false
	var swept int
	for _, usr := range users {
		status, found, err := svc.presence.GetStatus(ctx, usr.UID)
		if err != nil {
			return swept, errors.Wrapf(err, "getting presence status of %s", usr.UID)
		}
		if found && status.IsOnline {
			continue
		}
		pu := ProfileUpdate{IsOnline: &offline, UpdatedAt: nowFunc().UTC()}
		if found {
			pu.LastActive = &status.LastChanged
		}
		if _, err = svc.repo.UpdateProfile(ctx, usr.UID, pu); err != nil {
			return swept, errors.Wrapf(err, "marking %s offline", usr.UID)
		}
		swept++
	}
	return swept, nil
}
