package user

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
)

// Ranking limits
const (
	DefaultRankingLimit = 10
	MaxRankingLimit     = 50

	AnonymousName = "Anonymous user"
)

// Reserved keys of the flattened stats document: they can never be used as language codes.
const (
	statsCompletedLessonsKey    = "completedLessons"
	statsTotalCorrectAnswersKey = "totalCorrectAnswers"
	statsTotalExercisesKey      = "totalExercises"
	statsRouletteKey            = "roulette"
)

var reservedStatsKeys = map[string]bool{
	statsCompletedLessonsKey:    true,
	statsTotalCorrectAnswersKey: true,
	statsTotalExercisesKey:      true,
	statsRouletteKey:            true,
}

// IsReservedStatsKey reports whether `lang` collides with an aggregate stats field.
func IsReservedStatsKey(lang string) bool {
	return reservedStatsKeys[lang]
}

type User struct {
	UID             string     `json:"uid"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	TargetLanguages []string   `json:"targetLanguages"`
	Points          int        `json:"points"`
	Stats           Stats      `json:"stats"`
	IsOnline        bool       `json:"isOnline"`
	LastActive      *time.Time `json:"lastActive,omitempty"` // UTC
	CreatedAt       time.Time  `json:"createdAt"`            // UTC
	UpdatedAt       time.Time  `json:"updatedAt"`            // UTC
}

// DisplayName is the name shown in rankings.
func (u User) DisplayName() string {
	if u.Name == "" {
		return AnonymousName
	}
	return u.Name
}

type LanguageStats struct {
	CompletedLessons int `json:"completedLessons"`
	CorrectAnswers   int `json:"correctAnswers"`
}

type RouletteStats struct {
	TotalBets   int `json:"totalBets"`
	TotalWins   int `json:"totalWins"`
	TotalLosses int `json:"totalLosses"`
	PointsWon   int `json:"pointsWon"`
	PointsLost  int `json:"pointsLost"`
}

func (rs RouletteStats) IsZero() bool { return rs == RouletteStats{} }

// RecordBet accounts for one settled bet of `amount` points.
func (rs *RouletteStats) RecordBet(won bool, amount int) {
	rs.TotalBets++
	if won {
		rs.TotalWins++
		rs.PointsWon += amount
	} else {
		rs.TotalLosses++
		rs.PointsLost += amount
	}
}

// Stats holds the aggregate counters of a user, per-language counters and the roulette counters.
// On the wire, per-language entries sit next to the aggregates: {"completedLessons": 1, "en": {...}}.
type Stats struct {
	CompletedLessons    int
	TotalCorrectAnswers int
	TotalExercises      int
	Languages           map[string]LanguageStats
	Roulette            RouletteStats
}

// Clone returns a deep copy of `s`.
func (s Stats) Clone() Stats {
	c := s
	c.Languages = make(map[string]LanguageStats, len(s.Languages))
	for lang, ls := range s.Languages {
		c.Languages[lang] = ls
	}
	return c
}

// RecordLesson merges one reconciled lesson attempt into the counters.
// Aggregates and the per-language entry always move together.
func (s *Stats) RecordLesson(lang string, completed bool, score, totalExercises int) {
	var done int
	if completed {
		done = 1
	}
	if s.Languages == nil {
		s.Languages = make(map[string]LanguageStats)
	}
	ls := s.Languages[lang]
	ls.CompletedLessons += done
	ls.CorrectAnswers += score
	s.Languages[lang] = ls

	s.CompletedLessons += done
	s.TotalCorrectAnswers += score
	s.TotalExercises += totalExercises
}

// Language returns the counters of `lang` and whether the user has any.
func (s Stats) Language(lang string) (LanguageStats, bool) {
	ls, ok := s.Languages[lang]
	return ls, ok
}

func (s Stats) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(s.Languages)+4)
	for lang, ls := range s.Languages {
		doc[lang] = ls
	}
	doc[statsCompletedLessonsKey] = s.CompletedLessons
	doc[statsTotalCorrectAnswersKey] = s.TotalCorrectAnswers
	doc[statsTotalExercisesKey] = s.TotalExercises
	if !s.Roulette.IsZero() {
		doc[statsRouletteKey] = s.Roulette
	}
	return json.Marshal(doc)
}

func (s *Stats) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	out := Stats{Languages: make(map[string]LanguageStats)}
	for key, raw := range doc {
		var err error
		switch key {
		case statsCompletedLessonsKey:
			err = json.Unmarshal(raw, &out.CompletedLessons)
		case statsTotalCorrectAnswersKey:
			err = json.Unmarshal(raw, &out.TotalCorrectAnswers)
		case statsTotalExercisesKey:
			err = json.Unmarshal(raw, &out.TotalExercises)
		case statsRouletteKey:
			err = json.Unmarshal(raw, &out.Roulette)
		default:
			var ls LanguageStats
			err = strictUnmarshal(raw, &ls)
			out.Languages[key] = ls
		}
		if err != nil {
			return errors.Wrapf(err, "stats.%s", key)
		}
	}
	*s = out
	return nil
}

func strictUnmarshal(raw json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// RankingEntry is one row of the general ranking.
type RankingEntry struct {
	Position int    `json:"position"`
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
	Stats    Stats  `json:"stats"`
}

// LanguageRankingEntry is one row of a language ranking: points are the correct answers in that language.
type LanguageRankingEntry struct {
	Position         int    `json:"position"`
	UID              string `json:"uid"`
	Name             string `json:"name"`
	Points           int    `json:"points"`
	CompletedLessons int    `json:"completedLessons"`
}

// Profile is the public view of a user.
type Profile struct {
	UID             string   `json:"uid"`
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	TargetLanguages []string `json:"targetLanguages"`
}

// UpdateLanguages is submitted to replace the target languages of a user.
type UpdateLanguages struct {
	TargetLanguages []string `json:"targetLanguages" validate:"required,dive,notblank"`
}

func (ul *UpdateLanguages) Clean() {
	langs := make([]string, 0, len(ul.TargetLanguages))
	for _, l := range ul.TargetLanguages {
		langs = append(langs, core.CleanString(l))
	}
	ul.TargetLanguages = langs
}

// UpdateOnlineStatus is submitted by clients to signal presence.
type UpdateOnlineStatus struct {
	IsOnline *bool `json:"isOnline" validate:"required"`
}

// ProfileUpdate lists the fields to change on a user document. Nil fields are left untouched.
type ProfileUpdate struct {
	Name            *string
	Email           *string
	TargetLanguages []string
	IsOnline        *bool
	LastActive      *time.Time
	UpdatedAt       time.Time
}

// Apply writes the set fields of `pu` into `usr`.
func (pu ProfileUpdate) Apply(usr *User) {
	if pu.Name != nil {
		usr.Name = *pu.Name
	}
	if pu.Email != nil {
		usr.Email = *pu.Email
	}
	if pu.TargetLanguages != nil {
		usr.TargetLanguages = append([]string{}, pu.TargetLanguages...)
	}
	if pu.IsOnline != nil {
		usr.IsOnline = *pu.IsOnline
	}
	if pu.LastActive != nil {
		la := *pu.LastActive
		usr.LastActive = &la
	}
	usr.UpdatedAt = pu.UpdatedAt
}

type QueryFilter struct {
	OnlineOnly    bool
	OrderByPoints bool // descending
	Limit         int  // 0: no limit
}

// Filter applies `qf` to an in-memory list of users.
func (qf QueryFilter) Filter(users []User) []User {
	out := make([]User, 0, len(users))
	for _, usr := range users {
		if qf.OnlineOnly && !usr.IsOnline {
			continue
		}
		out = append(out, usr)
	}
	if qf.OrderByPoints {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Points == out[j].Points {
				return out[i].UID < out[j].UID
			}
			return out[i].Points > out[j].Points
		})
	}
	if qf.Limit > 0 && len(out) > qf.Limit {
		out = out[:qf.Limit]
	}
	return out
}

type (
	Repository interface {
		GetUser(ctx context.Context, uid string) (User, error)
		// CreateUserIfNotExists atomically inserts `usr` unless a document already exists for its UID,
		// in which case the stored document is returned with created == false.
		CreateUserIfNotExists(ctx context.Context, usr User) (User, bool, error)
		UpdateProfile(ctx context.Context, uid string, pu ProfileUpdate) (User, error)
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
	}

	// Tx is the user side of a store transaction: reads see the transaction's consistent snapshot
	// and writes are committed together with the rest of the transaction, or not at all.
	Tx interface {
		GetUser(ctx context.Context, uid string) (User, error)
		UpdateUserScore(ctx context.Context, uid string, points int, stats Stats, updatedAt time.Time) error
	}
)
