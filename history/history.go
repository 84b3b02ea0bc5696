package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeu5/studybreak-rl/types"
)

// ErrCorruptHistory is returned when stored history cannot be decoded
var ErrCorruptHistory = errors.New("corrupt session history")

// DisplayDateFormat is the layout of the session dates in the learning statistics
const DisplayDateFormat = "01/02/2006, 03:04:05 PM"

// layouts accepted when decoding a stored date, the first one is used for encoding
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Session is one finished study session
type Session struct {
	ID        string
	Date      time.Time
	StudyTime int
	Reward    float64
}

type sessionJSON struct {
	ID        string  `json:"id,omitempty"`
	Date      string  `json:"date"`
	StudyTime int     `json:"study_time"`
	Reward    float64 `json:"reward"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		ID:        s.ID,
		Date:      s.Date.Format(dateLayouts[0]),
		StudyTime: s.StudyTime,
		Reward:    s.Reward,
	})
}

func (s *Session) UnmarshalJSON(data []byte) error {
	sj := sessionJSON{}
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}
	var (
		date time.Time
		err  error
	)
	for _, layout := range dateLayouts {
		date, err = time.ParseInLocation(layout, sj.Date, time.Local)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("%w: session date %q", ErrCorruptHistory, sj.Date)
	}
	*s = Session{
		ID:        sj.ID,
		Date:      date,
		StudyTime: sj.StudyTime,
		Reward:    sj.Reward,
	}
	return nil
}

// History aggregates the sessions and the actions taken by the user
type History struct {
	TotalSessions  int                  `json:"total_sessions"`
	TotalStudyTime int                  `json:"total_study_time"`
	Sessions       []Session            `json:"sessions"`
	ActionCounts   map[types.Action]int `json:"action_counts"`
}

func New() *History {
	h := &History{
		Sessions:     make([]Session, 0),
		ActionCounts: make(map[types.Action]int),
	}
	for _, a := range types.AllActions {
		h.ActionCounts[a] = 0
	}
	return h
}

// Decode parses a stored history, missing fields are left empty
func Decode(data []byte) (*History, error) {
	h := New()
	if err := json.Unmarshal(data, h); err != nil {
		if errors.Is(err, ErrCorruptHistory) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrCorruptHistory, err)
	}
	if h.Sessions == nil {
		h.Sessions = make([]Session, 0)
	}
	if h.ActionCounts == nil {
		h.ActionCounts = make(map[types.Action]int)
	}
	for a := range h.ActionCounts {
		if !a.Valid() {
			delete(h.ActionCounts, a)
		}
	}
	for _, a := range types.AllActions {
		if _, ok := h.ActionCounts[a]; !ok {
			h.ActionCounts[a] = 0
		}
	}
	return h, nil
}

func (h *History) Encode() ([]byte, error) {
	return json.Marshal(h)
}

// Clone returns a deep copy of the history
func (h *History) Clone() *History {
	cp := &History{
		TotalSessions:  h.TotalSessions,
		TotalStudyTime: h.TotalStudyTime,
		Sessions:       make([]Session, len(h.Sessions)),
		ActionCounts:   make(map[types.Action]int),
	}
	copy(cp.Sessions, h.Sessions)
	for a, c := range h.ActionCounts {
		cp.ActionCounts[a] = c
	}
	return cp
}

func (h *History) RecordAction(a types.Action) {
	h.ActionCounts[a] += 1
}

// RecordSession adds a finished session and returns it
func (h *History) RecordSession(studyTime int, reward float64, now time.Time) Session {
	s := Session{
		ID:        uuid.NewString(),
		Date:      now,
		StudyTime: studyTime,
		Reward:    reward,
	}
	h.TotalSessions += 1
	h.TotalStudyTime += studyTime
	h.Sessions = append(h.Sessions, s)
	return s
}

// ActionStat is the share of one action among all the recorded actions
type ActionStat struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SessionSummary is a session formatted for display
type SessionSummary struct {
	Date      string  `json:"date"`
	StudyTime int     `json:"study_time"`
	Reward    float64 `json:"reward"`
}

type LearningStats struct {
	TotalSessions      int                         `json:"total_sessions"`
	TotalStudyTime     int                         `json:"total_study_time"`
	AverageReward      float64                     `json:"average_reward"`
	ActionDistribution map[types.Action]ActionStat `json:"action_distribution"`
	RecentSessions     []SessionSummary            `json:"recent_sessions"`
}

func (h *History) LearningStats() LearningStats {
	total := 0
	for _, c := range h.ActionCounts {
		total += c
	}
	distribution := make(map[types.Action]ActionStat)
	for _, a := range types.AllActions {
		count := h.ActionCounts[a]
		percentage := 0.0
		if total > 0 {
			percentage = float64(count) / float64(total) * 100
		}
		distribution[a] = ActionStat{
			Name:       a.Info().Name,
			Count:      count,
			Percentage: percentage,
		}
	}

	avg := 0.0
	sessions := make([]SessionSummary, 0, len(h.Sessions))
	for _, s := range h.Sessions {
		avg += s.Reward
		sessions = append(sessions, SessionSummary{
			Date:      s.Date.Format(DisplayDateFormat),
			StudyTime: s.StudyTime,
			Reward:    s.Reward,
		})
	}
	if len(h.Sessions) > 0 {
		avg = avg / float64(len(h.Sessions))
	}

	return LearningStats{
		TotalSessions:      h.TotalSessions,
		TotalStudyTime:     h.TotalStudyTime,
		AverageReward:      avg,
		ActionDistribution: distribution,
		RecentSessions:     sessions,
	}
}
