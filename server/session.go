package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeu5/studybreak-rl/history"
	"github.com/zeu5/studybreak-rl/metrics"
	"github.com/zeu5/studybreak-rl/policies"
	"github.com/zeu5/studybreak-rl/study"
	"github.com/zeu5/studybreak-rl/types"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidAction      = errors.New("invalid action")
	ErrInvalidPreferences = errors.New("invalid preference values")
	ErrInvalidEpisodes    = errors.New("invalid number of episodes")
)

// number of rewards returned by the training statistics
const recentRewards = 50

// TrainingStatus of the last batch training
type TrainingStatus struct {
	IsTraining        bool      `json:"is_training"`
	EpisodesCompleted int       `json:"episodes_completed"`
	TotalEpisodes     int       `json:"total_episodes"`
	RewardsHistory    []float64 `json:"rewards_history"`
	// reward accumulated by the current study session
	CurrentReward float64 `json:"current_reward"`
}

func (t TrainingStatus) copy() TrainingStatus {
	cp := t
	cp.RewardsHistory = make([]float64, len(t.RewardsHistory))
	copy(cp.RewardsHistory, t.RewardsHistory)
	return cp
}

type SessionConfig struct {
	Policy *policies.QLearningPolicy
	// initial preferences, medium sensitivity and study bias when nil
	Preferences *study.Preferences
	Store       history.Store
	Metrics     *metrics.Metrics
	Logger      *logrus.Entry

	DefaultEpisodes int
	MaxEpisodes     int
	Horizon         int

	// clock used to date the sessions, defaults to time.Now
	Now func() time.Time
}

// Session holds the study session of the user together with the agent advising them.
// All the operations are serialized
type Session struct {
	config  SessionConfig
	env     *study.Environment
	policy  *policies.QLearningPolicy
	state   types.State
	status  TrainingStatus
	history *history.History
	store   history.Store
	metrics *metrics.Metrics
	log     *logrus.Entry

	lock *sync.Mutex
}

// NewSession creates the session and loads the stored history.
// A history that cannot be loaded is logged and replaced by an empty one
func NewSession(ctx context.Context, config SessionConfig) *Session {
	if config.Policy == nil {
		config.Policy = policies.DefaultQLearningPolicy()
	}
	if config.Preferences == nil {
		prefs := study.DefaultPreferences()
		config.Preferences = &prefs
	}
	if config.Store == nil {
		config.Store = history.NewMemStore()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}
	if config.Logger == nil {
		config.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.DefaultEpisodes <= 0 {
		config.DefaultEpisodes = 100
	}
	if config.MaxEpisodes <= 0 {
		config.MaxEpisodes = 10000
	}
	if config.Horizon <= 0 {
		config.Horizon = types.DefaultHorizon
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &Session{
		config:  config,
		env:     study.NewEnvironmentWithPreferences(*config.Preferences),
		policy:  config.Policy,
		status:  TrainingStatus{RewardsHistory: make([]float64, 0)},
		store:   config.Store,
		metrics: config.Metrics,
		log:     config.Logger,
		lock:    new(sync.Mutex),
	}
	s.state = s.env.Reset()

	h, err := s.store.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("failed to load session history, starting empty")
		h = history.New()
	}
	s.history = h
	return s
}

func (s *Session) save(ctx context.Context) {
	if err := s.store.Save(ctx, s.history); err != nil {
		s.log.WithError(err).Error("failed to save session history")
	}
}

type StatusResponse struct {
	StudyTime int                               `json:"study_time"`
	Fatigue   int                               `json:"fatigue"`
	State     types.State                       `json:"state"`
	Actions   map[types.Action]types.ActionInfo `json:"actions"`
}

func actionsInfo() map[types.Action]types.ActionInfo {
	out := make(map[types.Action]types.ActionInfo)
	for _, a := range types.AllActions {
		out[a] = a.Info()
	}
	return out
}

func (s *Session) Status() StatusResponse {
	s.lock.Lock()
	defer s.lock.Unlock()
	return StatusResponse{
		StudyTime: s.env.StudyTime(),
		Fatigue:   s.env.Fatigue(),
		State:     s.state,
		Actions:   actionsInfo(),
	}
}

type PreferencesResponse struct {
	FatigueSensitivity string       `json:"fatigue_sensitivity"`
	BreakBias          string       `json:"break_bias"`
	State              *types.State `json:"state,omitempty"`
}

func (s *Session) Preferences() PreferencesResponse {
	s.lock.Lock()
	defer s.lock.Unlock()
	p := s.env.Preferences()
	return PreferencesResponse{
		FatigueSensitivity: p.FatigueSensitivity.String(),
		BreakBias:          p.BreakBias.String(),
	}
}

// SetPreferences validates both the values before applying them
func (s *Session) SetPreferences(fatigueSensitivity, breakBias string) (PreferencesResponse, error) {
	if _, ok := study.ParseFatigueSensitivity(fatigueSensitivity); !ok {
		return PreferencesResponse{}, ErrInvalidPreferences
	}
	if _, ok := study.ParseBreakBias(breakBias); !ok {
		return PreferencesResponse{}, ErrInvalidPreferences
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.env.SetPreferences(fatigueSensitivity, breakBias)
	s.state = s.env.State()
	state := s.state
	s.log.WithFields(logrus.Fields{
		"fatigue_sensitivity": fatigueSensitivity,
		"break_bias":          breakBias,
	}).Info("preferences updated")
	return PreferencesResponse{
		FatigueSensitivity: fatigueSensitivity,
		BreakBias:          breakBias,
		State:              &state,
	}, nil
}

type ActionResponse struct {
	Action            string      `json:"action"`
	Reward            float64     `json:"reward"`
	Done              bool        `json:"done"`
	StudyTime         int         `json:"study_time"`
	Fatigue           int         `json:"fatigue"`
	State             types.State `json:"state"`
	RecommendedAction *int        `json:"recommended_action"`
}

// TakeAction applies the action of the user to the session and lets the agent learn from it
func (s *Session) TakeAction(ctx context.Context, a types.Action) (ActionResponse, error) {
	if !a.Valid() {
		return ActionResponse{}, ErrInvalidAction
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	s.history.RecordAction(a)
	s.save(ctx)

	nextState, reward, done := s.env.Step(a)
	s.policy.Update(s.state, a, reward, nextState)
	s.state = nextState
	s.status.CurrentReward += reward
	s.metrics.ObserveAction(a, reward)

	resp := ActionResponse{
		Action:    a.Info().Name,
		Reward:    reward,
		Done:      done,
		StudyTime: s.env.StudyTime(),
		Fatigue:   s.env.Fatigue(),
		State:     nextState,
	}
	if !done {
		rec := int(s.policy.NextAction(nextState))
		resp.RecommendedAction = &rec
	}
	s.log.WithFields(logrus.Fields{
		"action": a.String(),
		"reward": reward,
		"done":   done,
	}).Debug("action taken")
	return resp, nil
}

type RecommendationResponse struct {
	RecommendedAction int    `json:"recommended_action"`
	ActionName        string `json:"action_name"`
	ActionDescription string `json:"action_description"`
	ActionIcon        string `json:"action_icon"`
}

func (s *Session) Recommendation() RecommendationResponse {
	s.lock.Lock()
	defer s.lock.Unlock()
	a := s.policy.NextAction(s.state)
	info := a.Info()
	return RecommendationResponse{
		RecommendedAction: int(a),
		ActionName:        info.Name,
		ActionDescription: info.Description,
		ActionIcon:        info.Icon,
	}
}

// Train runs the agent on a separate environment with the preferences of the session
func (s *Session) Train(ctx context.Context, episodes int) (TrainingStatus, error) {
	if episodes < 1 || episodes > s.config.MaxEpisodes {
		return TrainingStatus{}, ErrInvalidEpisodes
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.status.IsTraining = true
	s.status.TotalEpisodes = episodes
	s.status.EpisodesCompleted = 0
	s.status.RewardsHistory = make([]float64, 0, episodes)

	agent := types.NewAgent(&types.AgentConfig{
		Episodes:    episodes,
		Horizon:     s.config.Horizon,
		Policy:      s.policy,
		Environment: s.env.Copy(),
	})
	start := time.Now()
	var err error
	for e := 0; e < episodes; e++ {
		if err = ctx.Err(); err != nil {
			break
		}
		trace := agent.RunEpisode(e)
		s.status.RewardsHistory = append(s.status.RewardsHistory, trace.TotalReward())
		s.status.EpisodesCompleted = e + 1
		s.metrics.ObserveTrainingEpisode(trace.TotalReward())
	}
	s.status.IsTraining = false

	s.log.WithFields(logrus.Fields{
		"episodes": s.status.EpisodesCompleted,
		"duration": time.Since(start).String(),
	}).Info("training completed")
	return s.status.copy(), err
}

func (s *Session) TrainingStatus() TrainingStatus {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.status.copy()
}

type ResetResponse struct {
	Message   string      `json:"message"`
	StudyTime int         `json:"study_time"`
	Fatigue   int         `json:"fatigue"`
	State     types.State `json:"state"`
}

// Reset records the current session if any time was studied and starts a new one
func (s *Session) Reset(ctx context.Context) ResetResponse {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.env.StudyTime() > 0 {
		recorded := s.history.RecordSession(s.env.StudyTime(), s.status.CurrentReward, s.config.Now())
		s.save(ctx)
		s.metrics.IncrementSessions()
		s.log.WithFields(logrus.Fields{
			"session":    recorded.ID,
			"study_time": recorded.StudyTime,
			"reward":     recorded.Reward,
		}).Info("session recorded")
	}

	s.state = s.env.Reset()
	s.status.CurrentReward = 0
	return ResetResponse{
		Message:   "Session reset",
		StudyTime: s.env.StudyTime(),
		Fatigue:   s.env.Fatigue(),
		State:     s.state,
	}
}

type StatsResponse struct {
	AverageReward  float64   `json:"average_reward"`
	MaxReward      float64   `json:"max_reward"`
	MinReward      float64   `json:"min_reward"`
	Episodes       int       `json:"episodes"`
	RewardsHistory []float64 `json:"rewards_history"`
}

// Stats of the rewards of the last training
func (s *Session) Stats() StatsResponse {
	s.lock.Lock()
	defer s.lock.Unlock()

	rewards := s.status.RewardsHistory
	if len(rewards) == 0 {
		return StatsResponse{RewardsHistory: make([]float64, 0)}
	}
	from := 0
	if len(rewards) > recentRewards {
		from = len(rewards) - recentRewards
	}
	recent := make([]float64, len(rewards)-from)
	copy(recent, rewards[from:])
	return StatsResponse{
		AverageReward:  stat.Mean(rewards, nil),
		MaxReward:      floats.Max(rewards),
		MinReward:      floats.Min(rewards),
		Episodes:       len(rewards),
		RewardsHistory: recent,
	}
}

func (s *Session) LearningStats() history.LearningStats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.history.LearningStats()
}

type StatePolicy struct {
	State     types.State               `json:"state"`
	Best      types.Action              `json:"best_action"`
	BestName  string                    `json:"best_action_name"`
	Values    [types.NumActions]float64 `json:"values"`
	IsCurrent bool                      `json:"is_current"`
}

// Policy returns the greedy action of the states reachable with the current preferences
func (s *Session) Policy() []StatePolicy {
	s.lock.Lock()
	defer s.lock.Unlock()

	out := make([]StatePolicy, 0)
	q := s.policy.QTable()
	for _, st := range types.AllStates() {
		if st.FatiguePref != s.state.FatiguePref || st.BreakBias != s.state.BreakBias {
			continue
		}
		best, _ := q.Max(st)
		out = append(out, StatePolicy{
			State:     st,
			Best:      best,
			BestName:  best.Info().Name,
			Values:    q.Values(st),
			IsCurrent: st == s.state,
		})
	}
	return out
}

// DefaultEpisodes trained when a request does not say how many
func (s *Session) DefaultEpisodes() int {
	return s.config.DefaultEpisodes
}
