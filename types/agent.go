package types

import "context"

// DefaultHorizon bounds episodes whose policy never finishes the session
const DefaultHorizon = 1000

type AgentConfig struct {
	Episodes    int
	Horizon     int
	Policy      Policy
	Environment Environment
}

// RL Agent configured with the corresponding
// policy and environment
type Agent struct {
	config *AgentConfig
	// collects the traces of the run
	// Only populated if the Run function is invoked
	traces      []*Trace
	policy      Policy
	environment Environment
}

// Instantiates a new Agent
func NewAgent(config *AgentConfig) *Agent {
	if config.Horizon <= 0 {
		config.Horizon = DefaultHorizon
	}
	return &Agent{
		config:      config,
		traces:      make([]*Trace, 0, config.Episodes),
		policy:      config.Policy,
		environment: config.Environment,
	}
}

// Run the agent for the specified number of episodes and horizon.
// Stops early (returning the context error) when ctx is cancelled between episodes
func (a *Agent) Run(ctx context.Context) error {
	for i := 0; i < a.config.Episodes; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		a.traces = append(a.traces, a.RunEpisode(i))
	}
	return nil
}

// Traces collected by Run
func (a *Agent) Traces() []*Trace {
	return a.traces
}

// RunEpisode runs a single episode and returns the resulting trace
func (a *Agent) RunEpisode(episode int) *Trace {
	state := a.environment.Reset()
	trace := NewTrace()

	for i := 0; i < a.config.Horizon; i++ {
		action := a.policy.NextAction(state)
		nextState, reward, done := a.environment.Step(action)
		a.policy.Update(state, action, reward, nextState)

		trace.Append(i, state, action, reward, nextState)
		state = nextState
		if done {
			trace.Done = true
			break
		}
	}
	a.policy.UpdateIteration(episode, trace)

	return trace
}
