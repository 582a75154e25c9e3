package patternsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/result"
)

// Compile-time interface check.
var _ Handler = (*EchoHandler)(nil)

// EchoHandler is a deterministic local pattern service. Every agent answers
// with a short line naming itself and the task it received, and every pattern
// produces the same result shape a real service would. Parallel agents and
// hierarchical workers run concurrently.
type EchoHandler struct {
	// Delay pauses before every chunk, simulating a slow model.
	Delay time.Duration
}

// Execute runs the pattern without emitting frames.
func (h *EchoHandler) Execute(ctx context.Context, kind graph.PatternKind, req Request) (json.RawMessage, error) {
	return h.Stream(ctx, kind, req, func(StreamEvent) error { return nil })
}

// Stream runs the pattern, emitting status and chunk frames as agents work.
func (h *EchoHandler) Stream(ctx context.Context, kind graph.PatternKind, req Request, emit func(StreamEvent) error) (json.RawMessage, error) {
	var mu sync.Mutex
	send := func(ev StreamEvent) error {
		mu.Lock()
		defer mu.Unlock()
		return emit(ev)
	}
	r := &echoRun{h: h, send: send, req: req}

	var (
		doc any
		err error
	)
	switch kind {
	case graph.PatternSequential:
		doc, err = r.sequential(ctx)
	case graph.PatternParallel:
		doc, err = r.parallel(ctx)
	case graph.PatternHierarchical:
		doc, err = r.hierarchical(ctx)
	case graph.PatternDebate:
		doc, err = r.debate(ctx)
	case graph.PatternRouting:
		doc, err = r.routing(ctx)
	case graph.PatternReflection:
		doc, err = r.reflection(ctx)
	default:
		return nil, &RequestError{Message: fmt.Sprintf("unknown pattern %q", kind)}
	}
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("patternsvc: echo: marshal result: %w", err)
	}
	return out, nil
}

// EchoReply is the answer the echo service gives for agent on task.
func EchoReply(agent, task string) string {
	return fmt.Sprintf("%s handled: %s", agent, headline(task))
}

// headline returns the first line of task, shortened.
func headline(task string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(task), "\n")
	const maxLen = 60
	if r := []rune(line); len(r) > maxLen {
		return string(r[:maxLen]) + "..."
	}
	return line
}

type echoRun struct {
	h    *EchoHandler
	send func(StreamEvent) error
	req  Request
}

// agent runs one agent through label → chunks → completed.
func (r *echoRun) agent(ctx context.Context, name, label, task string) (string, error) {
	start := time.Now()
	if err := r.send(StatusEvent(name, label)); err != nil {
		return "", err
	}
	out := EchoReply(name, task)
	for _, chunk := range strings.SplitAfter(out, " ") {
		if err := r.pause(ctx); err != nil {
			return "", err
		}
		if err := r.send(ChunkEvent(name, chunk)); err != nil {
			return "", err
		}
	}
	if err := r.send(CompletedEvent(name, time.Since(start).Milliseconds())); err != nil {
		return "", err
	}
	return out, nil
}

func (r *echoRun) pause(ctx context.Context) error {
	if r.h.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.h.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fanOut runs the named agents concurrently and returns their outputs in
// name order.
func (r *echoRun) fanOut(ctx context.Context, names []string, task string) (result.AgentOutputs, error) {
	outputs := make([]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			out, err := r.agent(gctx, name, StatusExecuting, task)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result.AgentOutputs{}, err
	}

	var outs result.AgentOutputs
	for i, name := range names {
		outs.Set(name, outputs[i])
	}
	return outs, nil
}

func (r *echoRun) allNames() []string {
	names := make([]string, 0, len(r.req.Agents))
	for _, a := range r.req.Agents {
		names = append(names, a.Name)
	}
	return names
}

func (r *echoRun) sequential(ctx context.Context) (any, error) {
	names := r.req.AgentSequence
	if len(names) == 0 {
		names = r.allNames()
	}
	if len(names) == 0 {
		return nil, &RequestError{Message: "sequential pattern needs at least one agent"}
	}

	steps := make([]result.Step, 0, len(names))
	input := r.req.Task
	for _, name := range names {
		out, err := r.agent(ctx, name, StatusExecuting, input)
		if err != nil {
			return nil, err
		}
		steps = append(steps, result.Step{Agent: name, Result: out})
		input = out
	}
	return map[string]any{
		"steps":        steps,
		"final_result": input,
	}, nil
}

func (r *echoRun) parallel(ctx context.Context) (any, error) {
	names := r.req.AgentNames
	if len(names) == 0 {
		names = r.allNames()
	}
	if len(names) == 0 {
		return nil, &RequestError{Message: "parallel pattern needs at least one agent"}
	}

	outs, err := r.fanOut(ctx, names, r.req.Task)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{"agent_results": outs}
	if r.req.Aggregator != "" {
		agg, err := r.agent(ctx, r.req.Aggregator, StatusAggregating, outs.Format())
		if err != nil {
			return nil, err
		}
		doc["aggregated_result"] = agg
	}
	return doc, nil
}

func (r *echoRun) hierarchical(ctx context.Context) (any, error) {
	if r.req.Manager == "" {
		return nil, &RequestError{Message: "hierarchical pattern needs a manager"}
	}

	plan, err := r.agent(ctx, r.req.Manager, StatusDelegating, r.req.Task)
	if err != nil {
		return nil, err
	}
	outs, err := r.fanOut(ctx, r.req.Workers, plan)
	if err != nil {
		return nil, err
	}
	final, err := r.agent(ctx, r.req.Manager, StatusSynthesizing, outs.Format())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"manager_plan":  plan,
		"agent_results": outs,
		"final_result":  final,
	}, nil
}

func (r *echoRun) debate(ctx context.Context) (any, error) {
	debaters := r.req.Debaters
	if len(debaters) == 0 {
		for _, a := range r.req.Agents {
			if a.Name != r.req.Moderator {
				debaters = append(debaters, a.Name)
			}
		}
	}
	if len(debaters) == 0 {
		return nil, &RequestError{Message: "debate pattern needs at least one debater"}
	}
	rounds := r.req.Rounds
	if rounds <= 0 {
		rounds = graph.DefaultDebateRounds
	}

	var (
		history []result.DebateRound
		last    []string
	)
	for i := 1; i <= rounds; i++ {
		round := result.DebateRound{Round: i}
		last = last[:0]
		for _, name := range debaters {
			arg, err := r.agent(ctx, name, StatusExecuting, fmt.Sprintf("round %d: %s", i, r.req.Task))
			if err != nil {
				return nil, err
			}
			round.Arguments = append(round.Arguments, result.DebateArgument{Agent: name, Argument: arg})
			last = append(last, arg)
		}
		history = append(history, round)
	}

	final := strings.Join(last, "\n")
	if r.req.Moderator != "" {
		verdict, err := r.agent(ctx, r.req.Moderator, StatusAggregating, final)
		if err != nil {
			return nil, err
		}
		final = verdict
	}
	return map[string]any{
		"rounds":       history,
		"final_result": final,
	}, nil
}

func (r *echoRun) routing(ctx context.Context) (any, error) {
	if r.req.Router == "" {
		return nil, &RequestError{Message: "routing pattern needs a router"}
	}
	if len(r.req.Specialists) == 0 {
		return nil, &RequestError{Message: "routing pattern needs at least one specialist"}
	}

	reason, err := r.agent(ctx, r.req.Router, StatusRouting, r.req.Task)
	if err != nil {
		return nil, err
	}

	// Pick the first specialist named in the task, else the first one.
	selected := r.req.Specialists[0]
	lower := strings.ToLower(r.req.Task)
	for _, s := range r.req.Specialists {
		if strings.Contains(lower, strings.ToLower(s)) {
			selected = s
			break
		}
	}

	out, err := r.agent(ctx, selected, StatusExecuting, r.req.Task)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"selected_specialist": selected,
		"routing_reason":      reason,
		"result":              out,
	}, nil
}

func (r *echoRun) reflection(ctx context.Context) (any, error) {
	if len(r.req.Agents) == 0 {
		return nil, &RequestError{Message: "reflection pattern needs an agent"}
	}
	name := r.req.Agents[0].Name
	if _, err := r.agent(ctx, name, StatusExecuting, r.req.Task); err != nil {
		return nil, err
	}
	// The echo reflector never proposes changes.
	return map[string]any{"result": "[]"}, nil
}
