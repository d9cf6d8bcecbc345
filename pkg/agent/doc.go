// Package agent is the run supervisor: given a prompt, tools, a workspace,
// and a pool of candidate providers, it drives a streaming multi-step
// interaction to completion with failover across candidates and
// transactional workspace rollback between attempts.
//
// Invariants:
// - Each run emits exactly one run_start and one run_finish on its Bus.
// - Tool invocations are serialized within a run; events preserve emission order.
// - A failed live-mode attempt is rolled back before the next candidate starts.
//
// Usage:
//
//	sup, _ := agent.NewSupervisor(agent.SupervisorConfig{
//		AuthProfiles: []agent.AuthProfile{{Provider: "anthropic", APIKey: key}},
//	})
//	run, _ := sup.Run(agent.RunOptions{Prompt: "hello"})
//	for ev := range run.Events() {
//		_ = ev
//	}
//	result, err := run.Result(context.Background())
//	_, _ = result, err
package agent
