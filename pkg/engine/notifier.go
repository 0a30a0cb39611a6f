package engine

import (
	"context"

	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
)

// Agent is a single agent instance produced by an [AgentFactory]. The
// engine invokes it once per execution and treats any returned error as
// an execution failure.
type Agent interface {
	// Execute runs the agent for one execution context and returns its
	// result. The context carries deadlines and cancellation from the
	// caller.
	Execute(ctx context.Context, agentCtx execution.AgentContext) (execution.Result, error)
}

// AgentFactory produces agent instances scoped to a user. Factory
// failures surface unchanged to the engine's caller; the engine never
// swallows them.
type AgentFactory interface {
	// AgentFor returns an agent instance for the named agent type,
	// scoped to the given user.
	AgentFor(ctx context.Context, userCtx execution.UserContext, agentName string) (Agent, error)
}

// Notifier delivers per-user execution lifecycle notifications,
// typically over a WebSocket connection owned by the transport layer.
//
// Notifications are fire-and-forget from the engine's point of view: a
// notifier error is logged and never aborts execution bookkeeping.
type Notifier interface {
	// NotifyStarted reports that an agent execution began.
	NotifyStarted(ctx context.Context, agentCtx execution.AgentContext) error

	// NotifyThinking reports intermediate agent progress.
	NotifyThinking(ctx context.Context, agentCtx execution.AgentContext, message string) error

	// NotifyCompleted reports that an agent execution finished.
	NotifyCompleted(ctx context.Context, agentCtx execution.AgentContext, result execution.Result) error
}

// NotifierFactory produces a [Notifier] scoped to one user. The factory
// is consulted once per engine at creation time.
type NotifierFactory interface {
	NotifierFor(userCtx execution.UserContext) Notifier
}

// nopNotifier is the notifier used when no [NotifierFactory] is
// configured. All methods succeed without doing anything.
type nopNotifier struct{}

func (nopNotifier) NotifyStarted(context.Context, execution.AgentContext) error {
	return nil
}

func (nopNotifier) NotifyThinking(context.Context, execution.AgentContext, string) error {
	return nil
}

func (nopNotifier) NotifyCompleted(context.Context, execution.AgentContext, execution.Result) error {
	return nil
}
