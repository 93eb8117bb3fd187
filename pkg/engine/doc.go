// Package engine is the composition root: it turns a Config into a model
// completer, builds the persona chains and tools once, and runs the agent
// through an Executor. Frontends (the CLI, the MCP server) talk to Engine and
// observe runs through an EventBus.
package engine
