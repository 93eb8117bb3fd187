// Package effects holds agent.Effect implementations that steer a model
// which is not converging: repeating the same call, failing tool after tool,
// or running out of turns without answering.
package effects
