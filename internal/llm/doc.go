// Package llm defines the provider-neutral conversation model (turns, parts,
// tool invocations and results) and the gateway interfaces the agents use to
// talk to text and image models. Provider adapters live in subpackages.
package llm
