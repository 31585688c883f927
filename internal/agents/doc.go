// Package agents implements the concrete Agent Runtime variants named in
// §4.4: debate workers (moderator, arbitrator, refiner, workflow_generator)
// and a tool executor, each wired up by fabricctl agent run, and the
// coordinator — the orchestrator-facing variant, run by fabricctl broker,
// that owns the Intelligence Hub and debate-protocol state machine for the
// whole fabric.
//
// Every variant is a thin capability implementation handed to
// internal/agentrt.New; the runtime supplies subscription, heartbeat,
// dedupe and dispatch. What each variant decides to say is delegated to a
// Responder, so a real model client can be substituted for the
// deterministic default without touching runtime wiring.
package agents
