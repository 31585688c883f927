// Package heartbeat implements agent liveness: the per-agent TTL'd
// presence key each agent refreshes, and the monitor that derives and
// broadcasts system readiness from those keys.
package heartbeat

import "fmt"

// Key returns the liveness key for an agent name: "{agent_name}_heartbeat".
func Key(agentName string) string {
	return fmt.Sprintf("%s_heartbeat", agentName)
}

// Alive is the sentinel value written to a liveness key.
const Alive = "alive"

// Channel is the bus channel the monitor publishes system_status_update
// payloads to.
const Channel = "system_status"

// Status is one agent's derived online/offline state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)
