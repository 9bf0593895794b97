package domain // provisioning/domain

import "github.com/google/uuid"

const (
	NATSDeviceActivatedV1 = "provisioning.device.activated.v1"
	NATSRunCompletedV1    = "provisioning.run.completed.v1"
)

// DeviceActivatedEvent is published for every device created during a run so
// the softphone provisioning service can pick the subscriber up without
// waiting for the import files. Credentials stay out of the event; the
// consumer fetches them from the PBX itself.
type DeviceActivatedEvent struct {
	RunID     uuid.UUID `json:"run_id"`
	Domain    string    `json:"domain"`
	Extension string    `json:"extension"`
	Address   string    `json:"address"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
}

// RunCompletedEvent is published once at the end of a run.
type RunCompletedEvent struct {
	RunID         uuid.UUID `json:"run_id"`
	Domain        string    `json:"domain"`
	ReportOnly    bool      `json:"report_only"`
	ActiveCount   int       `json:"active_count"`
	AlreadyCount  int       `json:"already_active_count"`
	InactiveCount int       `json:"inactive_count"`
	BlockedCount  int       `json:"blocked_count"`
}
