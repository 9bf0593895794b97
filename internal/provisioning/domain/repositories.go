package domain // provisioning/domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DeviceCredential is what the PBX hands back for a created (or re-fetched)
// device registration.
type DeviceCredential struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SubscriberLister fetches every subscriber of a domain.
type SubscriberLister interface {
	ListSubscribers(ctx context.Context, domain string) ([]*Subscriber, error)
}

// DeviceCounter reports how many devices exist, either for a subscriber user
// (the billability signal) or for one specific address-of-record.
type DeviceCounter interface {
	CountDevicesForUser(ctx context.Context, domain, user string) (int, error)
	CountDevicesForAddress(ctx context.Context, domain, address string) (int, error)
}

// DeviceWriter creates the device for an address, or returns the existing
// device's credential when the PBX already has one (the platform treats the
// call as an upsert). A nil credential with a nil error means the platform
// produced no result for the request.
type DeviceWriter interface {
	CreateOrFetchDevice(ctx context.Context, domain, address, user string) (*DeviceCredential, error)
}

// PBXClient is the full remote-platform capability the run consumes.
type PBXClient interface {
	SubscriberLister
	DeviceCounter
	DeviceWriter
}

// Table is a parsed tabular file: a header row plus data rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

// TableReader parses a tabular file with named columns.
type TableReader interface {
	ReadTable(ctx context.Context, path string) (*Table, error)
}

// TableWriter serializes rows under a header row. The run only invokes it for
// non-empty buckets.
type TableWriter interface {
	WriteTable(ctx context.Context, path string, headers []string, rows [][]string) error
}

// ProvisioningRun is the audit header for one execution.
type ProvisioningRun struct {
	ID             uuid.UUID
	Domain         string
	ReportOnly     bool
	CreateBillable bool
	StartedAt      time.Time
	FinishedAt     time.Time
	ActiveCount    int
	AlreadyCount   int
	InactiveCount  int
	BlockedCount   int
}

// RunAuditRecord is one per-subscriber audit row.
type RunAuditRecord struct {
	Extension string
	Bucket    Bucket
}

// RunAuditRepository persists run outcomes for later review.
type RunAuditRepository interface {
	RecordRun(ctx context.Context, run *ProvisioningRun, records []*RunAuditRecord) error
}
