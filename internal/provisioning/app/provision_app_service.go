package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

// EventPublisher is the slice of the message broker the run uses.
// Satisfied by *messagebroker.NatsClient.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// RunRequest describes one activation run.
type RunRequest struct {
	Domain        string
	Extensions    []string
	ExtensionFile string // wins over Extensions when both are given
	Options       Options

	CreateImportFiles bool
	ActiveFile        string
	AlreadyActiveFile string
	InactiveFile      string
}

// RunSummary is what a finished run reports back to the operator.
type RunSummary struct {
	RunID         uuid.UUID
	Domain        string
	Subscribers   int
	Blocked       int
	Active        int
	AlreadyActive int
	Inactive      int
	Dropped       int // eligible subscribers that yielded no record
}

// ProvisioningAppService orchestrates one activation run: resolve the
// requested set, walk every subscriber of the domain through the eligibility
// filter and the reconciler, then serialize the non-empty buckets and hand
// the outcome to the optional collaborators (event bus, audit store).
type ProvisioningAppService struct {
	pbx        domain.PBXClient
	resolver   *ExtensionResolver
	filter     *EligibilityFilter
	reconciler *Reconciler
	writer     domain.TableWriter
	events     EventPublisher            // nil disables event publishing
	audit      domain.RunAuditRepository // nil disables the audit trail
	logger     *slog.Logger
}

// NewProvisioningAppService creates a new ProvisioningAppService.
func NewProvisioningAppService(
	pbx domain.PBXClient,
	resolver *ExtensionResolver,
	filter *EligibilityFilter,
	reconciler *Reconciler,
	writer domain.TableWriter,
	events EventPublisher,
	audit domain.RunAuditRepository,
	logger *slog.Logger,
) *ProvisioningAppService {
	return &ProvisioningAppService{
		pbx:        pbx,
		resolver:   resolver,
		filter:     filter,
		reconciler: reconciler,
		writer:     writer,
		events:     events,
		audit:      audit,
		logger:     logger.With("service", "provisioning_app"),
	}
}

// Run executes one activation run. Pre-flight failures (bad parameters,
// unreadable extension file, subscriber listing) abort with an error and
// leave nothing written; per-subscriber failures are logged and skipped.
func (s *ProvisioningAppService) Run(ctx context.Context, req RunRequest) (*RunSummary, error) {
	if req.Domain == "" {
		return nil, errors.New("domain is required")
	}
	if req.Options.Suffix == "" {
		return nil, errors.New("device address suffix is required")
	}

	startedAt := time.Now().UTC()
	summary := &RunSummary{RunID: uuid.New(), Domain: req.Domain}
	runLogger := s.logger.With("run_id", summary.RunID.String(), "domain", req.Domain)
	runLogger.InfoContext(ctx, "Activation run starting",
		"report_only", req.Options.ReportOnly, "create_billable", req.Options.CreateBillable)

	requested, err := s.resolver.Resolve(ctx, req.Extensions, req.ExtensionFile)
	if err != nil {
		return nil, fmt.Errorf("resolving requested extensions: %w", err)
	}
	runLogger.InfoContext(ctx, "Requested extensions resolved", "count", requested.Len())

	subscribers, err := s.pbx.ListSubscribers(ctx, req.Domain)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers for %s: %w", req.Domain, err)
	}
	summary.Subscribers = len(subscribers)
	runLogger.InfoContext(ctx, "Subscribers fetched", "count", len(subscribers))

	set := NewImportSet()
	var auditRecords []*domain.RunAuditRecord

	for _, sub := range subscribers {
		decision := s.filter.Classify(sub)
		if decision.Blocked {
			subscribersScreenedCounter.WithLabelValues("blocked").Inc()
			summary.Blocked++
			runLogger.DebugContext(ctx, "Subscriber blocked", "extension", sub.Extension, "reason", decision.Reason)
			continue
		}
		subscribersScreenedCounter.WithLabelValues("eligible").Inc()

		rec, bucket, err := s.reconciler.Reconcile(ctx, sub, requested, req.Options)
		if err != nil {
			runLogger.WarnContext(ctx, "Subscriber skipped after reconciliation failure",
				"extension", sub.Extension, "error", err)
			summary.Dropped++
			continue
		}
		if rec == nil {
			summary.Dropped++
			continue
		}

		set.Append(rec, bucket)
		importRecordsCounter.WithLabelValues(string(bucket)).Inc()
		auditRecords = append(auditRecords, &domain.RunAuditRecord{Extension: rec.Extension, Bucket: bucket})

		if bucket == domain.BucketActive {
			s.publishDeviceActivated(ctx, runLogger, summary.RunID, req, rec)
		}
	}

	summary.Active, summary.AlreadyActive, summary.Inactive = set.Counts()

	if req.CreateImportFiles {
		s.writeImportFiles(ctx, runLogger, req, set)
	}

	s.publishRunCompleted(ctx, runLogger, summary, req.Options.ReportOnly)
	s.recordAudit(ctx, runLogger, summary, req.Options, startedAt, auditRecords)

	runLogger.InfoContext(ctx, "Activation run finished",
		"subscribers", summary.Subscribers,
		"blocked", summary.Blocked,
		"active", summary.Active,
		"already_active", summary.AlreadyActive,
		"inactive", summary.Inactive,
		"dropped", summary.Dropped,
	)
	return summary, nil
}

// writeImportFiles serializes every non-empty bucket. An empty bucket
// produces no file at all.
func (s *ProvisioningAppService) writeImportFiles(ctx context.Context, logger *slog.Logger, req RunRequest, set *ImportSet) {
	targets := []struct {
		bucket domain.Bucket
		path   string
	}{
		{domain.BucketActive, req.ActiveFile},
		{domain.BucketAlreadyActive, req.AlreadyActiveFile},
		{domain.BucketInactive, req.InactiveFile},
	}
	for _, target := range targets {
		rows := set.Rows(target.bucket)
		if len(rows) == 0 {
			continue
		}
		if err := s.writer.WriteTable(ctx, target.path, domain.ImportHeaders, rows); err != nil {
			logger.ErrorContext(ctx, "Failed to write import file",
				"bucket", string(target.bucket), "path", target.path, "error", err)
			continue
		}
		logger.InfoContext(ctx, "Import file written",
			"bucket", string(target.bucket), "path", target.path, "rows", len(rows))
	}
}

func (s *ProvisioningAppService) publishDeviceActivated(ctx context.Context, logger *slog.Logger, runID uuid.UUID, req RunRequest, rec *domain.ImportRecord) {
	if s.events == nil {
		return
	}
	event := domain.DeviceActivatedEvent{
		RunID:     runID,
		Domain:    req.Domain,
		Extension: rec.Extension,
		Address:   rec.Username + "@" + req.Domain,
		Username:  rec.Username,
		Email:     rec.Email,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal device activated event", "error", err)
		return
	}
	if err := s.events.Publish(ctx, domain.NATSDeviceActivatedV1, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish device activated event",
			"extension", rec.Extension, "error", err)
	}
}

func (s *ProvisioningAppService) publishRunCompleted(ctx context.Context, logger *slog.Logger, summary *RunSummary, reportOnly bool) {
	if s.events == nil {
		return
	}
	event := domain.RunCompletedEvent{
		RunID:         summary.RunID,
		Domain:        summary.Domain,
		ReportOnly:    reportOnly,
		ActiveCount:   summary.Active,
		AlreadyCount:  summary.AlreadyActive,
		InactiveCount: summary.Inactive,
		BlockedCount:  summary.Blocked,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal run completed event", "error", err)
		return
	}
	if err := s.events.Publish(ctx, domain.NATSRunCompletedV1, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish run completed event", "error", err)
	}
}

func (s *ProvisioningAppService) recordAudit(ctx context.Context, logger *slog.Logger, summary *RunSummary, opts Options, startedAt time.Time, records []*domain.RunAuditRecord) {
	if s.audit == nil {
		return
	}
	run := &domain.ProvisioningRun{
		ID:             summary.RunID,
		Domain:         summary.Domain,
		ReportOnly:     opts.ReportOnly,
		CreateBillable: opts.CreateBillable,
		StartedAt:      startedAt,
		FinishedAt:     time.Now().UTC(),
		ActiveCount:    summary.Active,
		AlreadyCount:   summary.AlreadyActive,
		InactiveCount:  summary.Inactive,
		BlockedCount:   summary.Blocked,
	}
	if err := s.audit.RecordRun(ctx, run, records); err != nil {
		logger.ErrorContext(ctx, "Failed to record run audit trail", "error", err)
	}
}
