package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

// Options are the immutable mode flags for one run.
type Options struct {
	// Suffix appended to the extension when composing the device
	// address-of-record (default "r").
	Suffix string
	// PreferCallerIDName uses the caller-ID name for the import record's name
	// column when it is non-blank.
	PreferCallerIDName bool
	// CreateBillable allows creating a device for an extension that has no
	// device yet (i.e. one that is not billable today).
	CreateBillable bool
	// ReportOnly simulates the run: no device-creation calls for new devices.
	ReportOnly bool
}

// Reconciler decides, for one eligible subscriber, whether a device must be
// created, already exists, or the subscriber is skipped, and builds the
// matching import record. Device creation sits behind domain.DeviceWriter;
// the PBX treats the call as an upsert, which is also how the credential of a
// pre-existing device is retrieved.
type Reconciler struct {
	counter domain.DeviceCounter
	writer  domain.DeviceWriter
	logger  *slog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(counter domain.DeviceCounter, writer domain.DeviceWriter, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		counter: counter,
		writer:  writer,
		logger:  logger.With("component", "reconciler"),
	}
}

// Reconcile runs the decision table for one subscriber that already passed
// the eligibility filter. A nil record with a nil error means the subscriber
// yields no output at all (a failed or empty creation result); an error is a
// per-subscriber degradation the caller logs before moving on.
func (r *Reconciler) Reconcile(ctx context.Context, sub *domain.Subscriber, requested RequestedSet, opts Options) (*domain.ImportRecord, domain.Bucket, error) {
	deviceCount, err := r.counter.CountDevicesForUser(ctx, sub.Domain, sub.Extension)
	if err != nil {
		return nil, "", fmt.Errorf("counting devices for %s: %w", sub.Extension, err)
	}

	addr := domain.DeviceAddress{Extension: sub.Extension, Suffix: opts.Suffix, Domain: sub.Domain}

	// An extension with no device at all is not billable yet; without the
	// explicit override it is reported but never provisioned.
	if deviceCount == 0 && !opts.CreateBillable {
		r.logger.DebugContext(ctx, "Extension has no billable device", "extension", sub.Extension)
		return r.record(sub, addr.User(), "", opts), domain.BucketInactive, nil
	}

	addrCount, err := r.counter.CountDevicesForAddress(ctx, sub.Domain, addr.String())
	if err != nil {
		return nil, "", fmt.Errorf("counting devices at %s: %w", addr, err)
	}

	if addrCount >= 1 {
		// The device is already there; the upsert call hands back its
		// credential so the import row stays complete.
		cred, err := r.writer.CreateOrFetchDevice(ctx, sub.Domain, addr.String(), addr.User())
		if err != nil {
			deviceCreateCallsCounter.WithLabelValues("error").Inc()
			return nil, "", fmt.Errorf("fetching existing device %s: %w", addr, err)
		}
		if cred == nil {
			deviceCreateCallsCounter.WithLabelValues("empty").Inc()
			r.logger.WarnContext(ctx, "PBX returned no device for an address it counted", "address", addr.String())
			return nil, "", nil
		}
		deviceCreateCallsCounter.WithLabelValues("success").Inc()
		user := domain.UserFromAddress(addr.String())
		rec := r.record(sub, user, cred.Password, opts)
		return rec, domain.BucketAlreadyActive, nil
	}

	if !requested.Contains(sub.Extension) {
		return r.record(sub, addr.User(), "", opts), domain.BucketInactive, nil
	}

	if opts.ReportOnly {
		r.logger.InfoContext(ctx, "Report-only: would create device", "address", addr.String())
		return r.record(sub, addr.User(), "", opts), domain.BucketInactive, nil
	}

	cred, err := r.writer.CreateOrFetchDevice(ctx, sub.Domain, addr.String(), addr.User())
	if err != nil {
		deviceCreateCallsCounter.WithLabelValues("error").Inc()
		return nil, "", fmt.Errorf("creating device %s: %w", addr, err)
	}
	if cred == nil {
		deviceCreateCallsCounter.WithLabelValues("empty").Inc()
		r.logger.WarnContext(ctx, "Device creation returned no result", "address", addr.String())
		return nil, "", nil
	}

	deviceCreateCallsCounter.WithLabelValues("success").Inc()
	r.logger.InfoContext(ctx, "Device created", "address", addr.String(), "extension", sub.Extension)
	return r.record(sub, addr.User(), cred.Password, opts), domain.BucketActive, nil
}

func (r *Reconciler) record(sub *domain.Subscriber, user, password string, opts Options) *domain.ImportRecord {
	return &domain.ImportRecord{
		Extension: sub.Extension,
		Name:      recordName(sub, opts),
		Email:     sub.Email,
		Username:  user,
		Authname:  user,
		Password:  password,
	}
}

func recordName(sub *domain.Subscriber, opts Options) string {
	if opts.PreferCallerIDName && strings.TrimSpace(sub.CallerIDName) != "" {
		return sub.CallerIDName
	}
	return sub.DisplayName
}
