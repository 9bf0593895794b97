package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

// MockPBXClient is a mock implementation of domain.PBXClient.
type MockPBXClient struct {
	mock.Mock
}

func (m *MockPBXClient) ListSubscribers(ctx context.Context, pbxDomain string) ([]*domain.Subscriber, error) {
	args := m.Called(ctx, pbxDomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscriber), args.Error(1)
}

func (m *MockPBXClient) CountDevicesForUser(ctx context.Context, pbxDomain, user string) (int, error) {
	args := m.Called(ctx, pbxDomain, user)
	return args.Int(0), args.Error(1)
}

func (m *MockPBXClient) CountDevicesForAddress(ctx context.Context, pbxDomain, address string) (int, error) {
	args := m.Called(ctx, pbxDomain, address)
	return args.Int(0), args.Error(1)
}

func (m *MockPBXClient) CreateOrFetchDevice(ctx context.Context, pbxDomain, address, user string) (*domain.DeviceCredential, error) {
	args := m.Called(ctx, pbxDomain, address, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeviceCredential), args.Error(1)
}

// MockTableWriter is a mock implementation of domain.TableWriter.
type MockTableWriter struct {
	mock.Mock
}

func (m *MockTableWriter) WriteTable(ctx context.Context, path string, headers []string, rows [][]string) error {
	args := m.Called(ctx, path, headers, rows)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

// MockRunAuditRepository is a mock implementation of domain.RunAuditRepository.
type MockRunAuditRepository struct {
	mock.Mock
}

func (m *MockRunAuditRepository) RecordRun(ctx context.Context, run *domain.ProvisioningRun, records []*domain.RunAuditRecord) error {
	args := m.Called(ctx, run, records)
	return args.Error(0)
}

func newTestService(pbx *MockPBXClient, writer *MockTableWriter, events EventPublisher, audit domain.RunAuditRepository) *ProvisioningAppService {
	logger := testLogger()
	return NewProvisioningAppService(
		pbx,
		NewExtensionResolver(new(MockTableReader), logger),
		NewEligibilityFilter(logger),
		NewReconciler(pbx, pbx, logger),
		writer,
		events,
		audit,
		logger,
	)
}

const testDomain = "acme.hosted.example.com"

func testRunRequest() RunRequest {
	return RunRequest{
		Domain:            testDomain,
		Extensions:        []string{"1001"},
		Options:           Options{Suffix: "r"},
		CreateImportFiles: true,
		ActiveFile:        "import_active.csv",
		AlreadyActiveFile: "import_already_active.csv",
		InactiveFile:      "import_inactive.csv",
	}
}

func TestProvisioningAppService_Run_BucketsAndFiles(t *testing.T) {
	pbx := new(MockPBXClient)
	writer := new(MockTableWriter)
	service := newTestService(pbx, writer, nil, nil)

	voicemail := eligibleSubscriber()
	voicemail.Extension = "1000"
	voicemail.FirstName = "Main"
	voicemail.LastName = "Voicemail"

	active := eligibleSubscriber() // 1001, requested, device count 1, none at address
	inactive := eligibleSubscriber()
	inactive.Extension = "1002" // not requested

	pbx.On("ListSubscribers", mock.Anything, testDomain).
		Return([]*domain.Subscriber{voicemail, active, inactive}, nil)
	pbx.On("CountDevicesForUser", mock.Anything, testDomain, "1001").Return(1, nil)
	pbx.On("CountDevicesForAddress", mock.Anything, testDomain, "1001r@"+testDomain).Return(0, nil)
	pbx.On("CreateOrFetchDevice", mock.Anything, testDomain, "1001r@"+testDomain, "1001r").
		Return(&domain.DeviceCredential{Password: "pw"}, nil)
	pbx.On("CountDevicesForUser", mock.Anything, testDomain, "1002").Return(1, nil)
	pbx.On("CountDevicesForAddress", mock.Anything, testDomain, "1002r@"+testDomain).Return(0, nil)

	// Only the two non-empty buckets get files; AlreadyActive stays empty.
	writer.On("WriteTable", mock.Anything, "import_active.csv", domain.ImportHeaders, mock.Anything).Return(nil).Once()
	writer.On("WriteTable", mock.Anything, "import_inactive.csv", domain.ImportHeaders, mock.Anything).Return(nil).Once()

	summary, err := service.Run(context.Background(), testRunRequest())

	assert.NoError(t, err)
	assert.Equal(t, 3, summary.Subscribers)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, summary.Active)
	assert.Equal(t, 0, summary.AlreadyActive)
	assert.Equal(t, 1, summary.Inactive)
	pbx.AssertExpectations(t)
	writer.AssertExpectations(t)
	writer.AssertNotCalled(t, "WriteTable", mock.Anything, "import_already_active.csv", mock.Anything, mock.Anything)
}

func TestProvisioningAppService_Run_PublishesEvents(t *testing.T) {
	pbx := new(MockPBXClient)
	writer := new(MockTableWriter)
	events := new(MockEventPublisher)
	service := newTestService(pbx, writer, events, nil)

	active := eligibleSubscriber()
	pbx.On("ListSubscribers", mock.Anything, testDomain).Return([]*domain.Subscriber{active}, nil)
	pbx.On("CountDevicesForUser", mock.Anything, testDomain, "1001").Return(1, nil)
	pbx.On("CountDevicesForAddress", mock.Anything, testDomain, "1001r@"+testDomain).Return(0, nil)
	pbx.On("CreateOrFetchDevice", mock.Anything, testDomain, "1001r@"+testDomain, "1001r").
		Return(&domain.DeviceCredential{Password: "pw"}, nil)

	events.On("Publish", mock.Anything, domain.NATSDeviceActivatedV1, mock.MatchedBy(func(data []byte) bool {
		var event domain.DeviceActivatedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return false
		}
		return event.Extension == "1001" && event.Address == "1001r@"+testDomain
	})).Return(nil).Once()
	events.On("Publish", mock.Anything, domain.NATSRunCompletedV1, mock.MatchedBy(func(data []byte) bool {
		var event domain.RunCompletedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return false
		}
		return event.ActiveCount == 1 && event.Domain == testDomain
	})).Return(nil).Once()

	req := testRunRequest()
	req.CreateImportFiles = false

	_, err := service.Run(context.Background(), req)

	assert.NoError(t, err)
	events.AssertExpectations(t)
}

func TestProvisioningAppService_Run_ReportOnlyNeverCreates(t *testing.T) {
	pbx := new(MockPBXClient)
	writer := new(MockTableWriter)
	service := newTestService(pbx, writer, nil, nil)

	active := eligibleSubscriber()
	pbx.On("ListSubscribers", mock.Anything, testDomain).Return([]*domain.Subscriber{active}, nil)
	pbx.On("CountDevicesForUser", mock.Anything, testDomain, "1001").Return(1, nil)
	pbx.On("CountDevicesForAddress", mock.Anything, testDomain, "1001r@"+testDomain).Return(0, nil)

	req := testRunRequest()
	req.CreateImportFiles = false
	req.Options.ReportOnly = true

	summary, err := service.Run(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, 0, summary.Active)
	assert.Equal(t, 1, summary.Inactive)
	pbx.AssertNotCalled(t, "CreateOrFetchDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisioningAppService_Run_PerSubscriberFailureContinues(t *testing.T) {
	pbx := new(MockPBXClient)
	writer := new(MockTableWriter)
	service := newTestService(pbx, writer, nil, nil)

	broken := eligibleSubscriber()
	healthy := eligibleSubscriber()
	healthy.Extension = "1002"
	healthy.Email = "line1002@example.com"

	pbx.On("ListSubscribers", mock.Anything, testDomain).Return([]*domain.Subscriber{broken, healthy}, nil)
	pbx.On("CountDevicesForUser", mock.Anything, testDomain, "1001").Return(0, errors.New("pbx hiccup"))
	pbx.On("CountDevicesForUser", mock.Anything, testDomain, "1002").Return(0, nil)

	req := testRunRequest()
	req.CreateImportFiles = false

	summary, err := service.Run(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, 1, summary.Inactive)
}

func TestProvisioningAppService_Run_ListFailureAborts(t *testing.T) {
	pbx := new(MockPBXClient)
	writer := new(MockTableWriter)
	service := newTestService(pbx, writer, nil, nil)

	pbx.On("ListSubscribers", mock.Anything, testDomain).Return(nil, errors.New("unauthorized"))

	req := testRunRequest()

	summary, err := service.Run(context.Background(), req)

	assert.Error(t, err)
	assert.Nil(t, summary)
	writer.AssertNotCalled(t, "WriteTable", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisioningAppService_Run_MissingDomainIsFatal(t *testing.T) {
	service := newTestService(new(MockPBXClient), new(MockTableWriter), nil, nil)

	req := testRunRequest()
	req.Domain = ""

	_, err := service.Run(context.Background(), req)

	assert.Error(t, err)
}

func TestProvisioningAppService_Run_RecordsAuditTrail(t *testing.T) {
	pbx := new(MockPBXClient)
	writer := new(MockTableWriter)
	audit := new(MockRunAuditRepository)
	service := newTestService(pbx, writer, nil, audit)

	active := eligibleSubscriber()
	pbx.On("ListSubscribers", mock.Anything, testDomain).Return([]*domain.Subscriber{active}, nil)
	pbx.On("CountDevicesForUser", mock.Anything, testDomain, "1001").Return(1, nil)
	pbx.On("CountDevicesForAddress", mock.Anything, testDomain, "1001r@"+testDomain).Return(0, nil)
	pbx.On("CreateOrFetchDevice", mock.Anything, testDomain, "1001r@"+testDomain, "1001r").
		Return(&domain.DeviceCredential{Password: "pw"}, nil)

	audit.On("RecordRun", mock.Anything, mock.MatchedBy(func(run *domain.ProvisioningRun) bool {
		return run.Domain == testDomain && run.ActiveCount == 1
	}), mock.MatchedBy(func(records []*domain.RunAuditRecord) bool {
		return len(records) == 1 && records[0].Extension == "1001" && records[0].Bucket == domain.BucketActive
	})).Return(nil).Once()

	req := testRunRequest()
	req.CreateImportFiles = false

	_, err := service.Run(context.Background(), req)

	assert.NoError(t, err)
	audit.AssertExpectations(t)
}
