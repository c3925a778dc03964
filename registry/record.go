package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// WorkflowRecordService stores workflow execution records keyed by
// (workflow, record id). The spec snapshot inside a record never
// changes after Create; only context, outputs, errors and run status
// mutate, through Update.
type WorkflowRecordService struct {
	store  store.Store
	logger *slog.Logger
}

func NewWorkflowRecordService(s store.Store, logger *slog.Logger) *WorkflowRecordService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowRecordService{store: s, logger: logger}
}

// Create snapshots the given spec into a fresh record and writes it
// optimistically. The initial context maps each supplied input onto
// workflow.<name>.
func (s *WorkflowRecordService) Create(ctx context.Context, spec resource.WorkflowSpec, inputs map[string]string, workspace, namespace string) (resource.WorkflowRecord, error) {
	return s.CreateRecord(ctx, resource.NewWorkflowRecord(spec, inputs, workspace), namespace)
}

// CreateRecord writes a pre-built record, failing when the id is taken.
// Callers that derive the id from a message use this for idempotency.
func (s *WorkflowRecordService) CreateRecord(ctx context.Context, record resource.WorkflowRecord, namespace string) (resource.WorkflowRecord, error) {
	data, err := resource.Encode(record)
	if err != nil {
		return resource.WorkflowRecord{}, err
	}
	key := resource.RecordKey(namespace, record.Name, record.ID)
	created, err := s.store.PutIfAbsent(ctx, key, data)
	if err != nil {
		return resource.WorkflowRecord{}, fmt.Errorf("create record %s: %w", key, err)
	}
	if !created {
		return resource.WorkflowRecord{}, &resource.AlreadyExistsError{Type: resource.TypeWorkflow, Namespace: namespace, Name: record.ID}
	}
	return record, nil
}

func (s *WorkflowRecordService) Get(ctx context.Context, workflow, recordID, namespace string) (resource.WorkflowRecord, error) {
	key := resource.RecordKey(namespace, workflow, recordID)
	data, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return resource.WorkflowRecord{}, fmt.Errorf("get record %s: %w", key, err)
	}
	if !ok {
		return resource.WorkflowRecord{}, &resource.NotFoundError{Type: resource.TypeWorkflow, Namespace: namespace, Name: recordID}
	}
	var record resource.WorkflowRecord
	if err := resource.Decode(data, &record); err != nil {
		return resource.WorkflowRecord{}, err
	}
	return record, nil
}

// Update persists record mutations. The record must already exist;
// the write itself is blind because router handling is serial per
// record.
func (s *WorkflowRecordService) Update(ctx context.Context, record resource.WorkflowRecord, namespace string) (resource.WorkflowRecord, error) {
	key := resource.RecordKey(namespace, record.Name, record.ID)
	if _, ok, err := s.store.Get(ctx, key); err != nil {
		return resource.WorkflowRecord{}, fmt.Errorf("get record %s: %w", key, err)
	} else if !ok {
		return resource.WorkflowRecord{}, &resource.NotFoundError{Type: resource.TypeWorkflow, Namespace: namespace, Name: record.ID}
	}
	data, err := resource.Encode(record)
	if err != nil {
		return resource.WorkflowRecord{}, err
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		return resource.WorkflowRecord{}, fmt.Errorf("update record %s: %w", key, err)
	}
	return record, nil
}

// List returns records for one workflow, or for every workflow when
// workflow is empty.
func (s *WorkflowRecordService) List(ctx context.Context, workflow, namespace string) ([]resource.WorkflowRecord, error) {
	if namespace == "" {
		namespace = resource.DefaultNamespace
	}
	prefix := resource.RecordRoot + "/" + namespace
	if workflow != "" {
		prefix += "/" + workflow
	}
	entries, err := s.store.GetPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list records under %s: %w", prefix, err)
	}
	records := make([]resource.WorkflowRecord, 0, len(entries))
	for _, entry := range entries {
		var record resource.WorkflowRecord
		if err := resource.Decode(entry.Value, &record); err != nil {
			s.logger.Warn("skipping malformed record", "key", entry.Key, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *WorkflowRecordService) Delete(ctx context.Context, workflow, recordID, namespace string) (bool, error) {
	existed, err := s.store.Delete(ctx, resource.RecordKey(namespace, workflow, recordID))
	if err != nil {
		return false, fmt.Errorf("delete record %s/%s: %w", workflow, recordID, err)
	}
	return existed, nil
}
