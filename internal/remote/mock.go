package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// mockObject is one node in a MockAdapter's in-memory tree.
type mockObject struct {
	cloudID  string
	parentID string
	name     string
	kind     Kind
	content  []byte
	etag     string
	revision string
	modified time.Time
}

// MockAdapter is an in-memory Adapter used by sync engine and FUSE surface
// tests in place of a real Apple-backed implementation (out of scope per
// spec.md section 1). Grounded on the teacher's mock-transport test style
// (internal/sync/observer_remote_test.go's mockDeltaFetcher): a plain struct
// holding canned/recorded state behind a mutex, with call counters exposed
// for assertions.
type MockAdapter struct {
	mu      sync.Mutex
	objects map[string]*mockObject
	nextID  int

	// FailNext, when non-nil, is returned (and cleared) by the next call to
	// List or to any mutating method, letting tests inject a single transient
	// failure.
	FailNext error

	Calls struct {
		List, Metadata, DownloadRange, Upload, Rename, Move, Delete, CreateFolder int
	}
}

// NewMockAdapter returns an empty MockAdapter with only a root folder.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		objects: map[string]*mockObject{
			"": {cloudID: "", kind: KindFolder, name: "", modified: time.Unix(0, 0)},
		},
	}
}

func (m *MockAdapter) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil

	return err
}

func (m *MockAdapter) mintID() string {
	m.nextID++
	return fmt.Sprintf("mock-%d", m.nextID)
}

// List returns the immediate children of folderCloudID.
func (m *MockAdapter) List(_ context.Context, folderCloudID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls.List++

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var entries []Entry

	for _, o := range m.objects {
		if o.cloudID == "" || o.parentID != folderCloudID {
			continue
		}

		entries = append(entries, Entry{
			CloudID: o.cloudID, Name: o.name, Kind: o.kind,
			Size: int64(len(o.content)), ETag: o.etag, ModifiedAt: o.modified,
		})
	}

	return entries, nil
}

// Metadata returns the current attributes of cloudID.
func (m *MockAdapter) Metadata(_ context.Context, cloudID string) (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls.Metadata++

	o, ok := m.objects[cloudID]
	if !ok {
		return Metadata{}, ErrNotFound
	}

	return Metadata{ETag: o.etag, Revision: o.revision, ModifiedAt: o.modified, Size: int64(len(o.content))}, nil
}

// DownloadRange returns bytes [start, end) of cloudID's content.
func (m *MockAdapter) DownloadRange(_ context.Context, cloudID string, start, end int64, ifNoneMatch string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls.DownloadRange++

	o, ok := m.objects[cloudID]
	if !ok {
		return nil, ErrNotFound
	}

	if ifNoneMatch != "" && ifNoneMatch == o.etag {
		return nil, ErrNotModified
	}

	if start < 0 || end > int64(len(o.content)) || start > end {
		return nil, fmt.Errorf("remote: invalid range [%d, %d) for %d bytes", start, end, len(o.content))
	}

	return io.NopCloser(bytes.NewReader(o.content[start:end])), nil
}

// Upload creates or replaces cloudID's content.
func (m *MockAdapter) Upload(_ context.Context, parentCloudID, name string, content io.Reader, size int64, ifMatch string) (MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls.Upload++

	if err := m.takeFailure(); err != nil {
		return MutationResult{}, err
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return MutationResult{}, fmt.Errorf("remote: read upload content: %w", err)
	}

	if existing := m.findChild(parentCloudID, name); existing != nil {
		if ifMatch != "" && ifMatch != existing.etag {
			return MutationResult{}, ErrPreconditionFailed
		}

		existing.content = data
		existing.etag = m.mintID()
		existing.revision = m.mintID()
		existing.modified = time.Now()

		return MutationResult{CloudID: existing.cloudID, ETag: existing.etag, Revision: existing.revision}, nil
	}

	o := &mockObject{
		cloudID: m.mintID(), parentID: parentCloudID, name: name, kind: KindFile,
		content: data, etag: m.mintID(), revision: m.mintID(), modified: time.Now(),
	}
	m.objects[o.cloudID] = o

	return MutationResult{CloudID: o.cloudID, ETag: o.etag, Revision: o.revision}, nil
}

func (m *MockAdapter) findChild(parentID, name string) *mockObject {
	for _, o := range m.objects {
		if o.parentID == parentID && o.name == name {
			return o
		}
	}

	return nil
}

// Rename changes cloudID's name in place.
func (m *MockAdapter) Rename(_ context.Context, cloudID, newName, ifMatch string) (MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls.Rename++

	if err := m.takeFailure(); err != nil {
		return MutationResult{}, err
	}

	o, ok := m.objects[cloudID]
	if !ok {
		return MutationResult{}, ErrNotFound
	}

	if ifMatch != "" && ifMatch != o.etag {
		return MutationResult{}, ErrPreconditionFailed
	}

	o.name = newName
	o.etag = m.mintID()
	o.revision = m.mintID()

	return MutationResult{CloudID: o.cloudID, ETag: o.etag, Revision: o.revision}, nil
}

// Move reparents cloudID under newParentCloudID.
func (m *MockAdapter) Move(_ context.Context, cloudID, newParentCloudID, ifMatch string) (MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls.Move++

	if err := m.takeFailure(); err != nil {
		return MutationResult{}, err
	}

	o, ok := m.objects[cloudID]
	if !ok {
		return MutationResult{}, ErrNotFound
	}

	if ifMatch != "" && ifMatch != o.etag {
		return MutationResult{}, ErrPreconditionFailed
	}

	o.parentID = newParentCloudID
	o.etag = m.mintID()
	o.revision = m.mintID()

	return MutationResult{CloudID: o.cloudID, ETag: o.etag, Revision: o.revision}, nil
}

// Delete removes cloudID.
func (m *MockAdapter) Delete(_ context.Context, cloudID, ifMatch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls.Delete++

	if err := m.takeFailure(); err != nil {
		return err
	}

	o, ok := m.objects[cloudID]
	if !ok {
		return ErrNotFound
	}

	if ifMatch != "" && ifMatch != o.etag {
		return ErrPreconditionFailed
	}

	delete(m.objects, cloudID)

	return nil
}

// CreateFolder creates a folder named name under parentCloudID.
func (m *MockAdapter) CreateFolder(_ context.Context, parentCloudID, name string) (MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls.CreateFolder++

	if err := m.takeFailure(); err != nil {
		return MutationResult{}, err
	}

	if existing := m.findChild(parentCloudID, name); existing != nil {
		return MutationResult{}, fmt.Errorf("remote: %w: %s already exists", ErrPreconditionFailed, name)
	}

	o := &mockObject{
		cloudID: m.mintID(), parentID: parentCloudID, name: name, kind: KindFolder,
		etag: m.mintID(), revision: m.mintID(), modified: time.Now(),
	}
	m.objects[o.cloudID] = o

	return MutationResult{CloudID: o.cloudID, ETag: o.etag, Revision: o.revision}, nil
}

// Compile-time interface check.
var _ Adapter = (*MockAdapter)(nil)
