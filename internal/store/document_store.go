// Package store owns the in-memory map of document id to document, the
// per-document operation log and the version list caps. It is pure data
// access: permission checks and operation semantics live in the processing
// layer above it.
package store

import (
	"sync"
	"time"

	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

// Config bounds the per-document retention of the store
type Config struct {
	// OpLogCap is the maximum number of operations retained per document;
	// older entries are discarded oldest-first
	OpLogCap int `mapstructure:"oplog_cap"`
	// VersionCap is the maximum number of versions retained per document
	VersionCap int `mapstructure:"version_cap"`
}

// DefaultConfig returns the default retention bounds
func DefaultConfig() Config {
	return Config{
		OpLogCap:   1000,
		VersionCap: 50,
	}
}

// DocumentStore holds every live document. Documents come into existence only
// through Create; they are never deleted.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*models.Document
	oplogs    map[string][]*models.Operation
	config    Config
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// New creates an empty document store
func New(config Config, logger observability.Logger, metrics observability.MetricsClient) *DocumentStore {
	if config.OpLogCap <= 0 {
		config.OpLogCap = DefaultConfig().OpLogCap
	}
	if config.VersionCap <= 0 {
		config.VersionCap = DefaultConfig().VersionCap
	}
	return &DocumentStore{
		documents: make(map[string]*models.Document),
		oplogs:    make(map[string][]*models.Operation),
		config:    config,
		logger:    logger,
		metrics:   metrics,
	}
}

// Get returns the document with the given id, or false if it does not exist
func (s *DocumentStore) Get(id string) (*models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	return doc, ok
}

// Create initializes a new document with empty state and the creating user as
// owner. It is the only place a document's existence begins. Creating an id
// that already exists returns the existing document untouched.
func (s *DocumentStore) Create(id, title, ownerID string) *models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.documents[id]; ok {
		return doc
	}

	now := time.Now()
	doc := &models.Document{
		ID:          id,
		Title:       title,
		State:       models.NewDocumentState(),
		Permissions: map[string]models.Permission{ownerID: models.PermissionOwner},
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	s.documents[id] = doc

	s.metrics.IncrementCounter("documents_created_total", 1)
	s.metrics.RecordGauge("documents_active", float64(len(s.documents)))
	s.logger.Info("Document created", map[string]interface{}{
		"document_id": id,
		"owner_id":    ownerID,
	})

	return doc
}

// Save replaces the stored document. It is idempotent; saving a document that
// is already current is a no-op in effect.
func (s *DocumentStore) Save(doc *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
}

// AppendOperation appends an accepted operation to the document's log,
// discarding the oldest entry once the cap is reached
func (s *DocumentStore) AppendOperation(docID string, op *models.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.oplogs[docID], op)
	if len(log) > s.config.OpLogCap {
		log = log[len(log)-s.config.OpLogCap:]
	}
	s.oplogs[docID] = log

	s.metrics.IncrementCounter("operations_logged_total", 1)
}

// OperationsSince returns, in append order, the logged operations with a
// timestamp strictly after since
func (s *DocumentStore) OperationsSince(docID string, since time.Time) []*models.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.oplogs[docID]
	out := make([]*models.Operation, 0, len(log))
	for _, op := range log {
		if op.Timestamp.After(since) {
			out = append(out, op)
		}
	}
	return out
}

// AppendVersion appends a version to the document's list, dropping the oldest
// entry once the cap is reached
func (s *DocumentStore) AppendVersion(doc *models.Document, v *models.Version) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.Versions = append(doc.Versions, v)
	if len(doc.Versions) > s.config.VersionCap {
		doc.Versions = doc.Versions[len(doc.Versions)-s.config.VersionCap:]
	}

	s.metrics.IncrementCounter("versions_created_total", 1)
}

// Count returns the number of documents in the store
func (s *DocumentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}
