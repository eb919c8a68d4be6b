package websocket

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/canvaslab/canvas-sync/internal/store"
	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/models/wire"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

// VersionManager captures and serves immutable snapshots of document state.
// Both Create and Restore are invoked from the processor with the document
// lock held; List takes its own read through the store.
type VersionManager struct {
	store   *store.DocumentStore
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewVersionManager creates a version manager over the given store
func NewVersionManager(docs *store.DocumentStore, logger observability.Logger, metrics observability.MetricsClient) *VersionManager {
	return &VersionManager{
		store:   docs,
		logger:  logger,
		metrics: metrics,
	}
}

// Create appends a snapshot of the document's current state. The snapshot is
// a structurally independent deep copy: later live mutation never shows
// through a stored version.
func (vm *VersionManager) Create(doc *models.Document, user *models.User, description string, at time.Time) *models.Version {
	v := &models.Version{
		ID:          uuid.New().String(),
		Timestamp:   at,
		UserID:      user.ID,
		UserName:    user.Name,
		Description: description,
		Snapshot:    doc.State.Clone(),
	}

	vm.store.AppendVersion(doc, v)

	vm.logger.Info("Version created", map[string]interface{}{
		"document_id":   doc.ID,
		"version_id":    v.ID,
		"user_id":       user.ID,
		"element_count": len(v.Snapshot.Elements),
	})

	return v
}

// List returns the document's stored versions in creation order
func (vm *VersionManager) List(docID string) ([]*models.Version, *wire.Error) {
	doc, ok := vm.store.Get(docID)
	if !ok {
		return nil, wire.NewError(wire.ErrCodeUnknownDocument, fmt.Sprintf("unknown document %q", docID))
	}
	return doc.Versions, nil
}

// Restore replaces the document's live state wholesale with a deep copy of
// the stored snapshot. The stored version itself stays untouched, so a
// restore can itself be restored away from.
func (vm *VersionManager) Restore(doc *models.Document, versionID string) (*models.Version, *wire.Error) {
	for _, v := range doc.Versions {
		if v.ID == versionID {
			doc.State = v.Snapshot.Clone()
			vm.metrics.IncrementCounter("versions_restored_total", 1)
			return v, nil
		}
	}
	return nil, wire.NewError(wire.ErrCodeUnknownVersion, fmt.Sprintf("unknown version %q", versionID))
}
