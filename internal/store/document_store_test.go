package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

func newTestStore(cfg Config) *DocumentStore {
	return New(cfg, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
}

func TestCreateInitializesDocument(t *testing.T) {
	s := newTestStore(DefaultConfig())

	doc := s.Create("d1", "Untitled", "alice")
	require.NotNil(t, doc)

	assert.Equal(t, "d1", doc.ID)
	assert.Empty(t, doc.State.Elements)
	assert.Equal(t, models.PermissionOwner, doc.Permissions["alice"])
	assert.NotEmpty(t, doc.Permissions, "permission map must never be empty once a document exists")
	assert.False(t, doc.CreatedAt.IsZero())

	got, ok := s.Get("d1")
	require.True(t, ok)
	assert.Same(t, doc, got)
}

func TestCreateExistingIDReturnsExisting(t *testing.T) {
	s := newTestStore(DefaultConfig())

	first := s.Create("d1", "Untitled", "alice")
	second := s.Create("d1", "Other title", "bob")

	assert.Same(t, first, second)
	assert.Equal(t, models.PermissionOwner, second.Permissions["alice"])
	_, ok := second.Permissions["bob"]
	assert.False(t, ok, "re-creating an existing document must not grant the second caller anything")
}

func TestGetAbsent(t *testing.T) {
	s := newTestStore(DefaultConfig())
	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestAppendOperationCap(t *testing.T) {
	s := newTestStore(Config{OpLogCap: 3, VersionCap: 10})
	s.Create("d1", "Untitled", "alice")

	base := time.Now()
	for i := 0; i < 5; i++ {
		s.AppendOperation("d1", &models.Operation{
			ID:        fmt.Sprintf("op-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		})
	}

	ops := s.OperationsSince("d1", base.Add(-time.Second))
	require.Len(t, ops, 3, "log must retain only the newest entries")
	assert.Equal(t, "op-2", ops[0].ID)
	assert.Equal(t, "op-4", ops[2].ID)
}

func TestOperationsSinceFilters(t *testing.T) {
	s := newTestStore(DefaultConfig())
	s.Create("d1", "Untitled", "alice")

	base := time.Now()
	for i := 0; i < 4; i++ {
		s.AppendOperation("d1", &models.Operation{
			ID:        fmt.Sprintf("op-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	ops := s.OperationsSince("d1", base.Add(1500*time.Millisecond))
	require.Len(t, ops, 2)
	assert.Equal(t, "op-2", ops[0].ID)
	assert.Equal(t, "op-3", ops[1].ID)

	assert.Empty(t, s.OperationsSince("unknown", base))
}

func TestAppendVersionCap(t *testing.T) {
	s := newTestStore(Config{OpLogCap: 10, VersionCap: 2})
	doc := s.Create("d1", "Untitled", "alice")

	for i := 0; i < 4; i++ {
		s.AppendVersion(doc, &models.Version{ID: fmt.Sprintf("v-%d", i)})
	}

	require.Len(t, doc.Versions, 2)
	assert.Equal(t, "v-2", doc.Versions[0].ID)
	assert.Equal(t, "v-3", doc.Versions[1].ID)
}

func TestSaveReplaces(t *testing.T) {
	s := newTestStore(DefaultConfig())
	doc := s.Create("d1", "Untitled", "alice")

	doc.Title = "Renamed"
	s.Save(doc)

	got, ok := s.Get("d1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 1, s.Count())
}
