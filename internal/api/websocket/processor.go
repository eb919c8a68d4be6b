package websocket

import (
	"fmt"
	"time"

	"github.com/canvaslab/canvas-sync/internal/store"
	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/models/wire"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

// Processor applies submitted operations to authoritative document state.
// Each submit runs to completion under the document's lock: permission check,
// exhaustive dispatch by kind, audit stamping, op-log append and batch
// enqueue. Conflicts between concurrent clients resolve as last write wins
// per field; there are no tombstones and no vector clocks.
type Processor struct {
	store    *store.DocumentStore
	locks    *documentLocks
	sessions *SessionManager
	batcher  *BatchScheduler
	versions *VersionManager
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewProcessor creates an operation processor
func NewProcessor(docs *store.DocumentStore, locks *documentLocks, sessions *SessionManager, batcher *BatchScheduler, versions *VersionManager, logger observability.Logger, metrics observability.MetricsClient) *Processor {
	return &Processor{
		store:    docs,
		locks:    locks,
		sessions: sessions,
		batcher:  batcher,
		versions: versions,
		logger:   logger,
		metrics:  metrics,
	}
}

// Submit validates and applies one operation on behalf of the connection's
// session. On success the submitter owes nothing further: the operation is
// logged, queued for the next batch flush, and the caller sends the ack.
// On failure the returned error goes to the submitter only and document
// state is untouched.
func (p *Processor) Submit(conn *Connection, op *models.Operation) *wire.Error {
	if conn.State() != StateJoined {
		return wire.NewError(wire.ErrCodeNotJoined, "no document joined")
	}

	user := conn.User()
	if op.DocumentID == "" {
		op.DocumentID = conn.DocumentID()
	}
	if op.DocumentID != conn.DocumentID() {
		return wire.NewError(wire.ErrCodeNotJoined, fmt.Sprintf("operation targets document %q but session joined %q", op.DocumentID, conn.DocumentID()))
	}

	op.UserID = user.ID
	if op.ID == "" {
		return wire.NewError(wire.ErrCodeInvalidMessage, "operation missing id")
	}
	if err := op.Validate(); err != nil {
		return wire.NewError(wire.ErrCodeInvalidMessage, err.Error())
	}

	doc, ok := p.store.Get(op.DocumentID)
	if !ok {
		// The explicit-error path: an operation against a document that was
		// never created answers the submitter instead of vanishing silently.
		return wire.NewError(wire.ErrCodeUnknownDocument, fmt.Sprintf("unknown document %q", op.DocumentID))
	}

	unlock := p.locks.Lock(op.DocumentID)
	defer unlock()

	perm, granted := doc.PermissionFor(user.ID)
	if !granted {
		return wire.NewError(wire.ErrCodePermissionDenied, "no permission on document")
	}
	if required := requiredPermission(op.Kind); !perm.AtLeast(required) {
		p.metrics.IncrementCounter("operations_rejected_total", 1)
		return wire.NewError(wire.ErrCodePermissionDenied, fmt.Sprintf("%s requires %s permission, user has %s", op.Kind, required, perm))
	}

	if werr := p.apply(doc, user, op); werr != nil {
		return werr
	}

	doc.ModifiedAt = op.Timestamp
	doc.ModifiedBy = user.ID

	p.store.AppendOperation(op.DocumentID, op)
	p.batcher.Enqueue(op.DocumentID, op)

	p.metrics.IncrementCounter("operations_applied_total", 1)
	return nil
}

// requiredPermission returns the minimum permission an operation kind needs.
// Everything that mutates state needs editor; changing the permission table
// itself needs owner.
func requiredPermission(kind models.OperationKind) models.Permission {
	if kind == models.OpUpdatePermissions {
		return models.PermissionOwner
	}
	return models.PermissionEditor
}

// apply dispatches by operation kind. The switch is exhaustive over the
// closed kind set; Validate has already rejected unknown kinds.
func (p *Processor) apply(doc *models.Document, user *models.User, op *models.Operation) *wire.Error {
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}

	switch op.Kind {
	case models.OpCreateElement:
		p.applyCreateElement(doc, user, op)
	case models.OpUpdateElement:
		p.applyUpdateElement(doc, user, op)
	case models.OpDeleteElement:
		delete(doc.State.Elements, op.DeleteElement.ElementID)
	case models.OpMoveElement:
		p.applyMoveElement(doc, user, op)
	case models.OpResizeElement:
		p.applyResizeElement(doc, user, op)
	case models.OpUpdateText:
		p.applyUpdateText(doc, user, op)
	case models.OpUpdatePermissions:
		doc.Permissions[op.UpdatePermissions.TargetUserID] = op.UpdatePermissions.Permission
	case models.OpCreateVersion:
		p.versions.Create(doc, user, op.CreateVersion.Description, op.Timestamp)
	case models.OpRestoreVersion:
		restored, werr := p.versions.Restore(doc, op.RestoreVersion.VersionID)
		if werr != nil {
			return werr
		}
		// Everyone, submitter included, gets the restored state pushed as a
		// fresh document_state; incremental patching across a restore is not
		// worth the client complexity.
		stateMsg := wire.NewMessage(wire.MessageTypeDocumentState)
		stateMsg.DocumentID = doc.ID
		stateMsg.Document = doc
		stateMsg.ActiveUsers = p.sessions.ActiveUsers(doc.ID)
		p.sessions.Broadcast(doc.ID, stateMsg, "")
		p.logger.Info("Document state restored", map[string]interface{}{
			"document_id": doc.ID,
			"version_id":  restored.ID,
			"user_id":     user.ID,
		})
	}

	return nil
}

func (p *Processor) applyCreateElement(doc *models.Document, user *models.User, op *models.Operation) {
	el := op.CreateElement.Element
	el.CreatedAt = op.Timestamp
	el.CreatedBy = user.ID
	el.ModifiedAt = op.Timestamp
	el.ModifiedBy = user.ID
	// Insert or overwrite by id: a re-create of an existing id wins outright.
	// The live map gets its own copy. The operation keeps the payload exactly
	// as applied, so the log, pending batches and the ack never see later
	// edits to the element, and the flush goroutine can marshal the queued
	// operation without holding the document lock.
	doc.State.Elements[el.ID] = el.Clone()
}

func (p *Processor) applyUpdateElement(doc *models.Document, user *models.User, op *models.Operation) {
	patch := op.UpdateElement
	el, ok := doc.State.Elements[patch.ElementID]
	if !ok {
		// Updating a concurrently deleted element is an accepted no-op,
		// not an error: the delete won.
		return
	}

	if patch.Locked != nil {
		el.Locked = *patch.Locked
	}
	if patch.Visible != nil {
		el.Visible = *patch.Visible
	}
	if patch.ZIndex != nil {
		el.Transform.ZIndex = *patch.ZIndex
	}

	// Variant patches only land on an element of the matching kind.
	if patch.Text != nil && el.Kind == models.ElementKindText && el.Text != nil {
		applyTextPatch(el.Text, patch.Text)
	}
	if patch.Image != nil && el.Kind == models.ElementKindImage && el.Image != nil {
		applyImagePatch(el.Image, patch.Image)
	}
	if patch.Video != nil && el.Kind == models.ElementKindVideo && el.Video != nil {
		applyVideoPatch(el.Video, patch.Video)
	}
	if patch.Moodboard != nil && el.Kind == models.ElementKindMoodboard && el.Moodboard != nil {
		if patch.Moodboard.Items != nil {
			el.Moodboard.Items = append([]models.MoodboardItem(nil), (*patch.Moodboard.Items)...)
		}
		if patch.Moodboard.Layout != nil {
			el.Moodboard.Layout = *patch.Moodboard.Layout
		}
	}
	if patch.Template != nil && el.Kind == models.ElementKindTemplate && el.Template != nil {
		if el.Template.SlotValues == nil && len(patch.Template.SlotValues) > 0 {
			el.Template.SlotValues = make(map[string]string, len(patch.Template.SlotValues))
		}
		for k, v := range patch.Template.SlotValues {
			el.Template.SlotValues[k] = v
		}
	}

	stamp(el, user.ID, op.Timestamp)
}

func applyTextPatch(props *models.TextProps, patch *models.TextPatch) {
	if patch.Content != nil {
		props.Content = *patch.Content
	}
	if patch.FontFamily != nil {
		props.FontFamily = *patch.FontFamily
	}
	if patch.FontSize != nil {
		props.FontSize = *patch.FontSize
	}
	if patch.FontWeight != nil {
		props.FontWeight = *patch.FontWeight
	}
	if patch.Color != nil {
		props.Color = *patch.Color
	}
	if patch.Align != nil {
		props.Align = *patch.Align
	}
}

func applyImagePatch(props *models.ImageProps, patch *models.ImagePatch) {
	if patch.Source != nil {
		props.Source = *patch.Source
	}
	if patch.AltText != nil {
		props.AltText = *patch.AltText
	}
	if patch.Opacity != nil {
		props.Opacity = *patch.Opacity
	}
	if patch.Filter != nil {
		props.Filter = *patch.Filter
	}
}

func applyVideoPatch(props *models.VideoProps, patch *models.VideoPatch) {
	if patch.Source != nil {
		props.Source = *patch.Source
	}
	if patch.TrimStart != nil {
		props.TrimStart = *patch.TrimStart
	}
	if patch.TrimEnd != nil {
		props.TrimEnd = *patch.TrimEnd
	}
	if patch.Muted != nil {
		props.Muted = *patch.Muted
	}
	if patch.Loop != nil {
		props.Loop = *patch.Loop
	}
}

func (p *Processor) applyMoveElement(doc *models.Document, user *models.User, op *models.Operation) {
	el, ok := doc.State.Elements[op.MoveElement.ElementID]
	if !ok {
		return
	}
	el.Transform.X = op.MoveElement.X
	el.Transform.Y = op.MoveElement.Y
	if op.MoveElement.Rotation != nil {
		el.Transform.Rotation = *op.MoveElement.Rotation
	}
	stamp(el, user.ID, op.Timestamp)
}

func (p *Processor) applyResizeElement(doc *models.Document, user *models.User, op *models.Operation) {
	el, ok := doc.State.Elements[op.ResizeElement.ElementID]
	if !ok {
		return
	}
	el.Transform.Width = op.ResizeElement.Width
	el.Transform.Height = op.ResizeElement.Height
	stamp(el, user.ID, op.Timestamp)
}

func (p *Processor) applyUpdateText(doc *models.Document, user *models.User, op *models.Operation) {
	el, ok := doc.State.Elements[op.UpdateText.ElementID]
	if !ok || el.Kind != models.ElementKindText || el.Text == nil {
		return
	}
	el.Text.Content = op.UpdateText.Content
	stamp(el, user.ID, op.Timestamp)
}

// stamp records who touched an element last, and when
func stamp(el *models.Element, userID string, at time.Time) {
	el.ModifiedAt = at
	el.ModifiedBy = userID
}
