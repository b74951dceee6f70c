package facade

import (
	"context"
	"io"
	"strings"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	"go.opentelemetry.io/otel/attribute"
)

// InsertCollaboration creates the workspace for an accepted application with
// its own copy of fw. The store rejects a second workspace for the same
// application with persistence.ErrConflict.
func (f *Facade) InsertCollaboration(ctx context.Context, app models.Application, fw models.Framework) (models.Collaboration, error) {
	var out models.Collaboration
	err := f.run(ctx, "insert_collaboration", func(ctx context.Context) error {
		if app.ID == "" {
			return errors.NewValidationError("application id is required")
		}
		if len(fw.Phases) == 0 {
			return errors.NewFrameworkNotFoundError("framework " + fw.ID + " has no phases")
		}
		copied := fw.Copy()
		rec, err := f.create(ctx, "insert_collaboration", persistence.Collaborations, models.Collaboration{
			ApplicationID: app.ID,
			CompanyID:     app.CompanyID,
			PartnerID:     app.PartnerID,
			Framework:     copied,
			CurrentPhase:  copied.Phases[0],
		})
		if err != nil {
			return err
		}
		out, err = decode[models.Collaboration](rec)
		return err
	}, attribute.String("application.id", app.ID), attribute.String("framework.id", fw.ID))
	return out, err
}

// collabOp loads the collaboration, lets build derive a patch from it and
// persists that patch.
func (f *Facade) collabOp(ctx context.Context, op, collaborationID string, build func(c models.Collaboration) (map[string]any, error)) (models.Collaboration, error) {
	var out models.Collaboration
	err := f.run(ctx, op, func(ctx context.Context) error {
		c, ok := f.snapshot().Collaboration(collaborationID)
		if !ok {
			return errors.NewEntityNotFoundError("collaboration", collaborationID)
		}
		patch, err := build(c)
		if err != nil {
			return err
		}
		rec, err := f.update(ctx, op, persistence.Collaborations, collaborationID, patch)
		if err != nil {
			return err
		}
		out, err = decode[models.Collaboration](rec)
		return err
	}, attribute.String("collaboration.id", collaborationID))
	return out, err
}

func requirePhase(c models.Collaboration, phase string) error {
	if !c.Framework.HasPhase(phase) {
		return errors.NewValidationError("phase " + phase + " is not part of framework " + c.Framework.ID)
	}
	return nil
}

func withEntry(m map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}

func (f *Facade) UpdatePhaseNotes(ctx context.Context, collaborationID, phase, notes string) (models.Collaboration, error) {
	return f.collabOp(ctx, "update_phase_notes", collaborationID, func(c models.Collaboration) (map[string]any, error) {
		if err := requirePhase(c, phase); err != nil {
			return nil, err
		}
		return map[string]any{"phaseNotes": withEntry(c.PhaseNotes, phase, notes)}, nil
	})
}

func (f *Facade) UpdatePhaseMetrics(ctx context.Context, collaborationID, phase, value string) (models.Collaboration, error) {
	return f.collabOp(ctx, "update_phase_metrics", collaborationID, func(c models.Collaboration) (map[string]any, error) {
		if err := requirePhase(c, phase); err != nil {
			return nil, err
		}
		return map[string]any{"phaseMetrics": withEntry(c.PhaseMetrics, phase, value)}, nil
	})
}

func (f *Facade) SetCurrentPhase(ctx context.Context, collaborationID, phase string) (models.Collaboration, error) {
	return f.collabOp(ctx, "set_current_phase", collaborationID, func(c models.Collaboration) (map[string]any, error) {
		if err := requirePhase(c, phase); err != nil {
			return nil, err
		}
		return map[string]any{"currentPhase": phase}, nil
	})
}

// AddFile records an already uploaded file on the workspace.
func (f *Facade) AddFile(ctx context.Context, collaborationID string, file models.FileRef) (models.Collaboration, error) {
	return f.collabOp(ctx, "add_file", collaborationID, func(c models.Collaboration) (map[string]any, error) {
		if file.Name == "" || file.URL == "" {
			return nil, errors.NewValidationError("file name and url are required")
		}
		if file.Phase != "" {
			if err := requirePhase(c, file.Phase); err != nil {
				return nil, err
			}
		}
		if file.ID == "" {
			file.ID = f.newID()
		}
		files := append(append([]models.FileRef(nil), c.Files...), file)
		return map[string]any{"files": files}, nil
	})
}

// UploadFile uploads a document and records it on the workspace.
func (f *Facade) UploadFile(ctx context.Context, collaborationID, name string, r io.Reader, phase string) (models.Collaboration, error) {
	var out models.Collaboration
	err := f.run(ctx, "upload_file", func(ctx context.Context) error {
		if _, ok := f.snapshot().Collaboration(collaborationID); !ok {
			return errors.NewEntityNotFoundError("collaboration", collaborationID)
		}
		doc, err := f.uploadDocument(ctx, name, r)
		if err != nil {
			return err
		}
		out, err = f.AddFile(ctx, collaborationID, models.FileRef{
			ID:    doc.ID,
			Name:  doc.Name,
			URL:   doc.URL,
			Phase: phase,
			Type:  doc.Type,
		})
		return err
	}, attribute.String("collaboration.id", collaborationID))
	return out, err
}

func (f *Facade) RemoveFile(ctx context.Context, collaborationID, fileID string) (models.Collaboration, error) {
	return f.collabOp(ctx, "remove_file", collaborationID, func(c models.Collaboration) (map[string]any, error) {
		files := make([]models.FileRef, 0, len(c.Files))
		for _, file := range c.Files {
			if file.ID != fileID {
				files = append(files, file)
			}
		}
		if len(files) == len(c.Files) {
			return nil, errors.NewEntityNotFoundError("file", fileID)
		}
		return map[string]any{"files": files}, nil
	})
}

func (f *Facade) AddLink(ctx context.Context, collaborationID string, link models.Link) (models.Collaboration, error) {
	return f.collabOp(ctx, "add_link", collaborationID, func(c models.Collaboration) (map[string]any, error) {
		if link.URL == "" {
			return nil, errors.NewValidationError("link url is required")
		}
		if link.Phase != "" {
			if err := requirePhase(c, link.Phase); err != nil {
				return nil, err
			}
		}
		if link.ID == "" {
			link.ID = f.newID()
		}
		if link.Title == "" {
			link.Title = link.URL
		}
		links := append(append([]models.Link(nil), c.Links...), link)
		return map[string]any{"links": links}, nil
	})
}

func (f *Facade) RemoveLink(ctx context.Context, collaborationID, linkID string) (models.Collaboration, error) {
	return f.collabOp(ctx, "remove_link", collaborationID, func(c models.Collaboration) (map[string]any, error) {
		links := make([]models.Link, 0, len(c.Links))
		for _, l := range c.Links {
			if l.ID != linkID {
				links = append(links, l)
			}
		}
		if len(links) == len(c.Links) {
			return nil, errors.NewEntityNotFoundError("link", linkID)
		}
		return map[string]any{"links": links}, nil
	})
}

// RecordDecision appends to the decision log. Entries are never edited.
func (f *Facade) RecordDecision(ctx context.Context, collaborationID string, d models.Decision) (models.Collaboration, error) {
	return f.collabOp(ctx, "record_decision", collaborationID, func(c models.Collaboration) (map[string]any, error) {
		if strings.TrimSpace(d.Decision) == "" {
			return nil, errors.NewValidationError("decision text is required")
		}
		if d.Phase != "" {
			if err := requirePhase(c, d.Phase); err != nil {
				return nil, err
			}
		}
		d.Timestamp = f.now()
		decisions := append(append([]models.Decision(nil), c.Decisions...), d)
		return map[string]any{"decisions": decisions}, nil
	})
}
