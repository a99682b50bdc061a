package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/diagramhub/internal/models"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// ExportFormatVersion tags every project export.
const ExportFormatVersion = "1.0"

// Data sources reported in ProjectData.Errors.
const (
	SourceFolders  = "folders"
	SourceDiagrams = "diagrams"
)

// SourceError records a failed load of one data source.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// ProjectData is a project's folders and active diagrams. A source that
// failed to load is listed in Errors and left empty.
type ProjectData struct {
	ProjectID string           `json:"project_id"`
	Folders   []models.Folder  `json:"folders"`
	Diagrams  []models.Diagram `json:"diagrams"`
	Errors    []SourceError    `json:"errors,omitempty"`
}

// Err combines the per-source errors, or returns nil when every source loaded.
func (d *ProjectData) Err() error {
	var err error
	for _, source := range d.Errors {
		err = multierr.Append(err, fmt.Errorf("%s: %w", source.Source, source.Err))
	}
	return err
}

// SearchResults lists the folders and diagrams matching a search term.
type SearchResults struct {
	ProjectID string           `json:"project_id"`
	Term      string           `json:"term"`
	Folders   []models.Folder  `json:"folders"`
	Diagrams  []models.Diagram `json:"diagrams"`
	Errors    []SourceError    `json:"errors,omitempty"`
}

// ProjectExport is a self-contained snapshot of a project.
type ProjectExport struct {
	FormatVersion string                 `json:"format_version"`
	ExportedAt    time.Time              `json:"exported_at"`
	Project       models.Project         `json:"project"`
	Members       []models.ProjectMember `json:"members"`
	Folders       []models.Folder        `json:"folders"`
	Diagrams      []models.Diagram       `json:"diagrams"`
}

// GetProjectData loads folders and diagrams in parallel. Per-source failures
// are recorded in the result rather than failing the call.
func (m *DatabaseManager) GetProjectData(ctx context.Context, projectID string) (*ProjectData, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, apperrors.NewValidation("project id is required")
	}

	data := &ProjectData{
		ProjectID: projectID,
		Folders:   []models.Folder{},
		Diagrams:  []models.Diagram{},
	}
	var folderErr, diagramErr error

	var g errgroup.Group
	g.Go(func() error {
		folders, err := m.GetProjectFolders(ctx, projectID)
		if err != nil {
			folderErr = err
			return nil
		}
		data.Folders = folders
		return nil
	})
	g.Go(func() error {
		diagrams, err := m.GetProjectDiagrams(ctx, projectID)
		if err != nil {
			diagramErr = err
			return nil
		}
		data.Diagrams = diagrams
		return nil
	})
	_ = g.Wait()

	if folderErr != nil {
		data.Errors = append(data.Errors, SourceError{Source: SourceFolders, Message: folderErr.Error(), Err: folderErr})
	}
	if diagramErr != nil {
		data.Errors = append(data.Errors, SourceError{Source: SourceDiagrams, Message: diagramErr.Error(), Err: diagramErr})
	}
	if len(data.Errors) > 0 {
		m.log.Warn("project data partially loaded",
			zap.String("project_id", projectID),
			zap.Error(data.Err()),
		)
	}
	return data, nil
}

// SearchProjectContent matches term case-insensitively against folder names
// and diagram names and descriptions.
func (m *DatabaseManager) SearchProjectContent(ctx context.Context, projectID, term string) (*SearchResults, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return nil, apperrors.NewValidation("search term is required")
	}

	data, err := m.GetProjectData(ctx, projectID)
	if err != nil {
		return nil, err
	}

	results := &SearchResults{
		ProjectID: data.ProjectID,
		Term:      term,
		Folders:   []models.Folder{},
		Diagrams:  []models.Diagram{},
		Errors:    data.Errors,
	}
	for _, folder := range data.Folders {
		if strings.Contains(strings.ToLower(folder.Name), needle) {
			results.Folders = append(results.Folders, folder)
		}
	}
	for _, diagram := range data.Diagrams {
		if strings.Contains(strings.ToLower(diagram.Name), needle) ||
			strings.Contains(strings.ToLower(diagram.Description), needle) {
			results.Diagrams = append(results.Diagrams, diagram)
		}
	}
	return results, nil
}

// ExportProject snapshots the project, its members, folders and active
// diagrams. Unlike GetProjectData, any failed source fails the export.
func (m *DatabaseManager) ExportProject(ctx context.Context, projectID string) (*ProjectExport, error) {
	project, err := m.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	members, err := m.GetProjectMembers(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	data, err := m.GetProjectData(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if err := data.Err(); err != nil {
		return nil, fmt.Errorf("export project %s: %w", project.ID, err)
	}

	snapshot := *project
	snapshot.Members = nil
	return &ProjectExport{
		FormatVersion: ExportFormatVersion,
		ExportedAt:    m.now().UTC(),
		Project:       snapshot,
		Members:       members,
		Folders:       data.Folders,
		Diagrams:      data.Diagrams,
	}, nil
}

// ExportProjectJSON renders ExportProject as indented JSON.
func (m *DatabaseManager) ExportProjectJSON(ctx context.Context, projectID string) ([]byte, error) {
	export, err := m.ExportProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payload, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(err, "encode project export")
	}
	return payload, nil
}
