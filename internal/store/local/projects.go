package local

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// CreateProject stores the project with its owner membership embedded, so the
// two are written in one key update.
func (s *Store) CreateProject(ctx context.Context, project *models.Project, owner *models.ProjectMember) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyProjects)
	defer unlock()

	projects, err := load[models.Project](ctx, s, KeyProjects)
	if err != nil {
		return err
	}

	now := s.now()
	project.EnsureID()
	project.Stamp(now)
	project.Members = nil
	if owner != nil {
		member := *owner
		member.ProjectID = project.ID
		ensureMemberDefaults(&member, now)
		project.Members = []models.ProjectMember{member}
		*owner = member
	}

	projects = append(projects, *project)
	return save(ctx, s, KeyProjects, projects)
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	projects, err := load[models.Project](ensureContext(ctx), s, KeyProjects)
	if err != nil {
		return nil, err
	}
	idx := indexOf(projects, func(p models.Project) bool { return p.ID == id })
	if idx < 0 {
		return nil, apperrors.NotFoundf("project", id)
	}
	return &projects[idx], nil
}

// ListUserProjects returns projects owned by the user or shared with them
// through an accepted membership.
func (s *Store) ListUserProjects(ctx context.Context, userID string) ([]models.Project, error) {
	projects, err := load[models.Project](ensureContext(ctx), s, KeyProjects)
	if err != nil {
		return nil, err
	}

	out := make([]models.Project, 0, len(projects))
	for _, project := range projects {
		if project.OwnerID == userID || hasAcceptedMember(project.Members, userID) {
			out = append(out, project)
		}
	}
	sortProjects(out)
	return out, nil
}

// UpdateProject applies the patch and re-stamps updated_at.
func (s *Store) UpdateProject(ctx context.Context, id string, patch store.ProjectPatch) (*models.Project, error) {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyProjects)
	defer unlock()

	projects, err := load[models.Project](ctx, s, KeyProjects)
	if err != nil {
		return nil, err
	}
	idx := indexOf(projects, func(p models.Project) bool { return p.ID == id })
	if idx < 0 {
		return nil, apperrors.NotFoundf("project", id)
	}

	patch.Apply(&projects[idx], s.now())
	if err := save(ctx, s, KeyProjects, projects); err != nil {
		return nil, err
	}
	updated := projects[idx]
	return &updated, nil
}

// DeleteProject removes the project together with its folders, diagrams and
// collaboration sessions.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyProjects, KeyFolders, KeyDiagrams, KeySessions)
	defer unlock()

	projects, err := load[models.Project](ctx, s, KeyProjects)
	if err != nil {
		return err
	}
	idx := indexOf(projects, func(p models.Project) bool { return p.ID == id })
	if idx < 0 {
		return apperrors.NotFoundf("project", id)
	}
	projects = append(projects[:idx], projects[idx+1:]...)

	folders, err := load[models.Folder](ctx, s, KeyFolders)
	if err != nil {
		return err
	}
	keptFolders := folders[:0]
	for _, folder := range folders {
		if folder.ProjectID != id {
			keptFolders = append(keptFolders, folder)
		}
	}

	diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
	if err != nil {
		return err
	}
	removed := map[string]struct{}{}
	keptDiagrams := diagrams[:0]
	for _, diagram := range diagrams {
		if diagram.ProjectID == id {
			removed[diagram.ID] = struct{}{}
			continue
		}
		keptDiagrams = append(keptDiagrams, diagram)
	}

	if err := s.dropSessions(ctx, removed); err != nil {
		return err
	}
	if err := save(ctx, s, KeyDiagrams, keptDiagrams); err != nil {
		return err
	}
	if err := save(ctx, s, KeyFolders, keptFolders); err != nil {
		return err
	}
	return save(ctx, s, KeyProjects, projects)
}

// AddMember embeds a membership row in the project record.
func (s *Store) AddMember(ctx context.Context, member *models.ProjectMember) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyProjects)
	defer unlock()

	projects, err := load[models.Project](ctx, s, KeyProjects)
	if err != nil {
		return err
	}
	idx := indexOf(projects, func(p models.Project) bool { return p.ID == member.ProjectID })
	if idx < 0 {
		return apperrors.NotFoundf("project", member.ProjectID)
	}
	project := &projects[idx]
	if indexOf(project.Members, func(m models.ProjectMember) bool { return m.UserID == member.UserID }) >= 0 {
		return apperrors.ErrConflict.WithInternal(errDuplicateMember(member.ProjectID, member.UserID))
	}

	now := s.now()
	ensureMemberDefaults(member, now)
	project.Members = append(project.Members, *member)
	project.UpdatedAt = now
	return save(ctx, s, KeyProjects, projects)
}

// ListMembers returns the embedded membership rows of a project.
func (s *Store) ListMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	members := append([]models.ProjectMember(nil), project.Members...)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

// UpdateMemberRole changes a member's role.
func (s *Store) UpdateMemberRole(ctx context.Context, projectID, userID string, role models.ProjectRole) (*models.ProjectMember, error) {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyProjects)
	defer unlock()

	projects, err := load[models.Project](ctx, s, KeyProjects)
	if err != nil {
		return nil, err
	}
	idx := indexOf(projects, func(p models.Project) bool { return p.ID == projectID })
	if idx < 0 {
		return nil, apperrors.NotFoundf("project", projectID)
	}
	project := &projects[idx]
	memberIdx := indexOf(project.Members, func(m models.ProjectMember) bool { return m.UserID == userID })
	if memberIdx < 0 {
		return nil, apperrors.NotFoundf("project member", userID)
	}

	project.Members[memberIdx].Role = role
	project.UpdatedAt = s.now()
	if err := save(ctx, s, KeyProjects, projects); err != nil {
		return nil, err
	}
	updated := project.Members[memberIdx]
	return &updated, nil
}

// RemoveMember deletes a membership row. Owners may be removed like any
// other member.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyProjects)
	defer unlock()

	projects, err := load[models.Project](ctx, s, KeyProjects)
	if err != nil {
		return err
	}
	idx := indexOf(projects, func(p models.Project) bool { return p.ID == projectID })
	if idx < 0 {
		return apperrors.NotFoundf("project", projectID)
	}
	project := &projects[idx]
	memberIdx := indexOf(project.Members, func(m models.ProjectMember) bool { return m.UserID == userID })
	if memberIdx < 0 {
		return apperrors.NotFoundf("project member", userID)
	}

	project.Members = append(project.Members[:memberIdx], project.Members[memberIdx+1:]...)
	project.UpdatedAt = s.now()
	return save(ctx, s, KeyProjects, projects)
}

func ensureMemberDefaults(member *models.ProjectMember, now time.Time) {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.Status == "" {
		member.Status = models.MemberPending
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = now
	}
}

func hasAcceptedMember(members []models.ProjectMember, userID string) bool {
	for _, member := range members {
		if member.UserID == userID && member.Status == models.MemberAccepted {
			return true
		}
	}
	return false
}

func sortProjects(projects []models.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		if !projects[i].UpdatedAt.Equal(projects[j].UpdatedAt) {
			return projects[i].UpdatedAt.After(projects[j].UpdatedAt)
		}
		return projects[i].ID < projects[j].ID
	})
}

func errDuplicateMember(projectID, userID string) error {
	return fmt.Errorf("user %q is already a member of project %q", userID, projectID)
}
