// Package store persists the look-up entities: projects, templates, data
// sources, profiles, index managers, prompt-studio links, and audits.
// Implementations: Postgres (authoritative) and in-memory (tests, DB-less
// runs).
package store

import (
	"context"
	"errors"

	"lookupcore/internal/lookup"
	"lookupcore/internal/lookup/audit"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateLink is returned when a (ps project, lookup project) pair is
// linked twice.
var ErrDuplicateLink = errors.New("store: link already exists")

// OrderUnset marks a link created without an explicit execution order; the
// store assigns max+1.
const OrderUnset = -1

type Projects interface {
	GetProject(ctx context.Context, id string) (lookup.Project, error)
	PutProject(ctx context.Context, p lookup.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context) ([]lookup.Project, error)
}

type Templates interface {
	// ActiveTemplate returns the project's single active template.
	ActiveTemplate(ctx context.Context, projectID string) (lookup.PromptTemplate, error)
	// PutTemplate stores a template; activating one deactivates the
	// project's others.
	PutTemplate(ctx context.Context, t lookup.PromptTemplate) error
}

type DataSources interface {
	// LatestSources returns the is_latest rows of a project in upload order.
	LatestSources(ctx context.Context, projectID string) ([]lookup.DataSource, error)
	// SourcesAtVersion returns the rows pinned at one version, in upload order.
	SourcesAtVersion(ctx context.Context, projectID string, version int) ([]lookup.DataSource, error)
	// InsertSources stores one upload batch: every row gets version
	// max+1 and is_latest, and all prior rows of the project have
	// is_latest cleared, atomically.
	InsertSources(ctx context.Context, sources []lookup.DataSource) ([]lookup.DataSource, error)
	// SetExtraction moves a row through the extraction pipeline.
	SetExtraction(ctx context.Context, id string, status lookup.ExtractionStatus, contentPath, extractionError string) error
}

type Profiles interface {
	// DefaultProfile returns the project's is_default profile.
	DefaultProfile(ctx context.Context, projectID string) (lookup.Profile, error)
	// PutProfile stores a profile; marking one default clears the
	// project's others.
	PutProfile(ctx context.Context, p lookup.Profile) error
	ProjectProfiles(ctx context.Context, projectID string) ([]lookup.Profile, error)
}

type Links interface {
	// LinksForPS returns a prompt-studio project's links sorted by
	// execution order (ties by lookup project id, for determinism).
	LinksForPS(ctx context.Context, psProjectID string) ([]lookup.PromptStudioLink, error)
	LinksForProject(ctx context.Context, lookupProjectID string) ([]lookup.PromptStudioLink, error)
	// CreateLink stores a link; ExecutionOrder == OrderUnset gets max+1.
	CreateLink(ctx context.Context, link lookup.PromptStudioLink) (lookup.PromptStudioLink, error)
	DeleteLink(ctx context.Context, psProjectID, lookupProjectID string) error
}

type IndexManagers interface {
	// GetIndexManager looks up the unique (data source, profile) row.
	GetIndexManager(ctx context.Context, dataSourceID, profileID string) (lookup.IndexManager, error)
	PutIndexManager(ctx context.Context, m lookup.IndexManager) error
	// DeleteIndexManager removes the row and returns it so the caller can
	// sweep the vector store through index_ids_history.
	DeleteIndexManager(ctx context.Context, id string) (lookup.IndexManager, error)
	IndexManagersForSource(ctx context.Context, dataSourceID string) ([]lookup.IndexManager, error)
}

// Stores bundles every persistence contract the engine composes against.
type Stores struct {
	Projects      Projects
	Templates     Templates
	DataSources   DataSources
	Profiles      Profiles
	Links         Links
	IndexManagers IndexManagers
	Audits        audit.Store
}

// RemoveProject deletes a project unless prompt-studio links still target
// it, in which case it fails with ProjectLinkedError listing the linking
// projects.
func RemoveProject(ctx context.Context, s *Stores, projectID string) error {
	links, err := s.Links.LinksForProject(ctx, projectID)
	if err != nil {
		return err
	}
	if len(links) > 0 {
		ids := make([]string, 0, len(links))
		for _, l := range links {
			ids = append(ids, l.PSProjectID)
		}
		return &lookup.ProjectLinkedError{ProjectID: projectID, PSProjectIDs: ids}
	}
	return s.Projects.DeleteProject(ctx, projectID)
}
