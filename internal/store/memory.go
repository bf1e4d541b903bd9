package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lookupcore/internal/lookup"
	"lookupcore/internal/lookup/audit"
)

// Memory implements every store contract in-process.
type Memory struct {
	mu            sync.RWMutex
	projects      map[string]lookup.Project
	templates     map[string]lookup.PromptTemplate
	dataSources   map[string]lookup.DataSource
	profiles      map[string]lookup.Profile
	links         []lookup.PromptStudioLink
	indexManagers map[string]lookup.IndexManager
	audits        []audit.Record
}

func NewMemory() *Memory {
	return &Memory{
		projects:      make(map[string]lookup.Project),
		templates:     make(map[string]lookup.PromptTemplate),
		dataSources:   make(map[string]lookup.DataSource),
		profiles:      make(map[string]lookup.Profile),
		indexManagers: make(map[string]lookup.IndexManager),
	}
}

// Stores exposes the memory instance behind every contract.
func (m *Memory) Stores() *Stores {
	return &Stores{
		Projects:      m,
		Templates:     m,
		DataSources:   m,
		Profiles:      m,
		Links:         m,
		IndexManagers: m,
		Audits:        m,
	}
}

// Projects

func (m *Memory) GetProject(_ context.Context, id string) (lookup.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return lookup.Project{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) PutProject(_ context.Context, p lookup.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.projects[p.ID] = p
	return nil
}

func (m *Memory) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	for tid, t := range m.templates {
		if t.ProjectID == id {
			delete(m.templates, tid)
		}
	}
	for did, d := range m.dataSources {
		if d.ProjectID == id {
			delete(m.dataSources, did)
		}
	}
	for pid, p := range m.profiles {
		if p.ProjectID == id {
			delete(m.profiles, pid)
		}
	}
	return nil
}

func (m *Memory) ListProjects(_ context.Context) ([]lookup.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]lookup.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Templates

func (m *Memory) ActiveTemplate(_ context.Context, projectID string) (lookup.PromptTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.templates {
		if t.ProjectID == projectID && t.Active {
			return t, nil
		}
	}
	return lookup.PromptTemplate{}, ErrNotFound
}

func (m *Memory) PutTemplate(_ context.Context, t lookup.PromptTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Active {
		for id, other := range m.templates {
			if other.ProjectID == t.ProjectID && id != t.ID && other.Active {
				other.Active = false
				m.templates[id] = other
			}
		}
	}
	m.templates[t.ID] = t
	return nil
}

// DataSources

func (m *Memory) LatestSources(_ context.Context, projectID string) ([]lookup.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []lookup.DataSource
	for _, d := range m.dataSources {
		if d.ProjectID == projectID && d.IsLatest {
			out = append(out, d)
		}
	}
	sortByUpload(out)
	return out, nil
}

func (m *Memory) SourcesAtVersion(_ context.Context, projectID string, version int) ([]lookup.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []lookup.DataSource
	for _, d := range m.dataSources {
		if d.ProjectID == projectID && d.VersionNumber == version {
			out = append(out, d)
		}
	}
	sortByUpload(out)
	return out, nil
}

func (m *Memory) InsertSources(_ context.Context, sources []lookup.DataSource) ([]lookup.DataSource, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	projectID := sources[0].ProjectID
	for _, ds := range sources {
		if ds.ProjectID != projectID {
			return nil, fmt.Errorf("store: mixed projects in one upload batch")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	maxVersion := 0
	for _, d := range m.dataSources {
		if d.ProjectID == projectID && d.VersionNumber > maxVersion {
			maxVersion = d.VersionNumber
		}
	}
	for id, d := range m.dataSources {
		if d.ProjectID == projectID && d.IsLatest {
			d.IsLatest = false
			m.dataSources[id] = d
		}
	}
	out := make([]lookup.DataSource, 0, len(sources))
	for _, ds := range sources {
		if ds.ID == "" {
			ds.ID = uuid.NewString()
		}
		if ds.UploadedAt.IsZero() {
			ds.UploadedAt = time.Now().UTC()
		}
		ds.VersionNumber = maxVersion + 1
		ds.IsLatest = true
		m.dataSources[ds.ID] = ds
		out = append(out, ds)
	}
	return out, nil
}

func (m *Memory) SetExtraction(_ context.Context, id string, status lookup.ExtractionStatus, contentPath, extractionError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dataSources[id]
	if !ok {
		return ErrNotFound
	}
	d.ExtractionStatus = status
	if contentPath != "" {
		d.ExtractedContentPath = contentPath
	}
	d.ExtractionError = extractionError
	m.dataSources[id] = d
	return nil
}

// Profiles

func (m *Memory) DefaultProfile(_ context.Context, projectID string) (lookup.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if p.ProjectID == projectID && p.IsDefault {
			return p, nil
		}
	}
	return lookup.Profile{}, ErrNotFound
}

func (m *Memory) PutProfile(_ context.Context, p lookup.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.IsDefault {
		for id, other := range m.profiles {
			if other.ProjectID == p.ProjectID && id != p.ID && other.IsDefault {
				other.IsDefault = false
				m.profiles[id] = other
			}
		}
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *Memory) ProjectProfiles(_ context.Context, projectID string) ([]lookup.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []lookup.Profile
	for _, p := range m.profiles {
		if p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Links

func (m *Memory) LinksForPS(_ context.Context, psProjectID string) ([]lookup.PromptStudioLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []lookup.PromptStudioLink
	for _, l := range m.links {
		if l.PSProjectID == psProjectID {
			out = append(out, l)
		}
	}
	sortLinks(out)
	return out, nil
}

func (m *Memory) LinksForProject(_ context.Context, lookupProjectID string) ([]lookup.PromptStudioLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []lookup.PromptStudioLink
	for _, l := range m.links {
		if l.LookupProjectID == lookupProjectID {
			out = append(out, l)
		}
	}
	sortLinks(out)
	return out, nil
}

func (m *Memory) CreateLink(_ context.Context, link lookup.PromptStudioLink) (lookup.PromptStudioLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.PSProjectID == link.PSProjectID && l.LookupProjectID == link.LookupProjectID {
			return lookup.PromptStudioLink{}, ErrDuplicateLink
		}
	}
	if link.ExecutionOrder == OrderUnset {
		maxOrder := -1
		for _, l := range m.links {
			if l.PSProjectID == link.PSProjectID && l.ExecutionOrder > maxOrder {
				maxOrder = l.ExecutionOrder
			}
		}
		link.ExecutionOrder = maxOrder + 1
	}
	m.links = append(m.links, link)
	return link, nil
}

func (m *Memory) DeleteLink(_ context.Context, psProjectID, lookupProjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.links {
		if l.PSProjectID == psProjectID && l.LookupProjectID == lookupProjectID {
			m.links = append(m.links[:i], m.links[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// IndexManagers

func (m *Memory) GetIndexManager(_ context.Context, dataSourceID, profileID string) (lookup.IndexManager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, im := range m.indexManagers {
		if im.DataSourceID == dataSourceID && im.ProfileID == profileID {
			return im, nil
		}
	}
	return lookup.IndexManager{}, ErrNotFound
}

func (m *Memory) PutIndexManager(_ context.Context, im lookup.IndexManager) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if im.ID == "" {
		im.ID = uuid.NewString()
	}
	m.indexManagers[im.ID] = im
	return nil
}

func (m *Memory) DeleteIndexManager(_ context.Context, id string) (lookup.IndexManager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	im, ok := m.indexManagers[id]
	if !ok {
		return lookup.IndexManager{}, ErrNotFound
	}
	delete(m.indexManagers, id)
	return im, nil
}

func (m *Memory) IndexManagersForSource(_ context.Context, dataSourceID string) ([]lookup.IndexManager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []lookup.IndexManager
	for _, im := range m.indexManagers {
		if im.DataSourceID == dataSourceID {
			out = append(out, im)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Audits

func (m *Memory) Insert(_ context.Context, rec audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, rec)
	return nil
}

func (m *Memory) ByExecution(_ context.Context, executionID string) ([]audit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []audit.Record
	for _, r := range m.audits {
		if r.ExecutionID == executionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ByProject(_ context.Context, projectID string, limit int) ([]audit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []audit.Record
	for i := len(m.audits) - 1; i >= 0; i-- {
		if m.audits[i].ProjectID == projectID {
			out = append(out, m.audits[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ByFileExecution(_ context.Context, fileExecutionID string) ([]audit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []audit.Record
	for _, r := range m.audits {
		if r.FileExecutionID == fileExecutionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func sortByUpload(sources []lookup.DataSource) {
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].UploadedAt.Equal(sources[j].UploadedAt) {
			return sources[i].FileName < sources[j].FileName
		}
		return sources[i].UploadedAt.Before(sources[j].UploadedAt)
	})
}

func sortLinks(links []lookup.PromptStudioLink) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].ExecutionOrder == links[j].ExecutionOrder {
			return links[i].LookupProjectID < links[j].LookupProjectID
		}
		return links[i].ExecutionOrder < links[j].ExecutionOrder
	})
}
