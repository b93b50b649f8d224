package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"housing-allocation-backend/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Transactions are serialised and
// committed by swapping in the mutated copy of the data.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time
}

type memData struct {
	regions        map[uint]models.Region
	municipalities map[uint]models.Municipality
	beneficiaries  map[uint]models.Beneficiary
	projects       map[uint]models.Project
	applications   map[uint]models.Application
	matches        map[uint]models.Match
	audit          []models.AuditLog
	runs           map[uuid.UUID]models.MatchingRun
	seq            map[string]uint
}

func newMemData() *memData {
	return &memData{
		regions:        map[uint]models.Region{},
		municipalities: map[uint]models.Municipality{},
		beneficiaries:  map[uint]models.Beneficiary{},
		projects:       map[uint]models.Project{},
		applications:   map[uint]models.Application{},
		matches:        map[uint]models.Match{},
		runs:           map[uuid.UUID]models.MatchingRun{},
		seq:            map[string]uint{},
	}
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (d *memData) clone() *memData {
	return &memData{
		regions:        cloneMap(d.regions),
		municipalities: cloneMap(d.municipalities),
		beneficiaries:  cloneMap(d.beneficiaries),
		projects:       cloneMap(d.projects),
		applications:   cloneMap(d.applications),
		matches:        cloneMap(d.matches),
		audit:          append([]models.AuditLog(nil), d.audit...),
		runs:           cloneMap(d.runs),
		seq:            cloneMap(d.seq),
	}
}

func (d *memData) next(table string) uint {
	d.seq[table]++
	return d.seq[table]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData(), now: time.Now}
}

func sortedKeys[V any](m map[uint]V) []uint {
	keys := make([]uint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemoryStore{data: s.data.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// AddRegion seeds a region and returns it with its assigned ID.
func (s *MemoryStore) AddRegion(r models.Region) models.Region {
	_ = s.CreateRegion(context.Background(), &r)
	return r
}

func (s *MemoryStore) AddMunicipality(m models.Municipality) models.Municipality {
	_ = s.CreateMunicipality(context.Background(), &m)
	return m
}

func (s *MemoryStore) AddApplication(app models.Application) models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	app.ID = s.data.next("applications")
	app.Beneficiary, app.Project = nil, nil
	s.data.applications[app.ID] = app
	return app
}

func (s *MemoryStore) AddMatch(m models.Match) models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.data.next("matches")
	m.Beneficiary, m.Project = nil, nil
	s.data.matches[m.ID] = m
	return m
}

// Applications returns every stored application ordered by ID.
func (s *MemoryStore) Applications() []models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Application, 0, len(s.data.applications))
	for _, id := range sortedKeys(s.data.applications) {
		out = append(out, s.data.applications[id])
	}
	return out
}

// Matches returns every stored match ordered by ID.
func (s *MemoryStore) Matches() []models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Match, 0, len(s.data.matches))
	for _, id := range sortedKeys(s.data.matches) {
		out = append(out, s.data.matches[id])
	}
	return out
}

func (s *MemoryStore) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.data.audit...)
}

func (s *MemoryStore) municipality(id *uint) *models.Municipality {
	if id == nil {
		return nil
	}
	m, ok := s.data.municipalities[*id]
	if !ok {
		return nil
	}
	return &m
}

func (s *MemoryStore) inScope(municipalityID *uint, scope Scope) bool {
	if scope.MunicipalityID != nil {
		if municipalityID == nil || *municipalityID != *scope.MunicipalityID {
			return false
		}
	}
	if scope.RegionID != nil {
		m := s.municipality(municipalityID)
		if m == nil || m.RegionID == nil || *m.RegionID != *scope.RegionID {
			return false
		}
	}
	return true
}

func (s *MemoryStore) EligibleBeneficiaries(_ context.Context, scope Scope) ([]models.Beneficiary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approved := map[uint]bool{}
	for _, m := range s.data.matches {
		if m.State == models.MatchApproved {
			approved[m.BeneficiaryID] = true
		}
	}

	var out []models.Beneficiary
	for _, id := range sortedKeys(s.data.beneficiaries) {
		b := s.data.beneficiaries[id]
		if !b.IsCandidate() || approved[b.ID] || !s.inScope(b.MunicipalityID, scope) {
			continue
		}
		b.Municipality = s.municipality(b.MunicipalityID)
		out = append(out, b)
	}
	return out, nil
}

func (s *MemoryStore) AvailableProjects(_ context.Context, scope Scope, limit int) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Project
	for _, id := range sortedKeys(s.data.projects) {
		p := s.data.projects[id]
		if !p.Open() || !s.inScope(p.MunicipalityID, scope) {
			continue
		}
		p.Municipality = s.municipality(p.MunicipalityID)
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) HasRejectedApplication(_ context.Context, beneficiaryID, projectID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.data.applications {
		if app.BeneficiaryID == beneficiaryID && app.ProjectID == projectID && app.Status == models.ApplicationRejected {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateMatchIfAbsent(_ context.Context, m *models.Match) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.matches {
		if existing.BeneficiaryID == m.BeneficiaryID && existing.ProjectID == m.ProjectID {
			return false, nil
		}
	}
	m.ID = s.data.next("matches")
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	stored := *m
	stored.Beneficiary, stored.Project = nil, nil
	s.data.matches[m.ID] = stored
	return true, nil
}

func (s *MemoryStore) LockPendingMatch(_ context.Context, id uint) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data.matches[id]
	if !ok || m.State != models.MatchPending {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) TransitionMatch(_ context.Context, m *models.Match, from models.MatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.data.matches[m.ID]
	if !ok || stored.State != from {
		return ErrStaleState
	}
	stored.State = m.State
	stored.ApprovedAt = m.ApprovedAt
	stored.RejectedAt = m.RejectedAt
	stored.RejectionReason = m.RejectionReason
	s.data.matches[m.ID] = stored
	return nil
}

func (s *MemoryStore) CreateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app.ID = s.data.next("applications")
	stored := *app
	stored.Beneficiary, stored.Project = nil, nil
	s.data.applications[app.ID] = stored
	return nil
}

func (s *MemoryStore) DecrementAvailableUnits(_ context.Context, projectID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.projects[projectID]
	if !ok || p.AvailableUnits <= 0 {
		return false, nil
	}
	p.AvailableUnits--
	s.data.projects[projectID] = p
	return true, nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.data.next("audit_logs")
	entry.CreatedAt = s.now()
	s.data.audit = append(s.data.audit, *entry)
	return nil
}

func (s *MemoryStore) CreateRun(_ context.Context, run *models.MatchingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	s.data.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run *models.MatchingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) UpdateRunProgress(_ context.Context, id uuid.UUID, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.data.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Processed = processed
	s.data.runs[id] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*models.MatchingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.data.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

func (s *MemoryStore) CreateBeneficiary(_ context.Context, b *models.Beneficiary) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.RUT != nil {
		for _, existing := range s.data.beneficiaries {
			if existing.RUT != nil && *existing.RUT == *b.RUT {
				return false, nil
			}
		}
	}
	b.ID = s.data.next("beneficiaries")
	stored := *b
	stored.Municipality = nil
	s.data.beneficiaries[b.ID] = stored
	return true, nil
}

func (s *MemoryStore) GetBeneficiary(_ context.Context, id uint) (*models.Beneficiary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.beneficiaries[id]
	if !ok {
		return nil, ErrNotFound
	}
	b.Municipality = s.municipality(b.MunicipalityID)
	return &b, nil
}

func (s *MemoryStore) CreateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.data.next("projects")
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	stored := *p
	stored.Municipality = nil
	s.data.projects[p.ID] = stored
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id uint) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Municipality = s.municipality(p.MunicipalityID)
	return &p, nil
}

func (s *MemoryStore) withRelations(m models.Match) models.Match {
	if b, ok := s.data.beneficiaries[m.BeneficiaryID]; ok {
		m.Beneficiary = &b
	}
	if p, ok := s.data.projects[m.ProjectID]; ok {
		m.Project = &p
	}
	return m
}

func (s *MemoryStore) GetMatch(_ context.Context, id uint) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	m = s.withRelations(m)
	return &m, nil
}

func (s *MemoryStore) ListMatches(_ context.Context, q MatchQuery) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := normalizeLimit(q.Limit)
	search := strings.ToLower(q.Search)
	ids := sortedKeys(s.data.matches)

	out := []models.Match{}
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.withRelations(s.data.matches[ids[i]])
		if q.State != "" && q.State != "all" && string(m.State) != q.State {
			continue
		}
		if q.Cursor > 0 && m.ID >= q.Cursor {
			continue
		}
		if search != "" {
			var name, project string
			if m.Beneficiary != nil {
				name = strings.ToLower(m.Beneficiary.FullName())
			}
			if m.Project != nil {
				project = strings.ToLower(m.Project.Name)
			}
			if !strings.Contains(name, search) && !strings.Contains(project, search) {
				continue
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (*DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := newDashboardStats()
	stats.Beneficiaries = int64(len(s.data.beneficiaries))
	stats.Projects = int64(len(s.data.projects))
	stats.Applications = int64(len(s.data.applications))
	stats.Matches = int64(len(s.data.matches))
	stats.AuditLogs = int64(len(s.data.audit))

	var scoreSum float64
	var scored int
	for _, b := range s.data.beneficiaries {
		stats.BeneficiariesByStatus[b.Status]++
		if b.SocioeconomicScore != nil {
			scoreSum += float64(*b.SocioeconomicScore)
			scored++
		}
	}
	if scored > 0 {
		avg := scoreSum / float64(scored)
		stats.AverageSocioeconomicScore = &avg
	}

	for _, p := range s.data.projects {
		stats.ProjectsByStatus[p.Status]++
		stats.TotalAvailableUnits += int64(p.AvailableUnits)
	}
	for _, app := range s.data.applications {
		stats.ApplicationsByStatus[app.Status]++
	}

	var compatSum float64
	for _, m := range s.data.matches {
		stats.MatchesByState[string(m.State)]++
		compatSum += m.CompatibilityScore.InexactFloat64()
	}
	if len(s.data.matches) > 0 {
		avg := compatSum / float64(len(s.data.matches))
		stats.AverageCompatibility = &avg
	}

	for i := len(s.data.audit) - 1; i >= 0 && len(stats.RecentAudit) < RecentAuditLimit; i-- {
		stats.RecentAudit = append(stats.RecentAudit, s.data.audit[i])
	}
	return stats, nil
}

func (s *MemoryStore) CreateRegion(_ context.Context, r *models.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.data.next("regions")
	s.data.regions[r.ID] = *r
	return nil
}

func (s *MemoryStore) ListRegions(context.Context) ([]models.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Region, 0, len(s.data.regions))
	for _, id := range sortedKeys(s.data.regions) {
		out = append(out, s.data.regions[id])
	}
	return out, nil
}

func (s *MemoryStore) CreateMunicipality(_ context.Context, m *models.Municipality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.data.next("municipalities")
	stored := *m
	stored.Region = nil
	s.data.municipalities[m.ID] = stored
	return nil
}

func (s *MemoryStore) ListMunicipalities(_ context.Context, regionID *uint) ([]models.Municipality, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Municipality{}
	for _, id := range sortedKeys(s.data.municipalities) {
		m := s.data.municipalities[id]
		if regionID != nil && (m.RegionID == nil || *m.RegionID != *regionID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) GetApplication(_ context.Context, id uint) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.data.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &app, nil
}

func (s *MemoryStore) UpdateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.data.applications[app.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = app.Status
	stored.ApprovalDate = app.ApprovalDate
	stored.Notes = app.Notes
	s.data.applications[app.ID] = stored
	return nil
}

func (s *MemoryStore) ListApplications(_ context.Context, q ApplicationQuery) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := normalizeLimit(q.Limit)
	ids := sortedKeys(s.data.applications)

	out := []models.Application{}
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		app := s.data.applications[ids[i]]
		if q.Status != "" && app.Status != q.Status {
			continue
		}
		if q.Cursor > 0 && app.ID >= q.Cursor {
			continue
		}
		if b, ok := s.data.beneficiaries[app.BeneficiaryID]; ok {
			app.Beneficiary = &b
		}
		if p, ok := s.data.projects[app.ProjectID]; ok {
			app.Project = &p
		}
		out = append(out, app)
	}
	return out, nil
}
