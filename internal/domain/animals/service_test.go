package animals

import (
	"context"
	"testing"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	animals map[string]*Animal
	links   map[string]*Link
	tenants map[string]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{animals: map[string]*Animal{}, links: map[string]*Link{}, tenants: map[string]string{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Create(_ context.Context, a *Animal) error {
	cp := *a
	m.animals[a.ID] = &cp
	return nil
}

func (m *memoryRepo) Get(_ context.Context, tenantID, id string) (*Animal, error) {
	a, ok := m.animals[id]
	if !ok || a.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) Update(_ context.Context, a *Animal) error {
	cp := *a
	m.animals[a.ID] = &cp
	return nil
}

func (m *memoryRepo) Archive(_ context.Context, tenantID, id string, at time.Time) error {
	a, ok := m.animals[id]
	if !ok || a.TenantID != tenantID {
		return errs.ErrNotFound
	}
	a.ArchivedAt = &at
	return nil
}

func (m *memoryRepo) List(context.Context, string, Filters) (ListResult, error) {
	return ListResult{}, nil
}

func (m *memoryRepo) GetByExchangeCode(_ context.Context, code string) (*Animal, error) {
	for _, a := range m.animals {
		if a.ExchangeCode == code && a.ArchivedAt == nil {
			cp := *a
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memoryRepo) CreateLink(_ context.Context, l *Link) error {
	cp := *l
	m.links[l.ID] = &cp
	return nil
}

func (m *memoryRepo) LockLink(_ context.Context, id string) (*Link, error) {
	l, ok := m.links[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memoryRepo) UpdateLink(_ context.Context, l *Link) error {
	cp := *l
	m.links[l.ID] = &cp
	return nil
}

func (m *memoryRepo) ActiveLinkExists(_ context.Context, requester, animalID string) (bool, error) {
	for _, l := range m.links {
		if l.RequesterTenantID == requester && l.AnimalID == animalID && (l.Status == LinkPending || l.Status == LinkApproved) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) ListLinks(_ context.Context, tenantID string, f LinkFilters) ([]Link, error) {
	var out []Link
	for _, l := range m.links {
		if (f.Direction == "incoming" && l.OwnerTenantID == tenantID) || (f.Direction == "outgoing" && l.RequesterTenantID == tenantID) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetLinkedAnimal(_ context.Context, requester, animalID string) (*LinkedAnimal, error) {
	for _, l := range m.links {
		if l.RequesterTenantID == requester && l.AnimalID == animalID && l.Status == LinkApproved {
			a := m.animals[animalID]
			return &LinkedAnimal{ID: a.ID, Name: a.Name, Species: a.Species, Sex: a.Sex, OwnerName: m.tenants[a.TenantID]}, nil
		}
	}
	return nil, errs.ErrNotFound
}

func newAnimal(t *testing.T, svc *Service, tenantID, name, sex string) *Animal {
	t.Helper()
	a, err := svc.Create(context.Background(), tenantID, CreateInput{Name: name, Species: "dog", Sex: sex, Microchip: "985112003456789"})
	require.NoError(t, err)
	return a
}

func TestCreateAnimal(t *testing.T) {
	svc := NewService(newMemoryRepo(), zerolog.Nop())

	a := newAnimal(t, svc, "t1", "  Juniper ", SexFemale)
	require.Equal(t, "Juniper", a.Name)
	require.Equal(t, StatusActive, a.Status)
	require.Len(t, a.ExchangeCode, 8)

	_, err := svc.Create(context.Background(), "t1", CreateInput{Name: "Bad", Species: "dragon", Sex: SexMale})
	list, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Contains(t, list.Fields(), "species")
}

func TestCreateAnimalParentMustBeAccessible(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, zerolog.Nop())
	dam := newAnimal(t, svc, "t1", "Dam", SexFemale)
	foreign := newAnimal(t, svc, "t2", "Foreign", SexMale)

	pup, err := svc.Create(context.Background(), "t1", CreateInput{Name: "Pup", Species: "dog", Sex: SexMale, DamID: dam.ID})
	require.NoError(t, err)
	require.Equal(t, dam.ID, pup.DamID)

	_, err = svc.Create(context.Background(), "t1", CreateInput{Name: "Pup2", Species: "dog", Sex: SexMale, SireID: foreign.ID})
	require.ErrorIs(t, err, ErrParentMissing)
	require.ErrorIs(t, err, errs.ErrInvalidReference)
}

func TestLinkLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	repo.tenants["owner"] = "Owner Farm"
	svc := NewService(repo, zerolog.Nop())
	stud := newAnimal(t, svc, "owner", "Stud", SexMale)

	_, err := svc.RequestLink(context.Background(), "owner", LinkRequest{ExchangeCode: stud.ExchangeCode})
	require.ErrorIs(t, err, ErrOwnAnimal)

	_, err = svc.RequestLink(context.Background(), "requester", LinkRequest{ExchangeCode: "NOPE"})
	require.ErrorIs(t, err, ErrUnknownCode)

	code := stud.ExchangeCode[:4] + "-" + stud.ExchangeCode[4:]
	link, err := svc.RequestLink(context.Background(), "requester", LinkRequest{ExchangeCode: " " + code, Purpose: "stud service"})
	require.NoError(t, err)
	require.Equal(t, LinkPending, link.Status)
	require.Equal(t, "owner", link.OwnerTenantID)

	_, err = svc.RequestLink(context.Background(), "requester", LinkRequest{ExchangeCode: stud.ExchangeCode})
	require.ErrorIs(t, err, ErrLinkExists)

	_, err = svc.Approve(context.Background(), "requester", link.ID)
	require.ErrorIs(t, err, ErrNotLinkOwner)

	_, err = svc.Approve(context.Background(), "stranger", link.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.Linked(context.Background(), "requester", stud.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	approved, err := svc.Approve(context.Background(), "owner", link.ID)
	require.NoError(t, err)
	require.Equal(t, LinkApproved, approved.Status)
	require.NotNil(t, approved.DecidedAt)

	_, err = svc.Reject(context.Background(), "owner", link.ID)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)

	view, err := svc.Linked(context.Background(), "requester", stud.ID)
	require.NoError(t, err)
	require.Equal(t, "Owner Farm", view.OwnerName)

	pup, err := svc.Create(context.Background(), "requester", CreateInput{Name: "Pup", Species: "dog", Sex: SexFemale, SireID: stud.ID})
	require.NoError(t, err)
	require.Equal(t, stud.ID, pup.SireID)

	revoked, err := svc.Revoke(context.Background(), "requester", link.ID)
	require.NoError(t, err)
	require.Equal(t, LinkRevoked, revoked.Status)

	_, err = svc.Revoke(context.Background(), "owner", link.ID)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)

	again, err := svc.RequestLink(context.Background(), "requester", LinkRequest{ExchangeCode: stud.ExchangeCode})
	require.NoError(t, err, "a revoked link does not block a new request")
	require.NotEqual(t, link.ID, again.ID)
}

func TestUpdateRejectsSelfParent(t *testing.T) {
	svc := NewService(newMemoryRepo(), zerolog.Nop())
	a := newAnimal(t, svc, "t1", "Solo", SexFemale)

	_, err := svc.Update(context.Background(), "t1", a.ID, UpdateInput{DamID: &a.ID})
	list, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Contains(t, list.Fields(), "dam_id")
}

func TestRegenerateExchangeCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), zerolog.Nop())
	a := newAnimal(t, svc, "t1", "Solo", SexFemale)

	updated, err := svc.RegenerateExchangeCode(context.Background(), "t1", a.ID)
	require.NoError(t, err)
	require.NotEqual(t, a.ExchangeCode, updated.ExchangeCode)

	_, err = svc.RequestLink(context.Background(), "t2", LinkRequest{ExchangeCode: a.ExchangeCode})
	require.ErrorIs(t, err, ErrUnknownCode)
}

func TestNormalizeExchangeCode(t *testing.T) {
	require.Equal(t, "AB12CD34", NormalizeExchangeCode(" ab12-cd34 "))
}
