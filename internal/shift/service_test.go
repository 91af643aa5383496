package shift_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
)

type mockShiftRepository struct {
	shifts      map[string]*shift.Shift
	templates   map[string]*shift.Template
	createCalls int
	seq         int
}

func newMockShiftRepository() *mockShiftRepository {
	return &mockShiftRepository{
		shifts:    map[string]*shift.Shift{},
		templates: map[string]*shift.Template{},
	}
}

func (m *mockShiftRepository) put(s *shift.Shift) {
	cp := *s
	m.shifts[s.ID] = &cp
}

func (m *mockShiftRepository) sorted(pred func(*shift.Shift) bool) []*shift.Shift {
	var out []*shift.Shift
	for _, s := range m.shifts {
		if pred(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *mockShiftRepository) List(ctx context.Context, f shift.Filter) ([]*shift.Shift, error) {
	return m.sorted(func(s *shift.Shift) bool { return f.UserID == "" || s.UserID == f.UserID }), nil
}

func (m *mockShiftRepository) GetByID(ctx context.Context, id string) (*shift.Shift, error) {
	s, ok := m.shifts[id]
	if !ok {
		return nil, appErrors.ErrShiftNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockShiftRepository) Create(ctx context.Context, s *shift.Shift) error {
	m.createCalls++
	m.seq++
	s.ID = fmt.Sprintf("s-%d", m.seq)
	if s.Version == 0 {
		s.Version = 1
	}
	m.put(s)
	return nil
}

func (m *mockShiftRepository) Update(ctx context.Context, s *shift.Shift) error {
	cur, ok := m.shifts[s.ID]
	if !ok {
		return appErrors.ErrShiftNotFound
	}
	if cur.Version != s.Version {
		return appErrors.ErrStaleVersion
	}
	s.Version++
	m.put(s)
	return nil
}

func (m *mockShiftRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.shifts[id]; !ok {
		return appErrors.ErrShiftNotFound
	}
	delete(m.shifts, id)
	return nil
}

func (m *mockShiftRepository) ListSeries(ctx context.Context, seriesID string, action shift.RecurrenceAction, pivot time.Time) ([]*shift.Shift, error) {
	return m.sorted(func(s *shift.Shift) bool {
		if s.SeriesID == nil || *s.SeriesID != seriesID {
			return false
		}
		switch action {
		case shift.ActionFuture:
			return !s.StartTime.Before(pivot)
		case shift.ActionPrevious:
			return !s.StartTime.After(pivot)
		}
		return true
	}), nil
}

func (m *mockShiftRepository) FindOverlapping(ctx context.Context, userID string, from, to time.Time) ([]*shift.Shift, error) {
	return m.sorted(func(s *shift.Shift) bool {
		return s.UserID == userID && !s.StartTime.After(to) && !s.EndTime.Before(from)
	}), nil
}

func (m *mockShiftRepository) Transaction(ctx context.Context, fn func(repo shift.Repository) error) error {
	return fn(m)
}

func (m *mockShiftRepository) ListTemplates(ctx context.Context) ([]*shift.Template, error) {
	var out []*shift.Template
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockShiftRepository) GetTemplate(ctx context.Context, id string) (*shift.Template, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, appErrors.ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockShiftRepository) GetTemplateByKey(ctx context.Context, key string) (*shift.Template, error) {
	for _, t := range m.templates {
		if t.ShiftType == key {
			cp := *t
			return &cp, nil
		}
	}
	return nil, appErrors.ErrTemplateNotFound
}

func (m *mockShiftRepository) CreateTemplate(ctx context.Context, t *shift.Template) error {
	m.seq++
	t.ID = fmt.Sprintf("t-%d", m.seq)
	m.templates[t.ID] = t
	return nil
}

func (m *mockShiftRepository) UpdateTemplate(ctx context.Context, t *shift.Template) error {
	m.templates[t.ID] = t
	return nil
}

func (m *mockShiftRepository) DeleteTemplate(ctx context.Context, id string) error {
	delete(m.templates, id)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

type recordingFeed struct {
	changes []realtime.Change
}

func (f *recordingFeed) Publish(ctx context.Context, c realtime.Change) error {
	f.changes = append(f.changes, c)
	return nil
}

func at(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time { return &t }
func strPtr(s string) *string        { return &s }

var _ = Describe("ShiftService", func() {
	var (
		svc      *shift.Service
		repo     *mockShiftRepository
		bus      *recordingBus
		feed     *recordingFeed
		ctx      context.Context
		admin    *auth.User
		operator *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockShiftRepository()
		bus = &recordingBus{}
		feed = &recordingFeed{}
		svc = shift.NewService(repo, repo, feed, bus, shift.Options{
			Location: time.UTC,
			Now:      func() time.Time { return at(10, 8) },
		}, discardLogger())
		admin = &auth.User{ID: "admin", Role: auth.RoleAdmin}
		operator = &auth.User{ID: "op", Role: auth.RoleOperator}
	})

	Describe("Create", func() {
		It("issues one create per occurrence of a weekly series", func() {
			// Given a base shift 09:00-17:00 repeating on monday and wednesday
			created, err := svc.Create(ctx, admin, shift.CreateShiftDTO{
				UserID:    "op",
				ShiftType: "morning",
				StartTime: timePtr(at(10, 9)),
				EndTime:   timePtr(at(10, 17)),
				Repeat:    &shift.RepeatDTO{Weekly: true, Days: []string{"monday", "wednesday"}},
			})

			// Then eight shifts share one series id
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.createCalls).To(Equal(8))
			Expect(created).To(HaveLen(8))
			series := *created[0].SeriesID
			for i, s := range created {
				Expect(*s.SeriesID).To(Equal(series))
				Expect(*s.SeriesIndex).To(Equal(i))
				Expect(s.StartTime.Hour()).To(Equal(9))
				Expect(s.EndTime.Hour()).To(Equal(17))
				Expect([]time.Weekday{time.Monday, time.Wednesday}).To(ContainElement(s.StartTime.Weekday()))
			}

			// And the owner is told once, the feed sees every insert
			Expect(bus.events).To(HaveLen(1))
			Expect(bus.events[0].EventType()).To(Equal(events.EventTypeShiftCreated))
			Expect(feed.changes).To(HaveLen(8))
		})

		It("copies a template onto the given date", func() {
			tpl := &shift.Template{Name: "Night", ShiftType: "night", StartTime: "22:00", EndTime: "06:00", Color: "#111111"}
			Expect(repo.CreateTemplate(ctx, tpl)).To(Succeed())

			created, err := svc.Create(ctx, operator, shift.CreateShiftDTO{TemplateID: tpl.ID, Date: "2024-01-12"})

			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(HaveLen(1))
			Expect(created[0].ShiftType).To(Equal("night"))
			Expect(created[0].Title).To(Equal("Night"))
			Expect(created[0].Color).To(Equal("#111111"))
			Expect(created[0].StartTime).To(Equal(at(12, 22)))
			Expect(created[0].EndTime).To(Equal(at(13, 6)))
			Expect(bus.events).To(BeEmpty())
		})

		It("forbids creating shifts for someone else without manage_shifts", func() {
			_, err := svc.Create(ctx, operator, shift.CreateShiftDTO{
				UserID: "someone", ShiftType: "morning",
				StartTime: timePtr(at(10, 9)), EndTime: timePtr(at(10, 17)),
			})
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))
		})

		It("rejects an end before the start", func() {
			_, err := svc.Create(ctx, operator, shift.CreateShiftDTO{
				ShiftType: "morning", StartTime: timePtr(at(10, 17)), EndTime: timePtr(at(10, 9)),
			})
			Expect(err).To(HaveOccurred())
			appErr, ok := appErrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(400))
		})
	})

	Describe("series actions", func() {
		var created []*shift.Shift

		BeforeEach(func() {
			var err error
			created, err = svc.Create(ctx, admin, shift.CreateShiftDTO{
				UserID: "op", ShiftType: "morning",
				StartTime: timePtr(at(10, 9)), EndTime: timePtr(at(10, 17)),
				Repeat: &shift.RepeatDTO{Weekly: true, Days: []string{"wednesday"}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(HaveLen(4))
		})

		It("updates only the addressed shift for this", func() {
			out, err := svc.Update(ctx, admin, created[1].ID, shift.UpdateShiftDTO{Title: strPtr("changed")}, shift.ActionThis)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].Version).To(BeEquivalentTo(2))
		})

		It("moves clock times of future members on their own dates", func() {
			out, err := svc.Update(ctx, admin, created[1].ID, shift.UpdateShiftDTO{
				StartTime: timePtr(at(17, 10)),
				EndTime:   timePtr(at(17, 18)),
			}, shift.ActionFuture)

			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(3))
			for i, s := range out {
				Expect(s.StartTime.Hour()).To(Equal(10))
				Expect(s.EndTime.Hour()).To(Equal(18))
				Expect(s.StartTime.YearDay()).To(Equal(created[i+1].StartTime.YearDay()))
			}

			first, err := repo.GetByID(ctx, created[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.StartTime.Hour()).To(Equal(9))
		})

		It("deletes the addressed shift and everything before it for previous", func() {
			out, err := svc.Delete(ctx, admin, created[2].ID, shift.ActionPrevious)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(3))
			Expect(repo.shifts).To(HaveLen(1))
			Expect(repo.shifts).To(HaveKey(created[3].ID))
		})

		It("treats a shift without a series as this", func() {
			single, err := svc.Create(ctx, admin, shift.CreateShiftDTO{
				UserID: "op", ShiftType: "evening",
				StartTime: timePtr(at(11, 14)), EndTime: timePtr(at(11, 22)),
			})
			Expect(err).NotTo(HaveOccurred())

			out, err := svc.Delete(ctx, admin, single[0].ID, shift.ActionFuture)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(repo.shifts).To(HaveLen(4))
		})

		It("lets the owner edit their own shift", func() {
			_, err := svc.Update(ctx, operator, created[0].ID, shift.UpdateShiftDTO{Notes: strPtr("swap pls")}, shift.ActionThis)
			Expect(err).NotTo(HaveOccurred())
		})

		It("forbids others without manage_shifts", func() {
			stranger := &auth.User{ID: "x", Role: auth.RoleProducer}
			_, err := svc.Delete(ctx, stranger, created[0].ID, shift.ActionThis)
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))
		})
	})

	Describe("templates", func() {
		It("requires manage_templates", func() {
			_, err := svc.CreateTemplate(ctx, operator, shift.TemplateDTO{Name: "x", ShiftType: "x", StartTime: "09:00", EndTime: "10:00"})
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))

			t, err := svc.CreateTemplate(ctx, admin, shift.TemplateDTO{Name: "Early", ShiftType: "early", StartTime: "05:00", EndTime: "13:00", Color: "#00FF00"})
			Expect(err).NotTo(HaveOccurred())
			Expect(t.ID).NotTo(BeEmpty())
		})

		It("rejects a malformed clock", func() {
			_, err := svc.CreateTemplate(ctx, admin, shift.TemplateDTO{Name: "Bad", ShiftType: "bad", StartTime: "9am", EndTime: "10:00"})
			Expect(err).To(HaveOccurred())
		})

		It("resolves built-ins from code defaults when missing", func() {
			m, err := shift.ResolveBuiltin(ctx, repo, shift.TemplateKeyPublicHoliday)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ShiftType).To(Equal(shift.TypePublicHoliday))
			Expect(m.Title).To(Equal("Public Holiday"))
			Expect(m.Color).To(Equal("#F59E0B"))
		})

		It("prefers a stored built-in row", func() {
			Expect(repo.CreateTemplate(ctx, &shift.Template{Name: "Frei", ShiftType: shift.TemplateKeyDayOff, StartTime: "00:00", EndTime: "23:59", Color: "#000000"})).To(Succeed())

			m, err := shift.ResolveBuiltin(ctx, repo, shift.TemplateKeyDayOff)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Title).To(Equal("Frei"))
			Expect(m.ShiftType).To(Equal(shift.TypeDayOff))
		})
	})
})
