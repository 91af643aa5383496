package leave_test

import (
	"context"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	leaveDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/leave"
	shiftDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/shift"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/leave"
	leavePostgres "github.com/marvellous-media/marvellous-manager/internal/leave/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
	shiftPostgres "github.com/marvellous-media/marvellous-manager/internal/shift/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/user"
)

type mockDirectory struct {
	users  map[string]*user.User
	admins []string
}

func (d *mockDirectory) GetByID(ctx context.Context, id string) (*user.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, appErrors.ErrUserNotFound
	}
	return u, nil
}

func (d *mockDirectory) ListAdminIDs(ctx context.Context) ([]string, error) {
	return d.admins, nil
}

// pendingSnapshot serves reads from before another reviewer's decision landed.
type pendingSnapshot struct {
	leave.Repository
}

func (p pendingSnapshot) GetByID(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	r, err := p.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stale := *r
	stale.Status = leave.StatusPending
	return &stale, nil
}

type mockReport struct {
	rows []leave.BalanceRow
}

func (m *mockReport) BalanceReport(ctx context.Context) ([]leave.BalanceRow, error) {
	return m.rows, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []*events.NotificationEvent
}

func (b *recordingBus) Publish(ctx context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := e.(*events.NotificationEvent); ok {
		b.events = append(b.events, n)
	}
	return nil
}

type recordingFeed struct {
	changes []realtime.Change
}

func (f *recordingFeed) Publish(ctx context.Context, c realtime.Change) error {
	f.changes = append(f.changes, c)
	return nil
}

var _ = Describe("LeaveService", func() {
	var (
		db        *gorm.DB
		svc       *leave.Service
		shifts    *shiftPostgres.ShiftRepository
		directory *mockDirectory
		report    *mockReport
		bus       *recordingBus
		feed      *recordingFeed
		ctx       context.Context
		admin     *auth.User
		operator  *auth.User
		senior    *auth.User
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&leaveDatamodel.LeaveRequest{}, &shiftDatamodel.Shift{}, &shiftDatamodel.ShiftTemplate{})).To(Succeed())

		ctx = context.Background()
		admin = &auth.User{ID: "admin", Username: "anna", Role: auth.RoleAdmin}
		operator = &auth.User{ID: "op", Username: "otto", Role: auth.RoleOperator}
		senior = &auth.User{ID: "sen", Username: "sally", Role: auth.RoleSenior}

		fourty := 40
		directory = &mockDirectory{
			users: map[string]*user.User{
				"op":    {ID: "op", Username: "otto", Balance: &fourty},
				"admin": {ID: "admin", Username: "anna"},
			},
			admins: []string{"admin", "legacy"},
		}
		report = &mockReport{}
		bus = &recordingBus{}
		feed = &recordingFeed{}

		shifts = shiftPostgres.NewShiftRepository(db)
		repo := leavePostgres.NewLeaveRepository(db)
		svc = leave.NewService(repo, repo, shifts, directory, report, feed, bus, leave.Options{
			Location: time.UTC,
			Rules:    user.DefaultBalanceRules(),
		}, discardLogger())
	})

	submit := func(actor *auth.User, leaveType, from, to string) *leave.LeaveRequest {
		r, err := svc.Submit(ctx, actor, leave.SubmitDTO{LeaveType: leaveType, StartDate: from, EndDate: to, Reason: "family"})
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	Describe("Submit", func() {
		It("creates a pending request and tells every other administrator", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-12")

			Expect(r.Status).To(Equal(leave.StatusPending))
			Expect(r.UserID).To(Equal("op"))
			Expect(bus.events).To(HaveLen(1))
			Expect(bus.events[0].EventType()).To(Equal(events.EventTypeLeaveSubmitted))
			Expect(bus.events[0].Recipients).To(ConsistOf("admin", "legacy"))
		})

		It("does not notify when an administrator submits", func() {
			_, err := svc.Submit(ctx, admin, leave.SubmitDTO{UserID: "op", LeaveType: leave.TypeExtraDays, StartDate: "2024-01-10", EndDate: "2024-01-10", Reason: "x"})
			Expect(err).NotTo(HaveOccurred())
			Expect(bus.events).To(BeEmpty())
		})

		It("requires a reason", func() {
			_, err := svc.Submit(ctx, operator, leave.SubmitDTO{LeaveType: leave.TypeDayOff, StartDate: "2024-01-10", EndDate: "2024-01-10", Reason: "   "})
			Expect(err).To(MatchError(appErrors.ErrReasonRequired))
		})

		It("rejects an end before the start", func() {
			_, err := svc.Submit(ctx, operator, leave.SubmitDTO{LeaveType: leave.TypeDayOff, StartDate: "2024-01-12", EndDate: "2024-01-10", Reason: "x"})
			Expect(err).To(MatchError(appErrors.ErrInvalidDateRange))
		})

		It("rejects an unknown leave type", func() {
			_, err := svc.Submit(ctx, operator, leave.SubmitDTO{LeaveType: "sabbatical", StartDate: "2024-01-10", EndDate: "2024-01-10", Reason: "x"})
			appErr, ok := appErrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(400))
		})

		It("forbids non-administrators from submitting for others", func() {
			_, err := svc.Submit(ctx, operator, leave.SubmitDTO{UserID: "someone", LeaveType: leave.TypeDayOff, StartDate: "2024-01-10", EndDate: "2024-01-10", Reason: "x"})
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))
		})
	})

	Describe("Approve", func() {
		It("inserts one all-day shift when nothing overlaps", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-12")

			approved, err := svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())
			Expect(approved.Status).To(Equal(leave.StatusApproved))
			Expect(*approved.ReviewerID).To(Equal("admin"))

			all, err := shifts.List(ctx, shift.Filter{UserID: "op"})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].ShiftType).To(Equal(shift.TypeDayOff))
			Expect(all[0].Title).To(Equal("Day Off"))
			Expect(all[0].StartTime.UTC()).To(Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
			Expect(all[0].EndTime.UTC()).To(Equal(time.Date(2024, 1, 12, 23, 59, 59, 0, time.UTC)))
		})

		It("overwrites an overlapping shift in place and stays idempotent", func() {
			existing := &shift.Shift{UserID: "op", ShiftType: "morning", Title: "Morning",
				StartTime: time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC), EndTime: time.Date(2024, 1, 11, 17, 0, 0, 0, time.UTC)}
			Expect(shifts.Create(ctx, existing)).To(Succeed())

			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-12")

			_, err := svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())

			all, err := shifts.List(ctx, shift.Filter{UserID: "op"})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].ID).To(Equal(existing.ID))
			Expect(all[0].ShiftType).To(Equal(shift.TypeDayOff))
			Expect(all[0].Notes).To(ContainSubstring("replaced original shift"))
			Expect(strings.Count(all[0].Notes, "replaced original shift")).To(Equal(1))
			Expect(all[0].Version).To(BeEquivalentTo(3))
			Expect(all[0].StartTime.UTC().Hour()).To(Equal(9))
		})

		It("uses the public holiday template for public holidays", func() {
			r := submit(operator, leave.TypePublicHoliday, "2024-12-25", "2024-12-25")

			_, err := svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())

			all, err := shifts.List(ctx, shift.Filter{UserID: "op"})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].ShiftType).To(Equal(shift.TypePublicHoliday))
			Expect(all[0].Color).To(Equal("#F59E0B"))
		})

		It("notifies the requester and feeds both tables", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-10")
			bus.events = nil
			feed.changes = nil

			_, err := svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())

			Expect(bus.events).To(HaveLen(1))
			Expect(bus.events[0].EventType()).To(Equal(events.EventTypeLeaveApproved))
			Expect(bus.events[0].Recipients).To(ConsistOf("op"))

			tables := []string{}
			for _, c := range feed.changes {
				tables = append(tables, c.Table)
			}
			Expect(tables).To(ConsistOf(realtime.TableLeaveRequests, realtime.TableShifts))
		})

		It("refuses non-administrators", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-10")

			_, err := svc.Approve(ctx, operator, r.ID, leave.ReviewDTO{})
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))
			_, err = svc.Approve(ctx, senior, r.ID, leave.ReviewDTO{})
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))

			all, err := shifts.List(ctx, shift.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})

		It("refuses to approve a rejected request", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-10")
			_, err := svc.Reject(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).To(MatchError(appErrors.ErrInvalidRequestStatus))
		})
	})

	Describe("Reject", func() {
		It("stores reviewer notes", func() {
			r := submit(operator, leave.TypeUnpaidLeave, "2024-01-10", "2024-01-10")
			notes := "short staffed"

			rejected, err := svc.Reject(ctx, admin, r.ID, leave.ReviewDTO{Notes: &notes})
			Expect(err).NotTo(HaveOccurred())
			Expect(rejected.Status).To(Equal(leave.StatusRejected))
			Expect(*rejected.Notes).To(Equal("short staffed"))
		})

		It("only rejects pending requests", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-10")
			_, err := svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Reject(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).To(MatchError(appErrors.ErrInvalidRequestStatus))
		})
	})

	Describe("concurrent review", func() {
		var (
			repo   *leavePostgres.LeaveRepository
			racing *leave.Service
		)

		BeforeEach(func() {
			repo = leavePostgres.NewLeaveRepository(db)
			racing = leave.NewService(pendingSnapshot{Repository: repo}, repo, shifts, directory, report, feed, bus, leave.Options{
				Location: time.UTC,
				Rules:    user.DefaultBalanceRules(),
			}, discardLogger())
		})

		It("does not approve a request rejected after it was read", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-11")
			_, err := svc.Reject(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())

			_, err = racing.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).To(MatchError(appErrors.ErrInvalidRequestStatus))

			stored, err := repo.GetByID(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(leave.StatusRejected))
			all, err := shifts.List(ctx, shift.Filter{UserID: "op"})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})

		It("does not reject a request approved after it was read", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-10")
			_, err := svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())

			_, err = racing.Reject(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).To(MatchError(appErrors.ErrInvalidRequestStatus))

			stored, err := repo.GetByID(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(leave.StatusApproved))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-10")
			submit(senior, leave.TypeDayOff, "2024-01-11", "2024-01-11")
		})

		It("never offers approval to non-administrators", func() {
			for _, viewer := range []*auth.User{operator, senior} {
				requests, err := svc.List(ctx, viewer, leave.Filter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(requests).To(HaveLen(1))
				Expect(requests[0].UserID).To(Equal(viewer.ID))
				Expect(requests[0].Actions.CanApprove).To(BeFalse())
				Expect(requests[0].Actions.CanReject).To(BeFalse())
				Expect(requests[0].Actions.CanDelete).To(BeTrue())
			}
		})

		It("shows administrators everything with review actions on pending requests", func() {
			requests, err := svc.List(ctx, admin, leave.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(requests).To(HaveLen(2))
			for _, r := range requests {
				Expect(r.Actions.CanApprove).To(BeTrue())
				Expect(r.Actions.CanReject).To(BeTrue())
			}
		})

		It("honours the legacy is_admin flag", func() {
			legacy := &auth.User{ID: "legacy", Role: auth.RoleProducer, IsAdmin: true}
			requests, err := svc.List(ctx, legacy, leave.Filter{Status: leave.StatusPending})
			Expect(err).NotTo(HaveOccurred())
			Expect(requests).To(HaveLen(2))
			Expect(requests[0].Actions.CanApprove).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("lets the owner delete while pending only", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-10")
			other := submit(operator, leave.TypeDayOff, "2024-02-10", "2024-02-10")
			_, err := svc.Approve(ctx, admin, other.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Delete(ctx, operator, r.ID)).To(Succeed())
			Expect(svc.Delete(ctx, operator, other.ID)).To(MatchError(appErrors.ErrUnauthorizedAccess))
			Expect(svc.Delete(ctx, admin, other.ID)).To(Succeed())
		})

		It("forbids other users", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-10")
			Expect(svc.Delete(ctx, senior, r.ID)).To(MatchError(appErrors.ErrUnauthorizedAccess))
		})
	})

	Describe("Balances", func() {
		It("subtracts approved days from the stored balance", func() {
			r := submit(operator, leave.TypeDayOff, "2024-01-10", "2024-01-12")
			_, err := svc.Approve(ctx, admin, r.ID, leave.ReviewDTO{})
			Expect(err).NotTo(HaveOccurred())
			submit(operator, leave.TypeDayOff, "2024-03-01", "2024-03-05")

			b, err := svc.GetBalance(ctx, operator, "op")
			Expect(err).NotTo(HaveOccurred())
			Expect(b.BalanceDays).To(Equal(5.0))
			Expect(b.ApprovedDays).To(Equal(3))
			Expect(b.RemainingDays).To(Equal(2.0))
		})

		It("hides other users' balances from non-administrators", func() {
			_, err := svc.GetBalance(ctx, senior, "op")
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))
		})

		It("builds the admin report from the aggregate rows", func() {
			h := 16
			report.rows = []leave.BalanceRow{
				{UserID: "a", Username: "a", BalanceHours: &h, ApprovedDays: 5},
				{UserID: "b", Username: "b", ApprovedDays: 1},
			}

			out, err := svc.BalanceReport(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))
			Expect(out[0].RemainingDays).To(Equal(0.0))
			Expect(out[1].RemainingDays).To(Equal(9.0))

			_, err = svc.BalanceReport(ctx, operator)
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))
		})
	})
})
