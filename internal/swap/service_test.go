package swap_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	shiftDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/shift"
	swapDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/swap"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
	shiftPostgres "github.com/marvellous-media/marvellous-manager/internal/shift/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/swap"
	swapPostgres "github.com/marvellous-media/marvellous-manager/internal/swap/postgres"
)

func TestSwap(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Swap Module Suite")
}

type recordingBus struct {
	types []string
}

func (b *recordingBus) Publish(ctx context.Context, e events.Event) error {
	b.types = append(b.types, e.EventType())
	return nil
}

var _ = Describe("SwapService", func() {
	var (
		svc    *swap.Service
		shifts *shiftPostgres.ShiftRepository
		bus    *recordingBus
		ctx    context.Context
		admin  *auth.User
		alice  *auth.User
		bob    *auth.User
		aShift *shift.Shift
		bShift *shift.Shift
	)

	BeforeEach(func() {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&shiftDatamodel.Shift{}, &swapDatamodel.SwapRequest{})).To(Succeed())

		ctx = context.Background()
		admin = &auth.User{ID: "admin", Username: "anna", Role: auth.RoleAdmin}
		alice = &auth.User{ID: "alice", Username: "alice", Role: auth.RoleOperator}
		bob = &auth.User{ID: "bob", Username: "bob", Role: auth.RoleOperator}

		shifts = shiftPostgres.NewShiftRepository(db)
		aShift = &shift.Shift{UserID: "alice", ShiftType: "morning", Title: "Morning",
			StartTime: time.Date(2024, 5, 6, 6, 0, 0, 0, time.UTC), EndTime: time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC)}
		bShift = &shift.Shift{UserID: "bob", ShiftType: "evening", Title: "Evening",
			StartTime: time.Date(2024, 5, 7, 14, 0, 0, 0, time.UTC), EndTime: time.Date(2024, 5, 7, 22, 0, 0, 0, time.UTC)}
		Expect(shifts.Create(ctx, aShift)).To(Succeed())
		Expect(shifts.Create(ctx, bShift)).To(Succeed())

		bus = &recordingBus{}
		repo := swapPostgres.NewSwapRepository(db)
		svc = swap.NewService(repo, repo, shifts, realtime.NewMemoryBroker(realtime.NewHub(nil)), bus,
			slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	reload := func(id string) *shift.Shift {
		s, err := shifts.GetByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("parks the shift as pending_swap and notifies the requested user", func() {
		req, err := svc.Create(ctx, alice, swap.CreateSwapDTO{ShiftID: aShift.ID, RequestedUserID: "bob"})
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Status).To(Equal(swap.StatusPending))
		Expect(req.StartDate.Equal(aShift.StartTime)).To(BeTrue())
		Expect(reload(aShift.ID).Status).To(Equal(shift.StatusPendingSwap))
		Expect(bus.types).To(Equal([]string{events.EventTypeSwapRequested}))
	})

	It("refuses shifts the requester does not own", func() {
		_, err := svc.Create(ctx, alice, swap.CreateSwapDTO{ShiftID: bShift.ID, RequestedUserID: "bob"})
		Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))
	})

	It("refuses a second swap on a parked shift", func() {
		_, err := svc.Create(ctx, alice, swap.CreateSwapDTO{ShiftID: aShift.ID, RequestedUserID: "bob"})
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.Create(ctx, alice, swap.CreateSwapDTO{ShiftID: aShift.ID, RequestedUserID: "carol"})
		Expect(err).To(MatchError(appErrors.ErrShiftUnavailable))
	})

	It("exchanges both shifts on approval", func() {
		proposed := bShift.ID
		req, err := svc.Create(ctx, alice, swap.CreateSwapDTO{ShiftID: aShift.ID, RequestedUserID: "bob", ProposedShiftID: &proposed})
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Approve(ctx, bob, req.ID)
		Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))

		approved, err := svc.Approve(ctx, admin, req.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(approved.Status).To(Equal(swap.StatusApproved))

		a := reload(aShift.ID)
		Expect(a.UserID).To(Equal("bob"))
		Expect(a.Status).To(Equal(shift.StatusActive))
		Expect(reload(bShift.ID).UserID).To(Equal("alice"))

		_, err = svc.Approve(ctx, admin, req.ID)
		Expect(err).To(MatchError(appErrors.ErrInvalidSwapStatus))
	})

	It("lets the requested user reject and frees the shift", func() {
		req, err := svc.Create(ctx, alice, swap.CreateSwapDTO{ShiftID: aShift.ID, RequestedUserID: "bob"})
		Expect(err).NotTo(HaveOccurred())

		rejected, err := svc.Reject(ctx, bob, req.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(rejected.Status).To(Equal(swap.StatusRejected))
		a := reload(aShift.ID)
		Expect(a.Status).To(Equal(shift.StatusActive))
		Expect(a.UserID).To(Equal("alice"))
	})

	It("frees the shift when the requester withdraws", func() {
		req, err := svc.Create(ctx, alice, swap.CreateSwapDTO{ShiftID: aShift.ID, RequestedUserID: "bob"})
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.Delete(ctx, bob, req.ID)).To(MatchError(appErrors.ErrUnauthorizedAccess))
		Expect(svc.Delete(ctx, alice, req.ID)).To(Succeed())
		Expect(reload(aShift.ID).Status).To(Equal(shift.StatusActive))

		list, err := svc.List(ctx, admin)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())
	})

	It("shows users only the swaps they are part of", func() {
		_, err := svc.Create(ctx, alice, swap.CreateSwapDTO{ShiftID: aShift.ID, RequestedUserID: "bob"})
		Expect(err).NotTo(HaveOccurred())

		carol := &auth.User{ID: "carol", Role: auth.RoleOperator}
		for viewer, n := range map[*auth.User]int{alice: 1, bob: 1, carol: 0, admin: 1} {
			list, err := svc.List(ctx, viewer)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(n))
		}
	})
})
