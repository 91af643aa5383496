package notification_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	notificationDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/notification"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/notification"
	notificationPostgres "github.com/marvellous-media/marvellous-manager/internal/notification/postgres"
)

func subscribeDTO(endpoint string) notification.SubscribeDTO {
	dto := notification.SubscribeDTO{Endpoint: endpoint}
	dto.Keys.P256dh = "p256"
	dto.Keys.Auth = "auth"
	return dto
}

var _ = Describe("Service", func() {
	var (
		svc   *notification.Service
		repo  *notificationPostgres.NotificationRepository
		ctx   context.Context
		now   time.Time
		alice *auth.User
		admin *auth.User
	)

	BeforeEach(func() {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&notificationDatamodel.PushSubscription{}, &notificationDatamodel.NotificationFailure{})).To(Succeed())

		ctx = context.Background()
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		alice = &auth.User{ID: "alice", Role: auth.RoleOperator}
		admin = &auth.User{ID: "admin", Role: auth.RoleAdmin}

		repo = notificationPostgres.NewNotificationRepository(db)
		svc = notification.NewService(repo, repo, time.Minute, discardLogger()).
			WithClock(func() time.Time { return now })
	})

	Describe("Subscribe", func() {
		It("stores a subscription", func() {
			res, err := svc.Subscribe(ctx, alice, subscribeDTO("https://push.example.com/a"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Throttled).To(BeFalse())
			Expect(res.Subscription.ID).NotTo(BeEmpty())
			Expect(res.Subscription.UserID).To(Equal("alice"))
		})

		It("returns the existing state inside the cooldown window", func() {
			first, err := svc.Subscribe(ctx, alice, subscribeDTO("https://push.example.com/a"))
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(10 * time.Second)
			second, err := svc.Subscribe(ctx, alice, subscribeDTO("https://push.example.com/b"))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Throttled).To(BeTrue())
			Expect(second.Subscription.ID).To(Equal(first.Subscription.ID))

			stored, err := repo.FindByEndpoint(ctx, "https://push.example.com/b")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeNil())
		})

		It("upserts by endpoint once the cooldown has passed", func() {
			first, err := svc.Subscribe(ctx, alice, subscribeDTO("https://push.example.com/a"))
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(2 * time.Minute)
			dto := subscribeDTO("https://push.example.com/a")
			dto.Keys.Auth = "rotated"
			second, err := svc.Subscribe(ctx, alice, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Throttled).To(BeFalse())
			Expect(second.Subscription.ID).To(Equal(first.Subscription.ID))
			Expect(second.Subscription.Auth).To(Equal("rotated"))
		})

		It("does not throttle different users", func() {
			_, err := svc.Subscribe(ctx, alice, subscribeDTO("https://push.example.com/a"))
			Expect(err).NotTo(HaveOccurred())
			res, err := svc.Subscribe(ctx, admin, subscribeDTO("https://push.example.com/z"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Throttled).To(BeFalse())
		})

		It("rejects an invalid endpoint", func() {
			_, err := svc.Subscribe(ctx, alice, subscribeDTO("not a url"))
			appErr, ok := appErrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(appErrors.ErrorTypeValidation))
		})
	})

	It("unsubscribes and clears the cooldown", func() {
		_, err := svc.Subscribe(ctx, alice, subscribeDTO("https://push.example.com/a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.Unsubscribe(ctx, alice, notification.UnsubscribeDTO{Endpoint: "https://push.example.com/a"})).To(Succeed())

		stored, err := repo.FindByEndpoint(ctx, "https://push.example.com/a")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(BeNil())

		res, err := svc.Subscribe(ctx, alice, subscribeDTO("https://push.example.com/b"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Throttled).To(BeFalse())
	})

	Describe("ListFailures", func() {
		It("needs the failure-log permission", func() {
			_, err := svc.ListFailures(ctx, alice, 10)
			Expect(err).To(MatchError(appErrors.ErrUnauthorizedAccess))
		})

		It("returns recorded failures with their payload", func() {
			msg := notification.Message{
				UserIDs: []string{"u1", "u2"},
				Title:   "Leave approved",
				Data:    map[string]interface{}{"request_id": "r1"},
			}
			Expect(repo.RecordFailure(ctx, notification.NewFailure(msg, notification.ReasonQueueFull, 0))).To(Succeed())

			failures, err := svc.ListFailures(ctx, admin, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].UserIDs).To(Equal([]string{"u1", "u2"}))
			Expect(failures[0].Data).To(HaveKeyWithValue("request_id", "r1"))
			Expect(failures[0].Reason).To(Equal(notification.ReasonQueueFull))
		})
	})
})

type capturingNotifier struct {
	messages []notification.Message
}

func (n *capturingNotifier) Notify(ctx context.Context, msg notification.Message) {
	n.messages = append(n.messages, msg)
}

var _ = Describe("EventHandler", func() {
	It("turns a notifiable event into a push message", func() {
		notifier := &capturingNotifier{}
		h := notification.NewEventHandler(notifier, discardLogger())

		evt := events.NewNotificationEvent(events.EventTypeLeaveApproved, []string{"alice"},
			"Leave approved", "3 days off", map[string]interface{}{"request_id": "r1"})
		Expect(h.HandleNotifiable(context.Background(), evt)).To(Succeed())

		Expect(notifier.messages).To(HaveLen(1))
		msg := notifier.messages[0]
		Expect(msg.UserIDs).To(Equal([]string{"alice"}))
		Expect(msg.Title).To(Equal("Leave approved"))
		Expect(msg.Data).To(HaveKeyWithValue("type", events.EventTypeLeaveApproved))
		Expect(msg.Data).To(HaveKeyWithValue("request_id", "r1"))
	})

	It("rejects events that carry no recipients contract", func() {
		h := notification.NewEventHandler(&capturingNotifier{}, discardLogger())
		err := h.HandleNotifiable(context.Background(), events.BaseEvent{Type: "custom"})
		Expect(err).To(HaveOccurred())
	})

	It("subscribes to every notification type on the bus", func() {
		notifier := &capturingNotifier{}
		bus := events.NewEventBus(discardLogger())
		notification.NewEventHandler(notifier, discardLogger()).RegisterEventHandlers(bus)

		for _, t := range events.NotificationTypes {
			evt := events.NewNotificationEvent(t, []string{"u1"}, t, "", nil)
			Expect(bus.PublishSync(context.Background(), evt)).To(Succeed())
		}
		Expect(notifier.messages).To(HaveLen(len(events.NotificationTypes)))
	})
})
