package events_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marvellous-media/marvellous-manager/internal/core/events"
)

func TestEvents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Events Suite")
}

var _ = Describe("EventBus", func() {
	var (
		bus    *events.EventBus
		logger *slog.Logger
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus = events.NewEventBus(logger)
	})

	Context("Publish", func() {
		It("delivers to every subscriber of the event type", func() {
			var calls int32
			for i := 0; i < 3; i++ {
				bus.Subscribe(events.EventTypeLeaveApproved, func(ctx context.Context, e events.Event) error {
					atomic.AddInt32(&calls, 1)
					return nil
				})
			}
			bus.Subscribe(events.EventTypeLeaveRejected, func(ctx context.Context, e events.Event) error {
				atomic.AddInt32(&calls, 100)
				return nil
			})

			evt := events.NewNotificationEvent(events.EventTypeLeaveApproved, []string{"u1"}, "Approved", "", nil)
			Expect(bus.Publish(context.Background(), evt)).To(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			Expect(bus.Wait(ctx)).To(Succeed())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
		})

		It("keeps running handlers after the publishing context is cancelled", func() {
			var seenErr atomic.Value
			bus.Subscribe(events.EventTypeTaskDeleted, func(ctx context.Context, e events.Event) error {
				time.Sleep(10 * time.Millisecond)
				seenErr.Store(ctx.Err() == nil)
				return nil
			})

			ctx, cancel := context.WithCancel(context.Background())
			Expect(bus.Publish(ctx, events.NewNotificationEvent(events.EventTypeTaskDeleted, nil, "", "", nil))).To(Succeed())
			cancel()

			Expect(bus.Wait(context.Background())).To(Succeed())
			Expect(seenErr.Load()).To(Equal(true))
		})

		It("swallows handler errors and panics", func() {
			bus.Subscribe(events.EventTypeShiftCreated, func(ctx context.Context, e events.Event) error {
				return errors.New("boom")
			})
			bus.Subscribe(events.EventTypeShiftCreated, func(ctx context.Context, e events.Event) error {
				panic("kaboom")
			})

			Expect(bus.Publish(context.Background(), events.NewNotificationEvent(events.EventTypeShiftCreated, nil, "", "", nil))).To(Succeed())
			Expect(bus.Wait(context.Background())).To(Succeed())
		})
	})

	Context("PublishSync", func() {
		It("returns the first handler error", func() {
			bus.Subscribe(events.EventTypeSwapApproved, func(ctx context.Context, e events.Event) error {
				return errors.New("handler failed")
			})

			err := bus.PublishSync(context.Background(), events.NewNotificationEvent(events.EventTypeSwapApproved, nil, "", "", nil))
			Expect(err).To(MatchError(ContainSubstring("swap.approved")))
		})

		It("is a no-op without subscribers", func() {
			Expect(bus.PublishSync(context.Background(), events.NewNotificationEvent("unknown", nil, "", "", nil))).To(Succeed())
		})
	})

	Context("NotificationEvent", func() {
		It("stamps the event type into its data", func() {
			evt := events.NewNotificationEvent(events.EventTypeLeaveSubmitted, []string{"a", "b"}, "New request", "Jo asked for leave", map[string]interface{}{"request_id": "r1"})
			Expect(evt.NotificationRecipients()).To(ConsistOf("a", "b"))
			Expect(evt.Data).To(HaveKeyWithValue("type", events.EventTypeLeaveSubmitted))
			Expect(evt.Data).To(HaveKeyWithValue("request_id", "r1"))
			Expect(evt.EventID()).NotTo(BeEmpty())
		})
	})
})
