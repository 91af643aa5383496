package telemetry_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/telemetry"
)

func TestTelemetry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Telemetry Suite")
}

var _ = Describe("Setup", func() {
	It("installs nothing when tracing is disabled", func() {
		shutdown, err := telemetry.Setup(context.Background(), internal.TracingConfig{Enabled: false})
		Expect(err).NotTo(HaveOccurred())
		Expect(shutdown(context.Background())).To(Succeed())
	})

	It("builds a provider that shuts down cleanly", func() {
		shutdown, err := telemetry.Setup(context.Background(), internal.TracingConfig{
			Enabled:     true,
			ServiceName: "test",
			Endpoint:    "localhost:4317",
			Insecure:    true,
		})
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = shutdown(ctx)
	})
})
