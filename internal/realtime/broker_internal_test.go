package realtime

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("change encoding", func() {
	It("round-trips through the redis payload format", func() {
		data, err := encodeChange(NewChange(TableTasks, EventUpdate, "t1", map[string]interface{}{"status": "done"}, nil, 7))
		Expect(err).NotTo(HaveOccurred())

		change, err := decodeChange(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(change.Table).To(Equal(TableTasks))
		Expect(change.Version).To(BeEquivalentTo(7))
		Expect(change.At.IsZero()).To(BeFalse())
	})

	It("rejects payloads without a table", func() {
		_, err := decodeChange([]byte(`{"eventType":"INSERT"}`))
		Expect(err).To(HaveOccurred())
	})
})
