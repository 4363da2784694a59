package gateway_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/ragdocs-gateway/citest/testutil"
)

var _ = Describe("Idle eviction", Ordered, func() {
	var short *testutil.TestServer

	BeforeAll(func() {
		var err error
		short, err = testutil.StartTestServer(
			testutil.WithInactivity(500*time.Millisecond, 100*time.Millisecond),
			testutil.WithHeartbeat(100*time.Millisecond),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if short != nil {
			Expect(short.Stop()).To(Succeed())
		}
	})

	It("heartbeats and then closes an idle stream", func() {
		sse := testutil.NewSSEClient(short.BaseURL)
		Expect(sse.Connect(ctx, "/sse")).To(Succeed())
		defer sse.Close()

		_, err := sse.WaitForEvent("endpoint", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(short.Registry.Count()).To(Equal(1))

		_, err = sse.WaitForEvent("heartbeat", 2*time.Second)
		Expect(err).NotTo(HaveOccurred())

		Expect(sse.WaitForClose(5 * time.Second)).To(Succeed())
		Expect(short.Registry.Count()).To(Equal(0))
	})

	It("keeps a stream with traffic alive past the threshold", func() {
		sse := testutil.NewSSEClient(short.BaseURL)
		Expect(sse.Connect(ctx, "/sse")).To(Succeed())
		defer sse.Close()

		evt, err := sse.WaitForEvent("endpoint", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		c := short.Client()
		deadline := time.Now().Add(1500 * time.Millisecond)
		for time.Now().Before(deadline) {
			resp, err := c.PostRaw(ctx, evt.Data, []byte(pingRequest))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(202))
			time.Sleep(150 * time.Millisecond)
		}
		Expect(short.Registry.Count()).To(Equal(1))
	})
})
