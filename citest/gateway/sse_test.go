package gateway_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/ragdocs-gateway/citest/testutil"
	"github.com/telnet2/ragdocs-gateway/pkg/types"
)

const pingRequest = `{"jsonrpc":"2.0","id":7,"method":"ping"}`

var _ = Describe("SSE stream", func() {
	var sse *testutil.SSEClient
	var sessionID string
	var endpoint string

	BeforeEach(func() {
		sse = testutil.NewSSEClient(testServer.BaseURL)
		Expect(sse.Connect(ctx, "/sse")).To(Succeed())

		evt, err := sse.WaitForEvent("session", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		var hello types.SessionEvent
		Expect(evt.JSON(&hello)).To(Succeed())
		sessionID = hello.SessionID
		Expect(sessionID).NotTo(BeEmpty())

		evt, err = sse.WaitForEvent("endpoint", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		endpoint = evt.Data
	})

	AfterEach(func() {
		sse.Close()
	})

	It("announces the message endpoint for the session", func() {
		Expect(endpoint).To(Equal("/messages/" + sessionID))
	})

	It("lists the session while the stream is open", func() {
		resp, err := client.Get(ctx, "/sessions")
		Expect(err).NotTo(HaveOccurred())

		var list types.SessionList
		Expect(resp.JSON(&list)).To(Succeed())
		ids := make([]string, 0, len(list.Sessions))
		for _, s := range list.Sessions {
			ids = append(ids, s.ID)
		}
		Expect(ids).To(ContainElement(sessionID))
	})

	It("streams the reply to a posted message", func() {
		resp, err := client.PostRaw(ctx, endpoint, []byte(pingRequest))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(202))
		Expect(resp.String()).To(Equal("Accepted"))

		evt, err := sse.WaitForEvent("message", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(evt.ID).NotTo(BeEmpty())

		var reply map[string]any
		Expect(evt.JSON(&reply)).To(Succeed())
		Expect(reply).To(HaveKeyWithValue("id", BeNumerically("==", 7)))
	})

	It("accepts the session id in the X-Session-ID header", func() {
		resp, err := client.PostRaw(ctx, "/messages", []byte(pingRequest),
			testutil.WithHeader("X-Session-ID", sessionID))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(202))
	})

	It("rejects malformed messages with 400", func() {
		resp, err := client.PostRaw(ctx, endpoint, []byte("{not json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(400))
	})

	It("removes the session when the client disconnects", func() {
		sse.Close()

		Eventually(func() int {
			resp, err := client.PostRaw(ctx, endpoint, []byte(pingRequest))
			if err != nil {
				return 0
			}
			return resp.StatusCode
		}, 5*time.Second, 50*time.Millisecond).Should(Equal(404))
	})
})

var _ = Describe("Message routing", func() {
	It("returns 404 for an unknown session", func() {
		resp, err := client.PostRaw(ctx, "/messages/does-not-exist", []byte(pingRequest))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(404))

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		Expect(resp.JSON(&body)).To(Succeed())
		Expect(body.Error.Code).To(Equal("NOT_FOUND"))
	})

	It("returns 400 without a session id", func() {
		resp, err := client.PostRaw(ctx, "/messages", []byte(pingRequest))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(400))
	})
})

var _ = Describe("Monitoring", func() {
	It("reports status", func() {
		resp, err := client.Get(ctx, "/status")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))

		var status types.StatusResponse
		Expect(resp.JSON(&status)).To(Succeed())
		Expect(status.Status).To(Equal("ok"))
		Expect(status.Memory.RSS).To(BeNumerically(">", 0))
	})

	It("reports health", func() {
		resp, err := client.Get(ctx, "/health")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.String()).To(ContainSubstring(`"ok"`))
	})

	It("exposes prometheus metrics", func() {
		resp, err := client.Get(ctx, "/metrics")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(resp.String()).To(ContainSubstring("ragdocs_gateway_active_sessions"))
	})
})
