package gateway_test

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/ragdocs-gateway/pkg/types"
)

var _ = Describe("WebSocket stream", func() {
	var conn *websocket.Conn
	var hello types.WSFrame

	BeforeEach(func() {
		var err error
		conn, _, err = websocket.DefaultDialer.Dial(testServer.WebSocketURL(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

		Expect(conn.ReadJSON(&hello)).To(Succeed())
	})

	AfterEach(func() {
		conn.Close()
	})

	It("sends the session id first", func() {
		Expect(hello.Type).To(Equal("session"))
		Expect(hello.SessionID).NotTo(BeEmpty())
		Expect(testServer.Registry.Has(hello.SessionID)).To(BeTrue())
	})

	It("answers JSON-RPC messages on the same connection", func() {
		Expect(conn.WriteMessage(websocket.TextMessage, []byte(pingRequest))).To(Succeed())

		_, data, err := conn.ReadMessage()
		Expect(err).NotTo(HaveOccurred())

		var reply map[string]any
		Expect(json.Unmarshal(data, &reply)).To(Succeed())
		Expect(reply).To(HaveKeyWithValue("id", BeNumerically("==", 7)))
	})

	It("is also addressable over HTTP", func() {
		resp, err := client.PostRaw(ctx, "/messages/"+hello.SessionID, []byte(pingRequest))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(202))

		_, data, err := conn.ReadMessage()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"id":7`))
	})

	It("removes the session when the socket closes", func() {
		conn.Close()
		Eventually(func() bool {
			return testServer.Registry.Has(hello.SessionID)
		}, 5*time.Second, 50*time.Millisecond).Should(BeFalse())
	})
})
