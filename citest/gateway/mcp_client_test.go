package gateway_test

import (
	"encoding/json"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MCP client over SSE", func() {
	var mcpClient *mcpclient.Client

	BeforeEach(func() {
		var err error
		mcpClient, err = mcpclient.NewSSEMCPClient(testServer.BaseURL + "/sse")
		Expect(err).NotTo(HaveOccurred())
		Expect(mcpClient.Start(ctx)).To(Succeed())

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcp.Implementation{Name: "citest", Version: "1.0.0"}

		result, err := mcpClient.Initialize(ctx, initReq)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ServerInfo.Name).To(Equal("mcp-ragdocs"))
		Expect(result.ServerInfo.Version).To(Equal("1.0.0"))
	})

	AfterEach(func() {
		if mcpClient != nil {
			mcpClient.Close()
		}
	})

	It("lists the gateway tools", func() {
		tools, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		Expect(err).NotTo(HaveOccurred())

		names := make([]string, 0, len(tools.Tools))
		for _, t := range tools.Tools {
			names = append(names, t.Name)
		}
		Expect(names).To(ContainElements("gateway_status", "session_info"))
	})

	It("calls gateway_status", func() {
		req := mcp.CallToolRequest{}
		req.Params.Name = "gateway_status"

		result, err := mcpClient.CallTool(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeFalse())
		Expect(result.Content).NotTo(BeEmpty())

		text, ok := result.Content[0].(mcp.TextContent)
		Expect(ok).To(BeTrue())

		var status struct {
			Server         string `json:"server"`
			ActiveSessions int    `json:"activeSessions"`
		}
		Expect(json.Unmarshal([]byte(text.Text), &status)).To(Succeed())
		Expect(status.Server).To(Equal("ragdocs-gateway"))
		Expect(status.ActiveSessions).To(BeNumerically(">=", 1))
	})

	It("describes its own session with session_info", func() {
		req := mcp.CallToolRequest{}
		req.Params.Name = "session_info"

		result, err := mcpClient.CallTool(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeFalse())

		text := result.Content[0].(mcp.TextContent)
		var info struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		}
		Expect(json.Unmarshal([]byte(text.Text), &info)).To(Succeed())
		Expect(info.Kind).To(Equal("sse"))
		Expect(testServer.Registry.Has(info.ID)).To(BeTrue())
	})

	It("keeps the session alive across calls", func() {
		for i := 0; i < 3; i++ {
			Expect(mcpClient.Ping(ctx)).To(Succeed())
			time.Sleep(10 * time.Millisecond)
		}
	})
})
