package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

func clientCmd() *cobra.Command {
	var (
		addr      string
		agentID   string
		email     string
		sessionID string
		message   string
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Chat with the running gateway over WebSocket",
		Long: `Connects to a running gateway the way a voice client does, minus the
audio: type a line, get the extracted fields and the next prompt back.

Examples:
  govoice client                              # interactive REPL
  govoice client --agent meal-coach           # pick an agent
  govoice client -m "I had rice for lunch"    # one-shot message (text reply only)
  govoice client --addr 127.0.0.1:18890`,
		Run: func(cmd *cobra.Command, args []string) {
			runClient(addr, agentID, email, sessionID, message)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "gateway address (default: from config)")
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id (default: server default)")
	cmd.Flags().StringVarP(&email, "email", "e", "cli@localhost", "user email for the session")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default: auto-generated)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")

	return cmd
}

// chatClient drives one WebSocket session. A read pump prints pushed frames
// (audio, status) as they arrive and routes reply frames to await.
type chatClient struct {
	conn    *websocket.Conn
	session string

	resp    chan *protocol.Frame
	readErr error

	agentLabel string
	labelWidth int
	history    []protocol.SummaryTurn
	fields     map[string]any
}

func runClient(addr, agentID, email, sessionID, message string) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if addr == "" {
		host := cfg.Gateway.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		addr = fmt.Sprintf("%s:%d", host, cfg.Gateway.Port)
	}
	if sessionID == "" {
		sessionID = "cli-" + uuid.NewString()[:8]
	}

	if !isGatewayRunning(addr) {
		fmt.Fprintf(os.Stderr, "No gateway at %s. Start it with: ./govoice\n", addr)
		os.Exit(1)
	}

	q := url.Values{}
	q.Set("sessionId", sessionID)
	q.Set("userEmail", email)
	wsURL := fmt.Sprintf("ws://%s/ws?%s", addr, q.Encode())

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{})
	dialCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "WebSocket connect failed: %v\n", err)
		os.Exit(1)
	}
	conn.SetReadLimit(1 << 20)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	c := &chatClient{
		conn:       conn,
		session:    sessionID,
		resp:       make(chan *protocol.Frame, 8),
		agentLabel: "Agent",
		labelWidth: runewidth.StringWidth("Agent"),
		fields:     map[string]any{},
	}
	go c.readPump()

	ctx := context.Background()

	// Fetch the compiled agent so the REPL shows what it is talking to.
	if err := c.send(ctx, protocol.TypeClientReadyRequest, protocol.ClientReadyRequest{AgentID: agentID, UserEmail: email}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	readyFrame, err := c.await(protocol.TypeClientReadyResponse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client_ready failed: %v\n", err)
		os.Exit(1)
	}
	var ready protocol.ClientReadyResponse
	if err := json.Unmarshal(readyFrame.Data, &ready); err == nil && ready.Agent != nil {
		c.setAgentLabel(ready.Agent.Name)
		lines := []string{
			ready.Agent.Name,
			fmt.Sprintf("%d section(s), session %s", len(ready.Agent.Sections), sessionID),
		}
		if ready.UserInfo.HasInteractedBefore {
			lines = append(lines, fmt.Sprintf("returning user, %d prior session(s)", ready.UserInfo.TotalSessions))
		}
		fmt.Fprintln(os.Stderr, banner(lines...))
	}

	if message != "" {
		// One-shot mode.
		if err := c.sendUserMessage(ctx, agentID, message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		f, err := c.await(protocol.TypeAIResponse)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		c.printAIResponse(f)
		return
	}

	// Interactive REPL.
	fmt.Fprintln(os.Stderr, `Type "exit" to quit, "/greet" for a greeting, "/summary" for a digest, "/done" to finish.`)
	fmt.Fprintln(os.Stderr)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch input {
		case "exit", "quit":
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return

		case "/greet":
			if err := c.sendUserMessage(ctx, agentID, protocol.GreetingCommand); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			f, err := c.await(protocol.TypeAIResponse)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			c.printAIResponse(f)

		case "/summary":
			if err := c.send(ctx, protocol.TypeConversationSummaryRequest, protocol.ConversationSummaryRequest{
				ConversationHistory: c.history,
				AgentID:             agentID,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			f, err := c.await(protocol.TypeConversationSummaryResponse)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			var p protocol.ConversationSummaryResponse
			if json.Unmarshal(f.Data, &p) == nil {
				fmt.Printf("\n%s\n\n", p.Summary)
			}

		case "/done":
			if err := c.send(ctx, protocol.TypeConversationCompleted, protocol.ConversationCompleted{
				CompletedFields:     c.fields,
				ConversationHistory: c.history,
				AgentID:             agentID,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			if _, err := c.await(protocol.TypeStatus); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			fmt.Fprintln(os.Stderr, "Session completed.")
			return

		default:
			c.history = append(c.history, protocol.SummaryTurn{Speaker: "user", Text: input})
			if err := c.sendUserMessage(ctx, agentID, input); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			f, err := c.await(protocol.TypeAIResponse)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			c.printAIResponse(f)
		}
	}
}

// readPump decodes inbound frames for the lifetime of the connection.
// Pushed frames (audio, status) print immediately; reply frames go to the
// resp channel for await. Read contexts are never given deadlines because
// cancellation closes the whole connection.
func (c *chatClient) readPump() {
	defer close(c.resp)
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.readErr = err
			return
		}
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		switch f.Type {
		case protocol.TypeTTSResponse:
			var p protocol.TTSResponse
			if json.Unmarshal(f.Data, &p) == nil {
				fmt.Fprintf(os.Stderr, "  [audio] %d chars base64, ~%dms\n", len(p.Audio), p.Duration)
			}
		case protocol.TypeStatus:
			var p protocol.StatusPayload
			if json.Unmarshal(f.Data, &p) == nil {
				fmt.Fprintf(os.Stderr, "  [status] %s\n", p.Message)
			}
			// /done waits for the completion status, so forward it too.
			select {
			case c.resp <- &f:
			default:
			}
		default:
			c.resp <- &f
		}
	}
}

// await returns the next reply frame of type want. An error frame ends the
// wait; unrelated replies are dropped.
func (c *chatClient) await(want string) (*protocol.Frame, error) {
	timer := time.NewTimer(60 * time.Second)
	defer timer.Stop()
	for {
		select {
		case f, ok := <-c.resp:
			if !ok {
				return nil, fmt.Errorf("connection closed: %v", c.readErr)
			}
			switch f.Type {
			case want:
				return f, nil
			case protocol.TypeError:
				var p protocol.ErrorPayload
				if json.Unmarshal(f.Data, &p) == nil && p.Message != "" {
					return nil, errors.New(p.Message)
				}
				return nil, errors.New("server error")
			}
		case <-timer.C:
			return nil, fmt.Errorf("timed out waiting for %s", want)
		}
	}
}

func (c *chatClient) send(ctx context.Context, frameType string, payload any) error {
	f, err := protocol.NewFrame(frameType, c.session, payload, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, data)
}

func (c *chatClient) sendUserMessage(ctx context.Context, agentID, text string) error {
	return c.send(ctx, protocol.TypeUserMessage, protocol.UserMessage{Prompt: text, AgentID: agentID})
}

func (c *chatClient) printAIResponse(f *protocol.Frame) {
	var p protocol.AIResponse
	if err := json.Unmarshal(f.Data, &p); err != nil {
		fmt.Fprintf(os.Stderr, "  bad ai_response: %v\n", err)
		return
	}
	ir := p.IntentResponse
	for k, v := range ir.Fields {
		c.fields[k] = v
		fmt.Fprintf(os.Stderr, "  [field] %s = %s\n", k, v)
	}
	if ir.IsCompleted {
		fmt.Fprintf(os.Stderr, "  [intent %s completed]\n", ir.ID)
	}
	c.printTurn(c.agentLabel, ir.NextPrompt)
	fmt.Println()
	c.history = append(c.history, protocol.SummaryTurn{Speaker: "agent", Text: ir.NextPrompt})
}

func (c *chatClient) setAgentLabel(name string) {
	if name == "" {
		return
	}
	c.agentLabel = name
	if w := runewidth.StringWidth(name); w > c.labelWidth {
		c.labelWidth = w
	}
}

// printTurn aligns the speaker column by display width, so agent names with
// double-width runes keep the transcript straight.
func (c *chatClient) printTurn(label, text string) {
	pad := c.labelWidth - runewidth.StringWidth(label)
	if pad < 0 {
		pad = 0
	}
	fmt.Printf("\n%s%s  %s\n", strings.Repeat(" ", pad), label, text)
}

// banner draws a box sized by display width rather than byte length.
func banner(lines ...string) string {
	w := 0
	for _, l := range lines {
		if lw := runewidth.StringWidth(l); lw > w {
			w = lw
		}
	}
	var b strings.Builder
	b.WriteString("┌" + strings.Repeat("─", w+2) + "┐\n")
	for _, l := range lines {
		pad := w - runewidth.StringWidth(l)
		b.WriteString("│ " + l + strings.Repeat(" ", pad) + " │\n")
	}
	b.WriteString("└" + strings.Repeat("─", w+2) + "┘")
	return b.String()
}

func isGatewayRunning(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
