// Package chatcmder provides the chat command for interactive sessions
// against a running docuchat API server.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/api"
	"github.com/docuchatco/docuchat/pkg/agent"
	"github.com/docuchatco/docuchat/pkg/cliui"
	"github.com/docuchatco/docuchat/pkg/config"
	"github.com/docuchatco/docuchat/pkg/logger"
	"github.com/docuchatco/docuchat/pkg/sse"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
	cachedMark      = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render("⚡")
)

type chatCommander struct {
	apiTarget string
	user      string
	debug     bool

	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session against a running docuchat server.

Messages are sent to the configured API server, which answers from your
documents using its tools. Answers to questions you have asked before
are replayed instantly from your conversation history.

Commands inside the session:
  /history    Show your persisted conversation history
  /exit       Quit (Ctrl+D also works)

Examples:
  docuchat chat
  docuchat chat --user ada
  docuchat chat --api-target http://localhost:8081`

const chatShortDesc string = "Interactive chat against a docuchat server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "a", defaults.Client.APITarget, "Docuchat API server URL")
	cmd.Flags().StringVarP(&cmder.user, "user", "U", defaultUser(), "User the conversation history belongs to")

	return cmd
}

// defaultUser derives a stable default conversation partition from the OS user.
func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	fmt.Println()
	fmt.Printf("  %s %s %s\n",
		cliui.KeyStyle.Render("Server:"),
		cliui.ValueStyle.Render(c.apiTarget),
		cliui.DimStyle.Render(fmt.Sprintf("(user: %s)", c.user)),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /history, /exit, or Ctrl+D."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}
		if input == "/history" {
			if err := c.showHistory(); err != nil {
				fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			}
			continue
		}

		if err := c.sendAndStream(input); err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			continue
		}

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// sendAndStream sends one message and prints the streamed answer to stdout.
func (c *chatCommander) sendAndStream(message string) error {
	body, err := json.Marshal(api.ChatRequest{
		User:    c.user,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	c.logger.Debug("sending chat request",
		zap.String("api_target", c.apiTarget),
		zap.String("user", c.user),
	)

	url := c.apiTarget + "/api/chat"
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		// LLM responses can be slow
		Timeout: 5 * time.Minute,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	fmt.Print(assistantPrompt)

	reader := sse.NewReader(resp.Body)
	for {
		event, err := reader.Next()
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
		if event == nil {
			return nil
		}

		switch event.Type {
		case "fragment":
			var fragment api.ChatFragment
			if err := json.Unmarshal([]byte(event.Data), &fragment); err != nil {
				c.logger.Debug("failed to parse fragment",
					zap.Error(err),
					zap.String("data", event.Data),
				)
				continue
			}
			fmt.Print(fragment.Text)

		case "final":
			var final agent.Final
			if err := json.Unmarshal([]byte(event.Data), &final); err != nil {
				return nil
			}
			if final.Cached {
				fmt.Printf("\n  %s %s", cachedMark,
					cliui.DimStyle.Render(fmt.Sprintf("replayed from history (similarity %.2f)", final.Score)))
			}
			return nil

		case "error":
			var errResp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal([]byte(event.Data), &errResp); err != nil {
				return fmt.Errorf("server error: %s", event.Data)
			}
			return fmt.Errorf("server error: %s", errResp.Error)
		}
	}
}

// showHistory fetches and renders the user's persisted conversation history.
func (c *chatCommander) showHistory() error {
	url := fmt.Sprintf("%s/api/history/%s", c.apiTarget, c.user)
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var hist api.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		return fmt.Errorf("decoding history: %w", err)
	}

	if hist.Count == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No history yet."))
		return nil
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# History for %s\n\n", hist.User)
	for _, turn := range hist.Turns {
		fmt.Fprintf(&md, "**you** _(%s)_\n\n%s\n\n", turn.Timestamp.Local().Format("Jan 2 15:04"), turn.UserMessage)
		fmt.Fprintf(&md, "**assistant**\n\n%s\n\n---\n\n", turn.AssistantMessage)
	}

	rendered, err := cliui.RenderMarkdown(md.String())
	if err != nil {
		// Fall back to the raw text if the terminal renderer chokes.
		fmt.Println(md.String())
		return nil
	}

	fmt.Println(rendered)
	return nil
}
