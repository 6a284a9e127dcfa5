package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/ngoclaw/ngoclaw/gateway/internal/application"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/pkg/safego"
	"golang.org/x/term"
)

// ─── ANSI Helpers ───

const (
	reset    = "\033[0m"
	bold     = "\033[1m"
	dim      = "\033[2m"
	italic   = "\033[3m"
	cyan     = "\033[96m"
	cyanBold = "\033[96m\033[1m"
	green    = "\033[92m"
	yellow   = "\033[93m"
	red      = "\033[91m"
	redBold  = "\033[91m\033[1m"
	dimText  = "\033[90m"
	white    = "\033[97m"
	clearLn  = "\033[2K\r"
)

// Braille spinner frames.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// REPLConfig holds CLI runtime config.
type REPLConfig struct {
	Model      string
	Workspace  string
	ToolCount  int
	NoApprove  bool
	InitPrompt string
}

// RunREPL starts the interactive REPL loop. Every line the user enters is
// driven through one full App.Run to completion — there is no streaming
// token-by-token interface here, since the kernel's loop is synchronous.
func RunREPL(app *application.App, cfg REPLConfig) error {
	w := termWidth()
	banner := RenderBanner(BannerInfo{
		Model:      cfg.Model,
		ToolCount:  cfg.ToolCount,
		Workspace:  cfg.Workspace,
		ProjectLng: DetectProjectLanguage(cfg.Workspace),
	}, w)
	fmt.Println(banner)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\001\033[1;36m\002❯\001\033[0m\002 ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	safego.Go(app.Logger(), "repl-sigterm-listener", func() {
		<-sigCh
		fmt.Printf("\n%sgoodbye%s\n", dimText, reset)
		rl.Close()
		os.Exit(0)
	})

	if cfg.InitPrompt != "" {
		runAgent(app, cfg, cfg.InitPrompt)
	}

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				fmt.Printf("%sgoodbye%s\n", dimText, reset)
				return nil
			}
			if err == io.EOF {
				fmt.Printf("\n%sgoodbye%s\n", dimText, reset)
				return nil
			}
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if cmd := ParseSlashCommand(input); cmd != nil {
			result := ExecuteCommand(cmd, cfg.Model, cfg.ToolCount)
			if result.IsQuit {
				fmt.Printf("%sgoodbye%s\n", dimText, reset)
				return nil
			}
			if result.Output != "" {
				fmt.Println(result.Output)
			}
			continue
		}

		runAgent(app, cfg, input)
	}
}

// ─── Agent Execution ───

// runAgent drives one goal-directed kernel run for a single REPL line and
// renders the events it produced once it returns.
func runAgent(app *application.App, cfg REPLConfig, userMessage string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGINT)
	defer signal.Stop(interrupted)
	safego.Go(app.Logger(), "repl-sigint-listener", func() {
		select {
		case <-interrupted:
			app.Stop()
			cancel()
			fmt.Printf("\n%sinterrupted%s\n", yellow, reset)
		case <-ctx.Done():
		}
	})

	spinner := newSpinner()
	spinner.Update("thinking...")

	result, err := app.Run(ctx, userMessage, nil, nil)

	spinner.Stop()
	w := termWidth()

	if result != nil {
		for _, ev := range result.Events {
			renderEvent(ev, w)
		}
	}

	if err != nil {
		fmt.Printf("\n%s✗ %s%s\n", redBold, err.Error(), reset)
	}

	if result != nil && result.Agent != nil {
		if desc := result.Agent.FinalDelta.Description; desc != "" {
			fmt.Println()
			fmt.Println(NewRenderer(w).RenderMarkdown(desc))
		}
		fmt.Printf("\n%s─── %d steps · %s tokens · %s ───%s\n",
			dimText, result.Agent.TotalSteps, fmtTokens(result.Agent.TotalTokens), cfg.Model, reset)
	}
}

// renderEvent prints the subset of kernel events worth surfacing
// interactively: tool invocations and their outcomes.
func renderEvent(ev entity.AgentEvent, width int) {
	switch ev.Type {
	case entity.EventActionStart:
		if ev.Action != nil {
			printToolHeader(ev.Action, width)
		}
	case entity.EventActionComplete:
		if ev.Result != nil {
			printToolFooter(ev.Action, ev.Result, width)
		}
	case entity.EventAgentError:
		fmt.Printf("\n%s✗ %s%s\n", redBold, ev.Error, reset)
	case entity.EventTanhaLoopDetected:
		fmt.Printf("\n%s⟳ repetitive loop detected%s\n", yellow, reset)
	case entity.EventMilestoneReached:
		if ev.Milestone != nil {
			fmt.Printf("\n%s✓ milestone reached: %s%s\n", green, ev.Milestone.Description, reset)
		}
	}
}

// ─── Tool Display ───

func printToolHeader(action *entity.Action, width int) {
	icon := toolIcon(action.ToolName)
	args := summarizeToolArgs(action.Parameters)

	label := fmt.Sprintf(" %s %s %s ", icon, action.ToolName, args)
	lineW := width - len([]rune(label)) - 2
	if lineW < 3 {
		lineW = 3
	}
	line := strings.Repeat("─", lineW)

	fmt.Printf("\n%s╭─%s%s%s%s%s%s%s\n",
		dimText, reset,
		yellow, icon, reset,
		" "+cyanBold+action.ToolName+reset+" "+dimText+args,
		" "+dimText+line,
		reset)
}

func printToolFooter(action *entity.Action, result *entity.ToolResult, width int) {
	var statusIcon, statusColor string
	if result.Success {
		statusIcon = "✓"
		statusColor = green
	} else {
		statusIcon = "✗"
		statusColor = red
	}

	name := ""
	if action != nil {
		name = action.ToolName
	}

	label := fmt.Sprintf(" %s %s ", statusIcon, name)
	lineW := width - len([]rune(label)) - 2
	if lineW < 3 {
		lineW = 3
	}
	line := strings.Repeat("─", lineW)

	fmt.Printf("%s╰─%s %s%s%s %s%s%s %s\n",
		dimText, reset,
		statusColor, statusIcon, reset,
		dimText, name, reset,
		dimText+line+reset)
}

func toolIcon(name string) string {
	icons := map[string]string{
		"bash":         "$",
		"read_file":    "→",
		"write_file":   "←",
		"edit_file":    "←",
		"list_dir":     "→",
		"grep_search":  "✱",
		"remember":     "◆",
		"recall":       "◇",
	}
	if icon, ok := icons[name]; ok {
		return icon
	}
	return "⚙"
}

func summarizeToolArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}
	priority := []string{"command", "path", "query", "content", "pattern"}
	for _, key := range priority {
		if v, ok := args[key]; ok {
			s := fmt.Sprintf("%v", v)
			if len(s) > 60 {
				s = s[:60] + "…"
			}
			return s
		}
	}
	for _, v := range args {
		s := fmt.Sprintf("%v", v)
		if len(s) > 60 {
			s = s[:60] + "…"
		}
		return s
	}
	return ""
}

// ─── Braille Spinner ───

type asyncSpinner struct {
	mu      sync.Mutex
	running bool
	msg     string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newSpinner() *asyncSpinner {
	return &asyncSpinner{}
}

func (s *asyncSpinner) Update(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msg = msg
	if !s.running {
		s.running = true
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.run()
	}
}

func (s *asyncSpinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	fmt.Print(clearLn)
}

func (s *asyncSpinner) run() {
	defer close(s.doneCh)

	frame := 0
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.msg
			s.mu.Unlock()

			f := spinnerFrames[frame%len(spinnerFrames)]
			fmt.Printf("%s%s%s %s%s%s", clearLn, cyanBold, f, dimText, msg, reset)
			frame++
		}
	}
}

// ─── Helpers ───

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func fmtTokens(n int) string {
	if n >= 1000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000.0)
	}
	return fmt.Sprintf("%d", n)
}
