// Command concordkv is the interactive CLI shell (spec §6, an external
// collaborator "specified only by the interface the core consumes"):
// SET/GET/DEL/COUNT/STATUS/ENGINE/QUIT over an engine.Manager. It renders
// its prompt with bubbletea/bubbles/lipgloss the way the teacher's
// cmd/tui/main.go renders its dashboard, instead of bare fmt.Scanln —
// the interaction model here is a single scrolling command line, not the
// teacher's tabbed multi-view dashboard, since the spec's CLI surface is a
// flat command set, not a query console.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/concordkv/concordkv/internal/arrayengine"
	"github.com/concordkv/concordkv/internal/btreeengine"
	"github.com/concordkv/concordkv/internal/cache"
	"github.com/concordkv/concordkv/internal/config"
	"github.com/concordkv/concordkv/internal/engine"
	"github.com/concordkv/concordkv/internal/hashengine"
	"github.com/concordkv/concordkv/internal/logging"
	"github.com/concordkv/concordkv/internal/lsm"
	"github.com/concordkv/concordkv/internal/rbtreeengine"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginTop(1).MarginBottom(1)
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func main() {
	dataDir := flag.String("data", "", "data directory (overrides CONCORD_DATA_DIR)")
	yamlPath := flag.String("config", "", "optional YAML config overlay")
	flag.Parse()

	if *dataDir != "" {
		os.Setenv("CONCORD_DATA_DIR", *dataDir)
	}

	cfg, err := config.Load(*yamlPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failure:", err)
		os.Exit(1)
	}

	log := logging.New(os.Stderr, logging.WarnLevel)
	mgr, tree, err := buildManager(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failure:", err)
		os.Exit(1)
	}
	defer mgr.Close()
	_ = tree

	active, err := cfg.EngineType()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad arguments:", err)
		os.Exit(2)
	}
	if err := mgr.SetActive(active); err != nil {
		fmt.Fprintln(os.Stderr, "startup failure:", err)
		os.Exit(1)
	}

	p := tea.NewProgram(initialModel(mgr))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "shell error:", err)
		os.Exit(1)
	}
}

// buildManager registers every backend the spec names (spec §4.1), mirroring
// the teacher's server main.go pattern of constructing one storage instance
// up front, here fanned out to all five engine.Type variants.
func buildManager(cfg config.Config, log *logging.Logger) (*engine.Manager, *lsm.Tree, error) {
	mgr := engine.NewManager(log)
	mgr.Register(arrayengine.New())
	mgr.Register(rbtreeengine.New())
	mgr.Register(hashengine.New())
	mgr.Register(btreeengine.New())

	tree, err := lsm.Open(cfg.LSMOptions(), log)
	if err != nil {
		return nil, nil, err
	}
	lsmEngine := engine.NewLSMEngine(tree)
	mgr.Register(engine.NewCachedEngine(lsmEngine, cache.New(cfg.CacheOptions())))
	return mgr, tree, nil
}

type line struct {
	text  string
	isErr bool
}

type model struct {
	mgr    *engine.Manager
	input  textinput.Model
	lines  []line
	quitAt int
}

func initialModel(mgr *engine.Manager) model {
	ti := textinput.New()
	ti.Placeholder = "SET k v | GET k | DEL k | COUNT | STATUS | ENGINE <type> | QUIT"
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 72

	return model{
		mgr:   mgr,
		input: ti,
		lines: []line{{text: "ConcordKV shell — type HELP for commands"}},
	}
}

func (m model) Init() tea.Cmd { return textinput.Blink }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if input == "" {
				return m, nil
			}
			m.lines = append(m.lines, line{text: promptStyle.Render("concordkv> ") + input})
			if strings.EqualFold(input, "QUIT") {
				return m, tea.Quit
			}
			out, isErr := m.execute(input)
			m.lines = append(m.lines, line{text: out, isErr: isErr})
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ConcordKV"))
	b.WriteString("\n")

	start := 0
	if len(m.lines) > 20 {
		start = len(m.lines) - 20
	}
	for _, ln := range m.lines[start:] {
		if ln.isErr {
			b.WriteString(errStyle.Render(ln.text))
		} else {
			b.WriteString(ln.text)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(promptStyle.Render("concordkv> ") + m.input.View())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("ctrl+c or QUIT to exit"))
	return b.String()
}

// execute dispatches one command line against m.mgr and returns the
// rendered response (spec §6 command surface: SET/GET/DEL/COUNT/STATUS/
// ENGINE/QUIT; QUIT is handled by the caller before execute is reached).
func (m *model) execute(input string) (string, bool) {
	fields := strings.Fields(input)
	cmd := strings.ToUpper(fields[0])

	switch cmd {
	case "SET":
		if len(fields) < 3 {
			return "usage: SET k v", true
		}
		if err := m.mgr.Put([]byte(fields[1]), []byte(strings.Join(fields[2:], " "))); err != nil {
			return err.Error(), true
		}
		return okStyle.Render("OK"), false

	case "GET":
		if len(fields) != 2 {
			return "usage: GET k", true
		}
		v, err := m.mgr.Get([]byte(fields[1]))
		if err != nil {
			return err.Error(), true
		}
		return string(v), false

	case "DEL":
		if len(fields) != 2 {
			return "usage: DEL k", true
		}
		if err := m.mgr.Delete([]byte(fields[1])); err != nil {
			return err.Error(), true
		}
		return okStyle.Render("OK"), false

	case "COUNT":
		n, err := m.mgr.Count()
		if err != nil {
			return err.Error(), true
		}
		return fmt.Sprintf("%d", n), false

	case "STATUS":
		return fmt.Sprintf("active engine: %s", m.mgr.ActiveType()), false

	case "ENGINE":
		if len(fields) != 2 {
			return "usage: ENGINE <array|rbtree|hash|btree|lsm>", true
		}
		t, ok := parseEngineType(fields[1])
		if !ok {
			return "unknown engine type " + fields[1], true
		}
		if err := m.mgr.SetActive(t); err != nil {
			return err.Error(), true
		}
		return okStyle.Render("OK"), false

	case "HELP":
		return "SET k v | GET k | DEL k | COUNT | STATUS | ENGINE <type> | QUIT", false

	default:
		return "unknown command " + fields[0], true
	}
}

func parseEngineType(s string) (engine.Type, bool) {
	switch strings.ToLower(s) {
	case "array":
		return engine.Array, true
	case "rbtree":
		return engine.RBTree, true
	case "hash":
		return engine.Hash, true
	case "btree":
		return engine.BTree, true
	case "lsm":
		return engine.LSM, true
	default:
		return 0, false
	}
}
