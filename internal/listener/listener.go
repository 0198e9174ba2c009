package listener

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// ErrClosed is returned by ReadLine once the user ends the session (Ctrl+D, Ctrl+C).
var ErrClosed = errors.New("console closed")

// Console is the interactive prompt. Lines printed while the user is typing are
// written above the input line.
type Console struct {
	mu sync.Mutex
	rl *readline.Instance
}

type Config struct {
	Prompt      string
	HistoryFile string
	// Commands are offered for tab completion.
	Commands []string
}

func New(cfg Config) (*Console, error) {
	if cfg.Prompt == "" {
		cfg.Prompt = "> "
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(cfg.Commands))
	for _, c := range cfg.Commands {
		items = append(items, readline.PcItem(c))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &Console{rl: rl}, nil
}

func (c *Console) Close() error {
	return c.rl.Close()
}

// ReadLine returns the next trimmed, non-empty line.
func (c *Console) ReadLine() (string, error) {
	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", ErrClosed
		}
		if err != nil {
			return "", err
		}
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
}

// Println prints s without breaking the line being typed.
func (c *Console) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.rl.Write([]byte("\r\n" + s + "\r\n"))
	c.rl.Refresh()
}

func (c *Console) Printf(format string, args ...any) {
	c.Println(fmt.Sprintf(format, args...))
}
