package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/backend"
	"github.com/ruriclub/supportdesk/internal/channel"
	"github.com/ruriclub/supportdesk/internal/chatview"
	"github.com/ruriclub/supportdesk/internal/config"
	"github.com/ruriclub/supportdesk/internal/directory"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/presentation"
	"github.com/ruriclub/supportdesk/internal/session"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

// chatView is what every role screen offers the terminal UI.
type chatView interface {
	Mount(ctx context.Context) error
	Send(ctx context.Context, body string) error
	Refresh(ctx context.Context) error
	Bubbles() []presentation.Bubble
	Status() chatview.Status
	Unmount()
	OnChange(fn func())
}

// app holds the services shared by every screen of one run.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	session *session.Context
	dir     *directory.Directory
	channel *channel.Channel
}

func newApp(cfg *config.Config, log *logger.Logger) *app {
	a := &app{cfg: cfg, log: log}

	var opts []backend.Option
	if cfg.RequestTimeout > 0 {
		opts = append(opts, backend.WithTimeout(cfg.RequestTimeout))
	}
	// The token source reads the session lazily, so the client can be built
	// before the session that authenticates through it.
	opts = append(opts, backend.WithTokenSource(func() string {
		if a.session == nil {
			return ""
		}
		return a.session.Token()
	}))
	api := backend.New(cfg.APIURL, log, opts...)

	a.session = session.New(session.NewFileStore(cfg.SessionFile), api, log)
	a.dir = directory.New(api, log)
	a.channel = channel.New(api, channel.Options{AIAgentID: cfg.AIAgentID, AIName: cfg.AIName}, log)
	return a
}

// newView builds the screen for the role of id.
func (a *app) newView(id model.Identity) (chatView, error) {
	switch id.Role {
	case model.RoleClient:
		v, err := chatview.NewClientChat(id, a.dir, a.channel, chatview.ClientOptions{
			AIAgentID: a.cfg.AIAgentID,
			AIName:    a.cfg.AIName,
		}, a.log)
		if err != nil {
			return nil, err
		}
		return v, nil
	case model.RoleEmployee:
		in, err := chatview.NewEmployeeInbox(id, a.dir, a.channel, a.log)
		if err != nil {
			return nil, err
		}
		return in, nil
	case model.RoleAdmin:
		in, err := chatview.NewAdminInbox(id, a.dir, a.channel, a.log)
		if err != nil {
			return nil, err
		}
		return in, nil
	}
	return nil, fmt.Errorf("no screen for role %q", id.Role)
}

func main() {
	altScreen := flag.Bool("alt-screen", true, "render in the terminal's alternate screen")
	flag.Parse()

	cfg := config.Load()

	// The terminal owns stdout, so logs go to a file.
	log, err := logger.NewFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", cfg.LogFile, err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.Install(log)

	a := newApp(cfg, log)
	if err := a.session.Restore(); err != nil {
		log.Warn("failed to restore session", zap.Error(err))
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := a.session.Watch(watchCtx, cfg.SessionFile); err != nil {
		log.Warn("session changes by other processes will not be seen", zap.Error(err))
	}

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if *altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(a), opts...)
	if _, err := p.Run(); err != nil {
		log.Error("terminal client exited", zap.Error(err))
		fmt.Fprintf(os.Stderr, "supportdesk fatal error: %v\n", err)
		os.Exit(1)
	}
}
