package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"syscall"

	"github.com/encodeous/strand/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	LogLevel slog.Level
	// In feeds the console, defaults to os.Stdin
	In io.Reader
	// Out receives console and route output, defaults to os.Stdout
	Out io.Writer
	// LogOut receives human readable logs, defaults to os.Stderr
	LogOut io.Writer
	// Started is called once every module is running
	Started func(s *state.State)
}

func setupDebugging() {
	if state.DBG_debug {
		go func() {
			log.Println(http.ListenAndServe(state.DBG_debug_addr, nil))
		}()
	}
}

func newLogger(cfg state.LocalCfg, level slog.Level, w io.Writer) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(w, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: string(cfg.Id),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	closer := func() {}
	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		closer = func() { _ = f.Close() }
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Start runs a node until the operator exits, input ends or a signal arrives.
// It returns once every worker has stopped.
func Start(cfg state.LocalCfg, opts Options) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.LogOut == nil {
		opts.LogOut = os.Stderr
	}
	if err := state.NodeConfigValidator(&cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	logger, closeLog, err := newLogger(cfg, opts.LogLevel, opts.LogOut)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer closeLog()

	out := &syncWriter{w: opts.Out}
	s := &state.State{
		Modules: make(map[string]state.NyModule),
		Env:     state.NewEnv(ctx, cancel, cfg, logger, out),
	}

	setupDebugging()

	s.Log.Info("init modules")
	err = initModules(s)
	if err != nil {
		s.Cancel(err)
		_ = Stop(s)
		return err
	}
	s.Log.Info("init modules complete")

	s.Log.Info("Node has been initialized. To gracefully exit, type exit or send SIGINT.", "addr", Get[*Listener](s).BoundAddr().String())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			s.Cancel(errors.New("received shutdown signal"))
		case <-s.Context.Done():
		}
	}()

	if opts.Started != nil {
		opts.Started(s)
	}

	err = NewConsole(s, opts.In, out).Run()
	if err != nil {
		s.Log.Error("console failed", "err", err)
	}
	fmt.Fprintln(out, "Terminating node, waiting for workers...")
	return Stop(s)
}

func initModules(s *state.State) error {
	var modules []state.NyModule
	// the listener binds first, so a taken port fails before anything else runs
	modules = append(modules, &Listener{})
	modules = append(modules, &Broadcaster{})
	modules = append(modules, &RouteEngine{})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels every worker, waits for them and cleans up the modules
func Stop(s *state.State) error {
	s.Cancel(context.Canceled)
	err := s.Wait()
	s.Log.Info("workers stopped", "reason", context.Cause(s.Context).Error())

	s.Log.Debug("cleaning up modules")
	for moduleName, module := range s.Modules {
		cerr := module.Cleanup(s)
		if cerr != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", cerr)
		}
	}
	s.Log.Info("stopped")
	return err
}
