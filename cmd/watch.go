package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/autotrack/internal/config"
	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/logging"
	"github.com/conneroisu/autotrack/internal/scenario"
	"github.com/conneroisu/autotrack/internal/watcher"
	"github.com/conneroisu/autotrack/internal/websocket"
)

var watchCmd = &cobra.Command{
	Use:     "watch [path...]",
	Aliases: []string{"w"},
	Short:   "Re-track pages and replay scenarios whenever they change",
	Long: `Watch pages and scenarios. A page stays loaded: saving it swaps the new body
into the live document, so edits show up as hidden and visible events. A
saved scenario is replayed from scratch. Events are printed as they are
delivered and, with --stream, broadcast to websocket clients on /events.

Paths default to watch.paths from the config. Directories are watched
recursively for the configured extensions.

Examples:
  autotrack watch page.html
  autotrack watch ./site --stream --port 7331
  autotrack watch checkout.yml --events yaml`,
	RunE: runWatch,
}

var (
	watchFlags  *StandardFlags
	watchEvents string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchFlags = AddStandardFlags(watchCmd, "stream")
	watchCmd.Flags().StringVar(&watchEvents, "events", "json", "Format of printed events (json|yaml)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	paths := args
	if len(paths) == 0 {
		paths = cfg.Watch.Paths
	}
	if len(paths) == 0 {
		return fmt.Errorf("nothing to watch: pass paths or set watch.paths")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format := watchEvents
	if !cmd.Flags().Changed("events") && cfg.Output.Format != "table" {
		format = cfg.Output.Format
	}
	printer, err := delivery.NewWriterSink(cmd.OutOrStdout(), format)
	if err != nil {
		return err
	}
	sinks := []delivery.Sink{printer}

	if cfg.Stream.Enabled {
		hub := websocket.NewHub(websocket.AllowList(cfg.Stream.AllowedOrigins), logger)
		sinks = append(sinks, hub)
		shutdown, err := serveStream(ctx, cfg.Stream, hub, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	runner, err := scenario.NewRunner(cfg, logger, sinks...)
	if err != nil {
		return err
	}
	w := newWorkspace(runner, logger)
	defer w.close()

	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce(), logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.ExtensionFilter(cfg.Watch.Extensions...))
	fw.AddHandler(w.handle)

	for _, path := range paths {
		if err := w.add(ctx, fw, path); err != nil {
			return err
		}
	}

	if err := fw.Start(ctx); err != nil {
		return err
	}
	defer fw.Stop()

	logger.Info(ctx, "watching", "paths", strings.Join(fw.WatchList(), ","))
	<-ctx.Done()
	return nil
}

// serveStream serves the hub on /events until the returned function is
// called.
func serveStream(ctx context.Context, cfg config.StreamConfig, hub *websocket.Hub, logger logging.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/events", hub)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return nil, fmt.Errorf("failed to start stream server: %w", err)
	case <-time.After(50 * time.Millisecond):
	}
	logger.Info(ctx, "streaming events", "url", "ws://"+cfg.Address()+"/events")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(shutdownCtx)
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

// workspace keeps one live session per watched page.
type workspace struct {
	mutex    sync.Mutex
	runner   *scenario.Runner
	logger   logging.Logger
	sessions map[string]*scenario.Session
	// reported counts the errors already logged per page.
	reported map[string]int
	files    map[string]bool
	dirs     []string
}

func newWorkspace(runner *scenario.Runner, logger logging.Logger) *workspace {
	return &workspace{
		runner:   runner,
		logger:   logger.WithComponent("watch"),
		sessions: make(map[string]*scenario.Session),
		reported: make(map[string]int),
		files:    make(map[string]bool),
	}
}

// add watches path and loads what it already contains.
func (w *workspace) add(ctx context.Context, fw *watcher.FileWatcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	path = filepath.Clean(path)
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !info.IsDir() {
		// Editors replace files on save, so watch the directory.
		if err := fw.AddPath(filepath.Dir(path)); err != nil {
			return err
		}
		w.files[path] = true
		w.load(ctx, path)
		return nil
	}
	if err := fw.AddPath(path); err != nil {
		return err
	}
	w.dirs = append(w.dirs, path)
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		w.load(ctx, p)
		return nil
	})
}

func (w *workspace) handle(ctx context.Context, changes []watcher.ChangeEvent) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for _, change := range changes {
		if !w.watches(change.Path) {
			continue
		}
		if change.Type == watcher.EventTypeDeleted {
			w.drop(change.Path)
			continue
		}
		w.load(ctx, change.Path)
	}
	return nil
}

func (w *workspace) watches(path string) bool {
	path = filepath.Clean(path)
	if w.files[path] {
		return true
	}
	for _, dir := range w.dirs {
		if rel, err := filepath.Rel(dir, path); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// load opens or reloads a page, or replays a scenario. Failures are logged
// so one broken file does not stop the watch.
func (w *workspace) load(ctx context.Context, path string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		markup, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn(ctx, err, "failed to read page", "path", path)
			return
		}
		if s, ok := w.sessions[path]; ok {
			if err := s.Reload(ctx, string(markup)); err != nil {
				w.logger.Warn(ctx, err, "failed to reload page", "path", path)
			}
			w.report(ctx, path, s.Errors())
			return
		}
		s, err := w.runner.Open(ctx, string(markup))
		if err != nil {
			w.logger.Warn(ctx, err, "failed to open page", "path", path)
			return
		}
		w.sessions[path] = s
		w.logger.Info(ctx, "page loaded", "path", path, "tracked", len(s.Tracked(ctx)))
		w.report(ctx, path, s.Errors())
	case ".yml", ".yaml":
		sc, err := scenario.Load(path)
		if err != nil {
			w.logger.Debug(ctx, "not a scenario", "path", path, "error", err.Error())
			return
		}
		res, err := w.runner.Run(ctx, sc)
		if err != nil {
			w.logger.Warn(ctx, err, "failed to replay scenario", "path", path)
			return
		}
		w.logger.Info(ctx, "scenario replayed", "path", path, "events", len(res.Events), "errors", len(res.Errors))
	}
}

// report logs the errors of a page that were not logged yet.
func (w *workspace) report(ctx context.Context, path string, errs []error) {
	for _, err := range errs[w.reported[path]:] {
		w.logger.Warn(ctx, err, "tagging error", "path", path)
	}
	w.reported[path] = len(errs)
}

func (w *workspace) drop(path string) {
	if s, ok := w.sessions[path]; ok {
		s.Close()
		delete(w.sessions, path)
		delete(w.reported, path)
	}
}

func (w *workspace) close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	for path := range w.sessions {
		w.drop(path)
	}
}
