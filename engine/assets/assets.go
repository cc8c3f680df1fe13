package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/prism/engine/core"
)

type ChangeKind uint8

const (
	ChangeNone ChangeKind = iota
	ChangeShader
	ChangeConfig
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeShader:
		return "shader"
	case ChangeConfig:
		return "config"
	}
	return "none"
}

// Change is one file the renderer cares about that was created or written.
type Change struct {
	Kind ChangeKind
	Path string
}

// Watcher follows the shader directory and the config file and forwards
// relevant changes on a buffered channel. The fsnotify loop runs on its own
// goroutine; consumers drain Changes on the frame thread.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	changes  chan Change

	mutex    sync.Mutex
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

func NewWatcher() (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsnotify: fsWatch,
		changes:  make(chan Change, 16),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// AddRecursive starts watching the named directory and all sub-directories.
func (w *Watcher) AddRecursive(dir string) error {
	return w.watchRecursive(dir)
}

// AddFile watches a single file. The parent directory is watched so that
// editors which replace the file on save are still seen.
func (w *Watcher) AddFile(path string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.isClosed {
		return errors.New("asset watcher already closed")
	}
	return w.fsnotify.Add(filepath.Dir(path))
}

func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Drain returns every pending change without blocking. Shader changes are
// collapsed into one since a reload rebuilds every pipeline anyway.
func (w *Watcher) Drain() []Change {
	var out []Change
	seen := make(map[ChangeKind]bool)
	for {
		select {
		case c, ok := <-w.changes:
			if !ok {
				return out
			}
			if c.Kind == ChangeShader && seen[ChangeShader] {
				continue
			}
			seen[c.Kind] = true
			out = append(out, c)
		default:
			return out
		}
	}
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return nil
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e := <-w.fsnotify.Events:
			if s, err := os.Stat(e.Name); err == nil && s.IsDir() && e.Op&fsnotify.Create != 0 {
				if err := w.watchRecursive(e.Name); err != nil {
					core.LogWarn("failed to watch new directory `%s`: %s", e.Name, err.Error())
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			kind := classify(e.Name)
			if kind == ChangeNone {
				continue
			}
			select {
			case w.changes <- Change{Kind: kind, Path: e.Name}:
			default:
				core.LogWarn("asset change queue full, dropping %s change for `%s`", kind, e.Name)
			}

		case err := <-w.fsnotify.Errors:
			if err != nil {
				core.LogError(err.Error())
			}

		case <-w.done:
			w.fsnotify.Close()
			close(w.changes)
			return
		}
	}
}

func (w *Watcher) watchRecursive(path string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.isClosed {
		return errors.New("asset watcher already closed")
	}
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		return nil
	})
}

func classify(path string) ChangeKind {
	switch filepath.Ext(path) {
	case ".spv":
		return ChangeShader
	case ".toml":
		return ChangeConfig
	default:
		return ChangeNone
	}
}
