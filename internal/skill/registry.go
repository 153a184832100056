package skill

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/skilllite/skilllite/internal/slogx"
)

// Registry holds every discovered Skill, keyed by name, with an optional
// fsnotify watcher that reloads a skill's directory on write — the
// teacher carries github.com/fsnotify/fsnotify in go.mod for its own
// filewatch package; reused here for skill hot-reload during
// development rather than requiring a process restart after edits.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
	loader *Loader
	root   string
	log    *slog.Logger
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewRegistry loads every skill under root and returns the populated
// Registry. Parse/validation errors for individual skills are logged,
// not fatal — per-skill errors must not block the rest of the registry.
func NewRegistry(root string, log *slog.Logger) (*Registry, []error) {
	if log == nil {
		log = slogx.For(slogx.CategorySkill)
	}
	loader := NewLoader()
	skills, errs := loader.LoadDir(root)
	return &Registry{
		skills: skills,
		loader: loader,
		root:   root,
		log:    log,
	}, errs
}

// Get looks up a skill by name.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// List returns every non-archived skill.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Skill, 0, len(r.skills))
	for _, s := range r.skills {
		if !s.Archived {
			out = append(out, s)
		}
	}
	return out
}

// Put inserts or replaces a skill; the hot-reload watcher uses it after
// re-parsing a changed SKILL.md.
func (r *Registry) Put(s *Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name] = s
}

// Remove deletes a skill from the in-memory registry (the caller is
// responsible for the on-disk removal).
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.skills, name)
}

// Watch starts an fsnotify watcher over root's immediate subdirectories,
// reloading a skill whenever its SKILL.md changes. Call Close to stop.
func (r *Registry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	r.mu.RLock()
	for _, s := range r.skills {
		_ = w.Add(s.Dir)
	}
	r.mu.RUnlock()
	_ = w.Add(r.root)

	r.watcher = w
	r.stop = make(chan struct{})
	go r.watchLoop()
	return nil
}

func (r *Registry) watchLoop() {
	for {
		select {
		case <-r.stop:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.reloadFromEvent(ev.Name)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if r.log != nil {
				r.log.Warn("fsnotify watcher error", "error", err)
			}
		}
	}
}

func (r *Registry) reloadFromEvent(path string) {
	// Only SKILL.md writes trigger a reload; other file churn inside a
	// skill directory (scratch files, script edits) is ignored.
	if !isSkillMDPath(path) {
		return
	}
	dir := dirOf(path)
	s, err := r.loader.LoadOne(dir)
	if err != nil {
		if r.log != nil {
			r.log.Warn("reload failed", "dir", dir, "error", err)
		}
		return
	}
	r.Put(s)
	if r.log != nil {
		r.log.Info("reloaded skill", "name", s.Name)
	}
}

// Close stops the watcher, if running.
func (r *Registry) Close() error {
	if r.stop != nil {
		close(r.stop)
	}
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
