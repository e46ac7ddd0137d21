package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"emptysweep/internal/exclude"
	"emptysweep/internal/fsops"
	"emptysweep/internal/metrics"
	"emptysweep/internal/safety"
)

const (
	ActionDelete = "DELETE"
	ActionDryRun = "DRY_RUN"
	ActionSkip   = "SKIP"
	ActionError  = "ERROR"

	ObjectFile      = "file"
	ObjectEmptyDir  = "empty_directory"
	pathSeparator   = string(os.PathSeparator)
	runIDTimeLayout = "20060102T150405.000000000Z"
)

var ErrNotDirectory = errors.New("sweep root is not a directory")

// CleanupLogger interface for structured logging in cleanup
type CleanupLogger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// cleanupStdLogger wraps standard log.Logger to implement CleanupLogger interface
type cleanupStdLogger struct {
	*log.Logger
}

func (l *cleanupStdLogger) Info(msg string, args ...interface{}) {
	l.logWithLevel("INFO", msg, args...)
}

func (l *cleanupStdLogger) Warn(msg string, args ...interface{}) {
	l.logWithLevel("WARN", msg, args...)
}

func (l *cleanupStdLogger) Error(msg string, args ...interface{}) {
	l.logWithLevel("ERROR", msg, args...)
}

func (l *cleanupStdLogger) logWithLevel(level, msg string, args ...interface{}) {
	// Format key-value pairs
	var parts []interface{}
	parts = append(parts, fmt.Sprintf("[%s]", level), msg)
	parts = append(parts, args...)
	l.Logger.Println(parts...)
}

// Removal is one entry of the removed-items log
type Removal struct {
	Path  string // Same form as the root argument: relative stays relative
	Root  string
	IsDir bool
	RunID string
	Time  time.Time
}

// ObjectType returns "file" or "empty_directory"
func (r Removal) ObjectType() string {
	if r.IsDir {
		return ObjectEmptyDir
	}
	return ObjectFile
}

// Recorder persists removal attempts, e.g. to the deletion history database
type Recorder interface {
	RecordRemoval(action string, r Removal, errMsg string) error
}

// Cleaner walks a tree bottom-up and removes zero-length files and
// directories left empty, never touching excluded paths
type Cleaner struct {
	logger    CleanupLogger
	filter    *exclude.Filter
	deleter   fsops.Deleter
	validator *safety.Validator
	protected []string
	recorder  Recorder
	dryRun    bool
}

// NewCleaner creates a new Cleaner instance. A nil filter means the default
// exclusion set; a nil recorder disables history.
func NewCleaner(logger *log.Logger, filter *exclude.Filter, dryRun bool, recorder Recorder) *Cleaner {
	metrics.Init()

	cleanupLogger := &cleanupStdLogger{Logger: logger}
	if logger == nil {
		cleanupLogger.Logger = log.Default()
	}
	if filter == nil {
		filter = exclude.Default()
	}
	return &Cleaner{
		logger:   cleanupLogger,
		filter:   filter,
		deleter:  fsops.OSDeleter{},
		recorder: recorder,
		dryRun:   dryRun,
	}
}

// SetDeleter replaces the filesystem deleter
func (c *Cleaner) SetDeleter(d fsops.Deleter) {
	c.deleter = d
}

// SetValidator pins the safety validator. Without one, each Run builds a
// validator rooted at its own root with the configured protected paths.
func (c *Cleaner) SetValidator(v *safety.Validator) {
	c.validator = v
}

// SetProtectedPaths sets extra paths that are never removed
func (c *Cleaner) SetProtectedPaths(paths []string) {
	c.protected = append([]string(nil), paths...)
}

// DryRun reports whether the cleaner only logs candidates
func (c *Cleaner) DryRun() bool {
	return c.dryRun
}

// sweep is the state of a single Run; the removed-items log lives here and
// nowhere else
type sweep struct {
	*Cleaner
	ctx       context.Context
	validator *safety.Validator
	root      string
	runID     string
	removed   []Removal
	gone      map[string]struct{}
}

// Run removes empty files and directories below root in one bottom-up pass.
// The root itself is never removed. Any filesystem error aborts the run;
// removals made before the error stay made and are not reported.
func (c *Cleaner) Run(ctx context.Context, root string) (removed []Removal, err error) {
	start := time.Now()
	defer func() { metrics.RecordRun(start, err) }()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	s := &sweep{
		Cleaner:   c,
		ctx:       ctx,
		validator: c.validator,
		root:      root,
		runID:     start.UTC().Format(runIDTimeLayout),
		removed:   make([]Removal, 0),
		gone:      make(map[string]struct{}),
	}
	if s.validator == nil {
		s.validator = safety.NewValidator(root, c.protected)
	}

	c.logger.Info("Starting sweep", "root", root, "run_id", s.runID, "dry_run", c.dryRun,
		"match_mode", c.filter.Mode(), "excludes", strings.Join(c.filter.Names(), ","))

	if c.filter.Match(root) {
		metrics.ExcludedTotal.Inc()
		c.logger.Warn("Root matches the exclusion set, nothing to do", "root", root)
		return s.removed, nil
	}

	if err := s.visit(root); err != nil {
		c.logger.Error("Sweep aborted", "root", root, "removed_before_failure", len(s.removed), "error", err)
		return nil, err
	}

	files, dirs := 0, 0
	for _, r := range s.removed {
		if r.IsDir {
			dirs++
		} else {
			files++
		}
	}
	c.logger.Info("Sweep complete",
		"files", files,
		"directories", dirs,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return s.removed, nil
}

type child struct {
	path     string
	excluded bool
}

// visit processes dir after all of its subdirectories. Subdirectory emptiness
// is judged here, at the parent, so chains of empty directories collapse in
// one pass.
func (s *sweep) visit(dir string) error {
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("sweep interrupted at %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	metrics.RecordVisit(len(entries))

	var files, subdirs []child
	for _, e := range entries {
		p := joinPath(dir, e.Name())
		switch {
		case e.IsDir():
			subdirs = append(subdirs, child{path: p, excluded: s.filter.Match(p)})
		case e.Type().IsRegular():
			files = append(files, child{path: p, excluded: s.filter.Match(p)})
		}
		// Symlinks and special files are neither followed nor removed
	}

	for _, sub := range subdirs {
		if sub.excluded {
			continue
		}
		if err := s.visit(sub.path); err != nil {
			return err
		}
	}

	for _, f := range files {
		if f.excluded {
			metrics.ExcludedTotal.Inc()
			continue
		}
		info, err := os.Lstat(f.path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", f.path, err)
		}
		if info.Size() != 0 {
			continue
		}
		if err := s.remove(f.path, false); err != nil {
			return err
		}
	}

	for _, sub := range subdirs {
		if sub.excluded {
			metrics.ExcludedTotal.Inc()
			continue
		}
		empty, err := s.isEmpty(sub.path)
		if err != nil {
			return err
		}
		if !empty {
			continue
		}
		if err := s.remove(sub.path, true); err != nil {
			return err
		}
	}

	return nil
}

// isEmpty lists dir and ignores entries this run already removed. In a real
// run those are gone from disk; in a dry run they are still present.
func (s *sweep) isEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, e := range entries {
		if _, ok := s.gone[joinPath(dir, e.Name())]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *sweep) remove(path string, isDir bool) error {
	r := Removal{
		Path:  path,
		Root:  s.root,
		IsDir: isDir,
		RunID: s.runID,
		Time:  time.Now(),
	}

	if err := s.validator.ValidateDeleteTarget(path); err != nil {
		if !safety.IsViolation(err) {
			return fmt.Errorf("validate %s: %w", path, err)
		}
		s.logStructured(ActionSkip, r, err.Error())
		s.record(ActionSkip, r, err.Error())
		metrics.RecordSafetySkip(err.Error())
		return nil
	}

	action := ActionDelete
	if s.dryRun {
		action = ActionDryRun
		s.logger.Info("[DRY RUN] Would remove", "path", path, "object", r.ObjectType())
	} else if err := s.deleter.Remove(path); err != nil {
		s.logStructured(ActionError, r, err.Error())
		s.record(ActionError, r, err.Error())
		return fmt.Errorf("remove %s: %w", path, err)
	}

	s.gone[path] = struct{}{}
	s.removed = append(s.removed, r)

	s.logStructured(action, r, "")
	s.record(action, r, "")
	metrics.RecordRemoval(r.ObjectType(), action)
	return nil
}

func (s *sweep) record(action string, r Removal, errMsg string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordRemoval(action, r, errMsg); err != nil {
		// Don't fail the sweep if history writes fail
		s.logger.Error("Failed to record to database", "path", r.Path, "error", err)
	}
}

// logStructured logs with structured format: timestamp, action, path, object type, reason
func (c *Cleaner) logStructured(action string, r Removal, reason string) {
	logEntry := fmt.Sprintf("[%s] %s path=%s object=%s",
		r.Time.UTC().Format(time.RFC3339),
		action,
		r.Path,
		r.ObjectType(),
	)
	if reason != "" {
		logEntry += " reason=" + strconv.Quote(reason)
	}
	c.logger.Info(logEntry)
}

// joinPath appends name to dir without cleaning, so "./src" yields
// "./src/x" and the report keeps the caller's path form
func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, pathSeparator) {
		return dir + name
	}
	return dir + pathSeparator + name
}
