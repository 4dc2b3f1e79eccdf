// Package app handles installed choppy applications: directories holding an
// input-parameter template, a workflow template and a tasks directory, plus
// an optional defaults file.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/me/choppy/pkg/model"
)

// Fixed file names inside an app directory.
const (
	InputsTemplate   = "inputs"
	WorkflowTemplate = "workflow.wdl"
	TasksDir         = "tasks"
	DefaultsFile     = "defaults"
)

// App is a validated application directory.
type App struct {
	Name string
	Dir  string
}

// Open checks that dir is a valid app directory.
func Open(dir string) (*App, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if !IsValid(abs) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(abs), model.ErrInvalidApp)
	}
	return &App{Name: filepath.Base(abs), Dir: abs}, nil
}

// OpenNamed resolves name (plain or "namespace/app") under root and opens it.
func OpenNamed(root, name string) (*App, error) {
	a, err := Open(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return nil, err
	}
	a.Name = name
	return a, nil
}

// IsValid reports whether dir holds the inputs and workflow templates and the
// tasks directory.
func IsValid(dir string) bool {
	for _, p := range []string{dir, filepath.Join(dir, InputsTemplate), filepath.Join(dir, WorkflowTemplate)} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	info, err := os.Stat(filepath.Join(dir, TasksDir))
	return err == nil && info.IsDir()
}

// InputsPath returns the path of the input-parameter template.
func (a *App) InputsPath() string { return filepath.Join(a.Dir, InputsTemplate) }

// WorkflowPath returns the path of the workflow template.
func (a *App) WorkflowPath() string { return filepath.Join(a.Dir, WorkflowTemplate) }

// TasksPath returns the task-dependency directory.
func (a *App) TasksPath() string { return filepath.Join(a.Dir, TasksDir) }

// DefaultsPath returns the default-variable file path (it may not exist).
func (a *App) DefaultsPath() string { return filepath.Join(a.Dir, DefaultsFile) }

var appNameRe = regexp.MustCompile(`^([-\w]+)/([-\w]+)(:[-.\w]+)?$`)

// Ref is a parsed "namespace/app[:version]" reference.
type Ref struct {
	Namespace string
	Name      string
	Version   string
}

// InstallDir is where the ref lives under an app root: namespace/name-version.
func (r Ref) InstallDir() string {
	return r.Namespace + "/" + r.Name + "-" + r.Version
}

// ParseAppName parses "namespace/app[:version]"; version defaults to latest.
func ParseAppName(s string) (Ref, error) {
	m := appNameRe.FindStringSubmatch(s)
	if m == nil {
		return Ref{}, fmt.Errorf("invalid app name %q: want namespace/app[:version]", s)
	}
	ref := Ref{Namespace: m[1], Name: m[2], Version: "latest"}
	if m[3] != "" {
		ref.Version = m[3][1:]
	}
	return ref, nil
}

// List returns the valid apps under root: plain directories and
// namespace/app directories one level down, sorted.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var apps []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if IsValid(dir) {
			apps = append(apps, e.Name())
			continue
		}
		subs, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, s := range subs {
			if s.IsDir() && IsValid(filepath.Join(dir, s.Name())) {
				apps = append(apps, e.Name()+"/"+s.Name())
			}
		}
	}
	sort.Strings(apps)
	return apps, nil
}
