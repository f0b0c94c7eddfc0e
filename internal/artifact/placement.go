// Package artifact places disposable copies of the child template executable under the
// namespace root.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
)

// DefaultRoot is the namespace directory every artifact lives under
const DefaultRoot = "Games"

const templateBaseName = "DSQChild"

// TemplateName returns the platform file name of the bundled child template
func TemplateName() string {
	if runtime.GOOS == "windows" {
		return templateBaseName + ".exe"
	}
	return templateBaseName
}

// Options configures a Placer
type Options struct {
	Root         string // namespace root, relative to BaseDir
	BaseDir      string // defaults to the working directory
	TemplatePath string // defaults to TemplateName() beside the running executable
	Logger       *logging.Logger
}

// Placer resolves and materializes artifacts
type Placer struct {
	root         string
	baseDir      string
	templatePath string
	logger       *logging.Logger
}

// Resolved describes where an artifact lives
type Resolved struct {
	Folder  string // absolute folder holding the artifact
	Path    string // absolute artifact path
	ExeName string
}

// New creates a Placer
func New(opts Options) (*Placer, error) {
	root := CleanRoot(opts.Root)

	baseDir := opts.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		baseDir = wd
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory %s: %w", baseDir, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Placer{
		root:         root,
		baseDir:      abs,
		templatePath: opts.TemplatePath,
		logger:       logger.Component("artifact"),
	}, nil
}

// RootDir returns the absolute namespace root directory
func (p *Placer) RootDir() string {
	return filepath.Join(p.baseDir, filepath.FromSlash(p.root))
}

// CleanRoot returns root with slash separators and no leading or trailing separators. An empty
// root becomes DefaultRoot.
func CleanRoot(root string) string {
	root = strings.Trim(strings.ReplaceAll(root, "\\", "/"), "/")
	if root == "" {
		return DefaultRoot
	}
	return root
}

// NormalizeFolder maps a caller folder onto a slash-separated path under root. A folder that
// already starts with the root (either separator style) is kept; anything else has its leading
// separators stripped and the root prepended.
func NormalizeFolder(root, folder string) string {
	if folder == root || strings.HasPrefix(folder, root+"/") || strings.HasPrefix(folder, root+"\\") {
		return path.Clean(strings.ReplaceAll(folder, "\\", "/"))
	}
	trimmed := strings.TrimLeft(folder, "/\\")
	return path.Clean(root + "/" + strings.ReplaceAll(trimmed, "\\", "/"))
}

// Resolve computes the artifact location without touching the filesystem
func (p *Placer) Resolve(folder, exeName string) (Resolved, error) {
	if err := validateExeName(exeName); err != nil {
		return Resolved{}, err
	}

	rel := NormalizeFolder(p.root, folder)
	if rel != p.root && !strings.HasPrefix(rel, p.root+"/") {
		return Resolved{}, procerr.InvalidInput("place", "folder %q escapes the %s directory", folder, p.root)
	}

	dir := filepath.Join(p.baseDir, filepath.FromSlash(rel))
	return Resolved{
		Folder:  dir,
		Path:    filepath.Join(dir, exeName),
		ExeName: exeName,
	}, nil
}

// Place resolves the artifact location, creates missing directories, removes a stale file at
// the target and copies the template there.
func (p *Placer) Place(folder, exeName string) (Resolved, error) {
	res, err := p.Resolve(folder, exeName)
	if err != nil {
		return Resolved{}, err
	}

	template, err := p.template()
	if err != nil {
		return Resolved{}, err
	}

	if err := os.MkdirAll(res.Folder, 0o755); err != nil {
		return Resolved{}, procerr.New(procerr.KindIO, "place", err).WithPath(res.Folder)
	}

	if err := os.Remove(res.Path); err == nil {
		p.logger.Debug("removed stale artifact", logging.Fields{"path": res.Path})
	} else if !errors.Is(err, os.ErrNotExist) {
		return Resolved{}, procerr.New(procerr.KindIO, "place", err).WithPath(res.Path)
	}

	if err := copyFile(template, res.Path); err != nil {
		return Resolved{}, procerr.New(procerr.KindIO, "place", err).WithPath(res.Path)
	}

	p.logger.Debug("artifact placed", logging.Fields{"path": res.Path, "template": template})
	return res, nil
}

// Remove deletes a placed artifact; a missing file is not an error
func (p *Placer) Remove(artifactPath string) error {
	if err := os.Remove(artifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return procerr.New(procerr.KindCleanupFailed, "remove", err).WithPath(artifactPath)
	}
	return nil
}

func (p *Placer) template() (string, error) {
	tpl := p.templatePath
	if tpl == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", procerr.New(procerr.KindNotFound, "place", err).
				WithSuggestion("The application could not locate its own executable")
		}
		tpl = filepath.Join(filepath.Dir(exe), TemplateName())
	}

	info, err := os.Stat(tpl)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", procerr.New(procerr.KindNotFound, "place", err).WithPath(tpl).
				WithSuggestion(fmt.Sprintf("Reinstall the application so %s sits next to it", TemplateName()))
		}
		return "", procerr.New(procerr.KindIO, "place", err).WithPath(tpl)
	}
	if info.IsDir() {
		return "", procerr.New(procerr.KindNotFound, "place", fmt.Errorf("%s is a directory", tpl)).WithPath(tpl)
	}
	return tpl, nil
}

func validateExeName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return procerr.InvalidInput("place", "executable name is empty")
	case name == "." || name == "..":
		return procerr.InvalidInput("place", "executable name %q is not a file name", name)
	case strings.ContainsAny(name, "/\\"):
		return procerr.InvalidInput("place", "executable name %q must not contain path separators", name)
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	// umask may have stripped the executable bits
	return out.Chmod(0o755)
}
