// Package deploy converges a remote host to a running deployment of a
// Django project: virtualenv, source checkout, dependencies, settings
// overlay, static files, schema and the gunicorn process.
package deploy

import (
	"fmt"
	"path"
	"provisioner/internal/models"
)

// Context is everything the stages need to know about one target. It is
// built once by Bind and never modified; derived fields are pure functions
// of the identity fields.
type Context struct {
	Target string

	// Identity.
	Host          string
	SSHPort       int
	User          string
	AppName       string
	AppPort       int
	URL           string
	ProjectPkg    string
	RepoURL       string
	Python        string
	SchemaCommand string
	Requirements  string

	// Derived paths.
	HomeDir       string
	VirtualEnvDir string
	HookPath      string
	ProjectDir    string
	StaticDir     string
	SettingsPath  string
	PidDir        string
	PidPath       string
	LogPath       string

	// Derived commands.
	Workon         string
	WSGIApp        string
	SettingsModule string
}

// Bind validates target and computes the derived fields.
func Bind(target models.Target) (Context, error) {
	target.ApplyDefaults()
	if err := target.Validate(); err != nil {
		return Context{}, err
	}

	home := path.Join(target.HomeRoot, target.User)
	venv := path.Join(home, ".virtualenvs", target.AppName)
	project := path.Join(home, "webapps", target.AppName)
	pidDir := path.Join(project, ".gunicorn")

	return Context{
		Target: target.Name,

		Host:          target.Host,
		SSHPort:       target.SSHPort,
		User:          target.User,
		AppName:       target.AppName,
		AppPort:       target.AppPort,
		URL:           target.URL,
		ProjectPkg:    target.ProjectPkg,
		RepoURL:       target.RepoURL,
		Python:        target.Python,
		SchemaCommand: target.SchemaCommand,
		Requirements:  target.Requirements,

		HomeDir:       home,
		VirtualEnvDir: venv,
		HookPath:      path.Join(venv, "bin", "postactivate"),
		ProjectDir:    project,
		StaticDir:     path.Join(home, "webapps", target.AppName+"_static"),
		SettingsPath:  path.Join(project, target.ProjectPkg, "settings", "local.py"),
		PidDir:        pidDir,
		PidPath:       path.Join(pidDir, "pid"),
		LogPath:       path.Join(pidDir, "log"),

		Workon:         "workon " + target.AppName,
		WSGIApp:        fmt.Sprintf("%s.wsgi:application", target.ProjectPkg),
		SettingsModule: fmt.Sprintf("%s.settings.local", target.ProjectPkg),
	}, nil
}
