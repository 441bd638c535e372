// Package localtask holds the actions that run on the deployer's machine
// against the local checkout.
package localtask

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	apperr "provisioner/internal/error"
	"provisioner/internal/ssh"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// Clean removes compiled Python files and __pycache__ directories under
// root and returns how many entries were removed.
func Clean(root string) (int, error) {
	removed := 0

	dirs, err := doublestar.Glob(filepath.Join(root, "**", "__pycache__"))
	if err != nil {
		return 0, apperr.New(apperr.FileError, "failed to scan for __pycache__", err)
	}
	// Deepest first so nested caches are counted once each.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return removed, apperr.New(apperr.FileError, fmt.Sprintf("failed to remove %s", dir), err)
		}
		removed++
	}

	files, err := doublestar.Glob(filepath.Join(root, "**", "*.pyc"))
	if err != nil {
		return removed, apperr.New(apperr.FileError, "failed to scan for .pyc files", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return removed, apperr.New(apperr.FileError, fmt.Sprintf("failed to remove %s", file), err)
		}
		removed++
	}
	return removed, nil
}

// UnitTest runs the Django test runner for apps in dir.
func UnitTest(ctx context.Context, x ssh.Executor, dir string, apps []string) error {
	return x.Run(ctx, testCommand(dir, apps))
}

// FuncTest runs the functional test suite in dir against the deployed
// site at url.
func FuncTest(ctx context.Context, x ssh.Executor, dir, suite, url string) error {
	return x.Run(ctx, testCommand(dir, []string{suite}).Setenv("STAGING_SERVER", url))
}

func testCommand(dir string, apps []string) ssh.Command {
	quoted := make([]string, len(apps))
	for i, app := range apps {
		quoted[i] = ssh.Quote(app)
	}
	return ssh.Cmd("./manage.py test " + strings.Join(quoted, " ")).In(dir)
}
