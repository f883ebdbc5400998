package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cli/go-gh/v2/pkg/auth"
	"golang.org/x/sys/unix"

	"speculum/internal/config"
	"speculum/internal/definitions"
	"speculum/internal/services"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, ok string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, ok)}
}

// CheckDefinitions loads the definition directory once and reports how many
// workflows are usable. A lenient load with skipped files still passes.
func CheckDefinitions(ctx context.Context, dir string, strict bool) Result {
	const name = "Workflow definitions"

	if access := CheckReadableDirectory(name, dir); !access.Passed {
		return access
	}
	repo := definitions.New(dir, definitions.Options{Strict: strict})
	if err := repo.Refresh(ctx); err != nil {
		details := services.Details(err)
		detail := details.Message
		if details.Hint != "" {
			detail += " (" + details.Hint + ")"
		}
		return Result{Name: name, Detail: detail}
	}
	count := len(repo.All())
	if count == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no workflow definitions found)", dir)}
	}
	detail := fmt.Sprintf("%d loaded", count)
	if skipped := repo.Issues(); len(skipped) > 0 {
		paths := make([]string, 0, len(skipped))
		for _, issue := range skipped {
			paths = append(paths, issue.Path)
		}
		detail += fmt.Sprintf(", %d skipped: %s", len(skipped), strings.Join(paths, ", "))
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckTrackerAuth verifies a repository is configured and a token is
// available from config, the environment, or the gh CLI.
func CheckTrackerAuth(cfg *config.Config) Result {
	const name = "GitHub tracker"

	repo := strings.TrimSpace(cfg.Tracker.Repository)
	if repo == "" {
		return Result{Name: name, Detail: "missing repository"}
	}
	if strings.Count(repo, "/") != 1 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: expected owner/name)", repo)}
	}
	if strings.TrimSpace(cfg.Tracker.Token) != "" {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (token from config)", repo)}
	}
	token, source := auth.TokenForHost(cfg.Tracker.Host)
	if token == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no token for %s; run gh auth login or set GH_TOKEN)", repo, cfg.Tracker.Host)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (token from %s)", repo, source)}
}
