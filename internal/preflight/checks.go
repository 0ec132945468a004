package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sys/unix"

	"yt2pod/internal/config"
)

const remoteCheckTimeout = 5 * time.Second

// Requirement defines an external binary yt2pod relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Requirements lists the binaries the configured pipeline invokes.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "yt-dlp", Command: cfg.Acquire.YTDLPBinary, Description: "Required for YouTube downloads"},
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Required for audio conversion and splitting"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "Required for media inspection"},
	}
	if cfg.Publish.Mode == config.PublishGitHub {
		reqs = append(reqs, Requirement{Name: "git", Command: "git", Description: "Required for git publishing"})
	}
	return reqs
}

// CheckBinaries reports the availability of each requirement on PATH.
func CheckBinaries(requirements []Requirement) []Result {
	results := make([]Result, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		result := Result{Name: req.Name, Optional: req.Optional}
		switch {
		case cmd == "":
			result.Detail = "command not configured"
		default:
			path, err := exec.LookPath(cmd)
			if err != nil {
				result.Detail = fmt.Sprintf("binary %q not found (%s)", cmd, req.Description)
			} else {
				result.Passed = true
				result.Detail = path
			}
		}
		results = append(results, result)
	}
	return results
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
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
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGitRepo verifies that dir is a git working tree.
func CheckGitRepo(dir string) Result {
	const name = "Git repository"
	if strings.TrimSpace(dir) == "" {
		return Result{Name: name, Detail: "publish.git_repo_dir not set"}
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a git repository", dir)}
	}
	return Result{Name: name, Passed: true, Detail: dir}
}

// CheckTranscriptionBackend verifies that the transcription API is
// reachable and accepts the key.
func CheckTranscriptionBackend(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Transcription API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()

	client := &http.Client{Timeout: remoteCheckTimeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/v2/transcript?limit=1", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	req.Header.Set("authorization", strings.TrimSpace(apiKey))

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "API reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode)}
	}
}

// CheckObjectStore verifies that the configured bucket exists.
func CheckObjectStore(ctx context.Context, cfg *config.Config) Result {
	const name = "Object store"
	store := cfg.Publish.ObjectStore
	client, err := minio.New(store.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(store.AccessKey, store.SecretKey, ""),
		Secure: store.UseSSL,
		Region: store.Region,
	})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid endpoint (%v)", err)}
	}
	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, store.Bucket)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	if !exists {
		return Result{Name: name, Detail: fmt.Sprintf("bucket %q does not exist", store.Bucket)}
	}
	return Result{Name: name, Passed: true, Detail: store.Endpoint + "/" + store.Bucket}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (endpoint unreachable)"
	}
	return err.Error()
}
