package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fghsg9075-lab/aios/internal/httpclient"
	"github.com/hashicorp/go-version"
)

// AppVersion is stamped at build time with -ldflags "-X ...cmd.AppVersion=v1.2.3".
var AppVersion = "v0.0.0"

// ReleasesURL is the GitHub endpoint describing the latest release.
const ReleasesURL = "https://api.github.com/repos/fghsg9075-lab/aios/releases/latest"

type GitHubRelease struct {
	TagName string `json:"tag_name"`
}

// UpdateInfo compares the running build against the latest release.
type UpdateInfo struct {
	Current  string
	Latest   string
	Outdated bool
}

// CheckForUpdates asks url for the latest release tag and compares it with
// current. Development builds that are not valid versions are never outdated.
func CheckForUpdates(ctx context.Context, client *http.Client, url, current string) (UpdateInfo, error) {
	info := UpdateInfo{Current: current}

	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	var release GitHubRelease
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if err := httpclient.SendJSON(ctx, client, http.MethodGet, url, headers, nil, &release); err != nil {
		return info, fmt.Errorf("release lookup: %w", err)
	}
	info.Latest = release.TagName

	latest, err := version.NewVersion(release.TagName)
	if err != nil {
		return info, fmt.Errorf("release lookup: bad tag %q: %w", release.TagName, err)
	}
	running, err := version.NewVersion(current)
	if err != nil {
		return info, nil
	}

	info.Outdated = running.LessThan(latest)
	return info, nil
}
