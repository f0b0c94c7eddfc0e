package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/mod/semver"
)

// LatestReleaseURL is the application's latest release
const LatestReleaseURL = "https://api.github.com/repos/Nicolhetti/DSQProcess/releases/latest"

// AppUpdate describes a newer application release
type AppUpdate struct {
	Version     string
	DownloadURL string
}

// CheckForUpdate asks url for the latest release and returns it when its tag is a newer
// semantic version than current. A nil result means current is up to date.
func CheckForUpdate(ctx context.Context, client *http.Client, url, current string) (*AppUpdate, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = LatestReleaseURL
	}

	cur := canonical(current)
	if !semver.IsValid(cur) {
		return nil, fmt.Errorf("invalid current version %q", current)
	}

	body, status, err := httpGet(ctx, client, url)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch latest release: %d %s", status, http.StatusText(status))
	}

	var rel release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("decode latest release: %w", err)
	}

	tag := rel.TagName
	if tag == "" {
		tag = "v0.0.0"
	}
	latest := canonical(tag)
	if !semver.IsValid(latest) {
		return nil, fmt.Errorf("invalid release version %q", tag)
	}
	if semver.Compare(latest, cur) <= 0 {
		return nil, nil
	}

	update := &AppUpdate{Version: strings.TrimPrefix(latest, "v")}
	if len(rel.Assets) > 0 {
		update.DownloadURL = rel.Assets[0].BrowserDownloadURL
	}
	return update, nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
