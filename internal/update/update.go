// Package update asks a GitHub "latest release" endpoint for the newest
// version tag.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var ErrNoTag = errors.New("release has no tag_name")

type Checker struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
	// UserAgent is sent with every request; GitHub rejects requests without one.
	UserAgent string
}

// Result is the outcome of comparing the running version with the latest tag.
type Result struct {
	Current   string
	Latest    string
	Available bool
}

func (c Checker) FetchLatestVersionTag(ctx context.Context) (string, error) {
	if strings.TrimSpace(c.URL) == "" {
		return "", errors.New("update url is empty")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	ua := c.UserAgent
	if ua == "" {
		ua = "bosstimer"
	}
	req.Header.Set("User-Agent", ua)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("update check failed: http=%d", resp.StatusCode)
	}
	var out struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode release: %w", err)
	}
	tag := strings.TrimSpace(out.TagName)
	if tag == "" {
		return "", ErrNoTag
	}
	return tag, nil
}

// Check fetches the latest tag and compares it with current.
func (c Checker) Check(ctx context.Context, current string) (Result, error) {
	tag, err := c.FetchLatestVersionTag(ctx)
	if err != nil {
		return Result{Current: current}, err
	}
	return Result{Current: current, Latest: tag, Available: Compare(tag, current) > 0}, nil
}

// Compare orders dotted numeric versions ("v1.2.10" > "1.2.9"). A leading
// "v" and any "-suffix" are ignored; missing parts count as zero and
// non-numeric parts compare as strings.
func Compare(a, b string) int {
	pa, pb := parts(a), parts(b)
	for i := 0; i < max(len(pa), len(pb)); i++ {
		x, y := "0", "0"
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		xi, xerr := strconv.Atoi(x)
		yi, yerr := strconv.Atoi(y)
		switch {
		case xerr == nil && yerr == nil:
			if xi != yi {
				if xi < yi {
					return -1
				}
				return 1
			}
		case x != y:
			return strings.Compare(x, y)
		}
	}
	return 0
}

func parts(v string) []string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return nil
	}
	return strings.Split(v, ".")
}
