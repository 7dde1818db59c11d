package restyutil

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// DirOutput saves every response body as <seq>-<path>.html in a directory,
// so pages can be replayed with `gradebot parse`.
type DirOutput struct {
	directory string
}

func NewDirOutput(dir string) (DirOutput, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return DirOutput{}, err
	}
	return DirOutput{directory: dir}, nil
}

func fileName(seq uint64, method, rawUrl string) string {
	slug := rawUrl
	parsed, err := url.Parse(rawUrl)
	if err == nil {
		slug = parsed.Path
	}
	slug = strings.Trim(unsafeChars.ReplaceAllString(slug, "_"), "_")
	if slug == "" {
		slug = "index"
	}
	return fmt.Sprintf("%03d-%s-%s.html", seq, strings.ToLower(method), slug)
}

func (o DirOutput) Write(seq uint64, method, url string, status int, body []byte) {
	name := fileName(seq, method, url)
	err := os.WriteFile(filepath.Join(o.directory, name), body, 0o600)
	if err != nil {
		slog.Warn("failed to dump response", "url", url, "status", status, "err", err)
	}
}
