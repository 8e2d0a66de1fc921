package archive

import (
	"path/filepath"
	"strings"
)

// Extensions stripped by SourceName, most specific first.
var sourceExts = []string{
	".tar.xz", ".tar.gz", ".tgz", ".txz", ".tar",
	".xz", ".gz",
	".aln", ".clustal", ".clw",
}

// SourceName derives a display name from a source path by dropping the
// directory and known alignment and compression extensions.
func SourceName(path string) string {
	if path == Stdin {
		return "stdin"
	}
	name := filepath.Base(path)
	for {
		trimmed := false
		for _, ext := range sourceExts {
			if strings.HasSuffix(name, ext) && len(name) > len(ext) {
				name = strings.TrimSuffix(name, ext)
				trimmed = true
				break
			}
		}
		if !trimmed {
			return name
		}
	}
}
