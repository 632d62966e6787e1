package deploy

import "strings"

// sanitizeEntryPath turns an archive entry name into a relative slash
// separated path. Entries that would escape the deployment namespace (parent
// segments, absolute paths, drive letters) are rejected with ok == false.
func sanitizeEntryPath(name string) (clean string, ok bool) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", false
	}
	p := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(p, "/") || hasDriveLetter(p) {
		return "", false
	}
	segments := make([]string, 0, strings.Count(p, "/")+1)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", false
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", false
	}
	return strings.Join(segments, "/"), true
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
