package depscan

import (
	"bufio"
	"bytes"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// maxPkgConfigSize caps how much of a .pc file is read.
const maxPkgConfigSize = 64 * 1024

func readPkgConfigDir(r Root, dir string) []PkgConfigFile {
	names := r.ListDir(dir)
	sort.Strings(names)
	var out []PkgConfigFile
	for _, n := range names {
		if !strings.HasSuffix(n, ".pc") {
			continue
		}
		rel := path.Join(dir, n)
		data, err := fs.ReadFile(r.FS, rel)
		if err != nil || len(data) > maxPkgConfigSize {
			continue
		}
		out = append(out, PkgConfigFile{
			Root:           r.Path,
			Path:           r.Abs(rel),
			Package:        strings.TrimSuffix(n, ".pc"),
			IncludeSubdirs: IncludeSubdirs(data),
		})
	}
	return out
}

// IncludeSubdirs returns the header subdirectories a .pc file's Cflags
// reference below its include directory, e.g. "glib-2.0" for
// "-I${includedir}/glib-2.0". Order follows the Cflags field.
func IncludeSubdirs(data []byte) []string {
	vars := make(map[string]string)
	var cflags string

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexAny(line, ":="); i > 0 {
			key := strings.TrimSpace(line[:i])
			val := strings.TrimSpace(line[i+1:])
			if line[i] == '=' {
				vars[key] = expandVars(val, vars)
			} else if key == "Cflags" || key == "CFlags" {
				cflags = expandVars(val, vars)
			}
		}
	}

	includedir := vars["includedir"]
	var subs []string
	fields := strings.Fields(cflags)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		var p string
		switch {
		case strings.HasPrefix(f, "-I") && len(f) > 2:
			p = f[2:]
		case f == "-I" || f == "-isystem":
			if i+1 < len(fields) {
				i++
				p = fields[i]
			}
		default:
			continue
		}
		if sub := subdirOf(p, includedir); sub != "" && !contains(subs, sub) {
			subs = append(subs, sub)
		}
	}
	return subs
}

func subdirOf(p, includedir string) string {
	p = path.Clean(p)
	if includedir != "" {
		inc := path.Clean(includedir)
		if strings.HasPrefix(p, inc+"/") {
			return strings.TrimPrefix(p, inc+"/")
		}
		if p == inc {
			return ""
		}
	}
	if i := strings.LastIndex(p, "/include/"); i >= 0 {
		return p[i+len("/include/"):]
	}
	return ""
}

// expandVars substitutes ${name} references using already defined variables.
func expandVars(s string, vars map[string]string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:start])
		b.WriteString(vars[s[start+2:start+end]])
		s = s[start+end+1:]
	}
}
