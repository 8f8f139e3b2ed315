package gpu

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	kernelDecl  = regexp.MustCompile(`(?:__kernel|\bkernel)\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
	includeDecl = regexp.MustCompile(`(?m)^\s*#\s*include\s+["<]([^">]+)[">]`)

	errBuildProgram = errors.New("build program failure")
	errKernelName   = errors.New("invalid kernel name")
)

// buildLog accumulates compiler-style diagnostics.
type buildLog struct {
	lines []string
}

func (l *buildLog) errorf(file string, line int, format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf("%s:%d: error: %s", file, line, fmt.Sprintf(format, args...)))
}

func (l *buildLog) String() string {
	return strings.Join(l.lines, "\n")
}

// scanProgram resolves includes and returns the declared kernels with
// their parameter counts.
func scanProgram(src Source) (map[string]int, *buildLog) {
	log := &buildLog{}
	text := src.Text
	seen := map[string]bool{}

	var expand func(name, body string, depth int) string
	expand = func(name, body string, depth int) string {
		var b strings.Builder
		b.WriteString(body)
		for _, m := range includeDecl.FindAllStringSubmatchIndex(body, -1) {
			inc := body[m[2]:m[3]]
			line := strings.Count(body[:m[0]], "\n") + 1
			if depth > 16 {
				log.errorf(name, line, "#include nested too deeply")
				continue
			}
			if src.IncludePath == "" {
				log.errorf(name, line, "'%s' file not found", inc)
				continue
			}
			path := filepath.Join(src.IncludePath, inc)
			if seen[path] {
				continue
			}
			seen[path] = true
			data, err := os.ReadFile(path)
			if err != nil {
				log.errorf(name, line, "'%s' file not found", inc)
				continue
			}
			b.WriteByte('\n')
			b.WriteString(expand(inc, string(data), depth+1))
		}
		return b.String()
	}
	text = expand("<source>", text, 0)

	kernels := make(map[string]int)
	for _, m := range kernelDecl.FindAllStringSubmatch(text, -1) {
		kernels[m[1]] = countParams(m[2])
	}
	return kernels, log
}

func countParams(list string) int {
	list = strings.TrimSpace(list)
	if list == "" || list == "void" {
		return 0
	}
	return strings.Count(list, ",") + 1
}

// buildHostKernel checks src against the registry the way a compiler
// would check it against its own sources.
func buildHostKernel(src Source, reg *Registry) (HostKernelFunc, int, error) {
	kernels, log := scanProgram(src)
	if len(log.lines) > 0 {
		return nil, 0, &BuildError{Entry: src.Entry, Log: log.String(), Err: errBuildProgram}
	}

	params, ok := kernels[src.Entry]
	if !ok {
		log.errorf("<source>", 1, "no kernel named '%s' in program", src.Entry)
		return nil, 0, &BuildError{Entry: src.Entry, Log: log.String(), Err: errKernelName}
	}

	fn, ok := reg.Lookup(src.Entry)
	if !ok {
		log.errorf("<source>", 1, "kernel '%s' has no host implementation", src.Entry)
		return nil, 0, &BuildError{Entry: src.Entry, Log: log.String(), Err: errBuildProgram}
	}

	return fn, params, nil
}
