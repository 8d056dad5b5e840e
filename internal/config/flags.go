package config

import (
	"errors"
	"io"
	"time"

	"github.com/alexflint/go-arg"
)

type Args struct {
	Host        string        `arg:"--host,env:GITLAB_HOST" help:"GitLab host, e.g. https://gitlab.example.com"`
	Ref         string        `arg:"--ref" help:"branch used when a project has no default branch"`
	CacheDir    string        `arg:"--cache-dir" help:"directory for cached trees"`
	Timeout     time.Duration `arg:"--timeout" help:"per-request timeout"`
	Theme       string        `arg:"--theme" help:"dark or light"`
	LogLevel    string        `arg:"--log-level" help:"debug, info, warn or error"`
	LogFile     string        `arg:"--log-file" help:"log destination, - for stderr"`
	MetricsAddr string        `arg:"--metrics-addr" help:"serve Prometheus metrics on this address"`
	Demo        bool          `arg:"--demo" help:"browse a built-in sample hierarchy offline"`
	Refresh     bool          `arg:"--refresh" help:"discard the cached tree before starting"`
}

func (Args) Description() string {
	return "labtree browses GitLab groups, projects and repository files in the terminal."
}

// newParser prepares a go-arg parser whose defaults come from base.
func newParser(base Config) (*arg.Parser, *Args, error) {
	args := &Args{
		Host:        base.Host,
		Ref:         base.Ref,
		CacheDir:    base.CacheDir,
		Timeout:     base.Timeout,
		Theme:       base.Theme,
		LogLevel:    base.LogLevel,
		LogFile:     base.LogFile,
		MetricsAddr: base.MetricsAddr,
		Demo:        base.Demo,
	}
	parser, err := arg.NewParser(arg.Config{Program: "labtree"}, args)
	if err != nil {
		return nil, nil, err
	}
	return parser, args, nil
}

// ParseFlags overlays command line flags (without the program name) on base.
// Help goes to stdout and usage errors to stderr; a help request returns
// arg.ErrHelp.
func ParseFlags(base Config, argv []string, stdout, stderr io.Writer) (Config, error) {
	parser, args, err := newParser(base)
	if err != nil {
		return base, err
	}
	if err := parser.Parse(argv); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			parser.WriteHelp(stdout)
			return base, err
		}
		parser.WriteUsage(stderr)
		return base, err
	}
	return args.Apply(base), nil
}

// Apply overlays the parsed flags on base.
func (args *Args) Apply(base Config) Config {
	merged := base
	if args.Host != "" {
		merged.Host = args.Host
	}
	if args.Ref != "" {
		merged.Ref = args.Ref
	}
	merged.CacheDir = args.CacheDir
	if args.Timeout > 0 {
		merged.Timeout = args.Timeout
	}
	merged.Theme = normalizeTheme(args.Theme, base.Theme)
	if args.LogLevel != "" {
		merged.LogLevel = args.LogLevel
	}
	merged.LogFile = args.LogFile
	merged.MetricsAddr = args.MetricsAddr
	merged.Demo = args.Demo
	merged.Refresh = args.Refresh
	return merged
}
