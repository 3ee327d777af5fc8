package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/profile"
	"github.com/segmentio/fasthash/fnv1a"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pmonson711/mCRL2/aterm"
	"github.com/pmonson711/mCRL2/bisim"
	"github.com/pmonson711/mCRL2/configs"
	"github.com/pmonson711/mCRL2/lts"
	"github.com/pmonson711/mCRL2/persist"
	"github.com/pmonson711/mCRL2/trace"
)

type runner struct {
	c        configs.Root
	output   string
	info     bool
	many     bool
	cache    *persist.Cache
	recorder trace.Recorder
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run returns instead of exiting so that deferred cleanup, the profiler included, always runs.
func run() error {
	var configPath string
	var c configs.Root
	var output string
	var info, profiling bool
	flag.StringVar(&configPath, "c", "", "Config file")
	flag.StringVar(&output, "o", "", "output file, or output directory when reducing several inputs")
	flag.IntVar(&c.MaxRounds, "max-rounds", 0, "stop refinement after this many rounds (0 means no limit)")
	flag.BoolVar(&c.Strong, "strong", false, "reduce modulo strong bisimulation (plain inputs only)")
	flag.StringVar(&c.TraceFile, "trace", "", "write one JSON line per refinement round to this file")
	flag.StringVar(&c.DB, "db", "", "badger directory caching reduced systems")
	flag.BoolVar(&info, "info", false, "print statistics instead of writing the reduced system")
	flag.IntVar(&c.Workers, "j", 1, "number of inputs reduced in parallel")
	flag.BoolVar(&profiling, "profile", false, "write a CPU profile to the working directory")

	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		return errors.New("usage: ltsreduce [flags] file.aut...")
	}
	if configPath != "" {
		fileConfig, err := configs.ReadConfig(configPath)
		if err != nil {
			return err
		}
		c = overrideConfig(fileConfig, c)
		if output == "" {
			output = c.OutputDir
		}
	}
	if profiling {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	r := &runner{c: c, output: output, info: info, many: len(inputs) > 1}
	if r.many && output != "" {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return err
		}
	}
	if c.DB != "" {
		cache, err := persist.Open(c.DB)
		if err != nil {
			return err
		}
		r.cache = cache
	}
	var fileRecorder trace.FileRecorder
	if c.TraceFile != "" {
		var err error
		fileRecorder, err = trace.MakeLocalFileRecorder(c.TraceFile)
		if err != nil {
			if r.cache != nil {
				err = multierr.Append(err, r.cache.Close())
			}
			return err
		}
		r.recorder = fileRecorder
	}

	g := new(errgroup.Group)
	if c.Workers > 0 {
		g.SetLimit(c.Workers)
	}
	for _, input := range inputs {
		input := input
		g.Go(func() error {
			err := r.reduceFile(input)
			if err != nil {
				log.Printf("%s: %v", input, err)
			}
			return err
		})
	}
	err := g.Wait()

	if r.cache != nil {
		err = multierr.Append(err, r.cache.Close())
	}
	if fileRecorder != nil {
		err = multierr.Append(err, fileRecorder.Close())
	}
	return err
}

// overrideConfig lets flags given on the command line win over the config file.
func overrideConfig(fileConfig, flags configs.Root) configs.Root {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-rounds":
			fileConfig.MaxRounds = flags.MaxRounds
		case "strong":
			fileConfig.Strong = flags.Strong
		case "trace":
			fileConfig.TraceFile = flags.TraceFile
		case "db":
			fileConfig.DB = flags.DB
		case "j":
			fileConfig.Workers = flags.Workers
		}
	})
	return fileConfig
}

func (r *runner) reduceFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	store := aterm.NewStore()

	key, err := persist.Key(fnv1a.HashBytes64(data), r.c.Strong, r.c.MaxRounds)
	if err != nil {
		return err
	}
	if r.cache != nil {
		l, err := r.cache.GetLTS(key, store)
		if err == nil {
			defer l.Close()
			log.Printf("%s: cached result, %v", path, l)
			return r.emit(path, l)
		}
		if !errors.Is(err, persist.ErrNotFound) {
			return err
		}
	}

	l, err := lts.ParseAUT(string(data), store)
	if err != nil {
		return err
	}
	defer l.Close()
	before := l.String()

	opts := []bisim.ReducerConfigFn{bisim.WithMaxRounds(r.c.MaxRounds), bisim.WithInputName(path)}
	if r.recorder != nil {
		opts = append(opts, bisim.WithRecorder(r.recorder))
	}
	var result bisim.Result
	if r.c.Strong {
		result, err = bisim.ReduceStrong(l, opts...)
	} else {
		result, err = bisim.Reduce(l, opts...)
	}
	if err != nil {
		return err
	}
	log.Printf("%s: %s after %d rounds: %s -> %v", path, result.Status, result.Rounds, before, l)

	if r.cache != nil && result.Status == bisim.StatusStable {
		if err := r.cache.PutLTS(key, l); err != nil {
			return err
		}
	}
	return r.emit(path, l)
}

func (r *runner) emit(path string, l *lts.LTS) error {
	if r.info {
		fmt.Printf("%s: %v\n", path, l)
		return nil
	}
	target := r.output
	if r.many {
		dir := target
		if dir == "" {
			dir = filepath.Dir(path)
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		target = filepath.Join(dir, base+".reduced.aut")
	}
	if target == "" {
		return lts.WriteAUT(os.Stdout, l)
	}
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	return multierr.Append(lts.WriteAUT(file, l), file.Close())
}
