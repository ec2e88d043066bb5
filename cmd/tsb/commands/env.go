package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	dockerpkg "github.com/dyluth/tsb/internal/docker"
	"github.com/dyluth/tsb/internal/delegate"
	"github.com/dyluth/tsb/internal/engine"
	"github.com/dyluth/tsb/internal/printer"
	"github.com/dyluth/tsb/internal/store"
	"github.com/dyluth/tsb/pkg/artifact"
)

// newEngine creates the engine and its codec, honouring a pinned
// generation from the config.
func newEngine(stdout, stderr io.Writer) (*engine.V8, *artifact.Codec, error) {
	g := cfg.Generation()

	eng, err := engine.New(engine.WithStdout(stdout), engine.WithStderr(stderr), engine.WithGeneration(g))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start engine: %w", err)
	}

	var opts []artifact.Option
	if g != "" {
		opts = append(opts, artifact.WithGeneration(g))
	}
	codec, err := artifact.NewCodec(eng, opts...)
	if err != nil {
		eng.Close()
		return nil, nil, err
	}
	return eng, codec, nil
}

// openArtifactStore returns the redis store when a URL is configured and
// the filesystem otherwise. close is never nil.
func openArtifactStore(ctx context.Context, redisURL string) (s store.Store, close func(), err error) {
	namespace := "default"
	if cfg.Store != nil {
		if redisURL == "" {
			redisURL = cfg.Store.RedisURL
		}
		namespace = cfg.Store.Namespace
	}
	if redisURL == "" {
		return store.NewFileStore(""), func() {}, nil
	}

	rs, err := store.OpenRedisStore(redisURL, namespace)
	if err != nil {
		return nil, nil, err
	}
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", redisURL, err)
	}
	return rs, func() { rs.Close() }, nil
}

// newDelegateRunner builds the runner for --delegate or --image. It
// returns nil when neither is set.
func newDelegateRunner(ctx context.Context, runtime, image string) (delegate.Runner, func(), error) {
	if cfg.Delegate != nil {
		if runtime == "" && image == "" {
			runtime, image = cfg.Delegate.Runtime, cfg.Delegate.Image
		}
	}

	switch {
	case runtime != "" && image != "":
		return nil, nil, errors.New("--delegate and --image are mutually exclusive")
	case runtime != "":
		path := runtime
		if !strings.ContainsRune(runtime, os.PathSeparator) {
			found, err := exec.LookPath(runtime)
			if err != nil {
				return nil, nil, fmt.Errorf("delegate runtime %q not found: %w", runtime, err)
			}
			path = found
		}
		return &delegate.ExecRunner{Path: path}, func() {}, nil
	case image != "":
		cli, err := dockerpkg.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return &delegate.DockerRunner{Client: cli, Image: image}, func() { cli.Close() }, nil
	}
	return nil, func() {}, nil
}

// printErr prints err through the printer and returns the title error.
func printErr(title string, err error, suggestions []string) error {
	return printer.Error(title, err.Error(), suggestions)
}
