package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/troupe/internal/adapters/file"
	"github.com/aretw0/troupe/internal/compiler"
	"github.com/aretw0/troupe/internal/presentation/tui"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/ports"
	"github.com/aretw0/troupe/pkg/schema"
)

// ErrInvalid is returned by Validate when at least one machine does not compile.
var ErrInvalid = errors.New("invalid machine definitions")

// Validate compiles the machine file at path, or every machine file of the
// directory at path, and writes one line per machine plus one per problem.
// Machines are compiled without implementations, so only builtin actions
// and guards resolve.
func Validate(path string, w io.Writer) error {
	loader, err := loaderFor(path)
	if err != nil {
		return err
	}
	names, err := loader.ListDefinitions()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no machine files in %s", path)
	}

	failed := 0
	for _, name := range names {
		if err := validateOne(loader, name); err != nil {
			failed++
			fmt.Fprintf(w, "%s %s\n", tui.Check(false), name)
			problems := schema.ValidationErrors(err)
			if problems == nil {
				problems = []error{err}
			}
			for _, p := range problems {
				fmt.Fprintf(w, "    %s\n", p)
			}
			continue
		}
		fmt.Fprintf(w, "%s %s\n", tui.Check(true), name)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalid, failed, len(names))
	}
	return nil
}

// WatchValidate runs Validate now and again after every change under path,
// until ctx is done. Validation failures are reported, not returned.
func WatchValidate(ctx context.Context, path string, w io.Writer, logger *slog.Logger) error {
	dir := path
	if info, err := os.Stat(path); err != nil {
		return err
	} else if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	changes, err := file.NewLoader(dir, file.WithLogger(logger)).Watch(ctx)
	if err != nil {
		return err
	}

	report := func() {
		if err := Validate(path, w); err != nil {
			logger.Debug("validation failed", "err", err)
		}
	}
	report()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			printSystemMessage(w, "change detected, validating %s", path)
			report()
		}
	}
}

func validateOne(loader ports.DefinitionLoader, name string) error {
	data, format, err := loader.GetDefinition(name)
	if err != nil {
		return err
	}
	cfg, err := compiler.NewParser(compiler.WithStrict()).Parse(data, compiler.Format(format))
	if err != nil {
		return err
	}
	if cfg.ID == "" {
		cfg.ID = name
	}
	_, err = machine.New(*cfg, machine.Implementations{})
	return err
}

// singleFile serves one machine file as a definition loader.
type singleFile struct {
	path   string
	name   string
	format compiler.Format
}

func (s singleFile) GetDefinition(name string) ([]byte, string, error) {
	if name != s.name {
		return nil, "", fmt.Errorf("machine not found: %s", name)
	}
	data, err := os.ReadFile(s.path)
	return data, string(s.format), err
}

func (s singleFile) ListDefinitions() ([]string, error) {
	return []string{s.name}, nil
}

func loaderFor(path string) (ports.DefinitionLoader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return file.NewLoader(path), nil
	}
	format, err := compiler.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	return singleFile{path: path, name: base[:len(base)-len(filepath.Ext(base))], format: format}, nil
}
