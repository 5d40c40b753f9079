package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/troupe"
	"github.com/aretw0/troupe/internal/logging"
	"github.com/aretw0/troupe/internal/presentation/tui"
	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/session"
	"gopkg.in/yaml.v3"
)

// RunOptions configures a command line run of a machine file.
type RunOptions struct {
	Path string
	// Events are sent in order; each is "TYPE" or "TYPE=<json payload>".
	Events []string
	// Input is the JSON input of a new actor.
	Input string
	// Format of the final snapshot: "yaml" (default) or "json".
	Format string

	// SessionID, with Sessions, resumes and persists the run as a session.
	SessionID string
	Sessions  *session.Manager

	// Interactive reads further events from In, one per line, until EOF,
	// "exit" or a final state.
	Interactive bool
	In          io.Reader
	Out         io.Writer
	Logger      *slog.Logger
}

// ParseEvent decodes "TYPE" or "TYPE=<json payload>". A payload that is not
// valid JSON is sent as a string.
func ParseEvent(s string) (domain.Event, error) {
	typ, raw, hasPayload := strings.Cut(strings.TrimSpace(s), "=")
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return domain.Event{}, fmt.Errorf("event %q has no type", s)
	}
	if !hasPayload {
		return domain.NewEvent(typ, nil), nil
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		payload = raw
	}
	return domain.NewEvent(typ, payload), nil
}

// Run loads the machine at opts.Path, applies the events and writes the
// final persisted snapshot to opts.Out.
func Run(ctx context.Context, opts RunOptions) (*domain.PersistedSnapshot, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	m, err := troupe.LoadMachine(opts.Path, machine.Implementations{})
	if err != nil {
		return nil, err
	}

	var input any
	if opts.Input != "" {
		if err := json.Unmarshal([]byte(opts.Input), &input); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}
	events := make([]domain.Event, 0, len(opts.Events))
	for _, s := range opts.Events {
		ev, err := ParseEvent(s)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	var snap *domain.PersistedSnapshot
	if opts.SessionID != "" && opts.Sessions != nil {
		snap, err = runSession(ctx, m, input, events, opts)
	} else {
		snap, err = runActor(ctx, m, input, events, opts)
	}
	if err != nil {
		return nil, err
	}
	return snap, writeSnapshot(opts.Out, snap, opts.Format)
}

func runActor(ctx context.Context, m *machine.Machine, input any, events []domain.Event, opts RunOptions) (*domain.PersistedSnapshot, error) {
	a := troupe.CreateActor(m,
		actor.WithInput(input),
		actor.WithLogger(opts.Logger),
		actor.WithContext(ctx),
	)
	off := a.On(domain.WildcardDescriptor, func(ev domain.Event) {
		if opts.Interactive {
			printSystemMessage(opts.Out, "emitted %s", ev.Type)
		}
		opts.Logger.Info("emitted", "event", ev.Type, "payload", ev.Payload)
	})
	defer off()

	if err := a.Start(); err != nil {
		return nil, err
	}
	defer a.Stop()

	send := func(ev domain.Event) error {
		if a.Status() != actor.StatusRunning {
			return fmt.Errorf("cannot send %s: %w", ev.Type, domain.ErrActorStopped)
		}
		if err := a.Send(ev); err != nil && a.Status() != actor.StatusErrored {
			return err
		}
		return nil
	}
	for _, ev := range events {
		if err := send(ev); err != nil {
			return nil, err
		}
	}

	if opts.Interactive {
		err := readEvents(ctx, opts, func() bool { return a.Status() == actor.StatusRunning },
			func(ev domain.Event) error {
				if err := send(ev); err != nil {
					return err
				}
				printState(opts.Out, a.Snapshot())
				return nil
			})
		if err != nil {
			return nil, err
		}
	}
	return a.PersistedSnapshot()
}

func runSession(ctx context.Context, m *machine.Machine, input any, events []domain.Event, opts RunOptions) (*domain.PersistedSnapshot, error) {
	res, err := opts.Sessions.Dispatch(ctx, opts.SessionID, m, input, events...)
	if err != nil {
		return nil, err
	}
	if res.Created() {
		opts.Logger.Info("Session Created", "session_id", opts.SessionID)
	} else {
		opts.Logger.Info("Session Resumed", "session_id", opts.SessionID, "value", res.Previous.Value)
	}
	snap := res.Snapshot

	if opts.Interactive {
		err := readEvents(ctx, opts, func() bool { return snap.Status == domain.StatusActive },
			func(ev domain.Event) error {
				res, err := opts.Sessions.Dispatch(ctx, opts.SessionID, m, nil, ev)
				if err != nil {
					return err
				}
				snap = res.Snapshot
				fmt.Fprintf(opts.Out, "%v [%s]\n", snap.Value, tui.Status(snap.Status))
				return nil
			})
		if err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// readEvents feeds lines of opts.In to send while running reports true.
func readEvents(ctx context.Context, opts RunOptions, running func() bool, send func(domain.Event) error) error {
	scanner := bufio.NewScanner(opts.In)
	for running() && ctx.Err() == nil {
		fmt.Fprint(opts.Out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		ev, err := ParseEvent(line)
		if err != nil {
			fmt.Fprintln(opts.Out, err)
			continue
		}
		if err := send(ev); err != nil {
			return err
		}
	}
	return nil
}

func printState(w io.Writer, s actor.Snapshot) {
	if st, ok := s.(*machine.State); ok {
		fmt.Fprintf(w, "%v [%s]\n", st.Value(), tui.Status(st.Status()))
		return
	}
	fmt.Fprintf(w, "[%s]\n", tui.Status(s.Status()))
}

func writeSnapshot(w io.Writer, snap *domain.PersistedSnapshot, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
