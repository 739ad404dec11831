package components

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/hars-imp/internal/discovery"
	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
)

func (s *Set) button(b config.ButtonConfig) entry {
	id := s.topics.ObjectID(b.Name)
	topic := s.topics.ButtonCommand(b.Name)

	return entry{
		id:        id,
		component: discovery.Button(b.Name, id, topic),
		handle: func(ctx context.Context, payload string) error {
			if strings.TrimSpace(payload) != PayloadPress {
				s.deps.Logger.Debug("ignoring button payload", "button", b.Name, "payload", payload)
				return nil
			}

			s.deps.Logger.Info("button pressed", "button", b.Name, "command", b.Exec)
			res, err := s.deps.Exec.Run(ctx, b.Exec)
			if err != nil {
				s.deps.Logger.Error("button command failed",
					"button", b.Name, "error", err, "stderr", res.Stderr)
				return fmt.Errorf("button %q: %w", b.Name, err)
			}
			s.deps.Logger.Info("button command succeeded", "button", b.Name, "output", res.Stdout)
			return nil
		},
	}
}
