package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"speculum/internal/logging"
	"speculum/internal/services"
	"speculum/internal/telemetry"
)

// HandOffMarker opens the fenced JSON block carried in the completion comment.
const HandOffMarker = "```json speculum-handoff"

func (p *Processor) completionEffects(ctx context.Context, number int, handOff HandOff) {
	p.effect(ctx, "comment", func(ctx context.Context) error {
		return p.tracker.Comment(ctx, number, completionComment(handOff))
	})
	if label := strings.TrimSpace(p.cfg.Tracker.CompletedLabel); label != "" {
		p.effect(ctx, "add_label", func(ctx context.Context) error {
			return p.tracker.AddLabels(ctx, number, label)
		})
	}
	if reviewer := strings.TrimSpace(handOff.Reviewer); reviewer != "" {
		p.effect(ctx, "assign_reviewer", func(ctx context.Context) error {
			return p.tracker.Assign(ctx, number, reviewer)
		})
	}
	p.unassign(ctx, number)
}

func (p *Processor) errorEffects(ctx context.Context, number int, err error) {
	p.effect(ctx, "comment", func(ctx context.Context) error {
		return p.tracker.Comment(ctx, number, errorComment(err))
	})
	p.unassign(ctx, number)
}

func (p *Processor) clarificationEffects(ctx context.Context, number int, message string) {
	p.effect(ctx, "comment", func(ctx context.Context) error {
		return p.tracker.Comment(ctx, number, "**Clarification needed**\n\n"+message)
	})
	p.unassign(ctx, number)
}

func (p *Processor) unassign(ctx context.Context, number int) {
	login := strings.TrimSpace(p.cfg.Tracker.AssigneeLogin)
	if login == "" {
		return
	}
	p.effect(ctx, "unassign", func(ctx context.Context) error {
		return p.tracker.Unassign(ctx, number, login)
	})
}

// effect runs one best-effort tracker call. Failures and panics are logged and
// swallowed.
func (p *Processor) effect(ctx context.Context, name string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, p.logger)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = services.WrapCode(services.ErrExecution, "processing", name, CodePanic, fmt.Sprintf("panic: %v", r), nil)
			}
		}()
		return fn(ctx)
	}()
	if err == nil {
		return
	}
	attrs := append([]logging.Attr{
		logging.String("effect", name),
		logging.String(logging.FieldImpact, "tracker not updated; outcome unchanged"),
	}, logging.ErrorAttrs(err)...)
	logging.WarnWithContext(logger, "tracker side effect failed", "side_effect_failed", attrs...)
}

func completionComment(h HandOff) string {
	var b strings.Builder
	if h.Outcome == telemetry.OutcomePartial {
		b.WriteString("**Processing completed with failures**\n\n")
	} else {
		b.WriteString("**Processing completed**\n\n")
	}
	if len(h.Workflows) > 0 {
		fmt.Fprintf(&b, "Workflows: %s\n\n", strings.Join(h.Workflows, ", "))
	}
	if len(h.Files) > 0 {
		b.WriteString("Deliverables:\n")
		for _, f := range h.Files {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
		b.WriteString("\n")
	}
	if len(h.Failures) > 0 {
		fmt.Fprintf(&b, "Failed workflows: %s\n\n", strings.Join(h.Failures, ", "))
	}
	payload, err := json.MarshalIndent(h, "", "  ")
	if err == nil {
		b.WriteString(HandOffMarker)
		b.WriteString("\n")
		b.Write(payload)
		b.WriteString("\n```\n")
	}
	return b.String()
}

func errorComment(err error) string {
	details := services.Details(err)
	var b strings.Builder
	b.WriteString("**Processing failed**\n\n")
	msg := details.Message
	if msg == "" && err != nil {
		msg = err.Error()
	}
	fmt.Fprintf(&b, "%s\n", msg)
	if details.Code != "" {
		fmt.Fprintf(&b, "\nCode: `%s`\n", details.Code)
	}
	if details.Hint != "" {
		fmt.Fprintf(&b, "\nNext step: %s\n", details.Hint)
	}
	return b.String()
}
