package warroom

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/warboard/warboard/internal/api"
	"github.com/warboard/warboard/internal/realtime"
)

// Renderer projects store state onto the console. Implementations must
// tolerate being called from multiple goroutines.
type Renderer interface {
	RenderEntry(entry api.TimelineEntry)
	RenderQueue(tasks []api.ExecutionTask)
	RenderStats(stats api.EventStats)
	RenderDetail(detail api.EventDetail)
	RenderConnection(from, to realtime.State)
	RenderNotice(message string)
}

// TerminalRenderer writes a colorized feed to one writer.
type TerminalRenderer struct {
	out io.Writer
}

// NewTerminalRenderer creates a renderer writing to out.
func NewTerminalRenderer(out io.Writer) *TerminalRenderer {
	return &TerminalRenderer{out: out}
}

func originLabel(origin string) string {
	switch origin {
	case api.OriginCoordinator:
		return color.MagentaString("coordinator")
	case api.OriginManager:
		return color.BlueString("manager")
	case api.OriginOperator:
		return color.CyanString("operator")
	case api.OriginExecutor:
		return color.YellowString("executor")
	case api.OriginExpert:
		return color.GreenString("expert")
	case api.OriginUser:
		return color.WhiteString("you")
	default:
		return origin
	}
}

// RenderEntry prints one timeline entry as a feed line.
func (r *TerminalRenderer) RenderEntry(entry api.TimelineEntry) {
	when := entry.CreatedAt.Format("15:04:05")
	fmt.Fprintf(r.out, "%s %s [round %d] %s\n", when, originLabel(entry.Origin), entry.RoundID, summarizePayload(entry))
}

func summarizePayload(entry api.TimelineEntry) string {
	switch p := entry.Payload.(type) {
	case api.PlainPayload:
		return p.Text
	case api.LLMRequestPayload:
		return p.Data
	case api.SystemNotificationPayload:
		return p.ResponseText
	case api.LLMResponsePayload:
		parts := []string{p.ResponseText}
		if n := len(p.Tasks); n > 0 {
			parts = append(parts, fmt.Sprintf("(%d tasks)", n))
		}
		if n := len(p.Commands); n > 0 {
			parts = append(parts, fmt.Sprintf("(%d commands)", n))
		}
		return strings.Join(parts, " ")
	case api.CommandResultPayload:
		if p.AISummary != "" {
			return fmt.Sprintf("%s: %s", p.CommandName, p.AISummary)
		}
		return fmt.Sprintf("%s finished with status %s", p.CommandName, p.Status)
	case api.ExecutionSummaryPayload:
		return p.AISummary
	case api.EventSummaryPayload:
		return fmt.Sprintf("round %d summary: %s", p.RoundID, p.EventSummary)
	default:
		return fmt.Sprintf("[%s]", entry.Kind)
	}
}

// RenderQueue prints the waiting execution tasks.
func (r *TerminalRenderer) RenderQueue(tasks []api.ExecutionTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(r.out, color.HiBlackString("no executions waiting"))
		return
	}
	fmt.Fprintln(r.out, color.YellowString("executions waiting for you:"))
	for _, task := range tasks {
		desc := task.Description
		if desc == "" {
			desc = task.CommandType
		}
		fmt.Fprintf(r.out, "  [%s] %s %s\n", task.Key(), task.CommandName, desc)
	}
}

// RenderStats prints the incident work counters.
func (r *TerminalRenderer) RenderStats(stats api.EventStats) {
	fmt.Fprintf(r.out, "tasks %d · actions %d · commands %d\n", stats.TaskCount, stats.ActionCount, stats.CommandCount)
}

// RenderDetail prints the incident header.
func (r *TerminalRenderer) RenderDetail(detail api.EventDetail) {
	fmt.Fprintf(r.out, "%s %s (severity %s, status %s, round %d)\n",
		color.CyanString(detail.EventID), detail.EventName, detail.Severity, detail.Status, detail.CurrentRound)
}

// RenderConnection prints connection state transitions worth surfacing.
func (r *TerminalRenderer) RenderConnection(from, to realtime.State) {
	switch to {
	case realtime.StateConnected:
		fmt.Fprintln(r.out, color.GreenString("· live updates connected"))
	case realtime.StateReconnecting:
		fmt.Fprintln(r.out, color.YellowString("· reconnecting..."))
	case realtime.StateFailed:
		fmt.Fprintln(r.out, color.RedString("· live updates unavailable, polling only"))
	case realtime.StateDisconnected:
		if from == realtime.StateConnected {
			fmt.Fprintln(r.out, color.YellowString("· live updates lost"))
		}
	}
}

// RenderNotice prints an out-of-band notice line.
func (r *TerminalRenderer) RenderNotice(message string) {
	fmt.Fprintln(r.out, color.HiBlackString("· "+message))
}
