package status

import (
	"fmt"
	"time"

	"github.com/arenaverse/arenactl/internal/application"
	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Now time.Time
}

// Render produces the terminal view of one or more session statuses,
// most-recent-first as delivered by the registry.
func Render(statuses []application.SessionStatus, opts RenderOptions) string {
	return renderView(statuses, opts, newStyles())
}

func renderView(statuses []application.SessionStatus, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Arena Sessions"),
		s.header.Render(fmt.Sprintf("sessions: %d", len(statuses))),
	}

	if len(statuses) == 0 {
		lines = append(lines, s.empty.Render("No sessions. Run 'arenactl join' to enter the queue."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, status := range statuses {
		lines = append(lines, s.section.Render(renderSession(status, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSession(status application.SessionStatus, opts RenderOptions, s styles) string {
	session := status.Session

	observerStyle := s.meta
	if status.ObserverAlive {
		observerStyle = s.observer
	}

	header := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.session.Render(string(session.ID)),
		" ",
		statusStyle(session.Status, s).Render(string(session.Status)),
		" ",
		observerStyle.Render(observerLabel(status)),
	)

	parts := []string{header}

	if session.RunID != "" {
		parts = append(parts, s.detail.Render("run: "+session.RunID))
	}
	if session.StatusReason != "" {
		parts = append(parts, s.detail.Render("reason: "+session.StatusReason))
	}

	meta := fmt.Sprintf("joined %s", formatRelative(session.CreatedAt, opts.Now))
	if !session.LastPolledAt.IsZero() {
		meta += fmt.Sprintf(", last poll %s", formatRelative(session.LastPolledAt, opts.Now))
	}
	parts = append(parts, s.meta.Render(meta))

	if session.Status == domain.StatusActive && !status.ObserverAlive {
		parts = append(parts, s.warning.Render("observer not running; run 'arenactl stop' to settle the record"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func statusStyle(status domain.SessionStatus, s styles) lipgloss.Style {
	switch status {
	case domain.StatusActive:
		return s.active
	case domain.StatusPending:
		return s.pending
	case domain.StatusError:
		return s.failed
	default:
		return s.done
	}
}

func observerLabel(status application.SessionStatus) string {
	if status.ObserverAlive {
		return fmt.Sprintf("observer pid %d", status.Session.ObserverPID)
	}
	return "no observer"
}

func formatRelative(at, now time.Time) string {
	if at.IsZero() {
		return "never"
	}
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}

	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Second:
		return "just now"
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds ago", int(elapsed.Seconds()))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return at.Format("2006-01-02 15:04")
	}
}
