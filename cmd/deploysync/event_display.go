package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/toast"
)

const maxPayloadLen = 120

func displayEvent(ev events.Event) {
	fmt.Println(formatEvent(time.Now(), ev))
}

// formatEvent renders one event as "[15:04:05] kind payload".
func formatEvent(at time.Time, ev events.Event) string {
	kindColor := getActionColor(ev.Kind.Action())
	payload := truncateString(string(ev.Data), maxPayloadLen)
	gray := color.New(color.FgHiBlack)
	return fmt.Sprintf("[%s] %s %s", at.Format("15:04:05"), kindColor.Sprint(ev.Name), gray.Sprint(payload))
}

func getActionColor(action events.Action) *color.Color {
	switch action {
	case events.ActionCreated:
		return color.New(color.FgGreen)
	case events.ActionUpdated:
		return color.New(color.FgCyan)
	case events.ActionDeleted:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgMagenta)
	}
}

func formatToast(state toast.State) string {
	c := color.New(color.FgWhite)
	switch state.Level {
	case toast.LevelSuccess:
		c = color.New(color.FgGreen)
	case toast.LevelWarning:
		c = color.New(color.FgYellow)
	case toast.LevelError:
		c = color.New(color.FgRed, color.Bold)
	}
	return c.Sprintf("[%s] %s", state.Level, state.Message)
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
