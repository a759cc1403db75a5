package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	e, ok := As(err)
	if !ok {
		e = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", e.Message)
	if e.Cause != nil && e.Cause.Error() != e.Message {
		fmt.Fprintf(&sb, "  Cause: %v\n", e.Cause)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", e.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", e.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err, details sorted by key.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	e, ok := As(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error", e.Error()),
		slog.String("error_code", e.Code),
		slog.Bool("retryable", e.Retryable),
	}

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, e.Details[k]))
	}
	return attrs
}
