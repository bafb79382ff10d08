package logging

import "log/slog"

// Common field names so every package logs the same keys.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldUsername  = "username"
	FieldIP        = "ip"
	FieldSessionID = "session_id"
	FieldAction    = "action"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

func Username(name string) slog.Attr {
	return slog.String(FieldUsername, name)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// SessionID logs a truncated session identifier; the full value is a bearer secret.
func SessionID(id string) slog.Attr {
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	return slog.String(FieldSessionID, id)
}

func Action(action string) slog.Attr {
	return slog.String(FieldAction, action)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns an attribute for err. A nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
