package logging

import (
	"log/slog"
	"time"
)

// Field names shared by every relay log line.
const (
	FieldService       = "service"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldGuildID       = "guild_id"
	FieldChannelID     = "channel_id"
	FieldUserID        = "user_id"
	FieldMessageID     = "message_id"
	FieldDeliveryID    = "delivery_id"
	FieldOutcome       = "outcome"
	FieldReason        = "reason"
	FieldStatus        = "status"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldPanic         = "panic"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func EventType(kind string) slog.Attr {
	return slog.String(FieldEventType, kind)
}

// GuildID logs an empty id as "dm" so direct-message events stay searchable.
func GuildID(id string) slog.Attr {
	if id == "" {
		id = "dm"
	}
	return slog.String(FieldGuildID, id)
}

func ChannelID(id string) slog.Attr {
	return slog.String(FieldChannelID, id)
}

func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

func MessageID(id string) slog.Attr {
	return slog.String(FieldMessageID, id)
}

func DeliveryID(id string) slog.Attr {
	return slog.String(FieldDeliveryID, id)
}

func Outcome(outcome string) slog.Attr {
	return slog.String(FieldOutcome, outcome)
}

func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Status returns the HTTP status code attribute.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration reports d in whole milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns an error attribute; a nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func Panic(v any) slog.Attr {
	return slog.Any(FieldPanic, v)
}
