package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// An empty id yields an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// ClientIP records the caller address under the key "client_ip".
func ClientIP(ip string) slog.Attr {
	return slog.String("client_ip", ip)
}

// Provider records the payment provider name under the key "provider".
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// EventType records the raw provider event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// EventID records the provider event identifier under the key "event_id".
func EventID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("event_id", id)
}

// EventKind records the normalized event kind under the key "event_kind".
func EventKind(kind string) slog.Attr {
	return slog.String("event_kind", kind)
}

// SubscriptionID records the provider subscription id under "subscription_id".
func SubscriptionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("subscription_id", id)
}

// CustomerID records the provider customer id under "customer_id".
func CustomerID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("customer_id", id)
}

// Plan records a plan tier under the key "plan".
func Plan(plan string) slog.Attr {
	if plan == "" {
		return slog.Attr{}
	}
	return slog.String("plan", plan)
}

// ErrorCode records the stable, greppable outcome code under the key "code".
func ErrorCode(code string) slog.Attr {
	return slog.String("code", code)
}

// IdempotencyKey records a ledger key under "idempotency_key".
func IdempotencyKey(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("idempotency_key", key)
}

// Duration records a duration in milliseconds under the key "duration_ms".
func Duration(d time.Duration) slog.Attr {
	return slog.Int64("duration_ms", d.Milliseconds())
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
