package application

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

const redacted = "***REDACTED***"

var sensitiveKeyParts = []string{"password", "token", "secret", "credential"}

// AuditRecorder appends audit entries through the caller's transaction, so an
// aborted unit leaves no trace.
type AuditRecorder struct {
	now func() time.Time
}

func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{now: func() time.Time { return time.Now().UTC() }}
}

func (r *AuditRecorder) Record(
	ctx context.Context,
	tx domain.Tx,
	action domain.AuditAction,
	entityType domain.EntityType,
	entityID string,
	before, after map[string]any,
) error {
	entry := domain.AuditEntry{
		ID:           uuid.New(),
		ActorID:      domain.ActorFrom(ctx),
		Action:       action,
		EntityType:   entityType,
		EntityID:     entityID,
		Before:       sanitizeMap(before),
		After:        sanitizeMap(after),
		TimestampUtc: r.now(),
	}
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, p := range sensitiveKeyParts {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

// sanitizeValue keeps JSON primitives, recurses into maps and slices, and
// stringifies everything else.
func sanitizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	case map[string]any:
		return sanitizeMap(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return sanitizeMap(m)
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, sanitizeValue(rv.Index(i).Interface()))
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return sanitizeValue(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}
