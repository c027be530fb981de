package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Toast durations in milliseconds. Errors stay up longer so they can be read.
const (
	toastSuccessMs = 3000
	toastErrorMs   = 5000
)

// HTMXResponseBuilder assembles the answer to an HTMX request: the status,
// an optional HTML fragment and the HX-* headers the ledger UI listens to.
// All triggers are merged into a single HX-Trigger JSON object on Write.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse starts a 200 response with no body.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger sets one HX-Trigger event. A later call with the same name wins.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerChanged fires "<entity>:changed". Tables listen for their own entity
// ("invoice", "expense", "customers", "user"...) and the dashboard cards
// listen for invoice and expense changes.
func (b *HTMXResponseBuilder) TriggerChanged(entity string) *HTMXResponseBuilder {
	return b.Trigger(entity+":changed", struct{}{})
}

// TriggerNotificationsRefresh makes the navbar badge re-read the unread count
// after a write that may have produced or consumed notifications.
func (b *HTMXResponseBuilder) TriggerNotificationsRefresh() *HTMXResponseBuilder {
	return b.Trigger("notifications:refresh", struct{}{})
}

// TriggerFormReset clears quick-entry forms (expenses, recurring, team members)
// that stay on the page after a successful post.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

// NotificationType selects the toast style in app.js.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

func (b *HTMXResponseBuilder) toast(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

// TriggerSuccessNotification shows a toast such as "Invoice INV-000042 sent".
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.toast(NotificationSuccess, message, toastSuccessMs)
}

// TriggerErrorNotification shows the classified error message as a toast.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.toast(NotificationError, message, toastErrorMs)
}

// Redirect navigates the browser after a save, usually to the record's page
// or back to its list.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// Retarget sends an error fragment into selector (the form's #form-errors
// slot) instead of the element that issued the request.
func (b *HTMXResponseBuilder) Retarget(selector string) *HTMXResponseBuilder {
	b.headers["HX-Retarget"] = selector
	b.headers["HX-Reswap"] = "innerHTML"
	return b
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// BodyHTML sets an HTML fragment as the body.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write flushes headers, the merged HX-Trigger object, the status and the body.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		triggerJSON, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message as the alert fragment the forms and tables
// swap in on failure. The message is escaped.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

// BadRequestError answers a form that could not be parsed at all.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// InternalServerError answers a template or storage failure.
func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ForbiddenError answers a role that lacks the route's permission.
func ForbiddenError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusForbidden, message)
}
