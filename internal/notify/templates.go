package notify

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/gghookah/hookah-orders/internal/orders"
)

//go:embed templates.yaml
var templatesYAML []byte

const DefaultLang = "ru"

// VarOrderRef is the template field holding the short order reference.
const VarOrderRef = "order_id_short"

var eventTemplate = map[string]string{
	orders.EventOrderCreated:     "order_created",
	orders.EventOrderConfirmed:   "order_confirmed",
	orders.EventOnTheWay:         "order_on_the_way",
	orders.EventDelivered:        "order_delivered",
	orders.EventSessionStarted:   "session_started",
	orders.EventPickupRequested:  "pickup_requested",
	orders.EventOrderCompleted:   "order_completed",
	orders.EventOrderCanceled:    "order_canceled",
	orders.EventRebowlRequested:  "rebowl_requested",
	orders.EventRebowlInProgress: "rebowl_on_the_way",
	orders.EventRebowlDone:       "rebowl_done",
	orders.EventRebowlCanceled:   "rebowl_canceled",
	orders.EventFreeExtension:    "free_extension_used",
}

var operatorTemplate = map[string]string{
	orders.EventOrderCreated:    "admin_order_created",
	orders.EventOrderCanceled:   "admin_order_canceled",
	orders.EventPickupRequested: "admin_pickup_requested",
	orders.EventFreeExtension:   "admin_free_extension",
	orders.EventRebowlRequested: "admin_rebowl_requested",
}

// TemplateKey resolves the guest template of an event. SESSION_ENDING picks
// its variant from the time gate flag set when the event was emitted.
func TemplateKey(n orders.Notification) string {
	if n.Event == orders.EventSessionEnding {
		if n.Extra[orders.ExtraAfterHours] == "true" {
			return "session_ending_after_02"
		}
		return "session_ending_before_02"
	}
	return eventTemplate[n.Event]
}

// OperatorTemplateKey resolves the template operators get for an event.
func OperatorTemplateKey(n orders.Notification) string {
	if k, ok := operatorTemplate[n.Event]; ok {
		return k
	}
	return TemplateKey(n)
}

type Templates struct {
	byKey map[string]map[string]*template.Template
}

func DefaultTemplates() (*Templates, error) { return ParseTemplates(templatesYAML) }

// ParseTemplates reads a key -> language -> text document.
func ParseTemplates(doc []byte) (*Templates, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	t := &Templates{byKey: make(map[string]map[string]*template.Template, len(raw))}
	for key, langs := range raw {
		t.byKey[key] = make(map[string]*template.Template, len(langs))
		for lang, text := range langs {
			tpl, err := template.New(key + "." + lang).Option("missingkey=zero").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("template %s/%s: %w", key, lang, err)
			}
			t.byKey[key][lang] = tpl
		}
	}
	return t, nil
}

func (t *Templates) Has(key string) bool {
	_, ok := t.byKey[key]
	return ok
}

// Render formats key in lang, falling back to DefaultLang.
func (t *Templates) Render(key, lang string, vars map[string]string) (string, error) {
	langs, ok := t.byKey[key]
	if !ok {
		return "", fmt.Errorf("unknown template %q", key)
	}
	tpl, ok := langs[lang]
	if !ok {
		if tpl, ok = langs[DefaultLang]; !ok {
			return "", fmt.Errorf("template %q has no %s text", key, DefaultLang)
		}
	}
	var b strings.Builder
	if err := tpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return b.String(), nil
}
