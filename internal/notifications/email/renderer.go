package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"farewatch/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is the struct passed into Go templates for rendering.
type templateData struct {
	Subject     string
	Headline    string
	Origin      string
	Destination string
	Price       string
	Target      string
	Depart      string
	Return      string
	Carrier     string
	Stops       string
	BookingLink string
	DeepLink    string
	ManageLink  string
}

// headlines maps the decision reason to the opening line of the alert.
var headlines = map[types.Reason]string{
	types.ReasonFirstTimeBelowTarget: "Your fare target has been reached",
	types.ReasonSignificantPriceDrop: "The price dropped again",
}

// Renderer renders price alerts with html/template and text/template from
// embedded files.
type Renderer struct {
	html       *template.Template
	text       *texttemplate.Template
	appBaseURL string
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	// AppBaseURL is used for the "manage this watch" footer link.
	AppBaseURL string
}

// NewRenderer parses the embedded templates.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	html, err := template.ParseFS(templateFS, "templates/base.html", "templates/price_alert.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/price_alert.txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse text template: %w", err)
	}
	return &Renderer{
		html:       html,
		text:       text,
		appBaseURL: strings.TrimRight(cfg.AppBaseURL, "/"),
	}, nil
}

// Render produces the subject and both bodies for alert.
func (r *Renderer) Render(alert types.PriceAlert) (*RenderedEmail, error) {
	data := r.buildTemplateData(alert)

	var htmlBuf bytes.Buffer
	if err := r.html.ExecuteTemplate(&htmlBuf, "base.html", data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render html: %w", err)
	}
	var textBuf bytes.Buffer
	if err := r.text.ExecuteTemplate(&textBuf, "price_alert.txt", data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render text: %w", err)
	}

	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: textBuf.String(),
	}, nil
}

func (r *Renderer) buildTemplateData(a types.PriceAlert) templateData {
	origin := strings.ToUpper(a.Route.Origin)
	dest := strings.ToUpper(a.Route.Destination)
	price := FormatPrice(a.Price, a.Currency)

	headline := headlines[a.Reason]
	if headline == "" {
		headline = "Fare update"
	}

	d := templateData{
		Subject:     fmt.Sprintf("%s → %s now %s", origin, dest, price),
		Headline:    headline,
		Origin:      origin,
		Destination: dest,
		Price:       price,
		Target:      FormatPrice(a.TargetUSD, "USD"),
		Depart:      a.Dates.Depart.Format("Mon, Jan 2 2006"),
		Carrier:     a.Carrier,
		Stops:       formatStops(a.StopsOutbound, a.StopsReturn),
		BookingLink: a.BookingLink,
		DeepLink:    a.DeepLink,
		ManageLink:  r.appBaseURL + "/watches/" + a.WatchID,
	}
	if a.Dates.Return != nil {
		d.Return = a.Dates.Return.Format("Mon, Jan 2 2006")
	}
	if d.Carrier == "" {
		d.Carrier = "Multiple carriers"
	}
	return d
}

// FormatPrice renders an amount with its currency, using a symbol for the
// common ones: 412.4 USD becomes "$412.40".
func FormatPrice(amount float64, currency string) string {
	currency = strings.ToUpper(currency)
	switch currency {
	case "", "USD":
		return fmt.Sprintf("$%.2f", amount)
	case "EUR":
		return fmt.Sprintf("€%.2f", amount)
	case "GBP":
		return fmt.Sprintf("£%.2f", amount)
	default:
		return fmt.Sprintf("%.2f %s", amount, currency)
	}
}

func formatStops(outbound int, ret *int) string {
	s := stopsLabel(outbound)
	if ret != nil {
		s += " out, " + stopsLabel(*ret) + " back"
	}
	return s
}

func stopsLabel(n int) string {
	switch n {
	case 0:
		return "nonstop"
	case 1:
		return "1 stop"
	default:
		return fmt.Sprintf("%d stops", n)
	}
}
