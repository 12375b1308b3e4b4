// Package contact builds the outbound links shoppers use to reach the vendor.
package contact

import (
	"net/url"
	"strconv"
	"strings"

	"storefront/internal/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const whatsAppBase = "https://wa.me/"

var pricePrinter = message.NewPrinter(language.English)

// WhatsAppLink returns a wa.me link that opens a chat with phone prefilled
// with an enquiry about product. When pageURL is not empty it is appended to
// the message.
func WhatsAppLink(phone string, product *domain.Product, pageURL string) string {
	msg := Message(product, pageURL)
	return whatsAppBase + digitsOnly(phone) + "?text=" + encodeComponent(msg)
}

// Message is the enquiry text sent to the vendor.
func Message(product *domain.Product, pageURL string) string {
	var b strings.Builder
	b.WriteString("Hi, I'm interested in *")
	b.WriteString(product.Title)
	b.WriteString("* (KES ")
	b.WriteString(strconv.FormatFloat(product.Price, 'f', -1, 64))
	b.WriteString(")")
	if pageURL != "" {
		b.WriteString("\n\nLink: ")
		b.WriteString(pageURL)
	}
	return b.String()
}

// FormatPrice renders a price for display, e.g. "KES 28,000".
func FormatPrice(price float64) string {
	return "KES " + pricePrinter.Sprint(number.Decimal(price, number.MaxFractionDigits(2)))
}

// ProductPageURL joins the public store URL and a product slug.
func ProductPageURL(baseURL, slug string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/product/" + slug
}

func digitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// encodeComponent escapes s for use as a query value with spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
