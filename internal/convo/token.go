package convo

import "strings"

// Callback tokens are namespaced strings the engine embeds in the buttons
// it renders. A later press carries the token back, and the next reply is
// derived entirely from the token plus fresh catalog lookups. The
// namespaces are a stable contract across reconfigurations.
const (
	nsNav      = "nav"
	nsCategory = "category"
	nsProduct  = "product"
	nsAction   = "action"

	argHome       = "home"
	argCategories = "categories"
	argSearch     = "search"
	argSearchCode = "search_code"
	argCart       = "cart"
	argCartAdd    = "cart_add"
)

// Token is a parsed callback payload.
type Token struct {
	NS  string
	Arg string
}

func parseToken(data string) (Token, bool) {
	ns, arg, ok := strings.Cut(data, ":")
	if !ok || ns == "" {
		return Token{}, false
	}
	switch ns {
	case nsNav, nsCategory, nsProduct, nsAction:
		return Token{NS: ns, Arg: arg}, true
	}
	return Token{}, false
}

func navToken(arg string) string { return nsNav + ":" + arg }

func categoryToken(name string) string { return nsCategory + ":" + name }

func productToken(id string) string { return nsProduct + ":" + id }

func actionToken(arg string) string { return nsAction + ":" + arg }

func cartAddToken(id string) string { return nsAction + ":" + argCartAdd + ":" + id }

// parseProductStart extracts a product id from a /start deep-link payload.
// Telegram start payloads cannot contain ':', so published links use
// "product_<id>"; the canonical "product:<id>" form is accepted too.
func parseProductStart(payload string) (string, bool) {
	for _, sep := range []string{":", "_"} {
		if id, ok := strings.CutPrefix(payload, nsProduct+sep); ok && id != "" {
			return id, true
		}
	}
	return "", false
}
