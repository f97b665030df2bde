package i18n

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

const DefaultLocale = "en"

var supportedLocales = map[string]struct{}{
	"en": {},
	"de": {},
}

func LocaleFromRequest(r *http.Request) string {
	if r == nil {
		return DefaultLocale
	}
	return NormalizeLocale(r.Header.Get("Accept-Language"))
}

// NormalizeLocale picks the supported language with the highest q-weight
// from an Accept-Language header. Ties keep header order.
func NormalizeLocale(header string) string {
	if strings.TrimSpace(header) == "" {
		return DefaultLocale
	}

	type candidate struct {
		lang string
		q    float64
	}
	var candidates []candidate

	for _, part := range strings.Split(header, ",") {
		lang, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		lang = strings.ToLower(strings.TrimSpace(lang))
		if idx := strings.Index(lang, "-"); idx >= 0 {
			lang = lang[:idx]
		}
		if _, ok := supportedLocales[lang]; !ok {
			continue
		}
		candidates = append(candidates, candidate{lang: lang, q: qualityOf(params)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].q > candidates[j].q
	})
	if len(candidates) == 0 || candidates[0].q <= 0 {
		return DefaultLocale
	}
	return candidates[0].lang
}

func qualityOf(params string) float64 {
	for _, p := range strings.Split(params, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(key) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return q
	}
	return 1
}
