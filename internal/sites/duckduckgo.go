package sites

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/langdetect"
	"github.com/MeKo-Tech/lahidna/internal/page"
)

const (
	ddgStyleID        = "lu-ddg-filter-styles"
	ddgFiltered       = "lu-ddg-filtered"
	ddgProcessing     = "lu-ddg-processing"
	ddgRelatedHidden  = "lu-ddg-related-filtered"
	ddgACProcessing   = "lu-ddg-ac-processing"
	ddgACFiltered     = "lu-ddg-ac-filtered"
	ddgResultsClass   = "react-results--main"
	ddgACSelector     = `li[role="option"][data-reach-combobox-option]`
	ddgACMenuSelector = `[data-testid="search-autocomplete-menu"]`
	ddgACDebounce     = 50 * time.Millisecond
)

const ddgStyles = `
article.lu-ddg-filtered { display: none !important; }
a.lu-ddg-related-filtered, li.lu-ddg-related-filtered { display: none !important; }
li[role="option"][data-reach-combobox-option].lu-ddg-ac-processing { display: none !important; pointer-events: none !important; }
li[role="option"][data-reach-combobox-option].lu-ddg-ac-filtered { display: none !important; }
[data-testid="search-autocomplete-menu"].lu-ddg-ac-filtered { display: none !important; }
[data-testid="search-autocomplete-menu"]:has(li.lu-ddg-ac-processing) { opacity: 0 !important; pointer-events: none !important; }
ol.react-results--main.lu-ddg-processing { opacity: 0 !important; }
`

var (
	ddgAskRE   = regexp.MustCompile(`(?i)–\s*(Запитайте|Ask)\s+Duck\.ai`)
	ddgShiftRE = regexp.MustCompile(`(?i)Shift\+Enter`)

	ddgCookieCodes = map[string]string{
		"uk": "uk_UA", "hy": "hy_AM", "af": "af_ZA", "be": "be_BY", "bg": "bg_BG",
		"de": "de_DE", "en": "en_GB", "id": "id_ID", "nl": "nl_NL", "vi": "vi_VN",
		"tr": "tr_TR", "ca": "ca_ES", "da": "da_DK", "et": "et_EE", "es": "es_ES",
		"eo": "eo_XX", "fr": "fr_FR", "hr": "hr_HR", "it": "it_IT", "lv": "lv_LV",
		"lt": "lt_LT", "hu": "hu_HU", "no": "nb_NO", "pl": "pl_PL", "pt": "pt_PT",
		"ro": "ro_RO", "sk": "sk_SK", "sl": "sl_SI", "fi": "fi_FI", "sv": "sv_SE",
		"is": "is_IS", "cs": "cs_CZ", "el": "el_GR", "sr": "sr_RS", "iw": "he_IL",
		"ar": "ar_SA", "fa": "fa_IR", "hi": "hi_IN", "th": "th_TH", "zh-CN": "zh_CN",
		"zh-TW": "zh_TW", "ja": "ja_JP", "ko": "ko_KR",
	}
)

// DuckDuckGo hides results in unwanted languages and sets the UI language
// through the ad cookie.
type DuckDuckGo struct {
	base Default

	mu      sync.Mutex
	obs     *page.Observer
	acTimer *time.Timer
	stopped bool
}

// NewDuckDuckGo builds the adapter for duckduckgo.com.
func NewDuckDuckGo(env *Env) Site[[]string] {
	return &DuckDuckGo{base: Default{Env: env, Name: "duckduckgo", Supported: []string{"uk", "en"}}}
}

func (d *DuckDuckGo) Name() string                 { return d.base.Name }
func (d *DuckDuckGo) SupportedLanguages() []string { return d.base.Supported }
func (d *DuckDuckGo) CacheTTL() time.Duration      { return 0 }
func (d *DuckDuckGo) CallToAction([]string) string { return "" }

// Preflight starts result filtering when the user has unwanted languages.
func (d *DuckDuckGo) Preflight(context.Context) error {
	if len(d.base.Env.Pref.LessLanguages) == 0 {
		return nil
	}
	doc := d.base.Env.Doc
	if err := d.injectStyles(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.obs == nil && !d.stopped {
		root := doc.DocumentElement()
		if root != nil {
			d.obs = doc.Observe(root, page.ObserveOptions{ChildList: true, Subtree: true}, d.onMutations)
		}
	}
	d.mu.Unlock()
	doc.OnUnload(d.stop)

	for _, ol := range doc.Nodes("ol." + ddgResultsClass) {
		d.handleAdded(ol)
	}
	for _, li := range doc.Nodes(ddgACSelector) {
		d.handleAdded(li)
	}
	return nil
}

func (d *DuckDuckGo) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.obs != nil {
		d.obs.Disconnect()
		d.obs = nil
	}
	if d.acTimer != nil {
		d.acTimer.Stop()
		d.acTimer = nil
	}
}

func (d *DuckDuckGo) injectStyles() error {
	doc := d.base.Env.Doc
	if doc.NodeByID(ddgStyleID) != nil {
		return nil
	}
	parent := doc.Head()
	if parent == nil {
		parent = doc.DocumentElement()
	}
	if parent == nil {
		return &ParseError{Adapter: d.Name(), What: "document element"}
	}
	_, err := doc.InsertHTML(parent, `<style id="`+ddgStyleID+`">`+ddgStyles+`</style>`)
	return err
}

func (d *DuckDuckGo) onMutations(recs []page.MutationRecord) {
	for _, r := range recs {
		for _, n := range r.Added {
			if n.Type == html.ElementNode {
				d.handleAdded(n)
			}
		}
	}
}

func (d *DuckDuckGo) handleAdded(n *html.Node) {
	doc := d.base.Env.Doc
	switch {
	case n.Data == "ol" && doc.HasClass(n, ddgResultsClass):
		lis := doc.Children(n, "li")
		if len(lis) > 0 {
			d.mark(doc.AddClass(n, ddgProcessing))
			for _, li := range lis {
				d.filterResultItem(li)
			}
			d.mark(doc.RemoveClass(n, ddgProcessing))
		}
		d.filterRelatedSearches()
	case n.Data == "li" && d.inResults(n):
		d.filterResultItem(n)
	}
	if n.Data == "li" && doc.Matches(n, ddgACSelector) {
		d.mark(doc.AddClass(n, ddgACProcessing))
		d.filterAutocomplete(n)
	}
}

func (d *DuckDuckGo) inResults(li *html.Node) bool {
	p := d.base.Env.Doc.Parent(li)
	return p != nil && d.base.Env.Doc.HasClass(p, ddgResultsClass)
}

func (d *DuckDuckGo) mark(err error) {
	if err != nil {
		slog.Debug("DuckDuckGo filter mutation failed", "error", err)
	}
}

func (d *DuckDuckGo) detector() *langdetect.Detector {
	if d.base.Env.Detector != nil {
		return d.base.Env.Detector
	}
	return langdetect.Default()
}

// shouldFilter reports whether text is in an unwanted language. Ambiguous
// text is kept.
func (d *DuckDuckGo) shouldFilter(text string) bool {
	if text == "" {
		return false
	}
	detected := lang.Primary(d.detector().Detect(text))
	return detected != "" && lang.Contains(d.base.Env.Pref.LessLanguages, detected)
}

func (d *DuckDuckGo) firstText(n *html.Node, selector string) string {
	doc := d.base.Env.Doc
	nodes := doc.NodesWithin(n, selector)
	if len(nodes) == 0 {
		return ""
	}
	return strings.TrimSpace(doc.TextOf(nodes[0]))
}

func (d *DuckDuckGo) filterResultItem(li *html.Node) {
	doc := d.base.Env.Doc
	articles := doc.Children(li, "article")
	if len(articles) == 0 {
		return
	}
	article := articles[0]
	text := strings.TrimSpace(d.firstText(article, "h2 a") + " " + d.firstText(article, `[data-result="snippet"]`))
	if d.shouldFilter(text) {
		d.base.Env.Log().Debug("Filtering result", "adapter", d.Name(), "text", text)
		d.mark(doc.AddClass(article, ddgFiltered))
	}
}

func (d *DuckDuckGo) relatedSearches() []*html.Node {
	doc := d.base.Env.Doc
	var out []*html.Node
	for _, a := range doc.Nodes(`a[href*="?q="]`) {
		if doc.Closest(a, "article") != nil || doc.Closest(a, "header") != nil || doc.Closest(a, "nav") != nil {
			continue
		}
		href := attrOf(a, "href")
		if strings.HasPrefix(href, "?q=") || strings.HasPrefix(href, "/?q=") || strings.Contains(href, "duckduckgo.com/?q=") {
			out = append(out, a)
		}
	}
	return out
}

func (d *DuckDuckGo) filterRelatedSearches() {
	doc := d.base.Env.Doc
	filtered := 0
	for _, a := range d.relatedSearches() {
		if !d.shouldFilter(strings.TrimSpace(doc.TextOf(a))) {
			continue
		}
		target := doc.Closest(a, "li.related-searches__item")
		if target == nil {
			target = a
		}
		d.mark(doc.AddClass(target, ddgRelatedHidden))
		filtered++
	}
	if filtered > 0 {
		d.rebalanceRelatedSearches()
	}
}

// rebalanceRelatedSearches redistributes the visible related searches over
// the two columns, the left one taking the odd item.
func (d *DuckDuckGo) rebalanceRelatedSearches() {
	doc := d.base.Env.Doc
	lists := doc.Nodes("ol.related-searches__list")
	if len(lists) != 2 {
		return
	}
	left, right := lists[0], lists[1]
	items := append(doc.NodesWithin(left, "li.related-searches__item"), doc.NodesWithin(right, "li.related-searches__item")...)

	var visible []*html.Node
	for _, it := range items {
		if !doc.HasClass(it, ddgRelatedHidden) {
			visible = append(visible, it)
		}
	}
	if len(visible) == 0 {
		if block := doc.Nodes("li.related_searches"); len(block) > 0 {
			d.mark(doc.AddClass(block[0], ddgRelatedHidden))
		}
		return
	}

	for _, it := range items {
		d.mark(doc.Remove(it))
	}
	leftCount := (len(visible) + 1) / 2
	for i, it := range visible {
		col := right
		if i < leftCount {
			col = left
		}
		d.mark(doc.AppendChild(col, it))
	}
}

func (d *DuckDuckGo) autocompleteText(item *html.Node) string {
	text := strings.TrimSpace(d.base.Env.Doc.TextOf(item))
	text = ddgAskRE.ReplaceAllString(text, "")
	text = ddgShiftRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func (d *DuckDuckGo) filterAutocomplete(item *html.Node) {
	doc := d.base.Env.Doc
	filter := d.shouldFilter(d.autocompleteText(item))
	d.mark(doc.RemoveClass(item, ddgACProcessing))
	if filter {
		d.mark(doc.AddClass(item, ddgACFiltered))
	}
	d.debounceHideAutocomplete()
}

func (d *DuckDuckGo) debounceHideAutocomplete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.acTimer != nil {
		d.acTimer.Stop()
	}
	d.acTimer = time.AfterFunc(ddgACDebounce, d.hideAutocompleteIfEmpty)
}

func (d *DuckDuckGo) hideAutocompleteIfEmpty() {
	doc := d.base.Env.Doc
	items := doc.Nodes(ddgACSelector)
	if len(items) == 0 {
		return
	}
	for _, it := range items {
		if !doc.HasClass(it, ddgACFiltered) {
			return
		}
	}
	if menu := doc.Nodes(ddgACMenuSelector); len(menu) > 0 {
		d.mark(doc.AddClass(menu[0], ddgACFiltered))
	}
}

// uiLanguage reads the ad cookie, falling back to <html lang>.
func (d *DuckDuckGo) uiLanguage() string {
	if v, ok := d.base.Env.Doc.Cookie("ad"); ok && v != "" {
		code, _, _ := strings.Cut(v, "_")
		return strings.ToLower(code)
	}
	return d.base.UILanguage()
}

func (d *DuckDuckGo) ComputeDesiredConfig(context.Context) ([]string, error) {
	return d.base.UITarget(d.uiLanguage())
}

func (d *DuckDuckGo) Apply(_ context.Context, cfg []string) error {
	if len(cfg) == 0 {
		return nil
	}
	code, ok := ddgCookieCodes[cfg[0]]
	if !ok {
		d.base.Env.Log().Warn("No cookie mapping for language", "adapter", d.Name(), "lang", cfg[0])
		return nil
	}
	return d.base.Env.Doc.SetCookie("ad=" + code + "; path=/; max-age=31536000; SameSite=Lax")
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
