package sites

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/testutil"
)

func ddgFixture(t *testing.T, less []string) (*page.Document, *DuckDuckGo) {
	t.Helper()
	doc := testutil.LoadPage(t, "duckduckgo_results.html", "https://duckduckgo.com/?q=news")
	f := newFixture(t, doc, pref([]string{"uk"}, less))
	site := NewDuckDuckGo(f.env).(*DuckDuckGo)
	t.Cleanup(doc.Unload)
	return doc, site
}

func texts(doc *page.Document, nodes []*html.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, strings.TrimSpace(doc.TextOf(n)))
	}
	return out
}

func filteredArticles(doc *page.Document) []bool {
	var out []bool
	for _, a := range doc.Nodes("article") {
		out = append(out, doc.HasClass(a, ddgFiltered))
	}
	return out
}

func TestDuckDuckGo_FiltersExistingResults(t *testing.T) {
	doc, site := ddgFixture(t, []string{"ru"})
	require.NoError(t, site.Preflight(bg))

	require.NotNil(t, doc.NodeByID(ddgStyleID))
	assert.Equal(t, []bool{true, false}, filteredArticles(doc))

	ol := doc.Nodes("ol." + ddgResultsClass)[0]
	assert.False(t, doc.HasClass(ol, ddgProcessing))

	lists := doc.Nodes("ol.related-searches__list")
	require.Len(t, lists, 2)
	assert.Equal(t, []string{"Новини Києва"}, texts(doc, doc.NodesWithin(lists[0], "li")))
	assert.Equal(t, []string{"Курс гривні"}, texts(doc, doc.NodesWithin(lists[1], "li")))

	header := doc.Nodes("header a")[0]
	assert.False(t, doc.HasClass(header, ddgRelatedHidden), "navigation links are not related searches")
}

func TestDuckDuckGo_FiltersLateResults(t *testing.T) {
	doc, site := ddgFixture(t, []string{"ru"})
	require.NoError(t, site.Preflight(bg))

	ol := doc.Nodes("ol." + ddgResultsClass)[0]
	_, err := doc.InsertHTML(ol, `<li><article><h2><a href="https://x.ru/">Как приготовить борщ</a></h2></article></li>`)
	require.NoError(t, err)
	_, err = doc.InsertHTML(ol, `<li><article><h2><a href="https://x.ua/">Як приготувати борщ</a></h2></article></li>`)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false, true, false}, filteredArticles(doc))
}

func TestDuckDuckGo_Autocomplete(t *testing.T) {
	doc, site := ddgFixture(t, []string{"ru"})
	require.NoError(t, site.Preflight(bg))

	menu := doc.Nodes(ddgACMenuSelector)[0]
	nodes, err := doc.InsertHTML(menu, `<li role="option" data-reach-combobox-option="">погода в москве завтра ещё – Ask Duck.ai</li>`)
	require.NoError(t, err)
	item := nodes[0]

	assert.True(t, doc.HasClass(item, ddgACFiltered))
	assert.False(t, doc.HasClass(item, ddgACProcessing))
	assert.Eventually(t, func() bool { return doc.HasClass(menu, ddgACFiltered) }, time.Second, 10*time.Millisecond)
}

func TestDuckDuckGo_AutocompleteKeepsMenuWithVisibleItems(t *testing.T) {
	doc, site := ddgFixture(t, []string{"ru"})
	require.NoError(t, site.Preflight(bg))

	menu := doc.Nodes(ddgACMenuSelector)[0]
	_, err := doc.InsertHTML(menu, `<li role="option" data-reach-combobox-option="">быстрые новости</li><li role="option" data-reach-combobox-option="">новини україни</li>`)
	require.NoError(t, err)

	time.Sleep(4 * ddgACDebounce)
	assert.False(t, doc.HasClass(menu, ddgACFiltered))
	items := doc.Nodes(ddgACSelector)
	require.Len(t, items, 2)
	assert.True(t, doc.HasClass(items[0], ddgACFiltered))
	assert.False(t, doc.HasClass(items[1], ddgACFiltered))
}

func TestDuckDuckGo_NoUnwantedLanguages(t *testing.T) {
	doc, site := ddgFixture(t, nil)
	require.NoError(t, site.Preflight(bg))

	assert.Nil(t, doc.NodeByID(ddgStyleID))
	assert.Equal(t, []bool{false, false}, filteredArticles(doc))
}

func TestDuckDuckGo_StopsOnUnload(t *testing.T) {
	doc, site := ddgFixture(t, []string{"ru"})
	require.NoError(t, site.Preflight(bg))
	doc.Unload()

	assert.Eventually(t, func() bool {
		site.mu.Lock()
		defer site.mu.Unlock()
		return site.stopped && site.obs == nil
	}, time.Second, 10*time.Millisecond)
}

func TestDuckDuckGo_UILanguageCookie(t *testing.T) {
	doc, site := ddgFixture(t, nil)
	require.NoError(t, doc.SetCookie("ad=ru_RU; path=/"))

	cfg, err := site.ComputeDesiredConfig(bg)
	require.NoError(t, err)
	assert.Equal(t, []string{"uk"}, cfg)

	require.NoError(t, site.Apply(bg, cfg))
	got, _ := doc.Cookie("ad")
	assert.Equal(t, "uk_UA", got)

	require.NoError(t, site.Apply(bg, []string{"xx"}), "unmapped languages are ignored")
	got, _ = doc.Cookie("ad")
	assert.Equal(t, "uk_UA", got)

	_, err = site.ComputeDesiredConfig(bg)
	mustSkip(t, err)
}
