package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-books/models"
)

// Selectors used on books.toscrape.com style pages.
const (
	categoryLinkSelector = ".side_categories ul.nav.nav-list li ul li a"
	itemLinkSelector     = "article.product_pod h3 a"
	nextPageSelector     = "li.next a"
	titleSelector        = "div.product_main h1"
	breadcrumbSelector   = "ul.breadcrumb li a"
	productInfoSelector  = "table.table.table-striped tr"
)

// Extractor reads catalog, listing and detail pages. It holds no state and is
// safe for concurrent use.
type Extractor struct{}

// NewExtractor returns an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Categories returns the categories listed in the catalog sidebar. URLs are
// the raw hrefs as they appear on the page.
func (e *Extractor) Categories(body string) ([]models.Category, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}

	var categories []models.Category
	doc.Find(categoryLinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		href = NormalizeHref(href)
		if !ok || href == "" {
			return
		}
		categories = append(categories, models.Category{
			Name: NormalizeText(sel.Text()),
			URL:  href,
		})
	})
	if len(categories) == 0 {
		return nil, &ExtractionError{Field: "categories"}
	}
	return categories, nil
}

// ItemLinks returns the relative detail-page links on a listing page, in
// document order. A listing without products yields an empty slice.
func (e *Extractor) ItemLinks(body string) ([]string, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}

	links := make([]string, 0, 20)
	doc.Find(itemLinkSelector).Each(func(_ int, sel *goquery.Selection) {
		if href := NormalizeHref(sel.AttrOr("href", "")); href != "" {
			links = append(links, href)
		}
	})
	return links, nil
}

// NextPageLink returns the href of the "next" pager link, if any.
func (e *Extractor) NextPageLink(body string) (string, bool) {
	doc, err := parse(body)
	if err != nil {
		return "", false
	}
	href := NormalizeHref(doc.Find(nextPageSelector).First().AttrOr("href", ""))
	return href, href != ""
}

// Book reads the product table, title and breadcrumb category of a detail page.
func (e *Extractor) Book(body, pageURL string) (*models.Book, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}

	title := doc.Find(titleSelector).First()
	if title.Length() == 0 {
		return nil, &ExtractionError{Field: "title"}
	}
	crumbs := doc.Find(breadcrumbSelector)
	if crumbs.Length() == 0 {
		return nil, &ExtractionError{Field: "category"}
	}

	info := make(map[string]string)
	doc.Find(productInfoSelector).Each(func(_ int, row *goquery.Selection) {
		key := NormalizeText(row.Find("th").First().Text())
		if key == "" {
			return
		}
		info[key] = NormalizeText(row.Find("td").First().Text())
	})
	if len(info) == 0 {
		return nil, &ExtractionError{Field: "product information"}
	}

	book := &models.Book{
		Title:        NormalizeText(title.Text()),
		Category:     NormalizeText(crumbs.Last().Text()),
		UPC:          info["UPC"],
		ProductType:  info["Product Type"],
		PriceExclTax: info["Price (excl. tax)"],
		PriceInclTax: info["Price (incl. tax)"],
		Tax:          info["Tax"],
		Availability: info["Availability"],
		NumReviews:   info["Number of reviews"],
		URL:          pageURL,
	}
	if err := ValidateBook(book); err != nil {
		return nil, err
	}
	return book, nil
}

func parse(body string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &ExtractionError{Field: "document", Err: err}
	}
	return doc, nil
}
