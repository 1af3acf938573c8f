package parser

import (
	"errors"
	"testing"

	"github.com/aluiziolira/go-scrape-books/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogRoot = `<html><body>
<div class="side_categories">
  <ul class="nav nav-list">
    <li><a href="catalogue/category/books_1/index.html">Books</a>
      <ul>
        <li><a href="catalogue/category/books/travel_2/index.html">
            Travel
        </a></li>
        <li><a href="catalogue/category/books/mystery_3/index.html">Mystery</a></li>
      </ul>
    </li>
  </ul>
</div>
</body></html>`

const listingPage = `<html><body><section>
<article class="product_pod"><h3><a href="../../../book-a_1/index.html" title="A">A</a></h3></article>
<article class="product_pod"><h3><a href="../../../book-b_2/index.html#top" title="B">B</a></h3></article>
<ul class="pager"><li class="next"><a href="page-2.html">next</a></li></ul>
</section></body></html>`

const detailPage = `<html><body>
<ul class="breadcrumb">
  <li><a href="../../index.html">Home</a></li>
  <li><a href="../category/books_1/index.html">Books</a></li>
  <li><a href="../category/books/poetry_23/index.html">Poetry</a></li>
  <li class="active">A Light in the Attic</li>
</ul>
<div class="product_main"><h1>A Light in the Attic</h1></div>
<table class="table table-striped">
  <tr><th>UPC</th><td>a897fe39b1053632</td></tr>
  <tr><th>Product Type</th><td>Books</td></tr>
  <tr><th>Price (excl. tax)</th><td>£51.77</td></tr>
  <tr><th>Price (incl. tax)</th><td>£51.77</td></tr>
  <tr><th>Tax</th><td>£0.00</td></tr>
  <tr><th>Availability</th><td>In stock (22 available)</td></tr>
  <tr><th>Number of reviews</th><td>0</td></tr>
</table>
</body></html>`

func TestExtractorCategories(t *testing.T) {
	categories, err := NewExtractor().Categories(catalogRoot)
	require.NoError(t, err)

	assert.Equal(t, []models.Category{
		{Name: "Travel", URL: "catalogue/category/books/travel_2/index.html"},
		{Name: "Mystery", URL: "catalogue/category/books/mystery_3/index.html"},
	}, categories)
}

func TestExtractorCategoriesMissingSidebar(t *testing.T) {
	_, err := NewExtractor().Categories("<html><body><p>maintenance</p></body></html>")

	var extractErr *ExtractionError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, "categories", extractErr.Field)
}

func TestExtractorItemLinks(t *testing.T) {
	links, err := NewExtractor().ItemLinks(listingPage)
	require.NoError(t, err)
	assert.Equal(t, []string{"../../../book-a_1/index.html", "../../../book-b_2/index.html"}, links)

	empty, err := NewExtractor().ItemLinks("<html><body></body></html>")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExtractorNextPageLink(t *testing.T) {
	next, ok := NewExtractor().NextPageLink(listingPage)
	require.True(t, ok)
	assert.Equal(t, "page-2.html", next)

	_, ok = NewExtractor().NextPageLink(detailPage)
	assert.False(t, ok)
}

func TestExtractorBook(t *testing.T) {
	book, err := NewExtractor().Book(detailPage, "http://example.test/catalogue/a-light_1000/index.html")
	require.NoError(t, err)

	assert.Equal(t, &models.Book{
		Title:        "A Light in the Attic",
		Category:     "Poetry",
		UPC:          "a897fe39b1053632",
		ProductType:  "Books",
		PriceExclTax: "£51.77",
		PriceInclTax: "£51.77",
		Tax:          "£0.00",
		Availability: "In stock (22 available)",
		NumReviews:   "0",
		URL:          "http://example.test/catalogue/a-light_1000/index.html",
	}, book)
}

func TestExtractorBookMissingStructure(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "no title",
			body:  `<html><body><ul class="breadcrumb"><li><a>Home</a></li></ul></body></html>`,
			field: "title",
		},
		{
			name:  "no breadcrumb",
			body:  `<html><body><div class="product_main"><h1>T</h1></div></body></html>`,
			field: "category",
		},
		{
			name: "no product table",
			body: `<html><body><ul class="breadcrumb"><li><a>Home</a></li></ul>
<div class="product_main"><h1>T</h1></div></body></html>`,
			field: "product information",
		},
		{
			name: "table without upc",
			body: `<html><body><ul class="breadcrumb"><li><a>Home</a></li></ul>
<div class="product_main"><h1>T</h1></div>
<table class="table table-striped"><tr><th>Tax</th><td>0</td></tr></table></body></html>`,
			field: "upc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor().Book(tt.body, "http://example.test/x")
			var extractErr *ExtractionError
			require.True(t, errors.As(err, &extractErr), "got %v", err)
			assert.Equal(t, tt.field, extractErr.Field)
		})
	}
}

func TestValidateBook(t *testing.T) {
	tests := []struct {
		name    string
		book    *models.Book
		wantErr bool
	}{
		{
			name:    "valid book",
			book:    &models.Book{Title: "Test Book", UPC: "abc", PriceInclTax: "£10.00"},
			wantErr: false,
		},
		{
			name:    "nil book",
			book:    nil,
			wantErr: true,
		},
		{
			name:    "missing title",
			book:    &models.Book{UPC: "abc", PriceInclTax: "£10.00"},
			wantErr: true,
		},
		{
			name:    "missing upc",
			book:    &models.Book{Title: "Test Book", PriceInclTax: "£10.00"},
			wantErr: true,
		},
		{
			name:    "missing price",
			book:    &models.Book{Title: "Test Book", UPC: "abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBook(tt.book)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateBook() error = %v", err)
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "  In stock (22 available)  ", expected: "In stock (22 available)"},
		{input: "\n  Travel\n  ", expected: "Travel"},
		{input: "a \t b", expected: "a b"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeText(tt.input), "NormalizeText(%q)", tt.input)
	}
}

func TestNormalizeHref(t *testing.T) {
	assert.Equal(t, "page-2.html", NormalizeHref(" page-2.html "))
	assert.Equal(t, "index.html", NormalizeHref("index.html#reviews"))
	assert.Equal(t, "", NormalizeHref("#"))
}
