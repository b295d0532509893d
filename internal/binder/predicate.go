package binder

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/proxyservice/internal/entity"
)

// DefaultBlockedStatuses are the response codes that mark a proxy as blocked.
var DefaultBlockedStatuses = []int{http.StatusForbidden, http.StatusServiceUnavailable, http.StatusGatewayTimeout}

// maxInspectedBody bounds how much of a response HTMLMatches reads.
const maxInspectedBody = 2 << 20

// StatusIn matches responses whose status code is one of codes.
func StatusIn(codes ...int) entity.ResponsePredicate {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(resp *http.Response) bool {
		_, ok := set[resp.StatusCode]
		return ok
	}
}

// HTMLMatches matches HTML responses containing an element for the CSS selector,
// such as a captcha form served instead of the page. The body is restored for the caller.
func HTMLMatches(selector string) entity.ResponsePredicate {
	return func(resp *http.Response) bool {
		if resp.Body == nil || !strings.Contains(resp.Header.Get("Content-Type"), "html") {
			return false
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxInspectedBody))
		rest := resp.Body
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), rest), rest}
		if err != nil {
			return false
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return false
		}
		return doc.Find(selector).Length() > 0
	}
}

// Any matches when at least one of preds does. Nil predicates are skipped.
func Any(preds ...entity.ResponsePredicate) entity.ResponsePredicate {
	return func(resp *http.Response) bool {
		for _, p := range preds {
			if p != nil && p(resp) {
				return true
			}
		}
		return false
	}
}
