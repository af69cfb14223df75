package modis

import (
	"bytes"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// ParseListing returns the link targets of an HTML directory listing, without slashes.
func ParseListing(body []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed parsing listing")
	}
	result := []string{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					result = append(result, strings.ReplaceAll(attr.Val, "/", ""))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return result, nil
}

// TileFiles selects the HDF files of the product covering one of the tiles.
// File names look like MYD13Q1.A2023057.h21v08.061.2023074062513.hdf.
func TileFiles(links []string, productCode string, tiles []string) []string {
	wanted := map[string]struct{}{}
	for _, tile := range tiles {
		wanted[tile] = struct{}{}
	}
	seen := map[string]struct{}{}
	result := []string{}
	for _, link := range links {
		name := strings.Split(link, ".")
		if len(name) < 3 || name[0] != productCode || name[len(name)-1] != "hdf" {
			continue
		}
		if _, ok := wanted[name[2]]; len(wanted) > 0 && !ok {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		result = append(result, link)
	}
	sort.Strings(result)
	return result
}
