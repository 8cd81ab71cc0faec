package scraper

import (
	"strings"

	"github.com/go-rod/rod"
)

// Selector candidates for the tables the extractors need. The portal's
// markup varies across deployments, so each lookup walks a list.
var (
	listTableSelectors = []string{
		"table#tabelaPrazos",
		"table.infraTable",
		"table.tabelaPrazos",
	}
)

// CollectTableRows snapshots a table into DOM-free rows: cell texts, every
// anchor in the row, and whether any cell is rendered with the deadline
// highlight color
func CollectTableRows(tbl *rod.Element) ([]TableRow, error) {
	trs, err := tbl.Elements("tr")
	if err != nil {
		return nil, err
	}

	rows := make([]TableRow, 0, len(trs))
	for _, tr := range trs {
		row := TableRow{}

		if raw, err := tr.Text(); err == nil {
			row.Raw = raw
		}

		tds, err := tr.Elements("td")
		if err != nil {
			continue
		}
		for _, td := range tds {
			text, err := td.Text()
			if err != nil {
				text = ""
			}
			row.Cells = append(row.Cells, text)
			if !row.Highlighted && cellHighlighted(td) {
				row.Highlighted = true
			}
		}

		anchors, err := tr.Elements("a")
		if err == nil {
			for _, a := range anchors {
				link := LinkRef{}
				if t, err := a.Text(); err == nil {
					link.Text = t
				}
				if href, err := a.Attribute("href"); err == nil && href != nil {
					link.Href = *href
				}
				if onclick, err := a.Attribute("onclick"); err == nil && onclick != nil {
					link.OnClick = *onclick
				}
				row.Links = append(row.Links, link)
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// cellHighlighted reads the rendered background color of a cell and compares
// it to the deadline highlight constant
func cellHighlighted(td *rod.Element) bool {
	obj, err := td.Eval(`() => getComputedStyle(this).backgroundColor`)
	if err != nil {
		return false
	}
	return obj.Value.Str() == deadlineHighlightColor
}

// findEventsTable locates the procedural-history table by header or caption
// text containing "evento"
func findEventsTable(page *rod.Page) (*rod.Element, error) {
	tables, err := page.Elements("table")
	if err != nil {
		return nil, err
	}
	for _, tbl := range tables {
		head := ""
		if caption, err := tbl.Element("caption"); err == nil {
			if t, err := caption.Text(); err == nil {
				head = t
			}
		}
		if head == "" {
			if tr, err := tbl.Element("tr"); err == nil {
				if t, err := tr.Text(); err == nil {
					head = t
				}
			}
		}
		if strings.Contains(strings.ToLower(head), "evento") {
			return tbl, nil
		}
	}
	return nil, ErrFieldNotFound
}

// collectRepresentativeTable finds the parties-and-representatives table and
// returns its column headers plus the cell texts per column
func collectRepresentativeTable(page *rod.Page) (headers []string, columns [][]string, err error) {
	tables, err := page.Elements("table")
	if err != nil {
		return nil, nil, err
	}

	for _, tbl := range tables {
		headerRow, err := tbl.Element("tr")
		if err != nil {
			continue
		}
		headerCells, err := headerRow.Elements("th, td")
		if err != nil || len(headerCells) == 0 {
			continue
		}

		var hs []string
		sides := 0
		for _, cell := range headerCells {
			text, err := cell.Text()
			if err != nil {
				text = ""
			}
			hs = append(hs, text)
			if classifySide(text) != "" {
				sides++
			}
		}
		if sides == 0 {
			continue
		}

		cols := make([][]string, len(hs))
		trs, err := tbl.Elements("tr")
		if err != nil {
			continue
		}
		for i, tr := range trs {
			if i == 0 {
				continue
			}
			tds, err := tr.Elements("td")
			if err != nil {
				continue
			}
			for j, td := range tds {
				if j >= len(cols) {
					break
				}
				if text, err := td.Text(); err == nil {
					cols[j] = append(cols[j], text)
				}
			}
		}
		return hs, cols, nil
	}

	return nil, nil, ErrFieldNotFound
}
