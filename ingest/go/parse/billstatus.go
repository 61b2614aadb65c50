package parse

import (
	"encoding/xml"
	"os"

	"go.capitolfeed.build/go/sklog"
)

// billStatusDoc mirrors the subset of the publisher's bill-status schema
// this parser cares about. Unrecognized elements are simply ignored by
// encoding/xml, which is the intended "conservative extraction" behavior.
type billStatusDoc struct {
	XMLName xml.Name `xml:"billStatus"`
	Bill    struct {
		Congress       string `xml:"congress"`
		Type           string `xml:"type"`
		Number         string `xml:"number"`
		BillNumber     string `xml:"billNumber"`
		Title          string `xml:"title"`
		IntroducedDate string `xml:"introducedDate"`
		Sponsors       struct {
			Items []struct {
				FullName string `xml:"fullName"`
			} `xml:"item"`
		} `xml:"sponsors"`
		Actions struct {
			Items []struct {
				ActionDate string `xml:"actionDate"`
				Text       string `xml:"text"`
			} `xml:"item"`
		} `xml:"actions"`
		TextVersions struct {
			Items []struct {
				Type string `xml:"type"`
				URL  string `xml:"url"`
			} `xml:"item"`
		} `xml:"textVersions"`
	} `xml:"bill"`
}

var chamberByType = map[string]string{
	"HR":   "hr",
	"H.R.": "hr",
	"S":    "s",
	"HOUSE": "house",
	"SENATE": "senate",
}

// ParseBillStatus reads one bill-status XML file and returns zero or one
// Bill record. A malformed or unrecognizable file produces zero records
// and a warning, never an error.
func ParseBillStatus(path string) ([]Bill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		sklog.Warningf("parse: could not read bill-status file %s: %s", path, err)
		return nil, nil
	}

	var doc billStatusDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		sklog.Warningf("parse: malformed bill-status XML at %s: %s", path, err)
		return nil, nil
	}

	number := doc.Bill.BillNumber
	if number == "" {
		number = doc.Bill.Number
	}
	if number == "" {
		sklog.Warningf("parse: bill-status file %s has no bill number, skipping", path)
		return nil, nil
	}

	chamber := chamberByType[doc.Bill.Type]
	if chamber == "" {
		chamber = "house"
	}

	congress := atoiOrZero(doc.Bill.Congress)

	bill := Bill{
		SourceFile:     path,
		Congress:       congress,
		Chamber:        chamber,
		BillNumber:     number,
		Title:          nilIfEmpty(doc.Bill.Title),
		IntroducedDate: parseLenientDate(doc.Bill.IntroducedDate),
		Extra:          map[string]string{},
	}

	for _, s := range doc.Bill.Sponsors.Items {
		if s.FullName == "" {
			continue
		}
		bill.Sponsors = append(bill.Sponsors, s.FullName)
	}
	if len(bill.Sponsors) > 0 {
		bill.SponsorName = nilIfEmpty(bill.Sponsors[0])
	}

	for _, a := range doc.Bill.Actions.Items {
		if a.Text == "" {
			continue
		}
		bill.Actions = append(bill.Actions, BillAction{
			Date: parseLenientDate(a.ActionDate),
			Text: a.Text,
		})
	}

	for _, tv := range doc.Bill.TextVersions.Items {
		if tv.URL == "" {
			continue
		}
		bill.Texts = append(bill.Texts, BillText{Format: tv.Type, URL: tv.URL})
	}

	return []Bill{bill}, nil
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
