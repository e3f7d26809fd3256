package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// SuppressionEntry is one row of the do-not-contact database.
type SuppressionEntry struct {
	FirstName    string
	LastName     string
	Organization string
	Email        string
}

// QueryAll fetches all pages from a Notion database, handling pagination.
// Rate limiting is enforced by the Client (3 req/s by default).
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	for {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}

		req = &notionapi.DatabaseQueryRequest{StartCursor: resp.NextCursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
	}

	return all, nil
}

// QuerySuppressionList fetches every active row of the do-not-contact
// database. Rows with Status = "Archived" are skipped by the filter.
func QuerySuppressionList(ctx context.Context, c Client, dbID string) ([]SuppressionEntry, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				DoesNotEqual: "Archived",
			},
		},
	}

	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query suppression list")
	}

	entries := make([]SuppressionEntry, 0, len(pages))
	for _, page := range pages {
		entries = append(entries, SuppressionEntry{
			FirstName:    plainText(page.Properties["First Name"]),
			LastName:     plainText(page.Properties["Last Name"]),
			Organization: plainText(page.Properties["Organization"]),
			Email:        emailText(page.Properties["Email"]),
		})
	}
	return entries, nil
}

// plainText extracts the concatenated plain text from a title or
// rich-text property. Unknown property types yield "".
func plainText(prop notionapi.Property) string {
	var out string
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		for _, rt := range p.Title {
			out += rt.PlainText
		}
	case *notionapi.RichTextProperty:
		for _, rt := range p.RichText {
			out += rt.PlainText
		}
	}
	return out
}

func emailText(prop notionapi.Property) string {
	if p, ok := prop.(*notionapi.EmailProperty); ok {
		return p.Email
	}
	return plainText(prop)
}
