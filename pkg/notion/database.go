package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database query, following cursors. The
// next page is requested while the current one is appended.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	type pageResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	fetch := func(cursor notionapi.Cursor) <-chan pageResult {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		ch := make(chan pageResult, 1)
		go func() {
			resp, err := c.QueryDatabase(ctx, dbID, req)
			ch <- pageResult{resp: resp, err: err}
		}()
		return ch
	}

	var all []notionapi.Page
	var pending <-chan pageResult
	cursor, more := notionapi.Cursor(""), true
	for more {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		if pending == nil {
			pending = fetch(cursor)
		}
		res := <-pending
		if res.err != nil {
			return nil, eris.Wrap(res.err, "notion: query all page")
		}
		pending = nil
		cursor, more = res.resp.NextCursor, res.resp.HasMore
		if more && ctx.Err() == nil {
			pending = fetch(cursor)
		}
		all = append(all, res.resp.Results...)
	}
	return all, nil
}

// QueryByStatus fetches all pages whose Status property equals status.
func QueryByStatus(ctx context.Context, c Client, dbID, status string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: status,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query %s pages", status)
	}
	return pages, nil
}
